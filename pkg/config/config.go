package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConcurrency is the admission gate size when none is configured
	DefaultConcurrency = 100
	// DefaultMaxRetries is the number of attempts made per username
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the first backoff delay; it doubles on every retry
	DefaultBaseDelay = 2 * time.Second
	// DefaultRequestTimeout bounds a single upstream request
	DefaultRequestTimeout = 30 * time.Second
)

// Proxy modes
const (
	ProxyModeResidential = "residential"
	ProxyModeDirect      = "direct"
	ProxyModeStatic      = "static"
)

// Sink kinds
const (
	SinkJSONL    = "jsonl"
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
	SinkNone     = "none"
)

// Config holds all configuration options for an engagement run
type Config struct {
	Run     RunConfig     `yaml:"run" json:"run"`
	Fetch   FetchConfig   `yaml:"fetch" json:"fetch"`
	Proxy   ProxyConfig   `yaml:"proxy" json:"proxy"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// RunConfig holds the run input
type RunConfig struct {
	Usernames     []string `yaml:"usernames" json:"usernames"`
	UsernamesFile string   `yaml:"usernames_file" json:"usernames_file"`
	Concurrency   int      `yaml:"concurrency" json:"concurrency"`
	Name          string   `yaml:"name" json:"name"`
	Resume        bool     `yaml:"resume" json:"resume"`
}

// FetchConfig holds per-request and retry settings
type FetchConfig struct {
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"` // 0 leaves backoff uncapped
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
}

// ProxyConfig describes how session proxy URLs are issued
type ProxyConfig struct {
	Mode           string   `yaml:"mode" json:"mode"`
	Hostname       string   `yaml:"hostname" json:"hostname"`
	Port           int      `yaml:"port" json:"port"`
	Groups         []string `yaml:"groups" json:"groups"`
	Country        string   `yaml:"country" json:"country"`
	Password       string   `yaml:"password" json:"-"`
	CredentialName string   `yaml:"credential_name" json:"credential_name"`
	StaticURL      string   `yaml:"static_url" json:"static_url"`
}

// OutputConfig holds dataset sink and status settings
type OutputConfig struct {
	Sink        string `yaml:"sink" json:"sink"`
	Path        string `yaml:"path" json:"path"`
	DatabaseURL string `yaml:"database_url" json:"-"`
	Table       string `yaml:"table" json:"table"`
	StatusFile  string `yaml:"status_file" json:"status_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Concurrency: DefaultConcurrency,
			Name:        "default",
		},
		Fetch: FetchConfig{
			MaxRetries:     DefaultMaxRetries,
			BaseDelay:      DefaultBaseDelay,
			RequestTimeout: DefaultRequestTimeout,
		},
		Proxy: ProxyConfig{
			Mode:           ProxyModeResidential,
			Hostname:       "proxy.apify.com",
			Port:           8000,
			Groups:         []string{"RESIDENTIAL"},
			CredentialName: "default",
		},
		Output: OutputConfig{
			Sink:  SinkJSONL,
			Path:  "./engagement.jsonl",
			Table: "profile_engagement",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from IGENGAGE_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("IGENGAGE_USERNAMES"); v != "" {
		c.Run.Usernames = SplitUsernames(v)
	}
	if v := os.Getenv("IGENGAGE_USERNAMES_FILE"); v != "" {
		c.Run.UsernamesFile = v
	}
	if v := os.Getenv("IGENGAGE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGENGAGE_CONCURRENCY: %w", err))
		} else {
			c.Run.Concurrency = n
		}
	}
	if v := os.Getenv("IGENGAGE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGENGAGE_MAX_RETRIES: %w", err))
		} else {
			c.Fetch.MaxRetries = n
		}
	}
	if v := os.Getenv("IGENGAGE_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGENGAGE_REQUESTS_PER_SECOND: %w", err))
		} else {
			c.Fetch.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("IGENGAGE_PROXY_MODE"); v != "" {
		c.Proxy.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("IGENGAGE_PROXY_PASSWORD"); v != "" {
		c.Proxy.Password = v
	}
	if v := os.Getenv("IGENGAGE_PROXY_COUNTRY"); v != "" {
		c.Proxy.Country = strings.ToUpper(v)
	}
	if v := os.Getenv("IGENGAGE_PROXY_URL"); v != "" {
		c.Proxy.StaticURL = v
	}
	if v := os.Getenv("IGENGAGE_SINK"); v != "" {
		c.Output.Sink = strings.ToLower(v)
	}
	if v := os.Getenv("IGENGAGE_OUTPUT"); v != "" {
		c.Output.Path = v
	}
	if v := os.Getenv("IGENGAGE_DATABASE_URL"); v != "" {
		c.Output.DatabaseURL = v
	}
	if v := os.Getenv("IGENGAGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igengage.yaml",
		".igengage.yml",
		filepath.Join(home, ".config", "igengage", "config.yaml"),
		filepath.Join(home, ".igengage.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if usernames, ok := flags["usernames"].([]string); ok && len(usernames) > 0 {
		c.Run.Usernames = usernames
	}
	if file, ok := flags["usernames-file"].(string); ok && file != "" {
		c.Run.UsernamesFile = file
	}
	if concurrency, ok := flags["concurrency"].(int); ok && concurrency != 0 {
		c.Run.Concurrency = concurrency
	}
	if name, ok := flags["run-name"].(string); ok && name != "" {
		c.Run.Name = name
	}
	if resume, ok := flags["resume"].(bool); ok {
		c.Run.Resume = resume
	}
	if retries, ok := flags["max-retries"].(int); ok && retries != 0 {
		c.Fetch.MaxRetries = retries
	}
	if rps, ok := flags["requests-per-second"].(float64); ok && rps > 0 {
		c.Fetch.RequestsPerSecond = rps
	}
	if mode, ok := flags["proxy-mode"].(string); ok && mode != "" {
		c.Proxy.Mode = strings.ToLower(mode)
	}
	if proxyURL, ok := flags["proxy-url"].(string); ok && proxyURL != "" {
		c.Proxy.StaticURL = proxyURL
	}
	if sink, ok := flags["sink"].(string); ok && sink != "" {
		c.Output.Sink = strings.ToLower(sink)
	}
	if output, ok := flags["output"].(string); ok && output != "" {
		c.Output.Path = output
	}
	if statusFile, ok := flags["status-file"].(string); ok && statusFile != "" {
		c.Output.StatusFile = statusFile
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if noColor, ok := flags["no-color"].(bool); ok && noColor {
		c.Logging.NoColor = true
	}
}

// ResolveUsernames appends usernames from UsernamesFile, if set, to the inline list
func (c *Config) ResolveUsernames() error {
	if c.Run.UsernamesFile == "" {
		return nil
	}
	fromFile, err := LoadUsernames(c.Run.UsernamesFile)
	if err != nil {
		return err
	}
	c.Run.Usernames = append(c.Run.Usernames, fromFile...)
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if len(c.Run.Usernames) == 0 {
		errs = append(errs, errors.New("input 'usernames' (a list of profiles) is required"))
	}
	if c.Run.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Fetch.MaxRetries <= 0 {
		errs = append(errs, errors.New("max retries must be positive"))
	}
	if c.Fetch.BaseDelay < 0 {
		errs = append(errs, errors.New("base delay cannot be negative"))
	}
	if c.Fetch.MaxDelay < 0 {
		errs = append(errs, errors.New("max delay cannot be negative"))
	}
	if c.Fetch.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}

	switch c.Proxy.Mode {
	case ProxyModeResidential:
		if c.Proxy.Hostname == "" || c.Proxy.Port <= 0 {
			errs = append(errs, errors.New("residential proxy requires hostname and port"))
		}
	case ProxyModeStatic:
		if c.Proxy.StaticURL == "" {
			errs = append(errs, errors.New("static proxy mode requires proxy.static_url"))
		}
	case ProxyModeDirect:
	default:
		errs = append(errs, fmt.Errorf("invalid proxy mode %q", c.Proxy.Mode))
	}

	switch c.Output.Sink {
	case SinkJSONL, SinkCSV:
		if c.Output.Path == "" {
			errs = append(errs, errors.New("output path is required for file sinks"))
		}
	case SinkPostgres:
		if c.Output.DatabaseURL == "" {
			errs = append(errs, errors.New("database url is required for the postgres sink"))
		}
		if c.Output.Table == "" {
			errs = append(errs, errors.New("table is required for the postgres sink"))
		}
	case SinkNone:
	default:
		errs = append(errs, fmt.Errorf("invalid sink %q", c.Output.Sink))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment > .env file > config file > defaults.
// The returned configuration is not validated; callers decide when to Validate.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igengage.env"))

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.MergeCommandLineFlags(flags)
	if err := cfg.ResolveUsernames(); err != nil {
		return nil, err
	}
	return cfg, nil
}
