package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"igengage/pkg/config"
)

// Source issues a proxy URL per session id. A nil URL means no proxy.
// Implementations must be safe for concurrent use.
type Source interface {
	NewSessionURL(ctx context.Context, sessionID string) (*url.URL, error)
}

// ErrMissingPassword is returned when a residential source has no password
var ErrMissingPassword = errors.New("proxy password is not set")

// Residential issues Apify-style residential proxy URLs. The session id is
// encoded in the username so each distinct id gets its own egress IP.
type Residential struct {
	Hostname string
	Port     int
	Groups   []string
	Country  string
	password string
}

// NewResidential creates a residential source from the proxy configuration
func NewResidential(cfg config.ProxyConfig, password string) (*Residential, error) {
	if password == "" {
		return nil, ErrMissingPassword
	}
	if cfg.Hostname == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid proxy address %q:%d", cfg.Hostname, cfg.Port)
	}
	return &Residential{
		Hostname: cfg.Hostname,
		Port:     cfg.Port,
		Groups:   cfg.Groups,
		Country:  strings.ToUpper(cfg.Country),
		password: password,
	}, nil
}

// NewSessionURL returns
// http://groups-<G1>+<G2>,session-<id>[,country-<CC>]:<password>@<host>:<port>
func (r *Residential) NewSessionURL(ctx context.Context, sessionID string) (*url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidSessionID(sessionID) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}

	var parts []string
	if len(r.Groups) > 0 {
		parts = append(parts, "groups-"+strings.Join(r.Groups, "+"))
	}
	parts = append(parts, "session-"+sessionID)
	if r.Country != "" {
		parts = append(parts, "country-"+r.Country)
	}

	return &url.URL{
		Scheme: "http",
		User:   url.UserPassword(strings.Join(parts, ","), r.password),
		Host:   r.Hostname + ":" + strconv.Itoa(r.Port),
	}, nil
}

// Direct sends requests without a proxy
type Direct struct{}

// NewSessionURL always returns nil
func (Direct) NewSessionURL(ctx context.Context, sessionID string) (*url.URL, error) {
	return nil, ctx.Err()
}

// Static returns the same proxy URL for every session
type Static struct {
	URL *url.URL
}

// NewStatic parses rawURL into a Static source
func NewStatic(rawURL string) (*Static, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: scheme and host are required", rawURL)
	}
	return &Static{URL: u}, nil
}

// NewSessionURL returns a copy of the configured URL
func (s *Static) NewSessionURL(ctx context.Context, sessionID string) (*url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u := *s.URL
	return &u, nil
}

// NewSource builds the Source selected by cfg.Mode
func NewSource(cfg config.ProxyConfig, password string) (Source, error) {
	switch cfg.Mode {
	case config.ProxyModeResidential:
		return NewResidential(cfg, password)
	case config.ProxyModeStatic:
		return NewStatic(cfg.StaticURL)
	case config.ProxyModeDirect:
		return Direct{}, nil
	default:
		return nil, fmt.Errorf("unknown proxy mode %q", cfg.Mode)
	}
}

// Redact hides the password of a proxy URL for logging
func Redact(u *url.URL) string {
	if u == nil {
		return "direct"
	}
	return u.Redacted()
}
