package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"igengage/pkg/auth"
	"igengage/pkg/config"
	"igengage/pkg/logger"
	"igengage/pkg/pipeline"
	"igengage/pkg/progress"
)

var (
	// Run command flags
	usernamesFile     string
	concurrency       int
	maxRetries        int
	requestsPerSecond float64
	outputPath        string
	sinkKind          string
	proxyMode         string
	proxyURL          string
	runName           string
	resumeRun         bool
	statusFile        string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [usernames...]",
	Short: "Fetch and score a list of Instagram profiles",
	Long: `Fetch every given profile once and write one engagement record per
username to the configured sink.

Usernames can be passed as arguments, read from a file (--file, one per
line or a YAML/JSON list) or set in the configuration file. Leading '@'
characters and surrounding spaces are stripped; empty entries are ignored.

Failed profiles still produce a record, with the failure in its error field.`,
	Example: `  # Score two profiles and append to ./engagement.jsonl
  igengage run natgeo @nasa

  # Read usernames from a file, 20 at a time, write CSV
  igengage run --file accounts.txt --concurrency 20 --sink csv --output out.csv

  # Continue a named run that was interrupted
  igengage run --file accounts.txt --run-name weekly --resume

  # Without a proxy (for local testing)
  igengage run natgeo --proxy-mode direct`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&usernamesFile, "file", "f", "", "file with usernames (text, YAML or JSON list)")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, fmt.Sprintf("maximum profiles fetched at once (default %d)", config.DefaultConcurrency))
	runCmd.Flags().IntVar(&maxRetries, "max-retries", 0, fmt.Sprintf("attempts per profile (default %d)", config.DefaultMaxRetries))
	runCmd.Flags().Float64Var(&requestsPerSecond, "requests-per-second", 0, "global request pacing, 0 disables it")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file for the jsonl and csv sinks")
	runCmd.Flags().StringVar(&sinkKind, "sink", "", "dataset sink: jsonl, csv, postgres or none")
	runCmd.Flags().StringVar(&proxyMode, "proxy-mode", "", "proxy mode: residential, static or direct")
	runCmd.Flags().StringVar(&proxyURL, "proxy-url", "", "proxy URL for --proxy-mode static")
	runCmd.Flags().StringVar(&runName, "run-name", "", "name used for the resume checkpoint")
	runCmd.Flags().BoolVar(&resumeRun, "resume", false, "skip usernames already processed by the named run")
	runCmd.Flags().StringVar(&statusFile, "status-file", "", "file that always holds the latest progress line")
}

// runFlags collects the flags the user actually set, keyed like the config merge expects
func runFlags(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := globalFlags()
	if len(args) > 0 {
		flags["usernames"] = args
	}

	changed := cmd.Flags().Changed
	if changed("file") {
		flags["usernames-file"] = usernamesFile
	}
	if changed("concurrency") {
		flags["concurrency"] = concurrency
	}
	if changed("max-retries") {
		flags["max-retries"] = maxRetries
	}
	if changed("requests-per-second") {
		flags["requests-per-second"] = requestsPerSecond
	}
	if changed("output") {
		flags["output"] = outputPath
	}
	if changed("sink") {
		flags["sink"] = sinkKind
	}
	if changed("proxy-mode") {
		flags["proxy-mode"] = proxyMode
	}
	if changed("proxy-url") {
		flags["proxy-url"] = proxyURL
	}
	if changed("run-name") {
		flags["run-name"] = runName
	}
	if changed("resume") {
		flags["resume"] = resumeRun
	}
	if changed("status-file") {
		flags["status-file"] = statusFile
	}
	return flags
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, runFlags(cmd, args))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	opts := pipeline.Options{
		Version: version,
		Logger:  log,
	}
	if !quiet {
		opts.Reporter = progress.NewTerminal(os.Stdout)
	}
	if cfg.Proxy.Mode == config.ProxyModeResidential && cfg.Proxy.Password == "" {
		creds, err := auth.NewManager()
		if err != nil {
			log.WithError(err).Warn("credential storage unavailable")
		} else {
			opts.Credentials = creds
		}
	}

	summary, err := pipeline.New(cfg, opts).Run(cmd.Context())
	if err != nil {
		return err
	}

	if !quiet {
		progress.PrintSummary(os.Stdout, summary.RunID, summary.Total, summary.Succeeded,
			summary.Failed, summary.Skipped, summary.Duration.Round(time.Millisecond).String())
		if cfg.Output.Sink == config.SinkJSONL || cfg.Output.Sink == config.SinkCSV {
			fmt.Printf("  %s results appended to %s\n", progress.Dim("•"), cfg.Output.Path)
		}
	}

	if summary.Cancelled {
		return fmt.Errorf("run interrupted; resume with --run-name %s --resume", shellQuote(summary.RunName))
	}
	if summary.SinkErrors > 0 {
		return fmt.Errorf("%d results could not be stored", summary.SinkErrors)
	}
	return nil
}

func shellQuote(s string) string {
	if strings.ContainsAny(s, " \t'\"") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}
