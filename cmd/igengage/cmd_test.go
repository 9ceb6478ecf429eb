package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igengage/pkg/config"
)

func newRunFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().AddFlagSet(runCmd.Flags())
	return cmd
}

func TestRunFlagsOnlyIncludesChangedFlags(t *testing.T) {
	cmd := newRunFlagsCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--concurrency", "7", "--sink", "csv", "--resume"}))
	t.Cleanup(func() {
		concurrency, sinkKind, resumeRun = 0, "", false
	})

	flags := runFlags(cmd, []string{"@alice", "bob"})

	assert.Equal(t, []string{"@alice", "bob"}, flags["usernames"])
	assert.Equal(t, 7, flags["concurrency"])
	assert.Equal(t, "csv", flags["sink"])
	assert.Equal(t, true, flags["resume"])
	assert.NotContains(t, flags, "max-retries")
	assert.NotContains(t, flags, "output")

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(flags)
	assert.Equal(t, 7, cfg.Run.Concurrency)
	assert.Equal(t, config.SinkCSV, cfg.Output.Sink)
	assert.True(t, cfg.Run.Resume)
	assert.Equal(t, config.DefaultMaxRetries, cfg.Fetch.MaxRetries)
}

func TestGlobalFlagsQuietForcesErrorLevel(t *testing.T) {
	quiet, logLevel = true, "debug"
	t.Cleanup(func() { quiet, logLevel = false, "" })

	assert.Equal(t, "error", globalFlags()["log-level"])
}

func TestMaskSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Proxy.Password = "supersecret"
	cfg.Output.DatabaseURL = "postgres://user:pw@localhost/db"

	masked := maskSecrets(*cfg)
	assert.NotContains(t, masked.Proxy.Password, "supersecret")
	assert.NotContains(t, masked.Output.DatabaseURL, "user:pw")
	assert.Equal(t, "supersecret", cfg.Proxy.Password, "original is untouched")
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "weekly", shellQuote("weekly"))
	assert.Equal(t, "'my run'", shellQuote("my run"))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "proxy", "config", "version"} {
		assert.True(t, names[want], want)
	}
}
