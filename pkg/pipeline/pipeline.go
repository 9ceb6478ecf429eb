package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"igengage/internal/dispatcher"
	"igengage/pkg/checkpoint"
	"igengage/pkg/config"
	"igengage/pkg/engagement"
	apperrors "igengage/pkg/errors"
	"igengage/pkg/fetcher"
	"igengage/pkg/logger"
	"igengage/pkg/progress"
	"igengage/pkg/proxy"
	"igengage/pkg/ratelimit"
	"igengage/pkg/storage"
)

// PasswordSource resolves a stored proxy password by credential name
type PasswordSource interface {
	Password(name string) (string, error)
}

// CheckpointFactory opens the checkpoint manager for a run name
type CheckpointFactory func(runName string, log logger.Logger) (*checkpoint.Manager, error)

// Options replaces collaborators that are otherwise built from the config
type Options struct {
	// Reporter receives progress lines in addition to the logger and status file
	Reporter progress.Reporter
	// Sink overrides the configured dataset sink
	Sink storage.Sink
	// Source overrides the configured proxy source
	Source proxy.Source
	// Credentials looks up the residential proxy password when the config has none
	Credentials PasswordSource
	// Fetch tweaks the retrying fetcher (sleep, transport, upstream host)
	Fetch fetcher.Options
	// Checkpoints defaults to checkpoint.NewManager
	Checkpoints CheckpointFactory
	// Version is logged at the start of every run
	Version string
	Logger  logger.Logger
}

// Summary describes a finished run
type Summary struct {
	RunID      string        `json:"run_id"`
	RunName    string        `json:"run_name"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	SinkErrors int           `json:"sink_errors"`
	Cancelled  bool          `json:"cancelled"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Pipeline wires configuration into a dispatcher run
type Pipeline struct {
	cfg    *config.Config
	opts   Options
	logger logger.Logger
}

// New creates a pipeline for cfg
func New(cfg *config.Config, opts Options) *Pipeline {
	if opts.Checkpoints == nil {
		opts.Checkpoints = checkpoint.NewManager
	}
	return &Pipeline{
		cfg:    cfg,
		opts:   opts,
		logger: logger.OrDefault(opts.Logger),
	}
}

// Run validates the configuration, processes every username once and
// returns the run summary. Configuration problems are returned as
// apperrors configuration errors before anything is dispatched; per-username
// failures only ever show up in the results.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, apperrors.Configuration(err)
	}

	summary := &Summary{
		RunID:     uuid.NewString(),
		RunName:   p.cfg.Run.Name,
		StartedAt: time.Now(),
	}
	log := p.logger.WithField("run_id", summary.RunID)

	log.InfoWithFields("starting run", map[string]interface{}{
		"run":        summary.RunName,
		"version":    p.version(),
		"go_version": runtime.Version(),
	})

	source, err := p.proxySource()
	if err != nil {
		return nil, apperrors.Configuration(err)
	}

	requests := dispatcher.Normalize(p.cfg.Run.Usernames)

	cpMgr, err := p.opts.Checkpoints(summary.RunName, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	cp, err := cpMgr.Start(summary.RunName, summary.RunID, p.cfg.Run.Resume)
	if err != nil {
		return nil, fmt.Errorf("failed to start checkpoint: %w", err)
	}
	requests, summary.Skipped = cp.Filter(requests)
	if summary.Skipped > 0 {
		log.InfoWithFields("resuming run", map[string]interface{}{
			"skipped":   summary.Skipped,
			"remaining": len(requests),
		})
	}

	sink := p.opts.Sink
	if sink == nil {
		sink, err = storage.New(ctx, p.cfg.Output, summary.RunID)
		if err != nil {
			return nil, apperrors.Configuration(fmt.Errorf("failed to open %s sink: %w", p.cfg.Output.Sink, err))
		}
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Warn("failed to close sink")
		}
	}()

	fetchOpts := fetcher.OptionsFromConfig(p.cfg.Fetch)
	fetchOpts.Sleep = p.opts.Fetch.Sleep
	fetchOpts.NewHTTPClient = p.opts.Fetch.NewHTTPClient
	fetchOpts.BaseURL = p.opts.Fetch.BaseURL
	f := fetcher.New(source, fetchOpts, log)

	d := dispatcher.New(f.Fetch, dispatcher.Options{
		Concurrency: p.cfg.Run.Concurrency,
		Limiter:     ratelimit.New(p.cfg.Fetch.RequestsPerSecond),
		Logger:      log,
	})

	results, total, err := d.Run(ctx, usernamesOf(requests))
	if err != nil {
		return nil, err
	}
	summary.Total = total

	tracker := progress.NewTracker(total, p.reporter(log))
	for result := range results {
		p.handle(ctx, log, sink, cpMgr, tracker, result, summary)
	}

	if err := cpMgr.Flush(); err != nil {
		log.WithError(err).Warn("failed to save checkpoint")
	}

	summary.Cancelled = ctx.Err() != nil
	summary.FinishedAt = time.Now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)

	log.InfoWithFields("run finished", map[string]interface{}{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"cancelled": summary.Cancelled,
		"duration":  summary.Duration.String(),
		"peak":      d.PeakInFlight(),
	})
	return summary, nil
}

func (p *Pipeline) handle(ctx context.Context, log logger.Logger, sink storage.Sink, cpMgr *checkpoint.Manager,
	tracker *progress.Tracker, result engagement.Result, summary *Summary) {
	if result.OK() {
		summary.Succeeded++
	} else {
		summary.Failed++
	}

	// The sink write uses a fresh context so results already fetched are
	// still stored after cancellation.
	if err := sink.Append(context.WithoutCancel(ctx), result); err != nil {
		summary.SinkErrors++
		log.WithError(err).WithField("username", result.Username).Error("failed to store result")
	} else if err := cpMgr.Record(result); err != nil {
		log.WithError(err).Warn("failed to update checkpoint")
	}

	tracker.Complete(result)
}

func (p *Pipeline) proxySource() (proxy.Source, error) {
	if p.opts.Source != nil {
		return p.opts.Source, nil
	}

	password := p.cfg.Proxy.Password
	if p.cfg.Proxy.Mode == config.ProxyModeResidential && password == "" && p.opts.Credentials != nil {
		stored, err := p.opts.Credentials.Password(p.cfg.Proxy.CredentialName)
		if err != nil {
			p.logger.WithError(err).Debug("no stored proxy password")
		} else {
			password = stored
		}
	}
	return proxy.NewSource(p.cfg.Proxy, password)
}

func (p *Pipeline) reporter(log logger.Logger) progress.Reporter {
	reporters := progress.Multi{progress.NewLog(log)}
	if p.cfg.Output.StatusFile != "" {
		reporters = append(reporters, progress.NewStatusFile(p.cfg.Output.StatusFile, log))
	}
	if p.opts.Reporter != nil {
		reporters = append(reporters, p.opts.Reporter)
	}
	return reporters
}

func (p *Pipeline) version() string {
	if p.opts.Version != "" {
		return p.opts.Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.Main.Version
	}
	return "unknown"
}

func usernamesOf(requests []engagement.ProfileRequest) []string {
	names := make([]string, len(requests))
	for i, req := range requests {
		names[i] = req.Username
	}
	return names
}
