package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"igengage/pkg/config"
	"igengage/pkg/engagement"
	apperrors "igengage/pkg/errors"
	"igengage/pkg/instagram"
	"igengage/pkg/logger"
	"igengage/pkg/proxy"
	"igengage/pkg/retry"
)

// ClientFactory builds the *http.Client used for a single attempt
type ClientFactory func(proxyURL *url.URL, timeout time.Duration) *http.Client

// Options configures a Retrying fetcher
type Options struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration

	// Sleep waits between attempts; defaults to retry.Wait
	Sleep retry.SleepFunc
	// NewHTTPClient defaults to proxy.NewHTTPClient
	NewHTTPClient ClientFactory
	// BaseURL overrides the upstream host
	BaseURL string
}

// OptionsFromConfig maps the fetch section of the configuration
func OptionsFromConfig(cfg config.FetchConfig) Options {
	return Options{
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		RequestTimeout: cfg.RequestTimeout,
	}
}

// Retrying fetches one profile with bounded retries. Every attempt gets a
// fresh proxy session and a fresh transport.
type Retrying struct {
	source proxy.Source
	opts   Options
	logger logger.Logger
}

// New creates a retrying fetcher
func New(source proxy.Source, opts Options, log logger.Logger) *Retrying {
	if source == nil {
		source = proxy.Direct{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = config.DefaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = config.DefaultBaseDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = instagram.RequestTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}
	if opts.NewHTTPClient == nil {
		opts.NewHTTPClient = proxy.NewHTTPClient
	}

	return &Retrying{
		source: source,
		opts:   opts,
		logger: logger.OrDefault(log),
	}
}

// Fetch returns exactly one result for username. It never returns an error:
// every failure is folded into the result's Error field.
func (r *Retrying) Fetch(ctx context.Context, username string) engagement.Result {
	log := r.logger.WithField("username", username)

	result, err := retry.DoWithResult(func(attempt int) (engagement.Result, error) {
		return r.attempt(ctx, username, attempt, log)
	}, &retry.Config{
		MaxAttempts: r.opts.MaxRetries,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:  r.opts.BaseDelay,
			MaxDelay:   r.opts.MaxDelay,
			Multiplier: 2.0,
		},
		RetryIf: retry.DefaultRetryIf,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.LogAttemptFailed(log, username, attempt+1, r.opts.MaxRetries, kindOf(err), delay)
		},
		Sleep:   r.opts.Sleep,
		Context: ctx,
		Logger:  log,
	})

	var exhausted *retry.ExhaustedError
	var cancelled *retry.CancelledError
	switch {
	case err == nil:
		return result
	case errors.As(err, &cancelled):
		return engagement.Failed(username, cancelledMessage(ctx, cancelled.Err))
	case ctx.Err() != nil:
		return engagement.Failed(username, cancelledMessage(ctx, err))
	case errors.As(err, &exhausted):
		return engagement.Failed(username,
			fmt.Sprintf("Failed after %d attempts: %s", exhausted.Attempts, kindOf(exhausted.Last)))
	default:
		if result.Username == "" || result.OK() {
			result = engagement.Failed(username, resultMessage(err))
		}
		return result
	}
}

// attempt performs attempt number k through session session_<username>_<k>
func (r *Retrying) attempt(ctx context.Context, username string, k int, log logger.Logger) (engagement.Result, error) {
	sessionID := proxy.SessionID(username, k)

	proxyURL, err := r.source.NewSessionURL(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return engagement.Failed(username, cancelledMessage(ctx, err)), ctx.Err()
		}
		appErr := apperrors.Wrap(apperrors.ErrorTypeProxy, err, fmt.Sprintf("failed to issue proxy session: %v", err))
		return engagement.Failed(username, appErr.ResultMessage()), appErr
	}

	log.DebugWithFields("starting attempt", map[string]interface{}{
		"attempt": k + 1,
		"session": sessionID,
		"proxy":   proxy.Redact(proxyURL),
	})

	httpClient := r.opts.NewHTTPClient(proxyURL, r.opts.RequestTimeout)
	defer httpClient.CloseIdleConnections()

	var opts []instagram.Option
	if r.opts.BaseURL != "" {
		opts = append(opts, instagram.WithBaseURL(r.opts.BaseURL))
	}
	return instagram.NewClient(httpClient, log, opts...).FetchEngagement(ctx, username)
}

func kindOf(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Kind()
	}
	return "UnknownError"
}

func resultMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.ResultMessage()
	}
	return fmt.Sprintf("Unexpected error: %s: %v", kindOf(err), err)
}

func cancelledMessage(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Sprintf("Cancelled: %v", err)
}
