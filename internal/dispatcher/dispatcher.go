package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"igengage/pkg/config"
	"igengage/pkg/engagement"
	"igengage/pkg/logger"
	"igengage/pkg/ratelimit"
)

// ErrAlreadyRun is returned by Run on a Dispatcher that has already been used
var ErrAlreadyRun = errors.New("dispatcher has already been run")

// FetchFunc produces the single result for one normalized username.
// It must not return until it has a result.
type FetchFunc func(ctx context.Context, username string) engagement.Result

// Options configures a Dispatcher
type Options struct {
	// Concurrency is the size of the admission gate
	Concurrency int
	// Limiter paces admitted tasks; nil means no pacing
	Limiter ratelimit.Limiter
	Logger  logger.Logger
}

// Dispatcher runs one fetch per username, at most Concurrency at a time,
// and streams results in completion order. A Dispatcher is single-use.
type Dispatcher struct {
	fetch       FetchFunc
	concurrency int
	limiter     ratelimit.Limiter
	logger      logger.Logger

	started  atomic.Bool
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a dispatcher around fetch
func New(fetch FetchFunc, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}

	return &Dispatcher{
		fetch:       fetch,
		concurrency: opts.Concurrency,
		limiter:     opts.Limiter,
		logger:      logger.OrDefault(opts.Logger),
	}
}

// Normalize turns raw input into profile requests, dropping entries that are
// empty once spaces and '@' are stripped. Input order is kept.
func Normalize(usernames []string) []engagement.ProfileRequest {
	requests := make([]engagement.ProfileRequest, 0, len(usernames))
	for _, raw := range usernames {
		if req, ok := engagement.NewProfileRequest(raw); ok {
			requests = append(requests, req)
		}
	}
	return requests
}

// Run starts one task per normalized username and returns the result channel
// together with the number of usernames that will be processed. The channel
// is closed once every task has finished.
//
// When ctx is cancelled, tasks not yet admitted exit without a result;
// admitted tasks still emit theirs.
func (d *Dispatcher) Run(ctx context.Context, usernames []string) (<-chan engagement.Result, int, error) {
	if !d.started.CompareAndSwap(false, true) {
		return nil, 0, ErrAlreadyRun
	}

	requests := Normalize(usernames)
	total := len(requests)
	results := make(chan engagement.Result, total)

	logger.LogComponentStart(d.logger, "dispatcher", map[string]interface{}{
		"total":       total,
		"dropped":     len(usernames) - total,
		"concurrency": d.concurrency,
	})

	gate := semaphore.NewWeighted(int64(d.concurrency))
	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go d.task(ctx, gate, req, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
		d.logger.DebugWithFields("dispatch finished", map[string]interface{}{
			"peak_in_flight": d.PeakInFlight(),
		})
	}()

	return results, total, nil
}

// task runs a single username behind the admission gate
func (d *Dispatcher) task(ctx context.Context, gate *semaphore.Weighted, req engagement.ProfileRequest, results chan<- engagement.Result, wg *sync.WaitGroup) {
	defer wg.Done()

	if err := gate.Acquire(ctx, 1); err != nil {
		d.logger.DebugWithFields("task not started", map[string]interface{}{
			"username": req.Username,
			"reason":   err.Error(),
		})
		return
	}
	defer gate.Release(1)

	if ctx.Err() != nil {
		return
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	d.enter()
	result := d.safeFetch(ctx, req.Username)
	d.leave()

	results <- result
}

// safeFetch converts a panic in fetch into an error result
func (d *Dispatcher) safeFetch(ctx context.Context, username string) (result engagement.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorWithFields("task panicked", map[string]interface{}{
				"username": username,
				"panic":    fmt.Sprint(r),
				"stack":    string(debug.Stack()),
			})
			result = engagement.Failed(username, fmt.Sprintf("Unexpected error: panic: %v", r))
		}
	}()

	result = d.fetch(ctx, username)
	if result.Username == "" {
		result.Username = username
	}
	return result
}

func (d *Dispatcher) enter() {
	n := d.inFlight.Add(1)
	for {
		peak := d.peak.Load()
		if n <= peak || d.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (d *Dispatcher) leave() {
	d.inFlight.Add(-1)
}

// InFlight returns the number of fetches currently running
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// PeakInFlight returns the highest number of concurrent fetches observed
func (d *Dispatcher) PeakInFlight() int {
	return int(d.peak.Load())
}

// Concurrency returns the admission gate size
func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}
