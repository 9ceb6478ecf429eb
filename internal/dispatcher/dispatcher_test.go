package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igengage/pkg/engagement"
	"igengage/pkg/logger"
)

func okFetch(ctx context.Context, username string) engagement.Result {
	return engagement.Score(username, engagement.ProfileSnapshot{FollowerCount: 10})
}

func collect(t *testing.T, ch <-chan engagement.Result) []engagement.Result {
	t.Helper()
	var out []engagement.Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatal("timed out waiting for results")
			return out
		}
	}
}

func usernames(results []engagement.Result) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Username)
	}
	sort.Strings(names)
	return names
}

func newTestDispatcher(fetch FetchFunc, concurrency int) *Dispatcher {
	return New(fetch, Options{Concurrency: concurrency, Logger: logger.NewNopLogger()})
}

func TestNormalize(t *testing.T) {
	reqs := Normalize([]string{"@alice", " bob ", "", "  @ ", "carol"})
	require.Len(t, reqs, 3)
	assert.Equal(t, "alice", reqs[0].Username)
	assert.Equal(t, "bob", reqs[1].Username)
	assert.Equal(t, "carol", reqs[2].Username)
}

func TestRunNormalizationExample(t *testing.T) {
	var calls int32
	d := newTestDispatcher(func(ctx context.Context, username string) engagement.Result {
		atomic.AddInt32(&calls, 1)
		return okFetch(ctx, username)
	}, 10)

	ch, total, err := d.Run(context.Background(), []string{"@alice", " bob ", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, total, "empty entries are not counted")

	results := collect(t, ch)
	assert.Equal(t, []string{"alice", "bob"}, usernames(results))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRunEmitsInCompletionOrder(t *testing.T) {
	release := make(chan struct{})
	d := newTestDispatcher(func(ctx context.Context, username string) engagement.Result {
		if username == "slow" {
			<-release
		}
		return okFetch(ctx, username)
	}, 2)

	ch, total, err := d.Run(context.Background(), []string{"slow", "fast"})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	first := <-ch
	assert.Equal(t, "fast", first.Username)

	close(release)
	second := <-ch
	assert.Equal(t, "slow", second.Username)

	_, open := <-ch
	assert.False(t, open, "channel is closed after the last result")
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	const k = 3
	var current, maxSeen int32

	d := newTestDispatcher(func(ctx context.Context, username string) engagement.Result {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return okFetch(ctx, username)
	}, k)

	input := make([]string, 20)
	for i := range input {
		input[i] = fmt.Sprintf("user%02d", i)
	}

	ch, total, err := d.Run(context.Background(), input)
	require.NoError(t, err)
	results := collect(t, ch)

	assert.Equal(t, 20, total)
	assert.Len(t, results, 20)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(k))
	assert.LessOrEqual(t, d.PeakInFlight(), k)
	assert.Greater(t, d.PeakInFlight(), 0)
	assert.Equal(t, 0, d.InFlight())
}

func TestRunIsolatesFailures(t *testing.T) {
	d := newTestDispatcher(func(ctx context.Context, username string) engagement.Result {
		switch username {
		case "broken":
			panic("boom")
		case "private":
			return engagement.Failed(username, "profile inexistent/private")
		}
		return engagement.Score(username, engagement.ProfileSnapshot{
			FollowerCount: 1000,
			RecentPosts:   []engagement.PostStat{{LikeCount: 50}, {LikeCount: 150}},
		})
	}, 4)

	ch, _, err := d.Run(context.Background(), []string{"broken", "good", "private"})
	require.NoError(t, err)

	byName := make(map[string]engagement.Result)
	for _, r := range collect(t, ch) {
		byName[r.Username] = r
	}

	require.Len(t, byName, 3)
	assert.Equal(t, "Unexpected error: panic: boom", byName["broken"].Error)
	assert.Equal(t, "profile inexistent/private", byName["private"].Error)

	good := byName["good"]
	assert.True(t, good.OK())
	assert.Equal(t, int64(100), good.AvgEngagementScore)
	assert.Equal(t, 10.0, good.EngagementRatePct)
}

func TestRunIsSingleUse(t *testing.T) {
	d := newTestDispatcher(okFetch, 1)

	ch, _, err := d.Run(context.Background(), []string{"alice"})
	require.NoError(t, err)
	collect(t, ch)

	_, _, err = d.Run(context.Background(), []string{"alice"})
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestRunEmptyInput(t *testing.T) {
	d := newTestDispatcher(okFetch, 1)

	ch, total, err := d.Run(context.Background(), []string{"", " @ "})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, collect(t, ch))
}

func TestRunCancellationSkipsUnstartedTasks(t *testing.T) {
	started := make(chan string, 10)
	d := newTestDispatcher(func(ctx context.Context, username string) engagement.Result {
		started <- username
		<-ctx.Done()
		return engagement.Failed(username, "Cancelled: "+ctx.Err().Error())
	}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	ch, total, err := d.Run(ctx, []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Equal(t, 4, total)

	first := <-started
	cancel()

	results := collect(t, ch)
	require.Len(t, results, 1, "only the admitted task emits")
	assert.Equal(t, first, results[0].Username)
	assert.Equal(t, "Cancelled: context canceled", results[0].Error)
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (c *countingLimiter) Allow() bool { return true }

func (c *countingLimiter) Wait(ctx context.Context) error {
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
	return nil
}

func TestRunUsesLimiter(t *testing.T) {
	limiter := &countingLimiter{}
	d := New(okFetch, Options{Concurrency: 2, Limiter: limiter, Logger: logger.NewNopLogger()})

	ch, _, err := d.Run(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	collect(t, ch)

	assert.Equal(t, 3, limiter.waits)
}

func TestNewDefaults(t *testing.T) {
	d := New(okFetch, Options{})
	assert.Equal(t, 100, d.Concurrency())
}
