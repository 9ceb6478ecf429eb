package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igengage/pkg/config"
	"igengage/pkg/logger"
)

const okBody = `{"data":{"user":{"edge_followed_by":{"count":1000},"edge_owner_to_timeline_media":{"edges":[
  {"node":{"edge_liked_by":{"count":40},"edge_media_to_comment":{"count":10}}},
  {"node":{"edge_liked_by":{"count":100},"edge_media_to_comment":{"count":50}}}
]}}}}`

type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return s.err
}

func (s *fakeSleeper) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

type fakeSource struct {
	mu       sync.Mutex
	sessions []string
	err      error
}

func (f *fakeSource) NewSessionURL(ctx context.Context, sessionID string) (*url.URL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	if f.err != nil {
		return nil, f.err
	}
	return &url.URL{Scheme: "http", Host: "proxy.test:8000", User: url.UserPassword("session-"+sessionID, "pw")}, nil
}

// scriptedServer answers with the given status codes in order, then 200 with okBody
func scriptedServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

type harness struct {
	fetcher *Retrying
	sleeper *fakeSleeper
	source  *fakeSource
	proxies []*url.URL
	clients []*http.Client
	log     *logger.TestLogger
	mu      sync.Mutex
}

func newHarness(server *httptest.Server) *harness {
	h := &harness{
		sleeper: &fakeSleeper{},
		source:  &fakeSource{},
		log:     logger.NewTestLogger(),
	}
	h.fetcher = New(h.source, Options{
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		RequestTimeout: time.Second,
		Sleep:          h.sleeper.Sleep,
		BaseURL:        server.URL,
		NewHTTPClient: func(proxyURL *url.URL, timeout time.Duration) *http.Client {
			client := &http.Client{Transport: &http.Transport{}, Timeout: timeout}
			h.mu.Lock()
			h.proxies = append(h.proxies, proxyURL)
			h.clients = append(h.clients, client)
			h.mu.Unlock()
			return client
		},
	}, h.log)
	return h
}

func TestFetchSucceedsAfterTransientFailures(t *testing.T) {
	server, calls := scriptedServer(t, http.StatusTooManyRequests, http.StatusBadGateway)
	h := newHarness(server)

	result := h.fetcher.Fetch(context.Background(), "alice")

	assert.True(t, result.OK(), "got error %q", result.Error)
	assert.Equal(t, int64(100), result.AvgEngagementScore)
	assert.Equal(t, 10.0, result.EngagementRatePct)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sleeper.delays)
	assert.Equal(t, 6*time.Second, h.sleeper.total())
}

func TestFetchRotatesSessionAndTransportPerAttempt(t *testing.T) {
	server, _ := scriptedServer(t, http.StatusForbidden, http.StatusForbidden)
	h := newHarness(server)

	h.fetcher.Fetch(context.Background(), "alice")

	assert.Equal(t, []string{"session_alice_0", "session_alice_1", "session_alice_2"}, h.source.sessions)
	require.Len(t, h.proxies, 3)
	assert.NotEqual(t, h.proxies[0].User.Username(), h.proxies[1].User.Username())
	require.Len(t, h.clients, 3)
	assert.NotSame(t, h.clients[0].Transport, h.clients[1].Transport)
	assert.NotSame(t, h.clients[1].Transport, h.clients[2].Transport)
}

func TestFetchExhausted(t *testing.T) {
	server, calls := scriptedServer(t, 500, 500, 500, 500)
	h := newHarness(server)

	result := h.fetcher.Fetch(context.Background(), "bob")

	assert.Equal(t, "bob", result.Username)
	assert.Equal(t, "Failed after 3 attempts: HTTPStatusError", result.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sleeper.delays)
	assert.Len(t, h.log.GetMessagesByLevel("WARN"), 2, "one warning per retried attempt")
}

func TestFetchNotFoundIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"data":{"user":null}}`))
	}))
	defer server.Close()
	h := newHarness(server)

	result := h.fetcher.Fetch(context.Background(), "ghost")

	assert.Equal(t, "profile inexistent/private", result.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, h.sleeper.delays)
}

func TestFetchMalformedIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()
	h := newHarness(server)

	result := h.fetcher.Fetch(context.Background(), "weird")

	assert.Contains(t, result.Error, "Unexpected error: MalformedResponse")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, h.sleeper.delays)
}

func TestFetchTimeoutIsRetried(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	h := newHarness(server)
	h.fetcher.opts.RequestTimeout = 30 * time.Millisecond

	result := h.fetcher.Fetch(context.Background(), "slow")

	assert.Equal(t, "Failed after 3 attempts: ReadTimeout", result.Error)
	assert.Len(t, h.sleeper.delays, 2)
}

func TestFetchProxySourceFailureIsRetried(t *testing.T) {
	server, calls := scriptedServer(t)
	h := newHarness(server)
	h.source.err = errors.New("session pool exhausted")

	result := h.fetcher.Fetch(context.Background(), "alice")

	assert.Equal(t, "Failed after 3 attempts: ProxyError", result.Error)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
	assert.Len(t, h.source.sessions, 3)
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	server, calls := scriptedServer(t, 503, 503, 503)
	h := newHarness(server)
	ctx, cancel := context.WithCancel(context.Background())
	h.sleeper.err = context.Canceled
	cancel()

	result := h.fetcher.Fetch(ctx, "alice")

	assert.Equal(t, "Cancelled: context canceled", result.Error)
	assert.LessOrEqual(t, atomic.LoadInt32(calls), int32(1))
}

func TestNewDefaults(t *testing.T) {
	f := New(nil, Options{}, nil)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, 2*time.Second, f.opts.BaseDelay)
	assert.Equal(t, 30*time.Second, f.opts.RequestTimeout)
	assert.NotNil(t, f.opts.Sleep)
	assert.NotNil(t, f.opts.NewHTTPClient)
}

func TestFetchBackoffRespectsMaxDelay(t *testing.T) {
	server, _ := scriptedServer(t, 500, 500, 500, 500)
	h := newHarness(server)
	h.fetcher.opts.MaxRetries = 4
	h.fetcher.opts.MaxDelay = 3 * time.Second

	result := h.fetcher.Fetch(context.Background(), "bob")

	assert.Equal(t, "Failed after 4 attempts: HTTPStatusError", result.Error)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 3 * time.Second}, h.sleeper.delays)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.FetchConfig{
		MaxRetries:     5,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		RequestTimeout: 20 * time.Second,
	})
	assert.Equal(t, 5, opts.MaxRetries)
	assert.Equal(t, time.Second, opts.BaseDelay)
	assert.Equal(t, 10*time.Second, opts.MaxDelay)
	assert.Equal(t, 20*time.Second, opts.RequestTimeout)
}
