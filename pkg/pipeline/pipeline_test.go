package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igengage/pkg/checkpoint"
	"igengage/pkg/config"
	"igengage/pkg/engagement"
	apperrors "igengage/pkg/errors"
	"igengage/pkg/fetcher"
	"igengage/pkg/logger"
	"igengage/pkg/proxy"
	"igengage/pkg/storage"
)

const aliceBody = `{"data": {"user": {
  "username": "alice",
  "edge_followed_by": {"count": 1000},
  "edge_owner_to_timeline_media": {"count": 2, "edges": [
    {"node": {"is_video": false, "edge_liked_by": {"count": 40}, "edge_media_to_comment": {"count": 10}}},
    {"node": {"is_video": false, "edge_liked_by": {"count": 100}, "edge_media_to_comment": {"count": 50}}}
  ]}
}}, "status": "ok"}`

const bobBody = `{"data": {"user": {
  "username": "bob",
  "edge_followed_by": {"count": 0},
  "edge_owner_to_timeline_media": {"count": 0, "edges": []}
}}, "status": "ok"}`

type upstream struct {
	server *httptest.Server
	mu     sync.Mutex
	calls  map[string]int
	total  int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{calls: make(map[string]int)}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.total, 1)
		name := r.URL.Query().Get("username")
		u.mu.Lock()
		u.calls[name]++
		u.mu.Unlock()

		switch name {
		case "alice":
			_, _ = w.Write([]byte(aliceBody))
		case "bob":
			_, _ = w.Write([]byte(bobBody))
		case "ghost":
			_, _ = w.Write([]byte(`{"data": {"user": null}, "status": "ok"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) callsFor(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[name]
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Report(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

type fixture struct {
	cfg      *config.Config
	sink     *storage.MemorySink
	reporter *recorder
	log      *logger.TestLogger
	cpDir    string
	upstream *upstream
	sleeps   int32
}

func newFixture(t *testing.T, usernames ...string) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Run.Usernames = usernames
	cfg.Run.Name = "test"
	cfg.Proxy.Mode = config.ProxyModeDirect
	cfg.Output.Sink = config.SinkNone
	cfg.Output.StatusFile = filepath.Join(t.TempDir(), "status.txt")
	cfg.Fetch.RequestTimeout = 5 * time.Second

	return &fixture{
		cfg:      cfg,
		sink:     storage.NewMemorySink(),
		reporter: &recorder{},
		log:      logger.NewTestLogger(),
		cpDir:    t.TempDir(),
		upstream: newUpstream(t),
	}
}

func (f *fixture) options() Options {
	return Options{
		Reporter: f.reporter,
		Sink:     f.sink,
		Fetch: fetcher.Options{
			BaseURL: f.upstream.server.URL,
			Sleep: func(ctx context.Context, d time.Duration) error {
				atomic.AddInt32(&f.sleeps, 1)
				return ctx.Err()
			},
		},
		Checkpoints: func(runName string, log logger.Logger) (*checkpoint.Manager, error) {
			return checkpoint.NewManagerAt(f.cpDir, runName, log)
		},
		Version: "test",
		Logger:  f.log,
	}
}

func resultsByUser(results []engagement.Result) map[string]engagement.Result {
	out := make(map[string]engagement.Result, len(results))
	for _, r := range results {
		out[r.Username] = r
	}
	return out
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t, "@alice", " ghost ", "", "flaky")

	summary, err := New(f.cfg, f.options()).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "test", summary.RunName)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.False(t, summary.Cancelled)
	assert.True(t, summary.FinishedAt.After(summary.StartedAt) || summary.FinishedAt.Equal(summary.StartedAt))

	results := f.sink.Results()
	require.Len(t, results, 3)
	byUser := resultsByUser(results)

	alice := byUser["alice"]
	assert.Equal(t, int64(1000), alice.Followers)
	assert.Equal(t, 2, alice.PostsAnalyzed)
	assert.Equal(t, int64(100), alice.AvgEngagementScore)
	assert.Equal(t, 10.0, alice.EngagementRatePct)
	assert.Empty(t, alice.Error)

	assert.Equal(t, "profile inexistent/private", byUser["ghost"].Error)
	assert.Equal(t, "Failed after 3 attempts: HTTPStatusError", byUser["flaky"].Error)

	assert.Equal(t, 1, f.upstream.callsFor("alice"))
	assert.Equal(t, 1, f.upstream.callsFor("ghost"))
	assert.Equal(t, 3, f.upstream.callsFor("flaky"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.sleeps))

	require.Len(t, f.reporter.lines, 3)
	outcomes := make(map[string]string)
	for i, line := range f.reporter.lines {
		parts := strings.SplitN(line, " → ", 2)
		require.Len(t, parts, 2, line)
		assert.Equal(t, fmt.Sprintf("%d/3", i+1), parts[0], "lines are numbered in completion order")
		name, outcome, _ := strings.Cut(parts[1], " ")
		outcomes[name] = outcome
	}
	assert.Equal(t, map[string]string{
		"alice": "✔",
		"ghost": "❌ (profile inexistent/private)",
		"flaky": "❌ (Failed after 3 attempts: HTTPStatusError)",
	}, outcomes)

	status, err := os.ReadFile(f.cfg.Output.StatusFile)
	require.NoError(t, err)
	assert.Contains(t, string(status), "3/3 → ")

	assert.True(t, f.log.HasMessage("starting run"))
	assert.True(t, f.log.HasMessage("run finished"))
	assert.Len(t, f.log.GetMessagesByLevel("WARN"), 2, "one warning per failed attempt that is retried")
}

func TestRunRejectsInvalidConfigBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	f.cfg.Run.Concurrency = 0

	summary, err := New(f.cfg, f.options()).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "usernames")
	assert.Contains(t, err.Error(), "concurrency")
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.upstream.total))
	assert.Empty(t, f.sink.Results())
}

func TestRunMissingProxyPasswordIsConfigurationError(t *testing.T) {
	f := newFixture(t, "alice")
	f.cfg.Proxy.Mode = config.ProxyModeResidential
	f.cfg.Proxy.Password = ""

	_, err := New(f.cfg, f.options()).Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.ErrorIs(t, err, proxy.ErrMissingPassword)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.upstream.total))
}

type staticPasswords map[string]string

func (s staticPasswords) Password(name string) (string, error) {
	if pw, ok := s[name]; ok {
		return pw, nil
	}
	return "", errors.New("not found")
}

func TestProxySourceUsesStoredPassword(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Proxy.CredentialName = "residential"

	p := New(cfg, Options{Credentials: staticPasswords{"residential": "stored"}})
	source, err := p.proxySource()
	require.NoError(t, err)

	u, err := source.NewSessionURL(context.Background(), "session_alice_0")
	require.NoError(t, err)
	password, _ := u.User.Password()
	assert.Equal(t, "stored", password)

	cfg.Proxy.Password = "inline"
	source, err = New(cfg, Options{Credentials: staticPasswords{"residential": "stored"}}).proxySource()
	require.NoError(t, err)
	u, err = source.NewSessionURL(context.Background(), "session_alice_0")
	require.NoError(t, err)
	password, _ = u.User.Password()
	assert.Equal(t, "inline", password, "configured password wins over the stored one")
}

func TestRunResumeSkipsCompletedUsernames(t *testing.T) {
	f := newFixture(t, "alice", "ghost")

	first, err := New(f.cfg, f.options()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Total)

	f.cfg.Run.Usernames = []string{"alice", "ghost", "bob"}
	f.cfg.Run.Resume = true
	second, err := New(f.cfg, f.options()).Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 1, second.Total)
	assert.Equal(t, 1, second.Succeeded)
	assert.Equal(t, 1, f.upstream.callsFor("alice"), "alice is not fetched again")
	assert.Equal(t, 1, f.upstream.callsFor("bob"))

	results := f.sink.Results()
	require.Len(t, results, 3)
	bob := resultsByUser(results)["bob"]
	assert.Equal(t, int64(0), bob.Followers)
	assert.Equal(t, 0.0, bob.EngagementRatePct)
}

func TestRunWithoutResumeStartsOver(t *testing.T) {
	f := newFixture(t, "alice")

	_, err := New(f.cfg, f.options()).Run(context.Background())
	require.NoError(t, err)
	summary, err := New(f.cfg, f.options()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 2, f.upstream.callsFor("alice"))
}

type failingSink struct {
	storage.MemorySink
}

func (s *failingSink) Append(ctx context.Context, result engagement.Result) error {
	if result.Username == "ghost" {
		return errors.New("disk full")
	}
	return s.MemorySink.Append(ctx, result)
}

func TestRunSinkFailureIsNotCheckpointed(t *testing.T) {
	f := newFixture(t, "alice", "ghost")
	opts := f.options()
	opts.Sink = &failingSink{}

	summary, err := New(f.cfg, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SinkErrors)
	assert.Len(t, f.reporter.lines, 2, "progress is reported even when storing fails")

	mgr, err := checkpoint.NewManagerAt(f.cpDir, "test", nil)
	require.NoError(t, err)
	cp, err := mgr.Load()
	require.NoError(t, err)
	assert.True(t, cp.IsCompleted("alice"))
	assert.False(t, cp.IsCompleted("ghost"), "a result that was not stored is fetched again on resume")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.cfg.Run.Concurrency = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(f.cfg, f.options()).Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Total)
	assert.Zero(t, summary.Succeeded)
	assert.Empty(t, f.sink.Results())
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.upstream.total))
}
