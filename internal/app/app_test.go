package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/ids"
	"github.com/roach88/fieldsync/internal/platform"
	"github.com/roach88/fieldsync/internal/submit"
	"github.com/roach88/fieldsync/internal/testutil"
)

// newOrigin serves a small static site and counts requests.
func newOrigin(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<h1>tickets</h1>")
	})
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<h1>index</h1>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(t *testing.T, endpoint, origin string) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Endpoint = endpoint
	cfg.DeliveryTimeout = 2 * time.Second
	cfg.Cache.Origin = origin
	cfg.Sync.PollInterval = 10 * time.Millisecond
	cfg.Sync.InitialInterval = time.Millisecond
	cfg.Sync.MaxInterval = 10 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts Options) *App {
	t.Helper()
	a, err := New(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_CreatesDataDir(t *testing.T) {
	origin, _ := newOrigin(t)
	endpoint := testutil.NewEndpoint(t)
	cfg := testConfig(t, endpoint.URL, origin.URL)

	a := newTestApp(t, cfg, Options{})

	assert.FileExists(t, cfg.QueuePath())
	assert.FileExists(t, cfg.CachePath())
	assert.Nil(t, a.Background)
	assert.Equal(t, cfg.Cache.Namespace, a.Cache.Namespace())
}

func TestNew_StorageUnavailable(t *testing.T) {
	origin, _ := newOrigin(t)
	cfg := testConfig(t, "http://127.0.0.1:1/records", origin.URL)
	// A directory where the queue file should be.
	require.NoError(t, os.MkdirAll(cfg.QueuePath(), 0o755))

	_, err := New(cfg, Options{})
	require.Error(t, err)
}

func TestInstall_ThenOfflineFetch(t *testing.T) {
	origin, hits := newOrigin(t)
	endpoint := testutil.NewEndpoint(t)
	cfg := testConfig(t, endpoint.URL, origin.URL)

	a := newTestApp(t, cfg, Options{})
	require.NoError(t, a.Install(context.Background()))
	assert.Equal(t, int64(2), hits.Load())

	count, err := a.Cache.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	origin.Close()

	req := httptest.NewRequest(http.MethodGet, origin.URL+"/", nil)
	resp, err := a.Dispatcher.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>tickets</h1>", string(body))
}

func TestSubmit_OneShotQueuesWithoutBackgroundSync(t *testing.T) {
	origin, _ := newOrigin(t)
	cfg := testConfig(t, testutil.UnreachableURL(t), origin.URL)

	a := newTestApp(t, cfg, Options{IDs: ids.NewFixedGenerator("rec-1")})

	result, err := a.Submitter.Submit(context.Background(), []byte(`{"title":"gate stuck"}`))
	require.NoError(t, err)
	assert.Equal(t, submit.OutcomeQueuedForSync, result.Outcome)
	assert.False(t, result.BackgroundSync)

	assert.ErrorIs(t, a.Run(context.Background()), platform.ErrBackgroundSyncUnsupported)
}

func TestRun_DrainsBacklogLeftByEarlierProcess(t *testing.T) {
	origin, _ := newOrigin(t)
	endpoint := testutil.NewEndpoint(t)

	// First process: endpoint unreachable, ticket queued.
	offline := testConfig(t, testutil.UnreachableURL(t), origin.URL)
	first, err := New(offline, Options{IDs: ids.NewFixedGenerator("rec-1")})
	require.NoError(t, err)
	_, err = first.Submitter.Submit(context.Background(), []byte(`{"title":"gate stuck"}`))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Second process: same data dir, endpoint reachable.
	online := offline
	online.Endpoint = endpoint.URL
	a := newTestApp(t, online, Options{
		Background: true,
		Prober:     platform.ProberFunc(func(context.Context) bool { return true }),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := a.Queue.Count(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"rec-1"}, endpoint.AcceptedIDs())

	cancel()
	assert.NoError(t, <-done)
}

func TestSubmit_BackgroundSyncDeliversWhenEndpointRecovers(t *testing.T) {
	origin, _ := newOrigin(t)
	endpoint := testutil.NewEndpoint(t)
	endpoint.RespondWith("rec-1", http.StatusServiceUnavailable)

	cfg := testConfig(t, endpoint.URL, origin.URL)
	a := newTestApp(t, cfg, Options{
		Background: true,
		IDs:        ids.NewFixedGenerator("rec-1"),
		Prober:     platform.ProberFunc(func(context.Context) bool { return true }),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := a.Background.Start(ctx)
	defer func() {
		cancel()
		<-done
	}()

	result, err := a.Submitter.Submit(context.Background(), []byte(`{"title":"gate stuck"}`))
	require.NoError(t, err)
	assert.Equal(t, submit.OutcomeQueuedForSync, result.Outcome)
	assert.True(t, result.BackgroundSync)

	endpoint.RespondWith("rec-1", http.StatusCreated)

	require.Eventually(t, func() bool {
		n, err := a.Queue.Count(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(a.Background.Pending()) == 0 }, time.Second, 10*time.Millisecond)
}
