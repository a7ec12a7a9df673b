package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/config"
)

// testEnv is a config file plus the servers it points at.
type testEnv struct {
	ConfigPath string
	Config     config.Config
	Origin     *httptest.Server
	OriginHits *atomic.Int64
}

// newTestEnv writes a config whose endpoint is endpointURL and whose cache
// origin is a small static site.
func newTestEnv(t *testing.T, endpointURL string) *testEnv {
	t.Helper()

	var hits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<h1>tickets</h1>\n")
	})
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<h1>index</h1>\n")
	})
	origin := httptest.NewServer(mux)
	t.Cleanup(origin.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.yaml")
	doc := fmt.Sprintf(`data_dir: %s
endpoint: %s
delivery_timeout: 2s
sync:
  poll_interval: 20ms
  initial_interval: 5ms
  max_interval: 50ms
cache:
  origin: %s
  namespace: test
  manifest: ["/", "/index.html"]
server:
  addr: 127.0.0.1:0
`, filepath.Join(dir, "data"), endpointURL, origin.URL)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	return &testEnv{ConfigPath: path, Config: cfg, Origin: origin, OriginHits: &hits}
}

func (e *testEnv) rootOptions(format string) *RootOptions {
	return &RootOptions{ConfigPath: e.ConfigPath, Format: format}
}

// testCommand is a bare command carrying the streams a run function uses.
func testCommand(t *testing.T, stdin string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetContext(context.Background())
	return cmd, out
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
