package respcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// testOrigin serves a tiny application shell and counts live requests.
type testOrigin struct {
	*httptest.Server
	hits atomic.Int64
}

func newTestOrigin(t *testing.T) *testOrigin {
	t.Helper()
	o := &testOrigin{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>shell</html>"))
	})
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>index</html>"))
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		w.Write([]byte("console.log('app')"))
	})
	mux.HandleFunc("/nostore", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, no-store")
		w.Write([]byte("secret"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(o.Close)
	return o
}

func newTestCache(t *testing.T, backend Backend, origin string) *Cache {
	t.Helper()
	c, err := New(backend, &http.Client{}, Options{Namespace: "shell-v1", Origin: origin})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(c.Wait)
	return c
}

func createTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func getRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	return req
}

// blockingBackend holds every Put until release is closed.
type blockingBackend struct {
	*MemoryBackend
	release chan struct{}
	puts    atomic.Int64
}

func (b *blockingBackend) Put(ctx context.Context, namespace, key string, snap Snapshot) error {
	<-b.release
	b.puts.Add(1)
	return b.MemoryBackend.Put(ctx, namespace, key, snap)
}
