package respcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBodyBytes bounds how much of a live response is buffered for
// caching. Larger responses are passed through uncached.
const DefaultMaxBodyBytes = 8 << 20

// storeTimeout bounds a background cache write.
const storeTimeout = 30 * time.Second

// ErrCacheIneligible marks a response that must not be stored. It is a
// normal branch of Intercept, never returned to callers.
var ErrCacheIneligible = errors.New("response not cache-eligible")

// IneligibleError explains why a response was not cached.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "response not cache-eligible: " + e.Reason
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrCacheIneligible
}

// Fetcher performs live requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Cache.
type Options struct {
	// Namespace groups entries; a new namespace supersedes old ones on Activate.
	Namespace string

	// Origin is the base URL manifest paths resolve against. Only responses
	// served from this scheme and host are cache-eligible.
	Origin string

	// MaxBodyBytes overrides DefaultMaxBodyBytes when positive.
	MaxBodyBytes int64
}

// Cache is the request interception layer.
//
// Cache implements http.RoundTripper, so it can be installed as the
// Transport of an http.Client. Its Fetcher must not route back through
// the same Cache.
type Cache struct {
	backend   Backend
	fetcher   Fetcher
	namespace string
	origin    *url.URL
	maxBody   int64

	pending sync.WaitGroup
}

var _ http.RoundTripper = (*Cache)(nil)

// New creates a Cache over backend that fetches through fetcher.
func New(backend Backend, fetcher Fetcher, opts Options) (*Cache, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("respcache: namespace is required")
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("respcache: parse origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("respcache: origin %q must be an absolute URL", opts.Origin)
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &Cache{
		backend:   backend,
		fetcher:   fetcher,
		namespace: opts.Namespace,
		origin:    origin,
		maxBody:   maxBody,
	}, nil
}

// Namespace returns the active cache namespace.
func (c *Cache) Namespace() string {
	return c.namespace
}

// Resolve turns a manifest path into an absolute URL on the origin.
func (c *Cache) Resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	return c.origin.ResolveReference(ref), nil
}

// RoundTrip implements http.RoundTripper.
func (c *Cache) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Intercept(req.Context(), req)
}

// Intercept applies the cache policy to one outgoing request:
//  1. a stored snapshot for the request identity is returned without a fetch
//  2. otherwise the request is fetched live; an eligible response is
//     returned to the caller while its copy is stored in the background
//  3. an ineligible response is returned uncached
//  4. a fetch error is returned as is
//
// Requests other than GET bypass the cache entirely.
func (c *Cache) Intercept(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.fetch(ctx, req)
	}

	key := Key(req.Method, req.URL)

	snap, ok, err := c.backend.Get(ctx, c.namespace, key)
	if err != nil {
		// A broken cache read degrades to a live fetch.
		slog.Warn("cache_read_failed", "url", req.URL.String(), "error", err)
	} else if ok {
		slog.Debug("cache_hit", "url", req.URL.String())
		return snap.Response(req), nil
	}

	resp, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.eligible(req, resp); err != nil {
		slog.Debug("cache_skip", "url", req.URL.String(), "reason", err.Error())
		return resp, nil
	}

	body, complete, err := c.bufferBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", req.URL, err)
	}
	if !complete {
		slog.Debug("cache_skip", "url", req.URL.String(), "reason", "body exceeds limit")
		return resp, nil
	}

	c.storeAsync(key, newSnapshot(req, resp, bytes.Clone(body)))
	return resp, nil
}

// Bootstrap fetches and stores every manifest path before returning.
// A failing path does not stop the others; all failures are joined into
// the returned error so an installer can retry the whole manifest.
func (c *Cache) Bootstrap(ctx context.Context, manifest []string) error {
	var errs []error
	stored := 0

	for _, path := range manifest {
		if err := c.precache(ctx, path); err != nil {
			slog.Warn("precache_failed", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("precache %s: %w", path, err))
			continue
		}
		stored++
	}

	slog.Info("cache_bootstrap_complete", "namespace", c.namespace, "stored", stored, "failed", len(errs))
	return errors.Join(errs...)
}

func (c *Cache) precache(ctx context.Context, path string) error {
	u, err := c.Resolve(path)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.fetch(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.eligible(req, resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	return c.backend.Put(ctx, c.namespace, Key(req.Method, req.URL), newSnapshot(req, resp, body))
}

// Activate makes this namespace the only one: entries stored under any
// other namespace are deleted.
func (c *Cache) Activate(ctx context.Context) (int, error) {
	removed, err := c.backend.Prune(ctx, c.namespace)
	if err != nil {
		return 0, fmt.Errorf("activate %s: %w", c.namespace, err)
	}
	if removed > 0 {
		slog.Info("cache_namespaces_pruned", "namespace", c.namespace, "removed", removed)
	}
	return removed, nil
}

// Count returns the number of entries in the active namespace.
func (c *Cache) Count(ctx context.Context) (int, error) {
	return c.backend.Count(ctx, c.namespace)
}

// Wait blocks until every background store started by Intercept finished.
func (c *Cache) Wait() {
	c.pending.Wait()
}

func (c *Cache) fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	// Server-side requests carry a RequestURI, which clients reject.
	out.RequestURI = ""

	resp, err := c.fetcher.Do(out)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return resp, nil
}

// eligible is the stored-response predicate: a GET answered with 200 by
// the configured origin (the same-origin, non-opaque case) that does not
// forbid storage.
func (c *Cache) eligible(req *http.Request, resp *http.Response) error {
	if req.Method != http.MethodGet {
		return &IneligibleError{Reason: "method " + req.Method}
	}
	if resp.StatusCode != http.StatusOK {
		return &IneligibleError{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	// Redirects are followed by the fetcher; judge where the body came from.
	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	if !c.sameOrigin(final) {
		return &IneligibleError{Reason: "cross-origin " + final.Scheme + "://" + final.Host}
	}

	for _, directive := range strings.Split(resp.Header.Get("Cache-Control"), ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-store") {
			return &IneligibleError{Reason: "cache-control no-store"}
		}
	}
	return nil
}

func (c *Cache) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.origin.Scheme) && strings.EqualFold(u.Host, c.origin.Host)
}

// bufferBody reads up to maxBody bytes and swaps resp.Body for a reader
// that replays them. complete is false when the body was larger; the
// replacement body then continues with the unread remainder.
func (c *Cache) bufferBody(resp *http.Response) (body []byte, complete bool, err error) {
	orig := resp.Body
	buf, err := io.ReadAll(io.LimitReader(orig, c.maxBody+1))
	if err != nil {
		orig.Close()
		return nil, false, err
	}

	if int64(len(buf)) > c.maxBody {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), orig), orig}
		return nil, false, nil
	}

	orig.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	resp.ContentLength = int64(len(buf))
	return buf, true, nil
}

// storeAsync writes snap off the response path. Failures only cost a
// future cache hit, so they are logged and dropped.
func (c *Cache) storeAsync(key string, snap Snapshot) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if err := c.backend.Put(ctx, c.namespace, key, snap); err != nil {
			slog.Warn("cache_store_failed", "url", snap.URL, "error", err)
			return
		}
		slog.Debug("cache_stored", "url", snap.URL, "status", snap.Status, "bytes", len(snap.Body))
	}()
}
