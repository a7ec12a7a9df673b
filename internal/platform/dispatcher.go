package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// EventKind identifies a platform event.
type EventKind string

const (
	// EventInstall pre-populates caches for a new deployment.
	EventInstall EventKind = "install"
	// EventActivate retires state left by previous deployments.
	EventActivate EventKind = "activate"
	// EventFetch routes an outgoing request through the cache layer.
	EventFetch EventKind = "fetch"
	// EventSync fires a registered background-sync tag.
	EventSync EventKind = "sync"
)

// Event is delivered to the handler registered for its Kind.
type Event struct {
	Kind EventKind

	// Tag is the registration name for EventSync.
	Tag string

	// Request is the outgoing request for EventFetch.
	Request *http.Request
}

// Handler processes one event. Only fetch handlers return a response.
type Handler func(ctx context.Context, ev Event) (*http.Response, error)

// ErrNoHandler is returned when no handler is registered for an event kind.
var ErrNoHandler = errors.New("no handler registered")

// Dispatcher is the handler registration table.
//
// Thread-safety: safe for concurrent use. Handlers may be replaced while
// events are dispatched.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[EventKind]Handler
}

// NewDispatcher creates an empty table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventKind]Handler)}
}

// On registers h for kind, replacing any previous handler.
func (d *Dispatcher) On(kind EventKind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Dispatch invokes the handler registered for ev.Kind.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (*http.Response, error) {
	d.mu.RLock()
	h, ok := d.handlers[ev.Kind]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoHandler, ev.Kind)
	}
	return h(ctx, ev)
}

// Fetch dispatches a fetch event for req.
func (d *Dispatcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.Dispatch(ctx, Event{Kind: EventFetch, Request: req})
}

// Install dispatches the install event, retrying failures under policy,
// then dispatches activate. A missing install handler is not retried; a
// missing activate handler is skipped.
func (d *Dispatcher) Install(ctx context.Context, policy RetryPolicy) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		_, err := d.Dispatch(ctx, Event{Kind: EventInstall})
		if errors.Is(err, ErrNoHandler) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, policy.retryOptions(func(err error, next time.Duration) {
		slog.Warn("install_retry", "attempt", attempt, "next_in", next, "error", err)
	})...)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	if _, err := d.Dispatch(ctx, Event{Kind: EventActivate}); err != nil && !errors.Is(err, ErrNoHandler) {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}
