// Package testutil provides fakes shared by package tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
)

// Delivery is one request received by an Endpoint.
type Delivery struct {
	ID          string
	ContentType string
	Body        []byte

	// Status is what the endpoint answered.
	Status int
}

// Endpoint is a fake records endpoint. It answers 201 unless a status was
// configured for the request's idempotency key.
//
// Thread-safety: all methods are safe for concurrent use.
type Endpoint struct {
	*httptest.Server

	mu       sync.Mutex
	statuses map[string]int
	received []Delivery
}

// NewEndpoint starts an Endpoint that is closed when the test ends.
func NewEndpoint(t *testing.T) *Endpoint {
	t.Helper()
	e := &Endpoint{statuses: make(map[string]int)}
	e.Server = httptest.NewServer(http.HandlerFunc(e.serve))
	t.Cleanup(e.Close)
	return e
}

func (e *Endpoint) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id := r.Header.Get("Idempotency-Key")

	e.mu.Lock()
	status, ok := e.statuses[id]
	if !ok {
		status = http.StatusCreated
	}
	e.received = append(e.received, Delivery{ID: id, ContentType: r.Header.Get("Content-Type"), Body: body, Status: status})
	e.mu.Unlock()

	w.WriteHeader(status)
}

// RespondWith makes the endpoint answer status for the given record id.
func (e *Endpoint) RespondWith(id string, status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[id] = status
}

// Deliveries returns every request received so far.
func (e *Endpoint) Deliveries() []Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Delivery, len(e.received))
	copy(out, e.received)
	return out
}

// AcceptedIDs returns the sorted ids of every delivery answered with 2xx,
// judged by the status at the time it was received.
func (e *Endpoint) AcceptedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for _, d := range e.received {
		if d.Status >= 200 && d.Status <= 299 {
			ids = append(ids, d.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// UnreachableURL returns the URL of a server that is already closed, so
// requests to it fail at the transport level.
func UnreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}
