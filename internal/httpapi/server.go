// Package httpapi is the local HTTP surface: ticket submission, queue
// inspection, manual sync, and a cache-backed proxy to the origin for
// everything else.
package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roach88/fieldsync/internal/queue"
	"github.com/roach88/fieldsync/internal/submit"
	"github.com/roach88/fieldsync/internal/syncer"
)

// maxTicketBytes bounds a submitted ticket body.
const maxTicketBytes = 1 << 20

// Submitter runs the submission pipeline. *submit.Submitter satisfies it.
type Submitter interface {
	Submit(ctx context.Context, payload []byte) (submit.Result, error)
}

// Drainer delivers queued tickets. *syncer.Coordinator satisfies it.
type Drainer interface {
	Drain(ctx context.Context) (syncer.Report, error)
}

// Fetcher routes an outgoing request through the cache layer.
// *platform.Dispatcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	Submitter Submitter
	Queue     queue.Store
	Drainer   Drainer
	Fetcher   Fetcher

	// Origin is where proxied GETs are sent.
	Origin *url.URL

	// AllowedOrigins may call the API from a browser; none when empty.
	AllowedOrigins []string
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(s.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	RegisterRoutes(r, s)
	return r
}

// RegisterRoutes mounts the API on r.
func RegisterRoutes(r chi.Router, s *Server) {
	r.Get("/healthz", healthHandler)
	r.Post("/api/tickets", s.createTicket)
	r.Get("/api/tickets/pending", s.listPending)
	r.Post("/api/sync", s.syncNow)
	r.Get("/*", s.proxy)
}
