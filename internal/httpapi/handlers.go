package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/roach88/fieldsync/internal/queue"
	"github.com/roach88/fieldsync/internal/submit"
)

// ListPendingResponse is the body of GET /api/tickets/pending.
type ListPendingResponse struct {
	Count int             `json:"count"`
	Items []queue.Summary `json:"items"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTicketBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "ticket too large")
		return
	}

	result, err := s.Submitter.Submit(r.Context(), payload)
	switch {
	case errors.Is(err, submit.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	case queue.IsStorageUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, "offline storage unavailable")
		return
	case err != nil:
		slog.Error("submit_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	status := http.StatusCreated
	if result.Outcome == submit.OutcomeQueuedForSync {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	records, err := s.Queue.GetAll(r.Context())
	if err != nil {
		slog.Error("list_pending_failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to load queue")
		return
	}

	items := queue.Summaries(records)
	writeJSON(w, http.StatusOK, ListPendingResponse{Count: len(items), Items: items})
}

func (s *Server) syncNow(w http.ResponseWriter, r *http.Request) {
	report, err := s.Drainer.Drain(r.Context())
	if err != nil {
		slog.Error("manual_sync_failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// proxy forwards a GET to the origin through the fetch handler.
func (s *Server) proxy(w http.ResponseWriter, r *http.Request) {
	target := s.Origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad path")
		return
	}
	for _, h := range []string{"Accept", "Accept-Language"} {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := s.Fetcher.Fetch(r.Context(), req)
	if err != nil {
		slog.Warn("proxy_fetch_failed", "url", target.String(), "error", err)
		writeError(w, http.StatusBadGateway, "origin unreachable")
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Debug("proxy_copy_interrupted", "url", target.String(), "error", err)
	}
}
