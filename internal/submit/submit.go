// Package submit is the ticket submission pipeline: try the endpoint
// directly, and when that fails persist the ticket and ask for a
// background sync so it is delivered once connectivity returns.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/fieldsync/internal/ids"
	"github.com/roach88/fieldsync/internal/platform"
	"github.com/roach88/fieldsync/internal/queue"
	"github.com/roach88/fieldsync/internal/syncer"
)

// DefaultTag is the background-sync registration used for tickets.
const DefaultTag = "sync-tickets"

// ErrInvalidPayload rejects a payload that is not a JSON document.
var ErrInvalidPayload = errors.New("payload is not valid JSON")

// Outcome is the user-visible result of one submission.
type Outcome string

const (
	// OutcomeDeliveredLive means the endpoint acknowledged the ticket.
	OutcomeDeliveredLive Outcome = "delivered-live"
	// OutcomeQueuedForSync means the ticket is stored and will be sent later.
	OutcomeQueuedForSync Outcome = "queued-for-sync"
	// OutcomeFailedUnrecoverable means the ticket was neither sent nor stored.
	OutcomeFailedUnrecoverable Outcome = "failed-unrecoverable"
)

// Result describes a submission.
type Result struct {
	Outcome Outcome `json:"outcome"`
	ID      string  `json:"id,omitempty"`

	// BackgroundSync is false for a queued ticket when no scheduler
	// accepted the registration; it is then only sent by a later manual
	// drain or foreground success.
	BackgroundSync bool `json:"background_sync"`
}

// Drainer delivers whatever is still queued. *syncer.Coordinator
// satisfies it.
type Drainer interface {
	Drain(ctx context.Context) (syncer.Report, error)
}

// Options configures a Submitter.
type Options struct {
	// Tag is the background-sync registration name; DefaultTag when empty.
	Tag string

	// Drainer, when set, is kicked in the background after every live
	// delivery so tickets queued earlier follow it out.
	Drainer Drainer
}

// Submitter runs the submission pipeline.
//
// Thread-safety: safe for concurrent use.
type Submitter struct {
	store     queue.Store
	deliverer syncer.Deliverer
	registrar platform.Registrar
	gen       ids.Generator
	tag       string
	drainer   Drainer

	kicks sync.WaitGroup
}

// New creates a Submitter.
func New(store queue.Store, deliverer syncer.Deliverer, registrar platform.Registrar, gen ids.Generator, opts Options) *Submitter {
	tag := opts.Tag
	if tag == "" {
		tag = DefaultTag
	}
	return &Submitter{
		store:     store,
		deliverer: deliverer,
		registrar: registrar,
		gen:       gen,
		tag:       tag,
		drainer:   opts.Drainer,
	}
}

// Submit sends payload, falling back to the queue.
//
// The returned error is non-nil exactly when Outcome is
// OutcomeFailedUnrecoverable. A failed sync registration is not an
// error: the ticket is safe in the queue and Result.BackgroundSync
// reports it.
func (s *Submitter) Submit(ctx context.Context, payload []byte) (Result, error) {
	if !json.Valid(payload) {
		return Result{Outcome: OutcomeFailedUnrecoverable}, ErrInvalidPayload
	}

	id, err := s.gen.Generate()
	if err != nil {
		return Result{Outcome: OutcomeFailedUnrecoverable}, err
	}
	rec := queue.PendingRecord{ID: id, Payload: payload}

	err = s.deliverer.Deliver(ctx, rec)
	if err == nil {
		slog.Info("ticket_delivered_live", "record_id", id)
		s.kickDrain(ctx)
		return Result{Outcome: OutcomeDeliveredLive, ID: id}, nil
	}
	slog.Info("direct_delivery_failed", "record_id", id, "error", err)

	// A caller that gave up on the live attempt still gets its ticket kept.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Add(ctx, rec); err != nil {
		slog.Error("enqueue_failed", "record_id", id, "error", err)
		return Result{Outcome: OutcomeFailedUnrecoverable, ID: id}, fmt.Errorf("queue ticket: %w", err)
	}

	result := Result{Outcome: OutcomeQueuedForSync, ID: id, BackgroundSync: true}
	if err := s.registrar.Register(ctx, s.tag); err != nil {
		slog.Warn("sync_registration_failed", "record_id", id, "tag", s.tag, "error", err)
		result.BackgroundSync = false
	}

	slog.Info("ticket_queued", "record_id", id, "background_sync", result.BackgroundSync)
	return result, nil
}

// Wait blocks until every background drain started by Submit finished.
func (s *Submitter) Wait() {
	s.kicks.Wait()
}

// kickDrain starts a drain detached from the request's cancellation.
func (s *Submitter) kickDrain(ctx context.Context) {
	if s.drainer == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.kicks.Add(1)
	go func() {
		defer s.kicks.Done()
		if _, err := s.drainer.Drain(ctx); err != nil {
			slog.Warn("drain_after_live_delivery_failed", "error", err)
		}
	}()
}
