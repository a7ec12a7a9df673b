package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/fieldsync/internal/queue"
)

// DefaultConcurrency is the number of records delivered at once.
const DefaultConcurrency = 4

// ErrIncompleteDrain is returned by HandleSync when records remain queued
// after a pass, asking the scheduler to try again later.
var ErrIncompleteDrain = errors.New("drain incomplete")

// Report summarizes one drain pass.
type Report struct {
	Attempted int      `json:"attempted"`
	Delivered []string `json:"delivered"`
	Failed    []string `json:"failed"`
}

// Complete reports whether every attempted record was delivered.
func (r Report) Complete() bool {
	return len(r.Failed) == 0
}

// Options configures a Coordinator.
type Options struct {
	// Concurrency bounds parallel deliveries; DefaultConcurrency when <= 0.
	Concurrency int
}

// Coordinator drains a queue.Store through a Deliverer.
//
// Thread-safety: Drain may be called from any goroutine. Concurrent calls
// within one process share a single pass. A pass is not bound to the
// context of the caller that started it; Wait blocks until it ends.
type Coordinator struct {
	store       queue.Store
	deliverer   Deliverer
	concurrency int

	flight singleflight.Group
	passes sync.WaitGroup
}

// New creates a Coordinator.
func New(store queue.Store, deliverer Deliverer, opts Options) *Coordinator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Coordinator{
		store:       store,
		deliverer:   deliverer,
		concurrency: concurrency,
	}
}

// Drain attempts delivery of every currently pending record and deletes
// each one the endpoint acknowledges. Records that fail stay queued.
//
// The returned error is non-nil only when the queue itself cannot be
// read or ctx ends first; delivery failures are reported in Report and
// logged, never returned. A cancelled caller stops waiting, but the pass
// keeps going for everyone else sharing it.
func (c *Coordinator) Drain(ctx context.Context) (Report, error) {
	report, _, err := c.share(ctx)
	return report, err
}

// HandleSync runs a drain for a background-sync trigger. It returns
// ErrIncompleteDrain when records remain so the trigger is retried.
//
// A joined pass may have read the queue before the record behind this
// trigger was added, so a shared result is followed by a fresh pass when
// records are still waiting.
func (c *Coordinator) HandleSync(ctx context.Context, tag string) error {
	report, shared, err := c.share(ctx)
	if err != nil {
		return err
	}
	if shared && report.Complete() {
		remaining, err := c.store.Count(ctx)
		if err != nil {
			return fmt.Errorf("sync %s: %w", tag, err)
		}
		if remaining > 0 {
			slog.Debug("drain_repeat_after_shared_pass", "tag", tag, "pending", remaining)
			if report, _, err = c.share(ctx); err != nil {
				return err
			}
		}
	}
	if !report.Complete() {
		return fmt.Errorf("%w: tag %s: %d of %d records still queued",
			ErrIncompleteDrain, tag, len(report.Failed), report.Attempted)
	}

	remaining, err := c.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("sync %s: %w", tag, err)
	}
	if remaining > 0 {
		return fmt.Errorf("%w: tag %s: %d records queued during the pass",
			ErrIncompleteDrain, tag, remaining)
	}
	return nil
}

// Wait blocks until the pass in flight, if any, has finished.
func (c *Coordinator) Wait() {
	c.passes.Wait()
}

// share runs or joins the single drain pass. shared reports whether the
// result came from a pass other callers also received.
func (c *Coordinator) share(ctx context.Context) (Report, bool, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, false, err
	}

	pass := context.WithoutCancel(ctx)
	c.passes.Add(1)
	ch := c.flight.DoChan("drain", func() (any, error) {
		return c.drain(pass)
	})

	select {
	case res := <-ch:
		c.passes.Done()
		if res.Shared {
			slog.Debug("drain_joined_in_flight_pass")
		}
		if res.Err != nil {
			return Report{}, res.Shared, res.Err
		}
		return res.Val.(Report), res.Shared, nil
	case <-ctx.Done():
		go func() {
			<-ch
			c.passes.Done()
		}()
		return Report{}, false, ctx.Err()
	}
}

func (c *Coordinator) drain(ctx context.Context) (Report, error) {
	records, err := c.store.GetAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("drain: %w", err)
	}

	report := Report{
		Attempted: len(records),
		Delivered: []string{},
		Failed:    []string{},
	}
	if len(records) == 0 {
		return report, nil
	}

	slog.Info("drain_start", "pending", len(records))

	// Per-record outcomes are written to distinct slots, so the report
	// keeps queue order without a lock.
	delivered := make([]bool, len(records))

	// A plain Group: one failed record must not cancel the others.
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			delivered[i] = c.deliverOne(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range records {
		if delivered[i] {
			report.Delivered = append(report.Delivered, rec.ID)
		} else {
			report.Failed = append(report.Failed, rec.ID)
		}
	}

	slog.Info("drain_complete",
		"attempted", report.Attempted,
		"delivered", len(report.Delivered),
		"failed", len(report.Failed),
	)
	return report, nil
}

// deliverOne runs Delivering → Delivered|Failed for a single record.
// Read-before-delete: the record is removed only after the endpoint
// acknowledged it.
func (c *Coordinator) deliverOne(ctx context.Context, rec queue.PendingRecord) bool {
	if err := c.deliverer.Deliver(ctx, rec); err != nil {
		slog.Warn("delivery_failed", "record_id", rec.ID, "error", err)
		return false
	}

	if err := c.store.Delete(ctx, rec.ID); err != nil {
		// Delivered but still queued: the next pass resends it and the
		// endpoint deduplicates on the idempotency key.
		slog.Error("delete_after_delivery_failed", "record_id", rec.ID, "error", err)
		return false
	}

	slog.Debug("record_delivered", "record_id", rec.ID)
	return true
}
