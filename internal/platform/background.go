package platform

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrBackgroundSyncUnsupported is returned by Register when no scheduler
// is running to honor the registration.
var ErrBackgroundSyncUnsupported = errors.New("background sync unsupported")

// Registrar requests a future sync event for a tag.
type Registrar interface {
	Register(ctx context.Context, tag string) error
}

// Unsupported is the Registrar of a process without a scheduler, such as
// a one-shot CLI command.
type Unsupported struct{}

func (Unsupported) Register(context.Context, string) error {
	return ErrBackgroundSyncUnsupported
}

// registration is the retry state of one pending tag. gen counts Register
// calls so a registration made while the tag is firing survives that
// firing's success.
type registration struct {
	since    time.Time
	next     time.Time
	attempts uint
	gen      uint64
	backoff  *backoff.ExponentialBackOff
}

// firing is a due tag and the registration generation it was fired at.
type firing struct {
	tag string
	gen uint64
}

// BackgroundSync fires registered sync tags when connectivity allows.
//
// Registering a tag that is already pending coalesces into the existing
// registration. A tag is dropped once its handler succeeds or the retry
// policy expires.
type BackgroundSync struct {
	dispatcher   *Dispatcher
	prober       Prober
	pollInterval time.Duration
	policy       RetryPolicy

	mu      sync.Mutex
	running bool
	tags    map[string]*registration
	wake    chan struct{}
}

var _ Registrar = (*BackgroundSync)(nil)

// NewBackgroundSync creates a scheduler that dispatches EventSync through
// dispatcher, checking prober every pollInterval.
func NewBackgroundSync(dispatcher *Dispatcher, prober Prober, pollInterval time.Duration, policy RetryPolicy) *BackgroundSync {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &BackgroundSync{
		dispatcher:   dispatcher,
		prober:       prober,
		pollInterval: pollInterval,
		policy:       policy,
		tags:         make(map[string]*registration),
		wake:         make(chan struct{}, 1),
	}
}

// Register records interest in tag and wakes the scheduler.
// Returns ErrBackgroundSyncUnsupported when Run is not active.
func (b *BackgroundSync) Register(_ context.Context, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return ErrBackgroundSyncUnsupported
	}

	if reg, ok := b.tags[tag]; ok {
		reg.gen++
	} else {
		now := time.Now()
		b.tags[tag] = &registration{since: now, next: now, backoff: b.policy.newBackOff()}
		slog.Debug("sync_registered", "tag", tag)
	}

	// Non-blocking: a buffer of 1 coalesces wakeups.
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the sorted tags awaiting a successful sync.
func (b *BackgroundSync) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	tags := make([]string, 0, len(b.tags))
	for tag := range b.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Run schedules sync events until ctx is done. While offline nothing
// fires; when connectivity returns, every pending tag becomes due
// immediately regardless of its backoff.
func (b *BackgroundSync) Run(ctx context.Context) error {
	return <-b.Start(ctx)
}

// Start is Run in a new goroutine. Register is accepted as soon as Start
// returns. The channel yields Run's result once ctx is done.
func (b *BackgroundSync) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		done <- errors.New("background sync already running")
		return done
	}
	b.running = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
			close(done)
		}()
		b.loop(ctx)
	}()
	return done
}

func (b *BackgroundSync) loop(ctx context.Context) {
	online := false
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		case <-timer.C:
		}

		wasOnline := online
		online = b.prober.Online(ctx)
		if online && !wasOnline {
			slog.Info("connectivity_regained")
			b.resetAll()
		}
		if online {
			b.fireDue(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.nextWait())
	}
}

// resetAll makes every pending tag due now.
func (b *BackgroundSync) resetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for _, reg := range b.tags {
		reg.next = now
		reg.backoff.Reset()
	}
}

// fireDue dispatches each due tag in turn.
func (b *BackgroundSync) fireDue(ctx context.Context) {
	for _, f := range b.dueTags() {
		if ctx.Err() != nil {
			return
		}

		_, err := b.dispatcher.Dispatch(ctx, Event{Kind: EventSync, Tag: f.tag})
		b.settle(f, err)
	}
}

func (b *BackgroundSync) dueTags() []firing {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var due []firing
	for tag, reg := range b.tags {
		if !reg.next.After(now) {
			due = append(due, firing{tag: tag, gen: reg.gen})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].tag < due[j].tag })
	return due
}

// settle records the outcome of one sync attempt. A success only clears
// the tag when nothing registered it again while the handler ran; a newer
// registration starts over and is due immediately.
func (b *BackgroundSync) settle(f firing, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tag := f.tag
	reg, ok := b.tags[tag]
	if !ok {
		return
	}
	reg.attempts++

	if err == nil {
		if reg.gen != f.gen {
			now := time.Now()
			slog.Debug("sync_reregistered", "tag", tag, "attempts", reg.attempts)
			reg.since = now
			reg.next = now
			reg.attempts = 0
			reg.backoff.Reset()
			return
		}
		delete(b.tags, tag)
		slog.Info("sync_succeeded", "tag", tag, "attempts", reg.attempts)
		return
	}

	if b.policy.expired(reg.since, reg.attempts) {
		if reg.gen != f.gen {
			// Registered again mid-attempt: the newer interest gets its own window.
			reg.since = time.Now()
			reg.attempts = 0
			reg.backoff.Reset()
			wait := reg.backoff.NextBackOff()
			reg.next = reg.since.Add(wait)
			slog.Warn("sync_failed", "tag", tag, "attempt", reg.attempts, "retry_in", wait, "error", err)
			return
		}
		delete(b.tags, tag)
		slog.Warn("sync_registration_expired", "tag", tag, "attempts", reg.attempts, "error", err)
		return
	}

	wait := reg.backoff.NextBackOff()
	reg.next = time.Now().Add(wait)
	slog.Warn("sync_failed", "tag", tag, "attempt", reg.attempts, "retry_in", wait, "error", err)
}

// nextWait is the time until the earliest due tag, capped at the poll
// interval so connectivity changes are noticed.
func (b *BackgroundSync) nextWait() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	wait := b.pollInterval
	now := time.Now()
	for _, reg := range b.tags {
		if d := reg.next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}
