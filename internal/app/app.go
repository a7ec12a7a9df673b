// Package app assembles the queue, response cache, sync coordinator and
// platform plumbing from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/ids"
	"github.com/roach88/fieldsync/internal/platform"
	"github.com/roach88/fieldsync/internal/queue"
	"github.com/roach88/fieldsync/internal/respcache"
	"github.com/roach88/fieldsync/internal/submit"
	"github.com/roach88/fieldsync/internal/syncer"
)

// Options adjusts how an App is assembled.
type Options struct {
	// Background enables the background-sync scheduler. One-shot
	// commands leave it off; queued tickets then wait for a manual drain.
	Background bool

	// Client performs deliveries and origin fetches. Defaults to a client
	// whose Timeout is the configured delivery timeout.
	Client *http.Client

	// IDs overrides the record id generator.
	IDs ids.Generator

	// Prober overrides the connectivity probe.
	Prober platform.Prober
}

// App is one assembled fieldsync runtime.
type App struct {
	Config      config.Config
	Queue       *queue.SQLiteStore
	Cache       *respcache.Cache
	Coordinator *syncer.Coordinator
	Submitter   *submit.Submitter
	Dispatcher  *platform.Dispatcher

	// Background is nil unless Options.Background was set.
	Background *platform.BackgroundSync

	cacheBackend *respcache.SQLiteBackend
}

// New opens both databases under cfg.DataDir and wires every component.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.DeliveryTimeout}
	}
	gen := opts.IDs
	if gen == nil {
		gen = ids.UUIDv7Generator{}
	}

	store, err := queue.Open(cfg.QueuePath())
	if err != nil {
		return nil, err
	}

	backend, err := respcache.OpenSQLite(cfg.CachePath())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open response cache: %w", err)
	}

	cache, err := respcache.New(backend, client, respcache.Options{
		Namespace:    cfg.Cache.Namespace,
		Origin:       cfg.Cache.Origin,
		MaxBodyBytes: cfg.Cache.MaxBodyBytes,
	})
	if err != nil {
		backend.Close()
		store.Close()
		return nil, err
	}

	deliverer := syncer.NewHTTPDeliverer(cfg.Endpoint, client)
	coordinator := syncer.New(store, deliverer, syncer.Options{Concurrency: cfg.Concurrency})

	a := &App{
		Config:       cfg,
		Queue:        store,
		Cache:        cache,
		Coordinator:  coordinator,
		Dispatcher:   platform.NewDispatcher(),
		cacheBackend: backend,
	}
	a.registerHandlers()

	var registrar platform.Registrar = platform.Unsupported{}
	if opts.Background {
		prober := opts.Prober
		if prober == nil {
			prober = &platform.HTTPProber{URL: cfg.ProbeURL(), Client: client}
		}
		a.Background = platform.NewBackgroundSync(a.Dispatcher, prober, cfg.Sync.PollInterval, a.RetryPolicy())
		registrar = a.Background
	}

	a.Submitter = submit.New(store, deliverer, registrar, gen, submit.Options{
		Tag:     cfg.Sync.Tag,
		Drainer: coordinator,
	})

	return a, nil
}

// registerHandlers binds each platform event to the component serving it.
func (a *App) registerHandlers() {
	a.Dispatcher.On(platform.EventInstall, func(ctx context.Context, _ platform.Event) (*http.Response, error) {
		return nil, a.Cache.Bootstrap(ctx, a.Config.Cache.Manifest)
	})
	a.Dispatcher.On(platform.EventActivate, func(ctx context.Context, _ platform.Event) (*http.Response, error) {
		_, err := a.Cache.Activate(ctx)
		return nil, err
	})
	a.Dispatcher.On(platform.EventFetch, func(ctx context.Context, ev platform.Event) (*http.Response, error) {
		return a.Cache.Intercept(ctx, ev.Request)
	})
	a.Dispatcher.On(platform.EventSync, func(ctx context.Context, ev platform.Event) (*http.Response, error) {
		return nil, a.Coordinator.HandleSync(ctx, ev.Tag)
	})
}

// RetryPolicy is the configured install and sync backoff.
func (a *App) RetryPolicy() platform.RetryPolicy {
	return platform.RetryPolicy{
		InitialInterval: a.Config.Sync.InitialInterval,
		MaxInterval:     a.Config.Sync.MaxInterval,
		MaxElapsedTime:  a.Config.Sync.MaxElapsed,
		MaxTries:        a.Config.Sync.MaxTries,
	}
}

// Install pre-populates the response cache from the manifest, retrying
// under the configured policy, then prunes superseded namespaces.
func (a *App) Install(ctx context.Context) error {
	return a.Dispatcher.Install(ctx, a.RetryPolicy())
}

// Start launches background sync and returns once registrations are
// accepted. Tickets left queued by an earlier process are registered for
// sync right away. The channel yields the scheduler's result after ctx
// is done.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	if a.Background == nil {
		return nil, platform.ErrBackgroundSyncUnsupported
	}

	done := a.Background.Start(ctx)

	pending, err := a.Queue.Count(ctx)
	if err != nil {
		slog.Warn("startup_count_failed", "error", err)
	} else if pending > 0 {
		slog.Info("startup_backlog", "pending", pending)
		if err := a.Background.Register(ctx, a.Config.Sync.Tag); err != nil {
			slog.Warn("sync_registration_failed", "tag", a.Config.Sync.Tag, "error", err)
		}
	}

	return done, nil
}

// Run is Start followed by waiting for ctx to end.
func (a *App) Run(ctx context.Context) error {
	done, err := a.Start(ctx)
	if err != nil {
		return err
	}
	return <-done
}

// Close waits for background work and closes both databases.
func (a *App) Close() error {
	a.Submitter.Wait()
	a.Coordinator.Wait()
	a.Cache.Wait()
	return errors.Join(a.cacheBackend.Close(), a.Queue.Close())
}
