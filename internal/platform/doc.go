// Package platform provides the event plumbing the queue and cache run
// under: a handler registration table keyed by event kind, installation
// with retry, connectivity probing, and background sync.
//
// Handlers hold the logic; the Dispatcher only routes. Each handler is a
// plain function from an Event (plus whatever state it closes over) to
// an optional response, so it can be exercised without a scheduler.
//
// BackgroundSync is the deferred-retry capability. A caller registers a
// tag after persisting work; while Run is active, the tag's sync handler
// fires once connectivity is plausible and is retried with exponential
// backoff until it succeeds. Retry timing belongs here, never to the
// handler.
package platform
