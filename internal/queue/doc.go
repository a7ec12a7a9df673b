// Package queue provides durable storage for records that have not yet
// been acknowledged by the remote records endpoint.
//
// A record lives in the store exactly as long as it is undelivered:
//   - Add persists a record when a direct delivery attempt fails
//   - GetAll returns a snapshot of everything still pending
//   - Delete removes a record once the endpoint acknowledged its id
//
// # Identity
//
// Records are keyed by a client-generated id which doubles as the
// idempotency key presented to the endpoint. Add rejects an id that is
// already queued with ErrDuplicateID; Delete of an unknown id is a no-op.
//
// # Database Configuration
//
//   - WAL mode: readers do not block the writer
//   - synchronous=FULL: a returned Add survives power loss
//   - busy_timeout=5000: wait for locks held by other processes
//   - _txlock=immediate: migrations take the write lock up front
//
// The schema is versioned with PRAGMA user_version. Each migration step in
// migrations/ runs in its own transaction and only ever adds structure, so
// opening an older database never discards pending records.
//
// Memory is an in-process implementation of Store for tests and for
// callers that inject a fake queue.
package queue
