// Package syncer drains the durable queue against the remote records
// endpoint.
//
// One drain pass moves through Idle → Draining → (per record: Delivering →
// Delivered | Failed) → Idle. No in-flight state is persisted: a record's
// absence from the queue is its Delivered state, and its presence after a
// pass is its retryable Failed state. The next pass simply tries again.
//
// Records are delivered independently. A failure for one record never
// stops, delays or rolls back another, and delivery order across records
// is unspecified. Each record is sent with its id as the idempotency key,
// so a record delivered twice (e.g. two overlapping passes from different
// processes) is collapsed by the endpoint.
package syncer
