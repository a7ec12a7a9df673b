package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/roach88/fieldsync/internal/queue"
)

// IdempotencyKeyHeader carries the record id on every delivery attempt.
const IdempotencyKeyHeader = "Idempotency-Key"

// ErrDeliveryFailed matches every *DeliveryError.
var ErrDeliveryFailed = errors.New("delivery failed")

// DeliveryError reports a transport failure or a non-2xx answer.
// It is always recoverable: the record stays queued.
type DeliveryError struct {
	RecordID   string
	StatusCode int // 0 for transport errors
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deliver %s: endpoint returned %d", e.RecordID, e.StatusCode)
	}
	return fmt.Sprintf("deliver %s: %v", e.RecordID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

// Deliverer sends one record to the remote endpoint. A nil error means
// the endpoint acknowledged this exact record id.
type Deliverer interface {
	Deliver(ctx context.Context, rec queue.PendingRecord) error
}

// HTTPDeliverer posts record payloads as JSON to the records endpoint.
type HTTPDeliverer struct {
	endpoint string
	client   *http.Client
}

var _ Deliverer = (*HTTPDeliverer)(nil)

// NewHTTPDeliverer creates a deliverer for endpoint. The client's Timeout
// bounds each attempt; a nil client uses http.DefaultClient.
func NewHTTPDeliverer(endpoint string, client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDeliverer{endpoint: endpoint, client: client}
}

// Deliver sends POST <endpoint> with the payload as body. Any 2xx status
// is success; anything else, including a timeout, is a *DeliveryError.
func (d *HTTPDeliverer) Deliver(ctx context.Context, rec queue.PendingRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(rec.Payload))
	if err != nil {
		return &DeliveryError{RecordID: rec.ID, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, rec.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{RecordID: rec.ID, Err: err}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{RecordID: rec.ID, StatusCode: resp.StatusCode}
	}
	return nil
}
