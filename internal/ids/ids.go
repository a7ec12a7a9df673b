// Package ids generates record identifiers.
//
// A record id is both the queue key and the idempotency key the remote
// endpoint uses to collapse repeated deliveries, so it must be unique
// across every device that ever submits.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces record ids.
type Generator interface {
	Generate() (string, error)
}

// UUIDv7Generator generates time-sortable UUIDv7 record ids.
//
// UUIDv7 embeds a millisecond timestamp in the most significant bits
// followed by random bits, so ids from different devices do not collide
// and sort roughly by submission time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7,
// e.g. "01890a5d-ac96-774b-bcce-b302099a8057".
func (UUIDv7Generator) Generate() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate record id: %w", err)
	}
	return id.String(), nil
}

// FixedGenerator returns predetermined ids for deterministic tests.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("rec-1", "rec-2")
//	gen.Generate() // "rec-1", nil
//	gen.Generate() // "rec-2", nil
//	gen.Generate() // "", error
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id, or an error once exhausted.
func (g *FixedGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		return "", fmt.Errorf("fixed generator: all %d ids exhausted", len(g.ids))
	}
	id := g.ids[g.idx]
	g.idx++
	return id, nil
}
