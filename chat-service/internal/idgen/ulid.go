package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator issues message ids.
type Generator interface {
	// Generate returns an id for a message created at t. Ids from one
	// generator sort in call order.
	Generate(t time.Time) (string, error)
}

// ULIDGenerator generates monotonic ULIDs. Ids generated within the same
// millisecond increment the entropy, so lexicographic order equals
// generation order within a process.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ULIDGenerator) Generate(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// A clock step backwards must not break ordering.
	ms := ulid.Timestamp(t)
	if ms < g.lastMs {
		ms = g.lastMs
	}

	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	g.lastMs = ms
	return id.String(), nil
}

// Validate reports whether id is a well-formed ULID.
func Validate(id string) (bool, string) {
	if len(id) != ulid.EncodedSize {
		return false, fmt.Sprintf("expected length %d, got %d", ulid.EncodedSize, len(id))
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return false, fmt.Sprintf("invalid ULID format: %v", err)
	}
	return true, ""
}

// Time returns the timestamp embedded in a ULID.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ULID format: %w", err)
	}
	return ulid.Time(parsed.Time()), nil
}
