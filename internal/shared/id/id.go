// Package id provides identifier and entropy generation for the agent.
//
// Two families of identifiers are produced here:
//   - Trace identifiers: raw random bytes for trace ids (16 bytes) and span
//     ids (8 bytes), read from a single entropy source so tests can swap in a
//     deterministic reader.
//   - Agent identifiers: a UUID ephemeral id per process and ULID request ids
//     used to correlate intake requests in logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestID identifies one intake request sent by a reporter
type RequestID string

// RequestPrefix is prepended to every request id
const RequestPrefix = "req"

// Generator reads random bytes for trace and span identifiers
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once

	ephemeralID     string
	ephemeralIDOnce sync.Once
)

// Default returns the singleton generator backed by crypto/rand
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Fill overwrites b with random bytes
func (g *Generator) Fill(b []byte) {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	if _, err := io.ReadFull(g.entropy, b); err != nil {
		// A broken entropy source must not stall span creation.
		fallback := rand.Reader
		if _, err := io.ReadFull(fallback, b); err != nil {
			panic(fmt.Sprintf("id: no entropy available: %v", err))
		}
	}
}

// TraceID returns 16 fresh random bytes
func (g *Generator) TraceID() [16]byte {
	var b [16]byte
	g.Fill(b[:])
	return b
}

// SpanID returns 8 fresh random bytes
func (g *Generator) SpanID() [8]byte {
	var b [8]byte
	g.Fill(b[:])
	return b
}

// ============================================================================
// Agent identifiers
// ============================================================================

// EphemeralID returns the per-process agent id reported in intake metadata
func EphemeralID() string {
	ephemeralIDOnce.Do(func() {
		ephemeralID = uuid.NewString()
	})
	return ephemeralID
}

// NewRequestID generates a k-sortable intake request id
func NewRequestID() RequestID {
	u := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	return RequestID(fmt.Sprintf("%s_%s", RequestPrefix, u.String()))
}

// String returns the id as a string
func (id RequestID) String() string { return string(id) }

// IsValid checks if a string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
