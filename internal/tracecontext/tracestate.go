package tracecontext

import (
	"strconv"
	"strings"
	"sync"
)

const (
	// VendorKey is the tracestate member owned by this agent
	VendorKey = "es"

	// SampleRateKey is the vendor sub-key carrying the effective sample rate
	SampleRateKey = "s"

	// DefaultMaxTraceStateLength bounds the rendered tracestate header
	DefaultMaxTraceStateLength = 512

	maxEntries = 32
)

// Entry is one key=value member of a tracestate header
type Entry struct {
	Key   string
	Value string
}

// TraceState is an ordered list of vendor entries. Lookups ignore order but
// String preserves it. A TraceState is shared between a node and its
// children, so it is safe for concurrent use.
type TraceState struct {
	mu        sync.RWMutex
	entries   []Entry
	maxLength int
}

// NewTraceState creates an empty tracestate rendering at most maxLength bytes
func NewTraceState(maxLength int) *TraceState {
	if maxLength <= 0 {
		maxLength = DefaultMaxTraceStateLength
	}
	return &TraceState{maxLength: maxLength}
}

// ParseTraceState parses a tracestate header leniently: malformed members
// and duplicate keys are skipped, the rest is kept in order.
func ParseTraceState(header string, maxLength int) *TraceState {
	ts := NewTraceState(maxLength)
	seen := make(map[string]struct{})

	for _, member := range strings.Split(header, ",") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		key, value, ok := strings.Cut(member, "=")
		if !ok || key == "" || value == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if len(ts.entries) == maxEntries {
			break
		}
		seen[key] = struct{}{}
		ts.entries = append(ts.entries, Entry{Key: key, Value: value})
	}
	return ts
}

// Get returns the value stored under key
func (ts *TraceState) Get(key string) (string, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	for _, e := range ts.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing key in place, or appends a new entry
func (ts *TraceState) Set(key, value string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for i, e := range ts.entries {
		if e.Key == key {
			ts.entries[i].Value = value
			return
		}
	}
	ts.entries = append(ts.entries, Entry{Key: key, Value: value})
}

// Delete removes key if present
func (ts *TraceState) Delete(key string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for i, e := range ts.entries {
		if e.Key == key {
			ts.entries = append(ts.entries[:i:i], ts.entries[i+1:]...)
			return
		}
	}
}

// Entries returns a copy of the entries in order
func (ts *TraceState) Entries() []Entry {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]Entry, len(ts.entries))
	copy(out, ts.entries)
	return out
}

// Len returns the number of entries
func (ts *TraceState) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.entries)
}

// MaxLength returns the rendering limit
func (ts *TraceState) MaxLength() int {
	return ts.maxLength
}

// String renders the header value. Entries that would push the result past
// the maximum length are dropped whole, never cut mid-value.
func (ts *TraceState) String() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var sb strings.Builder
	for _, e := range ts.entries {
		size := len(e.Key) + 1 + len(e.Value)
		if sb.Len() > 0 {
			size++
		}
		if sb.Len()+size > ts.maxLength {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(e.Key)
		sb.WriteByte('=')
		sb.WriteString(e.Value)
	}
	return sb.String()
}

// ============================================================================
// Vendor entry
// ============================================================================

// VendorValue returns a sub-key of the vendor entry. The vendor value is a
// ';' separated list of 'k:v' pairs.
func (ts *TraceState) VendorValue(key string) (string, bool) {
	raw, ok := ts.Get(VendorKey)
	if !ok {
		return "", false
	}
	for _, pair := range strings.Split(raw, ";") {
		k, v, found := strings.Cut(pair, ":")
		if found && k == key {
			return v, true
		}
	}
	return "", false
}

// SetVendorValue sets a sub-key of the vendor entry, keeping the order of
// the other sub-keys.
func (ts *TraceState) SetVendorValue(key, value string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	idx := -1
	for i, e := range ts.entries {
		if e.Key == VendorKey {
			idx = i
			break
		}
	}
	if idx == -1 {
		ts.entries = append(ts.entries, Entry{Key: VendorKey, Value: key + ":" + value})
		return
	}

	pairs := strings.Split(ts.entries[idx].Value, ";")
	replaced := false
	for i, pair := range pairs {
		if k, _, found := strings.Cut(pair, ":"); found && k == key {
			pairs[i] = key + ":" + value
			replaced = true
		}
	}
	if !replaced {
		pairs = append(pairs, key+":"+value)
	}
	ts.entries[idx].Value = strings.Join(pairs, ";")
}

// SampleRate returns the sample rate recorded by the trace root
func (ts *TraceState) SampleRate() (float64, bool) {
	raw, ok := ts.VendorValue(SampleRateKey)
	if !ok {
		return 0, false
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate < 0 || rate > 1 {
		return 0, false
	}
	return rate, true
}

// SetSampleRate records the effective sample rate
func (ts *TraceState) SetSampleRate(rate float64) {
	ts.SetVendorValue(SampleRateKey, FormatSampleRate(rate))
}

// FormatSampleRate renders a rate with at most four decimals
func FormatSampleRate(rate float64) string {
	return strconv.FormatFloat(RoundSampleRate(rate), 'f', -1, 64)
}

// RoundSampleRate rounds to four decimals. Non-zero rates never round to zero.
func RoundSampleRate(rate float64) float64 {
	switch {
	case rate <= 0:
		return 0
	case rate >= 1:
		return 1
	case rate < 0.0001:
		return 0.0001
	}
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(rate, 'f', 4, 64), 64)
	return rounded
}
