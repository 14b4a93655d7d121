package reporter

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/apmcore/internal/model"
)

// Hook observes every event before it is stored. A non-nil error rejects
// the event; a hook may block to simulate a slow backend.
type Hook func(ctx context.Context, ev model.Event) error

// Memory keeps every event it receives
type Memory struct {
	mu           sync.Mutex
	transactions []*model.Transaction
	spans        []*model.Span
	flushes      int
	hook         Hook
}

// NewMemory creates an in-memory sink
func NewMemory() *Memory {
	return &Memory{}
}

// SetHook installs h
func (m *Memory) SetHook(h Hook) {
	m.mu.Lock()
	m.hook = h
	m.mu.Unlock()
}

func (m *Memory) runHook(ctx context.Context, ev model.Event) error {
	m.mu.Lock()
	h := m.hook
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, ev)
}

// SendTransaction stores tx
func (m *Memory) SendTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := m.runHook(ctx, model.Event{Transaction: tx}); err != nil {
		return err
	}
	m.mu.Lock()
	m.transactions = append(m.transactions, tx)
	m.mu.Unlock()
	return nil
}

// SendSpan stores span
func (m *Memory) SendSpan(ctx context.Context, span *model.Span) error {
	if err := m.runHook(ctx, model.Event{Span: span}); err != nil {
		return err
	}
	m.mu.Lock()
	m.spans = append(m.spans, span)
	m.mu.Unlock()
	return nil
}

// Flush counts the call
func (m *Memory) Flush(context.Context) error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

// Transactions returns a copy of the stored transactions
func (m *Memory) Transactions() []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Transaction(nil), m.transactions...)
}

// Spans returns a copy of the stored spans
func (m *Memory) Spans() []*model.Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Span(nil), m.spans...)
}

// Flushes returns the number of Flush calls
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Reset drops everything stored
func (m *Memory) Reset() {
	m.mu.Lock()
	m.transactions = nil
	m.spans = nil
	m.flushes = 0
	m.mu.Unlock()
}
