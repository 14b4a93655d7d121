package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSpan() *Span {
	return &Span{
		ID: "b7ad6b7169203331", TraceID: "0af7651916cd43dd8448eb211c80319c",
		ParentID: "00f067aa0ba902b7", TransactionID: "00f067aa0ba902b7",
		Name: "SELECT", Type: "db",
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"empty", Event{}, true},
		{"valid span", Event{Span: validSpan()}, false},
		{"span without name", Event{Span: func() *Span { s := validSpan(); s.Name = ""; return s }()}, true},
		{"single member composite", Event{Span: func() *Span {
			s := validSpan()
			s.Composite = &Composite{CompressionStrategy: StrategyExactMatch, Count: 1}
			return s
		}()}, true},
		{"valid transaction", Event{Transaction: &Transaction{ID: "a", TraceID: "b", Type: "request"}}, false},
		{"transaction without type", Event{Transaction: &Transaction{ID: "a", TraceID: "b"}}, true},
		{"negative duration", Event{Transaction: &Transaction{ID: "a", TraceID: "b", Type: "request", Duration: -1}}, true},
		{"both payloads", Event{Transaction: &Transaction{ID: "a", TraceID: "b", Type: "t"}, Span: validSpan()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEventKindAndID(t *testing.T) {
	span := Event{Span: validSpan()}
	assert.Equal(t, KindSpan, span.Kind())
	assert.Equal(t, "b7ad6b7169203331", span.ID())

	tx := Event{Transaction: &Transaction{ID: "abc"}}
	assert.Equal(t, KindTransaction, tx.Kind())
	assert.Equal(t, "abc", tx.ID())

	assert.Empty(t, Event{}.ID())
}
