package apm

import (
	"time"

	"github.com/GriffinCanCode/apmcore/internal/model"
)

// Encode builds the transaction payload
func (tx *Transaction) Encode() (model.Event, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	payload := &model.Transaction{
		ID:         tx.tc.ID().String(),
		TraceID:    tx.tc.TraceID().String(),
		Name:       tx.name,
		Type:       tx.typ,
		Result:     tx.result,
		Outcome:    string(tx.outcome.value),
		Timestamp:  tx.start.UnixMicro(),
		Duration:   milliseconds(tx.duration),
		Sampled:    tx.tc.Sampled(),
		SampleRate: tx.sampleRate,
		SpanCount: model.SpanCount{
			Started: tx.spansStarted,
			Dropped: tx.spansDropped,
		},
	}
	if parent := tx.tc.ParentID(); parent.IsValid() {
		payload.ParentID = parent.String()
	}
	if !payload.Sampled {
		return model.Event{Transaction: payload}, nil
	}

	payload.DroppedSpansStats = tx.dropped.payload()
	if tx.request != nil || tx.response != nil || len(tx.labels) > 0 {
		payload.Context = &model.Context{
			Request:  tx.request,
			Response: tx.response,
			Tags:     copyLabels(tx.labels),
		}
	}
	return model.Event{Transaction: payload}, nil
}

// Encode builds the span payload, including composite details when
// siblings were merged into it
func (s *Span) Encode() (model.Event, error) {
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()

	payload := &model.Span{
		ID:            s.tc.ID().String(),
		TraceID:       s.tc.TraceID().String(),
		ParentID:      s.tc.ParentID().String(),
		TransactionID: s.tx.tc.ID().String(),
		Name:          s.name,
		Type:          s.typ,
		Subtype:       s.subtype,
		Action:        s.action,
		Outcome:       string(s.outcome.value),
		Timestamp:     s.start.UnixMicro(),
		Duration:      milliseconds(s.duration),
		SampleRate:    s.tx.sampleRate,
	}

	if c := s.composite; c != nil {
		payload.Composite = &model.Composite{
			CompressionStrategy: c.strategy,
			Count:               c.count,
			Sum:                 milliseconds(c.sum),
		}
		if c.strategy == model.StrategySameKind && resourceOf(s) != "" {
			payload.Name = "Calls to " + resourceOf(s)
		}
	}

	if s.destination != nil || s.http != nil || len(s.labels) > 0 {
		ctx := &model.SpanContext{HTTP: s.http, Tags: copyLabels(s.labels)}
		if d := s.destination; d != nil {
			ctx.Destination = &model.Destination{Address: d.Address, Port: d.Port}
			if d.Resource != "" {
				ctx.Destination.Service = &model.DestinationService{Resource: d.Resource}
			}
			ctx.Service = &model.ServiceTarget{Target: model.Target{Type: targetType(s), Name: d.Name}}
		}
		payload.Context = ctx
	}
	return model.Event{Span: payload}, nil
}

func targetType(s *Span) string {
	if s.subtype != "" {
		return s.subtype
	}
	return s.typ
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
