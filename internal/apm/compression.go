package apm

import (
	"time"

	"github.com/GriffinCanCode/apmcore/internal/model"
)

// composite is the merged state of a buffered span. The buffered span keeps
// its own start as the composite timestamp.
type composite struct {
	strategy string
	count    int
	sum      time.Duration
}

// compressLocked runs when s ends and returns the spans to forward, in
// order. Each parent holds at most one buffered child; a sibling that
// cannot merge pushes the buffered span out.
func (tx *Transaction) compressLocked(s *Span) []*Span {
	var out []*Span

	// a parent never ends with its own buffer non-empty
	if s.buffered != nil {
		out = append(out, s.buffered)
		s.buffered = nil
	}

	slot := tx.slotFor(s)
	if !tx.compressionEligibleLocked(s) {
		if *slot != nil {
			out = append(out, *slot)
			*slot = nil
		}
		return append(out, s)
	}

	switch buffered := *slot; {
	case buffered == nil:
		*slot = s
	case tx.tryCompressLocked(buffered, s):
	default:
		out = append(out, buffered)
		*slot = s
	}
	return out
}

// slotFor returns the buffer of s's parent
func (tx *Transaction) slotFor(s *Span) **Span {
	if s.parent != nil {
		return &s.parent.buffered
	}
	return &tx.buffered
}

func (tx *Transaction) parentEndedLocked(s *Span) bool {
	if s.parent != nil {
		return s.parent.ended
	}
	return tx.ended
}

func (tx *Transaction) compressionEligibleLocked(s *Span) bool {
	if !tx.tracer.cfg.SpanCompressionEnabled || tx.parentEndedLocked(s) {
		return false
	}
	if s.outcome.value == OutcomeFailure {
		return false
	}
	return s.exit && s.discardable && !s.propagated
}

// tryCompressLocked merges s into buffered when their strategy matches the
// buffered composite and the combined span stays strictly below the
// strategy's maximum duration. A same_kind composite takes any sibling of
// the same kind, whatever its name.
func (tx *Transaction) tryCompressLocked(buffered, s *Span) bool {
	if !buffered.discardable || buffered.propagated {
		return false
	}
	strategy := compressionStrategy(buffered, s)
	if strategy == "" {
		return false
	}
	if c := buffered.composite; c != nil {
		switch {
		case c.strategy == model.StrategySameKind:
			strategy = model.StrategySameKind
		case c.strategy != strategy:
			return false
		}
	}

	cfg := tx.tracer.cfg
	limit := cfg.SameKindMaxDuration.Std()
	if strategy == model.StrategyExactMatch {
		limit = cfg.ExactMatchMaxDuration.Std()
	}
	end := s.end
	if end.Before(buffered.end) {
		end = buffered.end
	}
	if end.Sub(buffered.start) >= limit {
		return false
	}

	if buffered.composite == nil {
		buffered.composite = &composite{strategy: strategy, count: 1, sum: buffered.duration}
	}
	buffered.composite.count++
	buffered.composite.sum += s.duration
	buffered.end = end
	buffered.duration = end.Sub(buffered.start)

	tx.tracer.metrics.IncSpansCompressed(strategy)
	return true
}

// compressionStrategy pairs two spans: exact_match when name, type, subtype
// and destination agree, same_kind when only the name differs
func compressionStrategy(a, b *Span) string {
	if a.typ != b.typ || a.subtype != b.subtype || resourceOf(a) != resourceOf(b) {
		return ""
	}
	if a.name == b.name {
		return model.StrategyExactMatch
	}
	return model.StrategySameKind
}

func resourceOf(s *Span) string {
	if s.destination == nil {
		return ""
	}
	return s.destination.Resource
}
