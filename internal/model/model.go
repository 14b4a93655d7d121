package model

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned by Validate
var ErrInvalidPayload = errors.New("invalid payload")

// Kind names an event type
type Kind string

const (
	KindTransaction Kind = "transaction"
	KindSpan        Kind = "span"
)

// Outcome values
const (
	OutcomeUnknown = "unknown"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Compression strategies
const (
	StrategyExactMatch = "exact_match"
	StrategySameKind   = "same_kind"
)

// Transaction is the payload of an ended transaction
type Transaction struct {
	ID                string             `json:"id"`
	TraceID           string             `json:"trace_id"`
	ParentID          string             `json:"parent_id,omitempty"`
	Name              string             `json:"name"`
	Type              string             `json:"type"`
	Result            string             `json:"result,omitempty"`
	Outcome           string             `json:"outcome"`
	Timestamp         int64              `json:"timestamp"`
	Duration          float64            `json:"duration"`
	Sampled           bool               `json:"sampled"`
	SampleRate        *float64           `json:"sample_rate,omitempty"`
	SpanCount         SpanCount          `json:"span_count"`
	DroppedSpansStats []DroppedSpanStats `json:"dropped_spans_stats,omitempty"`
	Context           *Context           `json:"context,omitempty"`
}

// SpanCount tallies a transaction's spans
type SpanCount struct {
	Started int `json:"started"`
	Dropped int `json:"dropped"`
}

// DroppedSpanStats aggregates spans that were not sent
type DroppedSpanStats struct {
	DestinationServiceResource string        `json:"destination_service_resource,omitempty"`
	ServiceTargetType          string        `json:"service_target_type,omitempty"`
	ServiceTargetName          string        `json:"service_target_name,omitempty"`
	Outcome                    string        `json:"outcome"`
	Duration                   DroppedTiming `json:"duration"`
}

// DroppedTiming is the count and total duration of dropped spans
type DroppedTiming struct {
	Count int          `json:"count"`
	Sum   Microseconds `json:"sum"`
}

// Microseconds wraps a duration in the intake's {"us": n} form
type Microseconds struct {
	US int64 `json:"us"`
}

// Context carries request-scoped details of a transaction
type Context struct {
	Request  *Request          `json:"request,omitempty"`
	Response *Response         `json:"response,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Request describes an inbound request
type Request struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Response describes the reply to an inbound request
type Response struct {
	StatusCode int `json:"status_code"`
}

// Span is the payload of an ended span
type Span struct {
	ID            string       `json:"id"`
	TraceID       string       `json:"trace_id"`
	ParentID      string       `json:"parent_id"`
	TransactionID string       `json:"transaction_id"`
	Name          string       `json:"name"`
	Type          string       `json:"type"`
	Subtype       string       `json:"subtype,omitempty"`
	Action        string       `json:"action,omitempty"`
	Outcome       string       `json:"outcome"`
	Timestamp     int64        `json:"timestamp"`
	Duration      float64      `json:"duration"`
	SampleRate    *float64     `json:"sample_rate,omitempty"`
	Context       *SpanContext `json:"context,omitempty"`
	Composite     *Composite   `json:"composite,omitempty"`
}

// SpanContext carries exit-call details of a span
type SpanContext struct {
	Destination *Destination      `json:"destination,omitempty"`
	Service     *ServiceTarget    `json:"service,omitempty"`
	HTTP        *HTTPSpanContext  `json:"http,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Destination identifies the downstream resource of an exit span
type Destination struct {
	Address string              `json:"address,omitempty"`
	Port    int                 `json:"port,omitempty"`
	Service *DestinationService `json:"service,omitempty"`
}

// DestinationService names the downstream resource
type DestinationService struct {
	Resource string `json:"resource"`
}

// ServiceTarget is the typed form of the downstream resource
type ServiceTarget struct {
	Target Target `json:"target"`
}

// Target names a downstream service by type and instance
type Target struct {
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// HTTPSpanContext describes an outbound HTTP call
type HTTPSpanContext struct {
	Method     string `json:"method,omitempty"`
	URL        string `json:"url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Composite describes a span that stands for several compressed siblings
type Composite struct {
	CompressionStrategy string  `json:"compression_strategy"`
	Count               int     `json:"count"`
	Sum                 float64 `json:"sum"`
}

// Event is one encoded transaction or span
type Event struct {
	Transaction *Transaction
	Span        *Span
}

// Kind reports which payload the event holds
func (e Event) Kind() Kind {
	if e.Transaction != nil {
		return KindTransaction
	}
	return KindSpan
}

// ID returns the payload id
func (e Event) ID() string {
	if e.Transaction != nil {
		return e.Transaction.ID
	}
	if e.Span != nil {
		return e.Span.ID
	}
	return ""
}

// Validate checks the fields every intake requires
func (e Event) Validate() error {
	switch {
	case e.Transaction != nil && e.Span != nil:
		return fmt.Errorf("%w: event holds both a transaction and a span", ErrInvalidPayload)
	case e.Transaction != nil:
		return e.Transaction.Validate()
	case e.Span != nil:
		return e.Span.Validate()
	default:
		return fmt.Errorf("%w: empty event", ErrInvalidPayload)
	}
}

// Validate checks required transaction fields
func (t *Transaction) Validate() error {
	if t.ID == "" || t.TraceID == "" {
		return fmt.Errorf("%w: transaction without ids", ErrInvalidPayload)
	}
	if t.Type == "" {
		return fmt.Errorf("%w: transaction %s without type", ErrInvalidPayload, t.ID)
	}
	if t.Duration < 0 {
		return fmt.Errorf("%w: transaction %s has negative duration", ErrInvalidPayload, t.ID)
	}
	return nil
}

// Validate checks required span fields
func (s *Span) Validate() error {
	if s.ID == "" || s.TraceID == "" || s.ParentID == "" || s.TransactionID == "" {
		return fmt.Errorf("%w: span without ids", ErrInvalidPayload)
	}
	if s.Name == "" || s.Type == "" {
		return fmt.Errorf("%w: span %s without name or type", ErrInvalidPayload, s.ID)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: span %s has negative duration", ErrInvalidPayload, s.ID)
	}
	if s.Composite != nil && s.Composite.Count < 2 {
		return fmt.Errorf("%w: composite span %s with count %d", ErrInvalidPayload, s.ID, s.Composite.Count)
	}
	return nil
}
