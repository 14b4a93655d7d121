package tracecontext

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"

	"github.com/GriffinCanCode/apmcore/internal/shared/id"
)

// Flag bits stored in the last traceparent field
const (
	FlagRequested byte = 0x01
	FlagRecorded  byte = 0x02
)

// Version is the only traceparent version produced by this package
const Version byte = 0x00

// Binary layout offsets: version | traceId | id | flags | parentId
const (
	versionOffset  = 0
	traceIDOffset  = 1
	idOffset       = traceIDOffset + 16
	flagsOffset    = idOffset + 8
	parentIDOffset = flagsOffset + 1

	rootSize  = parentIDOffset
	childSize = parentIDOffset + 8
)

var (
	ErrMalformedTraceParent = errors.New("malformed traceparent")
	ErrInvalidBinaryLength  = errors.New("invalid traceparent binary length")
)

var traceParentPattern = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// TraceParent identifies one node of a trace
type TraceParent struct {
	Version  byte
	TraceID  trace.TraceID
	ID       trace.SpanID
	ParentID trace.SpanID
	Flags    byte
}

// NewRootTraceParent generates a trace id and span id from 24 random bytes.
// Both flag bits are set when sampled is true.
func NewRootTraceParent(gen *id.Generator, sampled bool) TraceParent {
	var buf [24]byte
	gen.Fill(buf[:])

	tp := TraceParent{Version: Version}
	copy(tp.TraceID[:], buf[:16])
	copy(tp.ID[:], buf[16:])
	if sampled {
		tp.Flags |= FlagRequested | FlagRecorded
	}
	return tp
}

// Child derives the traceparent of a direct child node. The current id
// becomes the parent id and a fresh id is generated.
func (tp TraceParent) Child(gen *id.Generator) TraceParent {
	child := tp
	child.ParentID = tp.ID
	if tp.Flags&FlagRequested != 0 {
		child.Flags |= FlagRecorded
	} else {
		child.Flags &^= FlagRecorded
	}
	child.ID = gen.SpanID()
	return child
}

// Requested reports whether the trace root requested recording
func (tp TraceParent) Requested() bool { return tp.Flags&FlagRequested != 0 }

// Recorded reports whether this node is recorded
func (tp TraceParent) Recorded() bool { return tp.Flags&FlagRecorded != 0 }

// HasParent reports whether the traceparent was derived from another node
func (tp TraceParent) HasParent() bool { return tp.ParentID.IsValid() }

// String renders the traceparent header value
func (tp TraceParent) String() string {
	return fmt.Sprintf("%02x-%s-%s-%02x", tp.Version, tp.TraceID, tp.ID, tp.Flags)
}

// MarshalBinary encodes the fixed binary layout. The parent id is appended
// only for derived nodes.
func (tp TraceParent) MarshalBinary() ([]byte, error) {
	size := rootSize
	if tp.HasParent() {
		size = childSize
	}
	buf := make([]byte, size)
	buf[versionOffset] = tp.Version
	copy(buf[traceIDOffset:idOffset], tp.TraceID[:])
	copy(buf[idOffset:flagsOffset], tp.ID[:])
	buf[flagsOffset] = tp.Flags
	if tp.HasParent() {
		copy(buf[parentIDOffset:childSize], tp.ParentID[:])
	}
	return buf, nil
}

// UnmarshalBinary decodes the layout written by MarshalBinary
func (tp *TraceParent) UnmarshalBinary(data []byte) error {
	if len(data) != rootSize && len(data) != childSize {
		return fmt.Errorf("%w: %d", ErrInvalidBinaryLength, len(data))
	}
	*tp = TraceParent{}
	tp.Version = data[versionOffset]
	copy(tp.TraceID[:], data[traceIDOffset:idOffset])
	copy(tp.ID[:], data[idOffset:flagsOffset])
	tp.Flags = data[flagsOffset]
	if len(data) == childSize {
		copy(tp.ParentID[:], data[parentIDOffset:childSize])
	}
	return nil
}

// ParseTraceParent parses a traceparent header value
func ParseTraceParent(s string) (TraceParent, error) {
	if !traceParentPattern.MatchString(s) {
		return TraceParent{}, ErrMalformedTraceParent
	}

	version, err := hex.DecodeString(s[0:2])
	if err != nil {
		return TraceParent{}, fmt.Errorf("%w: %v", ErrMalformedTraceParent, err)
	}
	if version[0] == 0xff {
		return TraceParent{}, fmt.Errorf("%w: forbidden version ff", ErrMalformedTraceParent)
	}

	traceID, err := trace.TraceIDFromHex(s[3:35])
	if err != nil {
		return TraceParent{}, fmt.Errorf("%w: %v", ErrMalformedTraceParent, err)
	}
	spanID, err := trace.SpanIDFromHex(s[36:52])
	if err != nil {
		return TraceParent{}, fmt.Errorf("%w: %v", ErrMalformedTraceParent, err)
	}
	flags, err := hex.DecodeString(s[53:55])
	if err != nil {
		return TraceParent{}, fmt.Errorf("%w: %v", ErrMalformedTraceParent, err)
	}

	return TraceParent{
		Version: version[0],
		TraceID: traceID,
		ID:      spanID,
		Flags:   flags[0],
	}, nil
}
