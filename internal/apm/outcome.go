package apm

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/apmcore/internal/model"
)

// Outcome classifies how a transaction or span finished
type Outcome string

const (
	OutcomeUnknown Outcome = model.OutcomeUnknown
	OutcomeSuccess Outcome = model.OutcomeSuccess
	OutcomeFailure Outcome = model.OutcomeFailure
)

var (
	// ErrInvalidOutcome is returned by SetOutcome for values other than the three outcomes
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrEnded is returned by SetOutcome once the transaction or span has ended
	ErrEnded = errors.New("already ended")
)

// Valid reports whether o is one of the known outcomes
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeUnknown, OutcomeSuccess, OutcomeFailure:
		return true
	}
	return false
}

// OutcomeFromHTTPStatus maps a status code: >= 400 is a failure
func OutcomeFromHTTPStatus(code int) Outcome {
	if code >= http.StatusBadRequest {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// outcomeState is an outcome plus whether it may still be inferred.
//
//	explicit set    -> always wins until end, then frozen for good
//	http status     -> only while not frozen, then frozen
//	recorded error  -> failure while not frozen, stays unfrozen
//	clean end       -> success if still unknown and not frozen
type outcomeState struct {
	value  Outcome
	frozen bool
}

func newOutcomeState() outcomeState {
	return outcomeState{value: OutcomeUnknown}
}

func (o *outcomeState) setExplicit(v Outcome) {
	o.value = v
	o.frozen = true
}

// setFromHTTPStatus returns false when an earlier decision is frozen
func (o *outcomeState) setFromHTTPStatus(code int) bool {
	if o.frozen {
		return false
	}
	o.value = OutcomeFromHTTPStatus(code)
	o.frozen = true
	return true
}

func (o *outcomeState) recordError() {
	if !o.frozen {
		o.value = OutcomeFailure
	}
}

func (o *outcomeState) onEnd() {
	if !o.frozen && o.value == OutcomeUnknown {
		o.value = OutcomeSuccess
	}
}
