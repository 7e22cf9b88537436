package engine

import (
	"errors"
	"fmt"
)

// Kind is the engine's closed error taxonomy. Policy is attached to each
// kind by the caller (validator or orchestrator), never inferred from the
// error's Go type.
type Kind string

const (
	KindTransientExternal   Kind = "TransientExternal"
	KindInvalidEvidence     Kind = "InvalidEvidence"
	KindDuplicateHypothesis Kind = "DuplicateHypothesis"
	KindBudgetExhausted     Kind = "BudgetExhausted"
	KindSaturatedCategory   Kind = "SaturatedCategory"
	KindUnknownCategory     Kind = "UnknownCategory"
	KindCancelled           Kind = "Cancelled"
	KindFatal               Kind = "Fatal"
)

// Error wraps an underlying cause with a Kind so callers can pattern-match
// on behaviour instead of on a concrete Go error type.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr constructs an *Error.
func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, else
// returns KindFatal — an un-tagged error is treated as the most severe
// policy by default.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
