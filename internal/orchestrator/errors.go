package orchestrator

import (
	"fmt"
	"strings"

	"stablemint-backend/internal/ledger"
)

// FailureClass buckets operation failures for the UI. The class decides the
// user-facing tone: cancellations stay quiet, staleness says "try again
// shortly", gas failures carry guidance, everything else passes through with
// the ledger's original message preserved for diagnosis.
type FailureClass string

const (
	FailureValidation   FailureClass = "validation"
	FailureUserRejected FailureClass = "user_rejected"
	FailureOutOfGas     FailureClass = "out_of_gas"
	FailureStaleOracle  FailureClass = "stale_oracle"
	FailureReverted     FailureClass = "reverted"
	FailureOpaque       FailureClass = "opaque"
)

// ClassifiedError is an operation failure with its class attached. No
// failure class is fatal to the session; every operation resolves back to a
// retryable state.
type ClassifiedError struct {
	Class   FailureClass `json:"class"`
	Message string       `json:"message"`
	Cause   error        `json:"-"`
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

func newValidationError(format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Class:   FailureValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// Signer rejection phrases. Normalized to a quiet message, never shown as a
// system error.
var rejectionMarkers = []string{
	"user denied",
	"user rejected",
	"request rejected",
	"transaction was rejected",
}

// Gas exhaustion phrases: transient, retryable with guidance.
var gasMarkers = []string{
	"out of gas",
	"gas required exceeds allowance",
	"intrinsic gas too low",
	"insufficient funds for gas",
}

// Classify maps a ledger-write failure onto the failure taxonomy. Staleness
// is checked first: it is a ledger-state property that must not be confused
// with a transport failure, and it already arrives pre-marked from the
// ledger client.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	if classified, ok := err.(*ClassifiedError); ok {
		return classified
	}

	if ledger.IsStaleOracle(err) {
		return &ClassifiedError{
			Class:   FailureStaleOracle,
			Message: "price data is temporarily stale; try again shortly",
			Cause:   err,
		}
	}

	message := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(message, marker) {
			return &ClassifiedError{
				Class:   FailureUserRejected,
				Message: "transaction cancelled",
				Cause:   err,
			}
		}
	}
	for _, marker := range gasMarkers {
		if strings.Contains(message, marker) {
			return &ClassifiedError{
				Class:   FailureOutOfGas,
				Message: "transaction ran out of gas; retry with a higher gas allowance",
				Cause:   err,
			}
		}
	}

	return &ClassifiedError{
		Class:   FailureOpaque,
		Message: err.Error(),
		Cause:   err,
	}
}
