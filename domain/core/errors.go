package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrHypothesisNotFound = fmt.Errorf("%w: hypothesis", ErrNotFound)
	ErrRecordNotFound     = fmt.Errorf("%w: audit record", ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("%w: invariant version", ErrNotFound)

	// Evaluator errors
	ErrInsufficientSample = errors.New("insufficient sample for evaluation")

	// Registry errors
	ErrInvalidTransition = errors.New("invalid hypothesis status transition")
	ErrDuplicateID       = errors.New("hypothesis ID already registered")

	// Authority errors, resolved via fail-safe REJECT rather than propagated
	ErrMalformedEvidence = errors.New("malformed evidence package")
	ErrReviewTimeout     = errors.New("authority review timed out")

	// Proposal boundary errors
	ErrUnknownProposalType = errors.New("unknown proposal type")
	ErrEmptyProposalSet    = errors.New("proposal set must not be empty")

	// Orchestrator errors, fatal to the whole run
	ErrGuardrailViolation = errors.New("guardrail violation")
	ErrSelfRatification   = fmt.Errorf("%w: invariant change without authority verdict", ErrGuardrailViolation)
	ErrBudgetExhausted    = fmt.Errorf("%w: generation budget exhausted", ErrGuardrailViolation)

	// Audit errors
	ErrChainBroken = errors.New("audit chain integrity violation")
)

// NewInsufficientSampleError reports a sample below the configured minimum.
func NewInsufficientSampleError(got, min int) error {
	return fmt.Errorf("%w: %d outcomes, need %d", ErrInsufficientSample, got, min)
}

// NewInvalidTransitionError reports a lifecycle edge outside the state machine.
func NewInvalidTransitionError(id HypothesisID, from, to string) error {
	return fmt.Errorf("%w: %s cannot move %s -> %s", ErrInvalidTransition, id, from, to)
}

// Error checking helpers
func IsInsufficientSample(err error) bool {
	return errors.Is(err, ErrInsufficientSample)
}

func IsGuardrailViolation(err error) bool {
	return errors.Is(err, ErrGuardrailViolation)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
