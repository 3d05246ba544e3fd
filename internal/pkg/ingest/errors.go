package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Signature failures are terminal for the request and are never retried.
var (
	ErrMissingSignature    = errors.New("missing or malformed signature header")
	ErrInvalidSignature    = errors.New("webhook signature mismatch")
	ErrSecretNotConfigured = errors.New("webhook signing secret is not configured")
)

// IsSignatureError reports whether err belongs to the signature taxonomy.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrSecretNotConfigured)
}

// ExtractionIncompleteError carries the required fields that were absent.
// The event is ledgered and surfaced for manual follow-up, not reconciled.
type ExtractionIncompleteError struct {
	EventType EventType
	Missing   []string
}

func (e *ExtractionIncompleteError) Error() string {
	return fmt.Sprintf("extraction incomplete for %s: missing %s", e.EventType, strings.Join(e.Missing, ", "))
}

// ReconciliationError wraps a data-store or business-rule failure during
// reconciliation. Events failing this way stay eligible for bounded redrive.
type ReconciliationError struct {
	EventType EventType
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed for %s: %v", e.EventType, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
