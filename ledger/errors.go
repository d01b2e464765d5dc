/*
errors.go - Centralized error types for the ledger engine

ERROR TIERS:
  1. Structural errors - text that is not decodable, not JSON, or not a
     payload of this application. Rejected before any state change.
  2. Semantic corruption - tolerated by the Sanitizer, which drops bad
     records instead of failing. No error is returned for this tier.
  3. Mutation errors - unknown ids, duplicate ids, invalid input. The
     snapshot is left untouched.

USAGE:
  if errors.Is(err, ledger.ErrNotFound) { ... }

  var de *ledger.DecodeError
  if errors.As(err, &de) { log.Printf("import rejected at %s", de.Stage) }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateID is returned when a record with the same id already exists.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrInvalidInput is returned when a mutation argument is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotDecodable is returned when transport text is not valid base64.
	ErrNotDecodable = errors.New("text is not decodable")

	// ErrNotJSON is returned when decoded bytes are not a JSON object.
	ErrNotJSON = errors.New("payload is not a JSON object")

	// ErrMissingMarker is returned when a JSON object lacks the snapshot type marker.
	ErrMissingMarker = errors.New("payload lacks snapshot type marker")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the kind and id of the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// DuplicateError names the kind and id that collided.
type DuplicateError struct {
	Kind string
	ID   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateID
}

// DecodeError reports which import stage rejected the payload.
type DecodeError struct {
	Stage string // "base64", "json", "marker"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode snapshot (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicateID) ||
		IsDecodeError(err)
}

// IsDecodeError returns true for structural import failures.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrNotDecodable) ||
		errors.Is(err, ErrNotJSON) ||
		errors.Is(err, ErrMissingMarker)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
