package esplora

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups whose target the server does not know
// about (HTTP 404 on an optional resource such as a transaction or proof).
var ErrNotFound = errors.New("esplora: not found")

// HTTPError is a non-2xx reply from the server that the retry policy decided
// not to (or could no longer) retry.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("esplora: http status %d: %s", e.StatusCode, e.Body)
}

// DecodeError reports a malformed server payload. Decode failures are
// deterministic for given bytes and are therefore never retried.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("esplora: malformed response field %q: %s", e.Field, e.Reason)
}

func decodeErrorf(field, format string, args ...any) *DecodeError {
	return &DecodeError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidIdentifierError reports a caller-supplied identifier that failed
// validation before any network activity took place.
type InvalidIdentifierError struct {
	Input  string
	Reason string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("esplora: invalid identifier %q: %s", e.Input, e.Reason)
}

// RetriesExhaustedError is surfaced once the retry policy has spent all of
// its attempts on transient failures.
type RetriesExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("esplora: %d attempts exhausted, last error: %v", e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.LastErr }
