package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for the remote access layer.
var (
	// ErrMetadataUnavailable indicates the suffix descriptor could not be
	// fetched or failed structural validation.
	ErrMetadataUnavailable = errors.New("remote: metadata unavailable")

	// ErrChunkFetchFailed indicates a chunk could not be retrieved after all
	// retry attempts.
	ErrChunkFetchFailed = errors.New("remote: chunk fetch failed")

	// ErrEngineInitFailed indicates the engine startup sequence exhausted
	// its retries.
	ErrEngineInitFailed = errors.New("remote: engine initialization failed")

	// ErrQueryExecutionFailed indicates the engine returned an error or the
	// execution exhausted its retries.
	ErrQueryExecutionFailed = errors.New("remote: query execution failed")

	// ErrNotFound indicates the remote object does not exist.
	ErrNotFound = errors.New("remote: object not found")
)

// RetryExhaustedError is returned when an operation failed on every attempt.
// It carries the tier, the attempt count, and the last underlying error so
// callers can render a useful message.
type RetryExhaustedError struct {
	Tier     Tier
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts (tier %s): %v", e.Attempts, e.Tier, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// terminalError marks a failure that retrying cannot fix, such as a malformed
// descriptor or a 404. The retry loop stops immediately on these.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so the retrier surfaces it without further attempts.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err is marked non-retriable.
func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}
