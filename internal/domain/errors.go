package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrExtraction signals malformed, unreadable or locked PDF content.
	ErrExtraction = errors.New("extraction failed")
	// ErrConfiguration signals invalid chunking parameters or an embedding model mismatch.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEmbedding signals an embedding provider failure.
	ErrEmbedding = errors.New("embedding failed")
	// ErrAuth signals invalid or missing provider credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrEmptyIndex signals a query against an index with no chunks.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrGeneration signals a generation provider failure or an empty response.
	ErrGeneration = errors.New("generation failed")
	// ErrTimeout signals a provider call that exceeded its deadline.
	ErrTimeout = errors.New("call timed out")

	// ErrNotReady signals a query issued before the session reached Ready.
	ErrNotReady = errors.New("session not ready")
	// ErrStale signals a result computed against a superseded index.
	ErrStale = errors.New("index superseded")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrTimeout, "TimeoutError"},
	{ErrAuth, "AuthError"},
	{ErrExtraction, "ExtractionError"},
	{ErrConfiguration, "ConfigurationError"},
	{ErrEmbedding, "EmbeddingError"},
	{ErrEmptyIndex, "EmptyIndexError"},
	{ErrGeneration, "GenerationError"},
	{ErrNotReady, "NotReadyError"},
	{ErrStale, "StaleIndexError"},
}

// Kind returns the display name of the error's kind, "" for nil and "Error" when
// the error belongs to no known kind.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Error"
}

// StatusError is returned by HTTP provider clients for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// CallError classifies a failed provider call. Deadlines and network timeouts
// become ErrTimeout, 401/403 responses become ErrAuth, everything else is
// wrapped with fallback.
func CallError(err, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrAuth) || errors.Is(err, fallback) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if code := statusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return fmt.Errorf("%w: %w", fallback, err)
}

func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
