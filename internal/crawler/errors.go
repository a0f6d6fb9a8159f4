package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned by BlobStore.Get when the key is absent.
	ErrObjectNotFound = errors.New("object not found")
	// ErrListingTruncated marks a multi-page listing that stopped early
	// because a later page could not be fetched.
	ErrListingTruncated = errors.New("listing truncated")
	// ErrInvalidDateKey is returned for text that is not YYYY-MM-DD.
	ErrInvalidDateKey = errors.New("invalid date key")
)

// FetchFailure is the value returned once every retry attempt for a locator
// has failed.
type FetchFailure struct {
	URL      string
	Attempts int
	Err      error
}

func (f *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", f.URL, f.Attempts, f.Err)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// StatusError reports a non-success HTTP status from a transport.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// PersistenceError wraps object store failures raised by the sink or the
// checkpoint store.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
