package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected matches any NotConnectedError via errors.Is
	ErrNotConnected = errors.New("provider not connected")

	// ErrStorageFailure matches any StorageError via errors.Is
	ErrStorageFailure = errors.New("storage failure")
)

// ValidationError rejects a request before any resolution work begins
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// NotConnectedError means no usable token was found on any path.
// Tried lists the resolution paths attempted, in order.
type NotConnectedError struct {
	Provider string
	Owner    string
	Tried    []string
	Cause    error
}

func (e *NotConnectedError) Error() string {
	msg := fmt.Sprintf("%s not connected for %s (tried: %s)", e.Provider, e.Owner, strings.Join(e.Tried, ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NotConnectedError) Unwrap() error { return e.Cause }

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// RefreshError is a failed refresh exchange. It never reaches the caller
// directly; the resolver downgrades it to NotConnectedError.
type RefreshError struct {
	Provider     string
	CredentialID int64
	Err          error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh of %s credential %d failed: %v", e.Provider, e.CredentialID, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// UpstreamFetchError is a single stream's fetch failure
type UpstreamFetchError struct {
	Stream     Stream
	StatusCode int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d: %v", e.Stream, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Stream, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// StorageError is a failed sync insert after data was fetched
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// AnalysisError wraps an engine failure or a recovered panic. Logged only.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
