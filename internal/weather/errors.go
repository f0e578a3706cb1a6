package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input, such as an un-normalized date. It is
	// a caller bug and is never silently coerced.
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks I/O, permission or corruption failures of the store.
	// The table keeps its prior state when this is returned.
	ErrStorage = errors.New("storage unavailable")

	// ErrRouting is returned for locators the router does not recognize.
	ErrRouting = errors.New("unrecognized locator")

	// ErrFetch marks a failed network fetch of the forecast feed.
	ErrFetch = errors.New("fetch failed")

	// ErrDecode marks an undecodable payload or one carrying an error code.
	ErrDecode = errors.New("decode failed")

	// ErrEmptyForecast is returned when a feed decodes to zero records.
	ErrEmptyForecast = errors.New("forecast payload contained no records")

	// ErrSyncInProgress is reported to a caller whose sync request was merged
	// into an attempt that was already running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ValidationError describes the record that failed validation.
type ValidationError struct {
	Index  int // position in the batch, -1 when not applicable
	Date   int64
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: record %d (date %d): %s", e.Index, e.Date, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StorageError wraps a failure of a storage operation. Unavailable is set when
// the cause is the database itself being unreachable (disk, permissions, locks)
// rather than a bad statement.
type StorageError struct {
	Op          string
	Err         error
	Unavailable bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// RoutingError carries the locator or URI that could not be routed.
type RoutingError struct {
	URI     string
	Locator Locator
}

func (e *RoutingError) Error() string {
	if e.URI != "" {
		return fmt.Sprintf("unrecognized locator: %q", e.URI)
	}
	return fmt.Sprintf("unrecognized locator: %T", e.Locator)
}

func (e *RoutingError) Unwrap() error {
	return ErrRouting
}

// FetchError wraps a network failure talking to a provider.
type FetchError struct {
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}

// DecodeError wraps a payload that could not be turned into records.
// Code is the provider's embedded error code, when the payload carried one.
type DecodeError struct {
	Provider string
	Code     string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s decode: error code %s: %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s decode: %v", e.Provider, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// IsValidation returns true if err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorage returns true if err means the store itself is broken.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsRouting returns true if err came from an unrecognized locator.
func IsRouting(err error) bool {
	return errors.Is(err, ErrRouting)
}

// IsTransient returns true for failures caused by the remote feed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrDecode)
}
