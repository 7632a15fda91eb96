// Package errors provides the error taxonomy shared by the document store, its codecs and its
// remote adapters. It includes error classification, standard error variables, typed errors for
// concurrency and payload failures, and helpers for consistent wrapping.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input, stale state or undecodable data
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Document taxonomy
	ErrNotFound               = errors.New("document not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrMalformedPayload       = errors.New("malformed payload")
	ErrUnsupportedVersion     = errors.New("unsupported payload version")
	ErrUnsupportedFormat      = errors.New("unsupported payload format")

	// Transient remote faults
	ErrTimeout            = errors.New("remote operation timed out")
	ErrOverloaded         = errors.New("remote temporarily overloaded")
	ErrTransportCancelled = errors.New("request cancelled by transport")

	// Connection errors
	ErrNoConnection = errors.New("no connection available")

	// Input and configuration errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingConfig   = errors.New("missing required configuration")
)

// stateErrors are stale-token and payload failures. They are invalid under any wrapping class
// and never retried.
var stateErrors = []error{
	ErrConcurrentModification, ErrMalformedPayload, ErrUnsupportedVersion, ErrUnsupportedFormat,
}

// transientFaults are the remote faults an adapter reports as temporary.
var transientFaults = []error{
	ErrTimeout, ErrOverloaded, ErrTransportCancelled, ErrNoConnection,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	if ce.Err == nil {
		return ce.Class.String() + " error"
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// ConcurrentModificationError reports a version token mismatch on write or delete.
// Actual is only meaningful when ActualKnown is set.
type ConcurrentModificationError struct {
	Key         string
	Expected    uint64
	Actual      uint64
	ActualKnown bool
}

func (e *ConcurrentModificationError) Error() string {
	if e.ActualKnown {
		return fmt.Sprintf("concurrent modification of %q: expected token %d, found %d",
			e.Key, e.Expected, e.Actual)
	}
	return fmt.Sprintf("concurrent modification of %q: expected token %d", e.Key, e.Expected)
}

// Is matches ErrConcurrentModification.
func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

// UnsupportedVersionError reports a binary header version newer than this build understands.
type UnsupportedVersionError struct {
	Version byte
	Max     byte
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported payload version %d (maximum supported %d)", e.Version, e.Max)
}

// Is matches ErrUnsupportedVersion.
func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// UnsupportedFormatError reports a binary header format id this codec does not handle.
type UnsupportedFormatError struct {
	Format byte
	Want   byte
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported payload format id %d (expected %d)", e.Format, e.Want)
}

// Is matches ErrUnsupportedFormat.
func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// NewConcurrentModification builds a ConcurrentModificationError without a known actual token.
func NewConcurrentModification(key string, expected uint64) error {
	return &ConcurrentModificationError{Key: key, Expected: expected}
}

// NewConcurrentModificationActual builds a ConcurrentModificationError naming the stored token.
func NewConcurrentModificationActual(key string, expected, actual uint64) error {
	return &ConcurrentModificationError{Key: key, Expected: expected, Actual: actual, ActualKnown: true}
}

// MalformedPayload marks a decode-time structural failure.
func MalformedPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err means the document is absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConcurrentModification reports whether err is a token mismatch
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsTransient reports whether err may succeed if retried. A classified error decides by its
// class, except that absence and state errors are never transient. Caller cancellation
// (context.Canceled, context.DeadlineExceeded) is not transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || isAny(err, stateErrors) {
		return false
	}
	if ce, ok := asClassified(err); ok {
		return ce.Class == ErrorTransient
	}
	return isAny(err, transientFaults)
}

// IsFatal reports whether err should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := asClassified(err); ok {
		return ce.Class == ErrorFatal
	}
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig)
}

// IsInvalid reports whether err comes from bad input, a stale token or an undecodable payload
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if isAny(err, stateErrors) {
		return true
	}
	if ce, ok := asClassified(err); ok {
		return ce.Class == ErrorInvalid
	}
	return errors.Is(err, ErrInvalidArgument)
}

// Classify returns the error class for an error. Unknown errors are fatal: only faults a remote
// adapter has positively identified as temporary are ever retried.
func Classify(err error) ErrorClass {
	switch {
	case err == nil, IsTransient(err):
		return ErrorTransient
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorFatal
	}
}

func asClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	ok := errors.As(err, &ce)
	return ce, ok
}

// Wrap adds context in the form "component.method: action failed: <err>"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func classify(class ErrorClass, err error, component, method, action string) error {
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err as a retryable fault. Nil stays nil.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return classify(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err as unrecoverable. Nil stays nil.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return classify(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err as an invalid-input error. A nil err still yields an error carrying
// ErrInvalidArgument, so argument checks can be written as a single call.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		err = ErrInvalidArgument
	}
	return classify(ErrorInvalid, err, component, method, action)
}
