package rangeidx

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rangeidx/blobstore"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/order"
	"github.com/hupe1980/rangeidx/retrieve"
	"github.com/hupe1980/rangeidx/selection"
)

var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("rangeidx: not found")
	// ErrUnknownKey is returned by strict clients for selection keys
	// outside the index schema.
	ErrUnknownKey = index.ErrUnknownKey
	// ErrOutOfRange is returned for record positions outside a source.
	ErrOutOfRange = order.ErrOutOfRange
	// ErrNoDecoder is returned when decoding without a decoder.
	ErrNoDecoder = errors.New("rangeidx: no decoder configured")
	// ErrListUnsupported is returned by IndexAll when the transport cannot list.
	ErrListUnsupported = errors.New("rangeidx: transport cannot list resources")
)

// SelectionError reports a malformed selection or order argument.
//
// The original underlying error can be accessed via errors.Unwrap.
type SelectionError struct {
	Key   string
	Value any
	cause error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid selection for key %q: %v", e.Key, e.cause)
}

func (e *SelectionError) Unwrap() error { return e.cause }

// IndexBuildError reports a resource that could not be scanned.
type IndexBuildError struct {
	Resource string
	cause    error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Resource, e.cause)
}

func (e *IndexBuildError) Unwrap() error { return e.cause }

// RetrievalError reports a byte range that could not be fetched.
type RetrievalError struct {
	Path   string
	Offset int64
	Length int64
	cause  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s [%d,%d): %v", e.Path, e.Offset, e.Offset+e.Length, e.cause)
}

func (e *RetrievalError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, blobstore.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var se *selection.InvalidSelectionError
	if errors.As(err, &se) {
		return &SelectionError{Key: se.Key, Value: se.Value, cause: err}
	}
	var oe *order.InvalidOrderError
	if errors.As(err, &oe) {
		return &SelectionError{Key: oe.Key, Value: oe.Value, cause: err}
	}
	var be *index.BuildError
	if errors.As(err, &be) {
		return &IndexBuildError{Resource: be.Resource, cause: err}
	}
	var fe *retrieve.FetchError
	if errors.As(err, &fe) {
		return &RetrievalError{Path: fe.Path, Offset: fe.Offset, Length: fe.Length, cause: err}
	}

	return err
}
