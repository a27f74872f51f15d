package vecdb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecdb/blobstore"
	"github.com/hupe1980/vecdb/collection"
)

var (
	// ErrNotFound is returned when a collection or field does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a collection whose name
	// is taken.
	ErrAlreadyExists = errors.New("collection already exists")
)

// ConnectionError indicates the endpoint could not be opened. Retryable
// once the endpoint is reachable.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ConnectionError struct {
	Endpoint string
	cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %q", e.Endpoint)
}

func (e *ConnectionError) Unwrap() error { return e.cause }

// translateError unifies lower-layer not-found conditions under
// ErrNotFound; everything else passes through unchanged so typed errors
// stay matchable with errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var ufe *collection.UnknownFieldError
	if errors.As(err, &ufe) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
