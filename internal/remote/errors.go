package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError wraps a failure to reach the remote store at all:
// connection refused, DNS failure, timeout. Mutations are never failed
// to the caller on a TransportError; they stay applied locally and are
// queued for replay.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the remote store.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote %s: %s (status %d)", e.Op, e.Message, e.Status)
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsNotFound reports whether the remote store answered 404. A delete or
// update replayed against a record that is already gone satisfies the
// caller's intent, so drains treat this as success.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// IsConflict reports whether the remote store answered 409. Replaying a
// review completion against a topic whose reviews are all done lands
// here and is likewise treated as already satisfied.
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusConflict
}
