package history

import (
	"errors"
	"fmt"
)

var (
	ErrSessionRequired = errors.New("session id is required")
	ErrInvalidSession  = errors.New("session id must not contain '/'")
)

// ErrInternal wraps failures of the underlying store.
type ErrInternal struct {
	Err error
}

func (e *ErrInternal) Error() string {
	return fmt.Sprintf("history store: %v", e.Err)
}

func (e *ErrInternal) Unwrap() error {
	return e.Err
}
