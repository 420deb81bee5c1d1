package interp

import "fmt"

type ErrorKind string

const (
	KindFreeVariable ErrorKind = "free-variable"
	KindType         ErrorKind = "type"
	KindNotFunction  ErrorKind = "not-function"
	KindOverflow     ErrorKind = "overflow"
	KindDepth        ErrorKind = "depth"
	KindCanceled     ErrorKind = "canceled"
)

// RuntimeError is returned for every failure detected while evaluating. No
// failure is ever turned into a value.
type RuntimeError struct {
	Kind    ErrorKind
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

func runtimeErrorf(kind ErrorKind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
