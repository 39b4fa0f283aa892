package xclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks connection and timeout failures.
	ErrTransport = errors.New("transport error")
	// ErrUpstream marks any non-200, non-429 status.
	ErrUpstream = errors.New("upstream error")
	// ErrMalformed marks a 200 body that does not decode to the expected shape.
	ErrMalformed = errors.New("malformed response")
)

// FetchError is the terminal failure of one logical fetch after the retry
// cap was exhausted.
type FetchError struct {
	Kind     error
	Endpoint string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s after %d attempt(s)", e.Endpoint, e.Kind, e.Attempts)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (last status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTerminal reports whether err is a per-call failure the caller should
// absorb rather than abort the run on.
func IsTerminal(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
