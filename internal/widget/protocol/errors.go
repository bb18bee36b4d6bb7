package protocol

import (
	"errors"
	"fmt"
)

// ErrInputRejected is returned for empty or whitespace-only text. No request
// is sent.
var ErrInputRejected = errors.New("input rejected: text is empty")

var errMissingText = errors.New("reply carries no coach text")

// ReplyError reports any failure to obtain a reply: a transport failure, a
// non-success status, or a success response without reply text. Error bodies
// are never interpreted.
type ReplyError struct {
	StatusCode int
	Err        error
}

func (e *ReplyError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("coach reply failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("coach reply failed: %v", e.Err)
}

func (e *ReplyError) Unwrap() error {
	return e.Err
}
