package capture

import (
	"context"
	"errors"
	"fmt"
)

// Result is one recognition event. Interim results have Final == false.
// Alternatives are ordered best first.
type Result struct {
	Final        bool
	Alternatives []string
}

// Events receives a recognition session's callbacks. Implementations may call
// them from any goroutine, and may keep calling after Stop.
type Events struct {
	OnResult func(Result)
	OnError  func(error)
	// OnEnd signals the session closed on its own.
	OnEnd func()
}

// Recognizer is the host's speech-recognition capability.
type Recognizer interface {
	Start(ctx context.Context, events Events) (Session, error)
}

// Session is one running recognition.
type Session interface {
	Stop()
}

// Capability is either Available(recognizer) or Unavailable().
type Capability struct {
	recognizer Recognizer
}

// Available wraps a working recognizer.
func Available(r Recognizer) Capability {
	return Capability{recognizer: r}
}

// Unavailable is the capability of a host without speech recognition.
func Unavailable() Capability {
	return Capability{}
}

// Recognizer returns the wrapped recognizer and whether one exists.
func (c Capability) Recognizer() (Recognizer, bool) {
	return c.recognizer, c.recognizer != nil
}

var (
	// ErrCaptureUnavailable is returned when the host has no recognizer.
	ErrCaptureUnavailable = errors.New("speech capture unavailable")
	// ErrCaptureBlocked is returned when the gate refuses to start capture.
	ErrCaptureBlocked = errors.New("speech capture blocked")
	// ErrNoResult is the cause of a CaptureError when recognition ended
	// without a finalized transcript.
	ErrNoResult = errors.New("no speech recognized")
)

// CaptureError reports a recognition attempt that ended without a transcript.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("speech capture failed: %v", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
