// Package capture implements the widget's voice input state machine:
// idle -> listening -> idle, yielding at most one finalized transcript per
// listening period.
package capture

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
)

// State of the controller.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Options configures a Controller. All callbacks run outside the
// controller's lock.
type Options struct {
	// OnTranscript receives each finalized transcript.
	OnTranscript func(text string)
	// OnError receives CaptureError values and the one-time unavailable notice.
	OnError func(err error)
	// OnStateChange fires on every idle/listening transition.
	OnStateChange func(State)
	// Gate, when set, must return true for capture to start.
	Gate   func() bool
	Logger logrus.FieldLogger
}

// Controller wraps a Capability into a toggle.
type Controller struct {
	capability Capability
	opts       Options
	log        logrus.FieldLogger

	mu                  sync.Mutex
	state               State
	attempt             uint64
	session             Session
	cancel              context.CancelFunc
	reportedUnavailable bool
}

// NewController returns an idle controller.
func NewController(capability Capability, opts Options) *Controller {
	return &Controller{
		capability: capability,
		opts:       opts,
		log:        logging.Component(opts.Logger, "capture"),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Available reports whether the host provides speech recognition.
func (c *Controller) Available() bool {
	_, ok := c.capability.Recognizer()
	return ok
}

// Toggle starts capture when idle and stops it when listening.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Listening {
		c.mu.Unlock()
		c.Stop()
		return nil
	}
	c.mu.Unlock()
	return c.Start(ctx)
}

// Start begins a listening period. Starting while already listening stops
// capture instead, so two Starts never overlap.
func (c *Controller) Start(ctx context.Context) error {
	recognizer, ok := c.capability.Recognizer()
	if !ok {
		c.mu.Lock()
		first := !c.reportedUnavailable
		c.reportedUnavailable = true
		c.mu.Unlock()
		if first {
			c.log.Info("speech recognition not available, voice input disabled")
			c.emitError(ErrCaptureUnavailable)
		}
		return ErrCaptureUnavailable
	}

	c.mu.Lock()
	if c.state == Listening {
		c.mu.Unlock()
		c.Stop()
		return nil
	}
	if c.opts.Gate != nil && !c.opts.Gate() {
		c.mu.Unlock()
		return ErrCaptureBlocked
	}
	c.attempt++
	attempt := c.attempt
	c.state = Listening
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	c.emitState(Listening)

	session, err := recognizer.Start(runCtx, c.events(attempt))
	if err != nil {
		if c.finish(attempt) {
			c.emitError(&CaptureError{Err: err})
		}
		return &CaptureError{Err: err}
	}

	c.mu.Lock()
	if c.attempt != attempt || c.state != Listening {
		// stopped or finished while Start was in flight
		c.mu.Unlock()
		session.Stop()
		return nil
	}
	c.session = session
	c.mu.Unlock()
	return nil
}

// Stop ends a listening period without producing a transcript.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != Listening {
		c.mu.Unlock()
		return
	}
	session, cancel := c.resetLocked()
	c.mu.Unlock()

	if session != nil {
		session.Stop()
	}
	cancel()
	c.emitState(Idle)
}

func (c *Controller) events(attempt uint64) Events {
	return Events{
		OnResult: func(r Result) { c.handleResult(attempt, r) },
		OnError: func(err error) {
			if c.finish(attempt) {
				c.log.WithError(err).Debug("recognition error")
				c.emitError(&CaptureError{Err: err})
			}
		},
		OnEnd: func() {
			if c.finish(attempt) {
				c.emitError(&CaptureError{Err: ErrNoResult})
			}
		},
	}
}

func (c *Controller) handleResult(attempt uint64, r Result) {
	if !r.Final || len(r.Alternatives) == 0 {
		return
	}
	transcript := strings.TrimSpace(r.Alternatives[0])
	if transcript == "" {
		return
	}
	if !c.finish(attempt) {
		return
	}
	if c.opts.OnTranscript != nil {
		c.opts.OnTranscript(transcript)
	}
}

// finish moves attempt to Idle. It returns false when attempt is stale.
func (c *Controller) finish(attempt uint64) bool {
	c.mu.Lock()
	if c.attempt != attempt || c.state != Listening {
		c.mu.Unlock()
		return false
	}
	session, cancel := c.resetLocked()
	c.mu.Unlock()

	if session != nil {
		session.Stop()
	}
	cancel()
	c.emitState(Idle)
	return true
}

func (c *Controller) resetLocked() (Session, context.CancelFunc) {
	session, cancel := c.session, c.cancel
	c.state = Idle
	c.session = nil
	c.cancel = nil
	c.attempt++
	if cancel == nil {
		cancel = func() {}
	}
	return session, cancel
}

func (c *Controller) emitState(s State) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Controller) emitError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}
