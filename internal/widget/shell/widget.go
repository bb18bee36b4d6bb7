package shell

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/model/coach"
	"github.com/zhouzirui/z-coach/internal/widget/capture"
	"github.com/zhouzirui/z-coach/internal/widget/playback"
	"github.com/zhouzirui/z-coach/internal/widget/protocol"
	"github.com/zhouzirui/z-coach/internal/widget/session"
)

// ErrBusy is returned by Submit while an earlier turn is still waiting for
// its reply, or while voice capture is listening.
var ErrBusy = errors.New("coach is busy")

// TurnSender sends one turn. *protocol.Client implements it.
type TurnSender interface {
	SendTurn(ctx context.Context, sessionID *string, text string) (*protocol.Reply, error)
}

// AudioPlayer plays one reply's audio. *playback.Pipeline implements it.
type AudioPlayer interface {
	Play(ctx context.Context, stream io.Reader, cb playback.Callbacks) *playback.Handle
}

// Options configures a Widget. Client is required; everything else has a
// usable zero value.
type Options struct {
	Greeting   string
	Client     TurnSender
	Player     AudioPlayer
	Capability capture.Capability
	Focus      FocusManager
	Announcer  Announcer
	// FocusOrder lists the widget's interactive elements in tab order.
	FocusOrder []string
	// OnChange is called after every state or transcript change. It must not
	// call mutating Widget methods.
	OnChange func(State)
	Logger   logrus.FieldLogger
}

// Widget is one Coach instance: one session for its whole lifetime.
type Widget struct {
	sessions   *session.Manager
	client     TurnSender
	player     AudioPlayer
	capture    *capture.Controller
	focus      FocusManager
	announcer  Announcer
	focusOrder []string
	onChange   func(State)
	log        logrus.FieldLogger

	ctx       context.Context
	cancel    context.CancelFunc
	playbacks sync.WaitGroup

	// emitMu serializes transitions with their notifications so observers
	// see them in order. Lock order: capture controller, emitMu, mu.
	emitMu sync.Mutex
	mu     sync.Mutex
	state  State
	status string
}

// New returns a closed widget whose transcript holds the greeting.
func New(opts Options) (*Widget, error) {
	if opts.Client == nil {
		return nil, errors.New("shell: client is required")
	}

	greeting := opts.Greeting
	if strings.TrimSpace(greeting) == "" {
		greeting = coach.Greeting
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		sessions:   session.New(greeting),
		client:     opts.Client,
		player:     opts.Player,
		focus:      opts.Focus,
		announcer:  opts.Announcer,
		focusOrder: append([]string(nil), opts.FocusOrder...),
		onChange:   opts.OnChange,
		log:        logging.Component(opts.Logger, "shell"),
		ctx:        ctx,
		cancel:     cancel,
	}
	if w.focus == nil {
		w.focus = noopFocus{}
	}
	if w.announcer == nil {
		w.announcer = noopAnnouncer{}
	}

	w.capture = capture.NewController(opts.Capability, capture.Options{
		OnTranscript:  w.onTranscript,
		OnError:       w.onCaptureError,
		OnStateChange: w.onCaptureState,
		Gate:          w.reserveCapture,
		Logger:        opts.Logger,
	})
	return w, nil
}

// State returns a snapshot of the interaction state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns the currently announced status string.
func (w *Widget) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Messages returns the transcript in append order.
func (w *Widget) Messages() []coach.Message {
	return w.sessions.Messages()
}

// SessionToken returns the server-issued token, if one has been adopted.
func (w *Widget) SessionToken() (string, bool) {
	return w.sessions.SessionToken()
}

// VoiceAvailable reports whether voice input can ever start.
func (w *Widget) VoiceAvailable() bool {
	return w.capture.Available()
}

// Toggle opens or closes the panel.
func (w *Widget) Toggle() {
	w.dispatch(Event{Kind: EventToggle, Focused: w.focus.Focused()})
}

// HandleKey processes a key press and reports whether the widget consumed it.
// Escape closes an open panel; Tab and Shift+Tab cycle within it.
func (w *Widget) HandleKey(key string) bool {
	open := w.State().Visibility == Open
	switch key {
	case KeyEscape:
		if open {
			w.dispatch(Event{Kind: EventKeyEscape})
		}
		return open
	case KeyTab, KeyShiftTab:
		if !open || len(w.focusOrder) == 0 {
			return false
		}
		w.focus.Focus(NextFocus(w.focusOrder, w.focus.Focused(), key == KeyShiftTab))
		return true
	default:
		return false
	}
}

// ToggleVoice starts voice capture, or stops it when already listening.
// Starting is refused while a reply is pending.
func (w *Widget) ToggleVoice(ctx context.Context) error {
	return w.capture.Toggle(ctx)
}

// Submit runs one turn for text. It returns once the assistant's text reply,
// or the fallback message, is in the transcript; reply audio keeps playing in
// the background. Reply failures are recovered here and not returned.
func (w *Widget) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.ErrInputRejected
	}
	w.capture.Stop()

	var token *string
	began := w.update(func(s State) (State, bool) {
		if s.Thinking || s.Listening {
			return s, false
		}
		w.sessions.AppendUserTurn(text)
		if held, ok := w.sessions.SessionToken(); ok {
			token = &held
		}
		return Reduce(s, Event{Kind: EventRequestStarted}), true
	})
	if !began {
		return ErrBusy
	}

	reply, err := w.client.SendTurn(ctx, token, text)
	if err != nil {
		w.log.WithError(err).Warn("coach reply failed, showing fallback")
		w.update(func(s State) (State, bool) {
			w.sessions.AppendAssistantTurn(coach.FallbackReply)
			return Reduce(s, Event{Kind: EventRequestFinished}), true
		})
		return nil
	}

	if reply.NewSessionID != nil && !w.sessions.AdoptSessionToken(*reply.NewSessionID) {
		w.log.Debug("ignoring session token, one is already held")
	}

	audio := reply.Audio
	if audio != nil && w.player == nil {
		audio.Close()
		audio = nil
	}

	w.update(func(s State) (State, bool) {
		w.sessions.AppendAssistantTurn(reply.Text)
		s = Reduce(s, Event{Kind: EventRequestFinished})
		if audio != nil {
			s = Reduce(s, Event{Kind: EventPlaybackStarted})
		}
		return s, true
	})

	if audio != nil {
		w.play(audio)
	}
	return nil
}

// Wait blocks until all reply audio has finished.
func (w *Widget) Wait() {
	w.playbacks.Wait()
}

// Close stops capture and playback and waits for playback to wind down.
func (w *Widget) Close() {
	w.capture.Stop()
	w.cancel()
	w.playbacks.Wait()
}

func (w *Widget) play(audio io.ReadCloser) {
	w.playbacks.Add(1)
	w.player.Play(w.ctx, audio, playback.Callbacks{
		OnEnded: func(err error) {
			defer w.playbacks.Done()
			w.dispatch(Event{Kind: EventPlaybackEnded})
		},
	})
}

func (w *Widget) onTranscript(text string) {
	if err := w.Submit(w.ctx, text); err != nil {
		w.log.WithError(err).Info("voice transcript dropped")
	}
}

func (w *Widget) onCaptureError(err error) {
	if errors.Is(err, capture.ErrCaptureUnavailable) {
		return
	}
	w.log.WithError(err).Debug("voice capture ended without transcript")
}

func (w *Widget) onCaptureState(s capture.State) {
	if s == capture.Listening {
		w.dispatch(Event{Kind: EventCaptureStarted})
		return
	}
	w.dispatch(Event{Kind: EventCaptureStopped})
}

// reserveCapture marks the widget listening before the recognizer starts so
// a concurrent Submit cannot slip in between.
func (w *Widget) reserveCapture() bool {
	return w.update(func(s State) (State, bool) {
		if s.Thinking {
			return s, false
		}
		return Reduce(s, Event{Kind: EventCaptureStarted}), true
	})
}

func (w *Widget) dispatch(ev Event) {
	w.update(func(s State) (State, bool) {
		return Reduce(s, ev), true
	})
}

// update applies fn atomically and then notifies the host. fn returning false
// rejects the transition and nothing is notified.
func (w *Widget) update(fn func(State) (State, bool)) bool {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	before := w.sessions.Len()

	w.mu.Lock()
	prev := w.state
	next, ok := fn(prev)
	if !ok {
		w.mu.Unlock()
		return false
	}
	w.state = next
	status := Status(next)
	statusChanged := status != w.status
	w.status = status
	w.mu.Unlock()

	switch {
	case prev.Visibility == Closed && next.Visibility == Open:
		if len(w.focusOrder) > 0 {
			w.focus.Focus(w.focusOrder[0])
		}
	case prev.Visibility == Open && next.Visibility == Closed:
		if prev.FocusReturn != "" {
			w.focus.Focus(prev.FocusReturn)
		}
	}
	if statusChanged {
		w.announcer.Announce(status)
	}
	if w.onChange != nil && (next != prev || w.sessions.Len() != before) {
		w.onChange(next)
	}
	return true
}
