// Package shell ties the session, protocol, playback and capture packages into
// one widget: visibility, focus containment, status announcements and the
// turn submission flow.
package shell

// Visibility of the widget panel.
type Visibility int

const (
	Closed Visibility = iota
	Open
)

func (v Visibility) String() string {
	if v == Open {
		return "open"
	}
	return "closed"
}

// Status strings announced through the live region.
const (
	StatusListening = "Listening..."
	StatusThinking  = "Coach is thinking..."
	StatusSpeaking  = "Coach is speaking..."
)

// State is the widget's complete interaction state. Listening and Thinking
// are never both true. Playing counts active playbacks, so a reply arriving
// while an earlier one is still audible keeps the speaking status until both
// have ended.
type State struct {
	Visibility  Visibility
	Listening   bool
	Thinking    bool
	Playing     int
	FocusReturn string
}

// IsPlaying reports whether any reply audio is active.
func (s State) IsPlaying() bool {
	return s.Playing > 0
}

// EventKind enumerates reducer inputs.
type EventKind int

const (
	EventToggle EventKind = iota
	EventKeyEscape
	EventCaptureStarted
	EventCaptureStopped
	EventRequestStarted
	EventRequestFinished
	EventPlaybackStarted
	EventPlaybackEnded
)

// Event is one reducer input. Focused is the element focused at the time of
// a Toggle, remembered so closing can restore it.
type Event struct {
	Kind    EventKind
	Focused string
}

// Reduce returns the state after ev. It never mutates s.
func Reduce(s State, ev Event) State {
	switch ev.Kind {
	case EventToggle:
		if s.Visibility == Open {
			return closePanel(s)
		}
		s.Visibility = Open
		s.FocusReturn = ev.Focused
	case EventKeyEscape:
		if s.Visibility == Open {
			return closePanel(s)
		}
	case EventCaptureStarted:
		if !s.Thinking {
			s.Listening = true
		}
	case EventCaptureStopped:
		s.Listening = false
	case EventRequestStarted:
		s.Thinking = true
		s.Listening = false
	case EventRequestFinished:
		s.Thinking = false
	case EventPlaybackStarted:
		s.Playing++
	case EventPlaybackEnded:
		if s.Playing > 0 {
			s.Playing--
		}
	}
	return s
}

func closePanel(s State) State {
	s.Visibility = Closed
	s.FocusReturn = ""
	return s
}

// Status derives the single announced string, by priority
// listening > thinking > playing > empty.
func Status(s State) string {
	switch {
	case s.Listening:
		return StatusListening
	case s.Thinking:
		return StatusThinking
	case s.IsPlaying():
		return StatusSpeaking
	default:
		return ""
	}
}
