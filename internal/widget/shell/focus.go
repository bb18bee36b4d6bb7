package shell

// FocusManager is the host's focus model. Elements are identified by opaque
// ids.
type FocusManager interface {
	Focused() string
	Focus(id string)
}

// Announcer is the assertive live region. Announce receives every status
// change, including the empty string when the widget goes quiet.
type Announcer interface {
	Announce(status string)
}

// Key names understood by HandleKey.
const (
	KeyEscape   = "Escape"
	KeyTab      = "Tab"
	KeyShiftTab = "Shift+Tab"
)

// NextFocus returns the element that follows current in order, wrapping at
// both ends so focus never leaves the widget. An element outside order moves
// focus to the first (or, going backward, the last) element.
func NextFocus(order []string, current string, backward bool) string {
	if len(order) == 0 {
		return ""
	}

	idx := -1
	for i, id := range order {
		if id == current {
			idx = i
			break
		}
	}

	switch {
	case idx < 0 && backward:
		return order[len(order)-1]
	case idx < 0:
		return order[0]
	case backward:
		return order[(idx-1+len(order))%len(order)]
	default:
		return order[(idx+1)%len(order)]
	}
}

type noopFocus struct{}

func (noopFocus) Focused() string { return "" }
func (noopFocus) Focus(string)    {}

type noopAnnouncer struct{}

func (noopAnnouncer) Announce(string) {}
