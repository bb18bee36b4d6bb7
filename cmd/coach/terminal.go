package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/zhouzirui/z-coach/internal/model/coach"
	"github.com/zhouzirui/z-coach/internal/widget/shell"
)

// Elements a terminal user can tab between while the panel is open.
var focusOrder = []string{"coach-input", "coach-mic", "coach-close"}

// terminal renders the widget as lines of text. It is the widget's focus
// manager and live region.
type terminal struct {
	out io.Writer

	mu      sync.Mutex
	widget  *shell.Widget
	focused string
	printed int
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out, focused: "dashboard"}
}

func (t *terminal) attach(w *shell.Widget) {
	t.mu.Lock()
	t.widget = w
	t.mu.Unlock()
	t.render(w.State())
}

func (t *terminal) Focused() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focused
}

func (t *terminal) Focus(id string) {
	t.mu.Lock()
	t.focused = id
	t.mu.Unlock()
	t.println("[focus " + id + "]")
}

func (t *terminal) Announce(status string) {
	if status == "" {
		return
	}
	t.println("... " + status)
}

// render prints transcript entries that appeared since the last call.
func (t *terminal) render(state shell.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.widget == nil || state.Visibility == shell.Closed {
		return
	}

	messages := t.widget.Messages()
	for _, msg := range messages[t.printed:] {
		who := "You"
		if msg.Role == coach.RoleAssistant {
			who = "Coach"
		}
		fmt.Fprintf(t.out, "%s: %s\n", who, msg.Content)
	}
	t.printed = len(messages)
}

func (t *terminal) printStatus(w *shell.Widget) {
	state := w.State()
	status := w.Status()
	if status == "" {
		status = "idle"
	}
	token, ok := w.SessionToken()
	if !ok {
		token = "none yet"
	}
	t.println(fmt.Sprintf("panel %s, %s, session %s, voice available %v", state.Visibility, status, token, w.VoiceAvailable()))
}

func (t *terminal) println(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}
