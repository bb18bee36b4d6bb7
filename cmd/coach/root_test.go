package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zhouzirui/z-coach/internal/config"
	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/model/coach"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunTerminalSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(coach.HeaderCoachText, coach.EncodeHeaderText("Your report is ready."))
		w.Header().Set(coach.HeaderSessionID, "sess-1")
		w.Header().Set("Content-Type", coach.AudioContentType)
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	cfg := config.CoachConfig{
		Endpoint: srv.URL,
		UserID:   "user-1",
		Greeting: "Hello from Coach",
		Mute:     true,
	}
	in := strings.NewReader("/open\nis my report done?\n/voice\n/status\n/esc\n")
	var out syncBuffer

	if err := run(context.Background(), cfg, "en-US", in, &out, logging.Discard()); err != nil {
		t.Fatalf("run err: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Coach: Hello from Coach",
		"You: is my report done?",
		"... Coach is thinking...",
		"Coach: Your report is ready.",
		"Voice input is not available.",
		"session sess-1",
		"[focus coach-input]",
		"[focus dashboard]",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRootCmdFlagsOverrideConfig(t *testing.T) {
	cfg := &config.Config{Coach: config.CoachConfig{Endpoint: "http://env.invalid/api/coach", UserID: "env-user"}}
	cmd := newRootCmd(cfg, nil)
	if err := cmd.ParseFlags([]string{"--user", "flag-user", "--mute"}); err != nil {
		t.Fatalf("ParseFlags err: %v", err)
	}

	user, _ := cmd.Flags().GetString("user")
	endpoint, _ := cmd.Flags().GetString("endpoint")
	mute, _ := cmd.Flags().GetBool("mute")
	if user != "flag-user" || endpoint != "http://env.invalid/api/coach" || !mute {
		t.Fatalf("unexpected flags user=%q endpoint=%q mute=%v", user, endpoint, mute)
	}
}
