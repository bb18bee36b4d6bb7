package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/z-coach/internal/model/coach"
	"github.com/zhouzirui/z-coach/internal/service/conversation"
	"github.com/zhouzirui/z-coach/internal/service/reply"
	speechsvc "github.com/zhouzirui/z-coach/internal/service/speech"
	"github.com/zhouzirui/z-coach/internal/widget/protocol"
)

type chunkSynth struct{}

func (chunkSynth) Synthesize(_ context.Context, req speechsvc.Request, w io.Writer) (int64, error) {
	n, err := io.WriteString(w, "audio:"+req.Text)
	return int64(n), err
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(Services{
		Store:         conversation.NewMemoryStore(),
		Generator:     reply.StaticGenerator{Text: "Your upload is ready."},
		Synthesizer:   chunkSynth{},
		HistoryLimit:  10,
		SpeechEnabled: true,
	}, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouterServesWidgetProtocol(t *testing.T) {
	srv := newTestServer(t)
	client, err := protocol.New(protocol.Config{Endpoint: srv.URL + "/api/coach", UserID: "user-1"})
	if err != nil {
		t.Fatalf("protocol.New err: %v", err)
	}

	ctx := context.Background()
	first, err := client.SendTurn(ctx, nil, "is it done?")
	if err != nil {
		t.Fatalf("SendTurn err: %v", err)
	}
	if first.Text != "Your upload is ready." || first.NewSessionID == nil || first.Audio == nil {
		t.Fatalf("unexpected first reply %+v", first)
	}
	audio, _ := io.ReadAll(first.Audio)
	first.Audio.Close()
	if string(audio) != "audio:Your upload is ready." {
		t.Fatalf("unexpected audio %q", audio)
	}

	second, err := client.SendTurn(ctx, first.NewSessionID, "thanks")
	if err != nil {
		t.Fatalf("SendTurn err: %v", err)
	}
	if second.Audio != nil {
		second.Audio.Close()
	}
	if second.NewSessionID != nil {
		t.Fatalf("known session re-issued: %s", *second.NewSessionID)
	}
}

func TestRouterHealthAndCORS(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET err: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "healthy" || body["speech"] != true || body["ai"] != false {
		t.Fatalf("unexpected health %v", body)
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/coach", nil)
	pre, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS err: %v", err)
	}
	pre.Body.Close()
	if pre.StatusCode != http.StatusNoContent || !strings.Contains(pre.Header.Get("Access-Control-Expose-Headers"), coach.HeaderCoachText) {
		t.Fatalf("unexpected preflight %d %v", pre.StatusCode, pre.Header)
	}
}
