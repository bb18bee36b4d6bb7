package speech

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-coach/internal/analysis/emotion"
	"github.com/zhouzirui/z-coach/internal/config"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   frame
	}{
		{
			name: "client request",
			in:   *newJSONRequest([]byte(`{"text":"hi"}`)),
		},
		{
			name: "audio with sequence",
			in:   frame{Kind: kindAudioOnlyResponse, Flags: flagNegativeSequence, Sequence: -3, Payload: []byte("mp3")},
		},
		{
			name: "session event",
			in:   frame{Kind: kindFullServerResponse, Flags: flagWithEvent, Serialization: serializationJSON, Event: eventSessionFinished, SessionID: "sess-1", Payload: []byte("{}")},
		},
		{
			name: "connection event",
			in:   frame{Kind: kindFullServerResponse, Flags: flagWithEvent, Event: eventConnectionStarted, ConnectID: "conn-1"},
		},
		{
			name: "error",
			in:   frame{Kind: kindError, ErrorCode: 45000001, Payload: []byte("bad request")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeFrame(tc.in.encode())
			if err != nil {
				t.Fatalf("decodeFrame err: %v", err)
			}
			if got.Kind != tc.in.Kind || got.Flags != tc.in.Flags || got.Sequence != tc.in.Sequence ||
				got.Event != tc.in.Event || got.SessionID != tc.in.SessionID || got.ConnectID != tc.in.ConnectID ||
				got.ErrorCode != tc.in.ErrorCode || !bytes.Equal(got.Payload, tc.in.Payload) {
				t.Fatalf("decoded %+v, want %+v", got, tc.in)
			}
		})
	}
}

func TestDecodeFrameRejectsBadInput(t *testing.T) {
	good := newJSONRequest([]byte("payload")).encode()

	cases := map[string][]byte{
		"short header":      good[:3],
		"wrong version":     append([]byte{0x21}, good[1:]...),
		"truncated payload": good[:len(good)-2],
	}
	for name, data := range cases {
		if _, err := decodeFrame(data); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestFramePayloadGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("compressed body"))
	_ = zw.Close()

	f := frame{Kind: kindFullServerResponse, Compression: compressionGzip, Payload: buf.Bytes()}
	body, err := f.payload()
	if err != nil {
		t.Fatalf("payload err: %v", err)
	}
	if string(body) != "compressed body" {
		t.Fatalf("unexpected body: %q", body)
	}
}

type ttsScript func(conn *websocket.Conn, resource string, req ttsRequest)

func newTTSServer(t *testing.T, script ttsScript) (config.SpeechConfig, func() []string) {
	t.Helper()

	var mu sync.Mutex
	var resources []string
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Access-Key") != "token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		resource := r.Header.Get("X-Api-Resource-Id")
		mu.Lock()
		resources = append(resources, resource)
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			t.Errorf("server decode: %v", err)
			return
		}
		var req ttsRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			t.Errorf("server unmarshal: %v", err)
			return
		}
		script(conn, resource, req)
	}))
	t.Cleanup(srv.Close)

	return config.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		Endpoint:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Voice:       "en_female_amy_jupiter_bigtts",
		Language:    "en-US",
		Speed:       1,
		Enabled:     true,
	}, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), resources...)
	}
}

func sendFrame(conn *websocket.Conn, f frame) {
	_ = conn.WriteMessage(websocket.BinaryMessage, f.encode())
}

func TestVolcengineTTSStreamsAudio(t *testing.T) {
	requests := make(chan ttsRequest, 1)
	cfg, _ := newTTSServer(t, func(conn *websocket.Conn, _ string, req ttsRequest) {
		requests <- req
		sendFrame(conn, frame{Kind: kindAudioOnlyResponse, Flags: flagPositiveSequence, Sequence: 1, Payload: []byte("ID3")})
		sendFrame(conn, frame{Kind: kindAudioOnlyResponse, Flags: flagPositiveSequence, Sequence: 2, Payload: []byte("-frames")})
		sendFrame(conn, frame{Kind: kindFullServerResponse, Flags: flagWithEvent, Serialization: serializationJSON, Event: eventSessionFinished, SessionID: "s", Payload: []byte(`{"code":3000}`)})
	})

	var out bytes.Buffer
	n, err := NewVolcengineTTS(cfg, nil).Synthesize(context.Background(), Request{Text: " Hello there ", SessionID: "sess-1"}, &out)
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if out.String() != "ID3-frames" || n != int64(out.Len()) {
		t.Fatalf("unexpected audio %q (n=%d)", out.String(), n)
	}
	seen := <-requests
	if seen.ReqParams.Text != "Hello there" || seen.ReqParams.Speaker != cfg.Voice || seen.User.UID != "sess-1" {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if seen.ReqParams.AudioParams.Format != "mp3" {
		t.Fatalf("expected mp3, got %q", seen.ReqParams.AudioParams.Format)
	}
}

func TestVolcengineTTSFallsBackOnResourceMismatch(t *testing.T) {
	cfg, resources := newTTSServer(t, func(conn *websocket.Conn, resource string, _ ttsRequest) {
		if resource == resourceSeed {
			sendFrame(conn, frame{Kind: kindError, ErrorCode: 45000000, Payload: []byte("resource ID is mismatched with speaker related resource")})
			return
		}
		sendFrame(conn, frame{Kind: kindAudioOnlyResponse, Flags: flagNegativeSequence, Sequence: -1, Payload: []byte("audio")})
	})

	var out bytes.Buffer
	if _, err := NewVolcengineTTS(cfg, nil).Synthesize(context.Background(), Request{Text: "hi"}, &out); err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if out.String() != "audio" {
		t.Fatalf("unexpected audio %q", out.String())
	}
	if got := resources(); len(got) != 2 || got[0] != resourceSeed || got[1] != resourceLegacy {
		t.Fatalf("unexpected resource attempts: %v", got)
	}
}

func TestVolcengineTTSReportsServerError(t *testing.T) {
	cfg, _ := newTTSServer(t, func(conn *websocket.Conn, _ string, _ ttsRequest) {
		sendFrame(conn, frame{Kind: kindFullServerResponse, Serialization: serializationJSON, Payload: []byte(`{"code":40402,"message":"quota exhausted"}`)})
	})

	var out bytes.Buffer
	_, err := NewVolcengineTTS(cfg, nil).Synthesize(context.Background(), Request{Text: "hi"}, &out)
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestVolcengineTTSValidatesInput(t *testing.T) {
	tts := NewVolcengineTTS(config.SpeechConfig{AppID: "a", AccessToken: "b"}, nil)
	if _, err := tts.Synthesize(context.Background(), Request{Text: "  "}, &bytes.Buffer{}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := NewVolcengineTTS(config.SpeechConfig{}, nil).Synthesize(context.Background(), Request{Text: "hi"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected credentials error")
	}
}

func TestResourceCandidates(t *testing.T) {
	cases := []struct {
		voice string
		want  []string
	}{
		{voice: "S_clone_speaker", want: []string{resourceMega}},
		{voice: "en_female_amy_jupiter_bigtts", want: []string{resourceSeed, resourceLegacy}},
		{voice: "en_male_plain", want: []string{resourceLegacy, resourceSeed}},
	}
	for _, tc := range cases {
		got := resourceCandidates(tc.voice)
		if len(got) != len(tc.want) || got[0] != tc.want[0] {
			t.Fatalf("resourceCandidates(%q) = %v, want %v", tc.voice, got, tc.want)
		}
	}
}

func TestEmotionParamsOnlyForEmotionVoices(t *testing.T) {
	tone := emotion.Decision{Emotion: emotion.Comfort, Scale: 3.5, Score: 6}

	if _, _, ok := emotionParams("en_female_amy_jupiter_bigtts", tone); ok {
		t.Fatal("plain voice must not get emotion params")
	}
	label, scale, ok := emotionParams("en_female_skye_emo_v2_mars_bigtts", tone)
	if !ok || label != "comfort" || scale != 3.5 {
		t.Fatalf("unexpected params: %q %v %v", label, scale, ok)
	}
	if _, _, ok := emotionParams("en_female_skye_emo_v2_mars_bigtts", emotion.Decision{Emotion: emotion.Neutral, Scale: 3}); ok {
		t.Fatal("neutral tone must not set emotion")
	}
}

func TestSilentSynthesizer(t *testing.T) {
	var out bytes.Buffer
	n, err := SilentSynthesizer{}.Synthesize(context.Background(), Request{Text: "hi"}, &out)
	if err != nil || n != 0 || out.Len() != 0 {
		t.Fatalf("expected no audio, got n=%d err=%v", n, err)
	}
}
