package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
)

// recognizerEvent is the JSON frame a recognition service sends.
type recognizerEvent struct {
	Type         string   `json:"type"`
	Text         string   `json:"text,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Message      string   `json:"message,omitempty"`
}

type recognizerControl struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
}

// WSRecognizer talks to a speech-recognition service over a websocket. The
// service owns the microphone; this side only sends start/stop control frames
// and receives partial, final and error events.
type WSRecognizer struct {
	URL          string
	Language     string
	Header       http.Header
	PingInterval time.Duration
	dialer       *websocket.Dialer
	log          logrus.FieldLogger
}

// NewWSRecognizer returns a recognizer for the service at url.
func NewWSRecognizer(url, language string, logger logrus.FieldLogger) *WSRecognizer {
	return &WSRecognizer{
		URL:          url,
		Language:     language,
		PingInterval: 30 * time.Second,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:          logging.Component(logger, "recognizer"),
	}
}

// Start implements Recognizer.
func (r *WSRecognizer) Start(ctx context.Context, events Events) (Session, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.URL, r.Header)
	if err != nil {
		return nil, fmt.Errorf("recognizer dial failed: %w", err)
	}

	if err := conn.WriteJSON(recognizerControl{Type: "start", Language: r.Language}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("recognizer start failed: %w", err)
	}

	s := &wsSession{conn: conn, done: make(chan struct{}), log: r.log}
	go s.readLoop(events)
	go s.pingLoop(ctx, r.PingInterval)
	return s, nil
}

type wsSession struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	writeMu  sync.Mutex
	stopOnce sync.Once
	stopped  bool
	done     chan struct{}
}

func (s *wsSession) Stop() {
	s.stopOnce.Do(func() {
		s.writeMu.Lock()
		s.stopped = true
		_ = s.conn.WriteJSON(recognizerControl{Type: "stop"})
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
	})
}

func (s *wsSession) readLoop(events Events) {
	defer close(s.done)
	for {
		var ev recognizerEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			s.writeMu.Lock()
			stopped := s.stopped
			s.writeMu.Unlock()
			switch {
			case stopped:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				emitEnd(events)
			default:
				emitError(events, fmt.Errorf("recognizer read failed: %w", err))
			}
			return
		}

		switch strings.ToLower(ev.Type) {
		case "partial":
			if events.OnResult != nil {
				events.OnResult(Result{Final: false, Alternatives: alternatives(ev)})
			}
		case "final":
			if events.OnResult != nil {
				events.OnResult(Result{Final: true, Alternatives: alternatives(ev)})
			}
		case "error":
			msg := ev.Message
			if msg == "" {
				msg = "recognition failed"
			}
			emitError(events, errors.New(msg))
		case "end":
			emitEnd(events)
			return
		default:
			s.log.WithField("type", ev.Type).Debug("ignoring recognizer event")
		}
	}
}

func (s *wsSession) pingLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func alternatives(ev recognizerEvent) []string {
	if len(ev.Alternatives) > 0 {
		return ev.Alternatives
	}
	if ev.Text != "" {
		return []string{ev.Text}
	}
	return nil
}

func emitError(events Events, err error) {
	if events.OnError != nil {
		events.OnError(err)
	}
}

func emitEnd(events Events) {
	if events.OnEnd != nil {
		events.OnEnd()
	}
}
