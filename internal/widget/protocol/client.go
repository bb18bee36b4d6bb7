// Package protocol sends one turn to the coach service and splits the
// response into its header-carried text and its streamed audio body.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/model/coach"
)

// Config configures a Client.
type Config struct {
	Endpoint string
	UserID   string
	// Timeout bounds the whole exchange including body streaming. Zero means
	// the transport decides.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client issues coach turn requests.
type Client struct {
	endpoint   string
	userID     string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Reply is the decoded result of a successful turn. Audio is nil when the
// response carried no audio; otherwise the caller must drain or close it.
type Reply struct {
	Text         string
	Audio        io.ReadCloser
	NewSessionID *string
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid coach endpoint %q", cfg.Endpoint)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		endpoint:   endpoint,
		userID:     cfg.UserID,
		httpClient: httpClient,
		log:        logging.Component(cfg.Logger, "protocol"),
	}, nil
}

// SendTurn posts text with the current session token (nil when none is held).
func (c *Client) SendTurn(ctx context.Context, sessionID *string, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInputRejected
	}

	body, err := json.Marshal(coach.TurnRequest{
		UserID:    c.userID,
		TextInput: text,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, &ReplyError{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ReplyError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", coach.AudioContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("coach request failed")
		return nil, &ReplyError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		c.log.WithField("status", resp.StatusCode).Warn("coach request rejected")
		return nil, &ReplyError{StatusCode: resp.StatusCode}
	}

	reply, err := decodeReply(resp)
	if err != nil {
		c.log.WithError(err).Warn("coach reply malformed")
		return nil, &ReplyError{StatusCode: resp.StatusCode, Err: err}
	}
	c.log.WithFields(logrus.Fields{
		"status":      resp.StatusCode,
		"audio":       reply.Audio != nil,
		"new_session": reply.NewSessionID != nil,
	}).Debug("coach reply received")
	return reply, nil
}

// decodeReply reads the side-channel headers before anything touches the body.
func decodeReply(resp *http.Response) (*Reply, error) {
	text := strings.TrimSpace(coach.DecodeHeaderText(resp.Header.Get(coach.HeaderCoachText)))
	if text == "" {
		resp.Body.Close()
		return nil, errMissingText
	}
	reply := &Reply{Text: text}

	if token := strings.TrimSpace(resp.Header.Get(coach.HeaderSessionID)); token != "" {
		reply.NewSessionID = &token
	}

	if hasAudio(resp) {
		reply.Audio = resp.Body
	} else {
		resp.Body.Close()
	}

	return reply, nil
}

func hasAudio(resp *http.Response) bool {
	if resp.ContentLength == 0 || resp.StatusCode == http.StatusNoContent {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "audio/") || mediaType == "application/octet-stream"
}
