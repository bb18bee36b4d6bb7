package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/config"
	"github.com/zhouzirui/z-coach/internal/logging"
)

const (
	resourceLegacy = "volc.service_type.10029"
	resourceMega   = "volc.megatts.default"
	resourceSeed   = "seed-tts-2.0"
)

// VolcengineTTS 通过火山引擎单向流式 WebSocket 接口合成语音。
type VolcengineTTS struct {
	cfg    config.SpeechConfig
	dialer *websocket.Dialer
	log    logrus.FieldLogger
}

// NewVolcengineTTS 创建 TTS 客户端。
func NewVolcengineTTS(cfg config.SpeechConfig, logger logrus.FieldLogger) *VolcengineTTS {
	return &VolcengineTTS{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    logging.Component(logger, "tts"),
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams ttsReqParams `json:"req_params"`
}

type ttsReqParams struct {
	Speaker     string         `json:"speaker"`
	Text        string         `json:"text"`
	Language    string         `json:"language,omitempty"`
	AudioParams ttsAudioParams `json:"audio_params"`
}

type ttsAudioParams struct {
	Format       string  `json:"format"`
	SampleRate   int     `json:"sample_rate"`
	SpeedRatio   float32 `json:"speed_ratio,omitempty"`
	Emotion      string  `json:"emotion,omitempty"`
	EmotionScale float32 `json:"emotion_scale,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// Synthesize 实现 Synthesizer。音色与资源不匹配且尚未写出音频时，依次尝试候选资源。
func (c *VolcengineTTS) Synthesize(ctx context.Context, req Request, w io.Writer) (int64, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return 0, ErrEmptyText
	}
	if c.cfg.AppID == "" || c.cfg.AccessToken == "" {
		return 0, fmt.Errorf("volcengine speech config missing AppID or AccessToken")
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.cfg.Voice
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	for _, resource := range resourceCandidates(voice) {
		n, err := c.synthesizeWith(ctx, resource, voice, req, w)
		if err == nil {
			return n, nil
		}
		if n == 0 && isResourceMismatch(err) {
			c.log.WithFields(logrus.Fields{"voice": voice, "resource": resource}).Info("tts resource mismatch, trying next")
			lastErr = err
			continue
		}
		return n, err
	}
	return 0, lastErr
}

func (c *VolcengineTTS) synthesizeWith(ctx context.Context, resource, voice string, req Request, w io.Writer) (int64, error) {
	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppID)
	header.Set("X-Api-Access-Key", c.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to TTS websocket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	entry := c.log.WithFields(logrus.Fields{"connect_id": connectID, "resource": resource})
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			entry = entry.WithField("logid", logid)
		}
	}

	payload, err := json.Marshal(c.buildRequest(req, voice))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newJSONRequest(payload).encode()); err != nil {
		return 0, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var written int64
	emit := func(chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return fmt.Errorf("failed to forward audio: %w", err)
		}
		return nil
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, ctxErr
			}
			return written, fmt.Errorf("failed to read TTS response: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			return written, fmt.Errorf("failed to decode TTS frame: %w", err)
		}
		body, err := f.payload()
		if err != nil {
			return written, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		switch f.Kind {
		case kindError:
			return written, fmt.Errorf("TTS error %d: %s", f.ErrorCode, string(body))

		case kindAudioOnlyResponse:
			if err := emit(body); err != nil {
				return written, err
			}
			if f.isLast() {
				entry.WithField("bytes", written).Debug("tts finished")
				return written, nil
			}

		case kindFullServerResponse:
			if f.hasEvent() && f.Event == eventSessionFailed {
				return written, fmt.Errorf("TTS session failed: %s", string(body))
			}

			var msg ttsServerMessage
			if len(body) > 0 && json.Unmarshal(body, &msg) == nil {
				if msg.Code != 0 && msg.Code != 3000 {
					return written, fmt.Errorf("TTS API error %d: %s", msg.Code, msg.Message)
				}
				if msg.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(msg.Data)
					if err != nil {
						return written, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
					}
					if err := emit(chunk); err != nil {
						return written, err
					}
				}
			}

			if (f.hasEvent() && f.Event == eventSessionFinished) || f.isLast() || msg.Sequence < 0 {
				entry.WithField("bytes", written).Debug("tts finished")
				return written, nil
			}

		default:
			entry.WithField("kind", f.Kind).Debug("unexpected TTS frame")
		}
	}
}

func (c *VolcengineTTS) buildRequest(req Request, voice string) ttsRequest {
	var out ttsRequest
	out.User.UID = req.SessionID
	if out.User.UID == "" {
		out.User.UID = uuid.NewString()
	}

	out.ReqParams.Speaker = voice
	out.ReqParams.Text = req.Text
	out.ReqParams.Language = c.cfg.Language
	out.ReqParams.AudioParams = ttsAudioParams{Format: "mp3", SampleRate: 24000}
	if c.cfg.Speed > 0 && c.cfg.Speed != 1 {
		out.ReqParams.AudioParams.SpeedRatio = c.cfg.Speed
	}
	if label, scale, ok := emotionParams(voice, req.Tone); ok {
		out.ReqParams.AudioParams.Emotion = label
		out.ReqParams.AudioParams.EmotionScale = scale
	}
	return out
}

// resourceCandidates 按音色推断可用的资源 ID，首选在前。
func resourceCandidates(voice string) []string {
	normalized := strings.ToLower(strings.TrimSpace(voice))
	switch {
	case strings.HasPrefix(voice, "S_"):
		return []string{resourceMega}
	case strings.Contains(normalized, "bigtts"), strings.Contains(normalized, "seed"):
		return []string{resourceSeed, resourceLegacy}
	default:
		return []string{resourceLegacy, resourceSeed}
	}
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched")
}
