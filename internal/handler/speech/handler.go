package speech

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/analysis/emotion"
	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/model/coach"
	speechsvc "github.com/zhouzirui/z-coach/internal/service/speech"
	"github.com/zhouzirui/z-coach/pkg/utils"
)

// Handler 语音服务的HTTP处理器。用于重播某条回复的语音。
type Handler struct {
	synth speechsvc.Synthesizer
	log   logrus.FieldLogger
}

// New 创建语音处理器
func New(synth speechsvc.Synthesizer, logger logrus.FieldLogger) *Handler {
	return &Handler{synth: synth, log: logging.Component(logger, "speech")}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/speech/synthesize", h.handleSynthesize)
}

type synthesizeRequest struct {
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	SessionID string `json:"session_id"`
	// Emotion 可选，为空时按文本推断。
	Emotion string `json:"emotion"`
}

// handleSynthesize 合成任意文本，音频流式写回；没有音频时返回 204。
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	tone := emotion.Analyze("", text)
	if label := emotion.Label(strings.ToLower(strings.TrimSpace(req.Emotion))); label != "" {
		tone = emotion.Decision{Emotion: label, Scale: tone.Scale, Score: max(tone.Score, 1)}
	}

	audio := utils.NewAudioWriter(w, coach.AudioContentType)
	n, err := h.synth.Synthesize(r.Context(), speechsvc.Request{
		Text:      text,
		Voice:     req.Voice,
		SessionID: req.SessionID,
		Tone:      tone,
	}, audio)
	entry := h.log.WithFields(logrus.Fields{"session": req.SessionID, "audio_bytes": n})

	switch {
	case err != nil && audio.Started():
		entry.WithError(err).Warn("speech synthesis aborted mid-stream")
		panic(http.ErrAbortHandler)
	case err != nil:
		entry.WithError(err).Warn("speech synthesis failed")
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
	case !audio.Started():
		w.WriteHeader(http.StatusNoContent)
	default:
		entry.Debug("speech synthesized")
	}
}
