// Package chat serves coach turns: text in, header-carried reply text and
// streamed speech out.
package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/model/coach"
	"github.com/zhouzirui/z-coach/internal/service/conversation"
	"github.com/zhouzirui/z-coach/internal/service/emotion"
	"github.com/zhouzirui/z-coach/internal/service/reply"
	"github.com/zhouzirui/z-coach/internal/service/speech"
	"github.com/zhouzirui/z-coach/pkg/utils"
)

// Options 汇总处理器依赖。
type Options struct {
	Store       conversation.Store
	Generator   reply.Generator
	Synthesizer speech.Synthesizer
	// Tone 为空时使用关键词规则。
	Tone emotion.Classifier
	// HistoryLimit 为传给生成器的历史条数上限，0 表示全部。
	HistoryLimit int
	Logger       logrus.FieldLogger
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	store        conversation.Store
	generator    reply.Generator
	synth        speech.Synthesizer
	tone         emotion.Classifier
	historyLimit int
	log          logrus.FieldLogger
}

// New 创建聊天处理器。Synthesizer 为空时只返回文本。
func New(opts Options) *Handler {
	synth := opts.Synthesizer
	if synth == nil {
		synth = speech.SilentSynthesizer{}
	}
	tone := opts.Tone
	if tone == nil {
		tone = emotion.Heuristic{}
	}
	return &Handler{
		store:        opts.Store,
		generator:    opts.Generator,
		synth:        synth,
		tone:         tone,
		historyLimit: opts.HistoryLimit,
		log:          logging.Component(opts.Logger, "coach"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/coach", h.handleTurn)
	r.Get("/conversations/{sessionID}/messages", h.handleTranscript)
}

// handleTurn 处理一轮对话。文本放在 X-Coach-Text，音频作为响应体流式返回。
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req coach.TurnRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.TextInput)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text_input is required")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()
	conv, created, err := h.resolveConversation(ctx, userID, req.SessionID)
	if err != nil {
		h.log.WithError(err).Error("failed to resolve conversation")
		utils.RespondError(w, http.StatusInternalServerError, "conversation unavailable")
		return
	}
	entry := h.log.WithFields(logrus.Fields{"session": conv.ID, "created": created})

	history, err := h.store.Messages(ctx, conv.ID, h.historyLimit)
	if err != nil {
		entry.WithError(err).Error("failed to load history")
		utils.RespondError(w, http.StatusInternalServerError, "conversation unavailable")
		return
	}

	if _, err := h.store.Append(ctx, conv.ID, coach.Message{Role: coach.RoleUser, Content: text}); err != nil {
		entry.WithError(err).Error("failed to persist user message")
		utils.RespondError(w, http.StatusInternalServerError, "conversation unavailable")
		return
	}

	answer, err := h.generator.Generate(ctx, history, text)
	if err != nil {
		entry.WithError(err).Warn("reply generation failed")
		utils.RespondError(w, http.StatusBadGateway, "reply generation failed")
		return
	}

	if _, err := h.store.Append(ctx, conv.ID, coach.Message{Role: coach.RoleAssistant, Content: answer}); err != nil {
		entry.WithError(err).Error("failed to persist assistant message")
		utils.RespondError(w, http.StatusInternalServerError, "conversation unavailable")
		return
	}

	w.Header().Set(coach.HeaderCoachText, coach.EncodeHeaderText(answer))
	if created {
		w.Header().Set(coach.HeaderSessionID, conv.ID)
	}

	tone := h.tone.Classify(ctx, history, text, answer)
	audio := utils.NewAudioWriter(w, coach.AudioContentType)
	n, err := h.synth.Synthesize(ctx, speech.Request{Text: answer, SessionID: conv.ID, Tone: tone}, audio)
	entry = entry.WithFields(logrus.Fields{"audio_bytes": n, "emotion": tone.Emotion})

	switch {
	case err != nil && audio.Started():
		// 响应头已发出，只能中断连接让客户端在读流时看到错误。
		entry.WithError(err).Warn("speech synthesis aborted mid-stream")
		panic(http.ErrAbortHandler)
	case err != nil:
		entry.WithError(err).Warn("speech synthesis failed, replying with text only")
		w.WriteHeader(http.StatusOK)
	case !audio.Started():
		w.WriteHeader(http.StatusOK)
	}
	entry.Info("coach turn served")
}

// resolveConversation 复用调用方持有的会话；会话不存在或属于其他用户时新建。
func (h *Handler) resolveConversation(ctx context.Context, userID string, sessionID *string) (conversation.Conversation, bool, error) {
	if sessionID != nil && strings.TrimSpace(*sessionID) != "" {
		conv, err := h.store.Get(ctx, strings.TrimSpace(*sessionID))
		switch {
		case err == nil && conv.UserID == userID:
			return conv, false, nil
		case err == nil:
			h.log.WithField("session", conv.ID).Info("session belongs to another user, starting a new one")
		case errors.Is(err, conversation.ErrConversationNotFound):
			h.log.Debug("unknown session, starting a new one")
		default:
			return conversation.Conversation{}, false, err
		}
	}

	conv, err := h.store.Create(ctx, userID)
	if err != nil {
		return conversation.Conversation{}, false, err
	}
	return conv, true, nil
}

type transcriptResponse struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Messages  []coach.Message `json:"messages"`
}

// handleTranscript 返回会话的完整记录。
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	conv, err := h.store.Get(r.Context(), sessionID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("failed to load conversation")
		utils.RespondError(w, http.StatusInternalServerError, "conversation unavailable")
		return
	}

	messages, err := h.store.Messages(r.Context(), conv.ID, 0)
	if err != nil {
		h.log.WithError(err).Error("failed to load transcript")
		utils.RespondError(w, http.StatusInternalServerError, "conversation unavailable")
		return
	}

	utils.RespondJSON(w, http.StatusOK, transcriptResponse{
		SessionID: conv.ID,
		UserID:    conv.UserID,
		Messages:  messages,
	})
}
