// Package emotion asks the chat model which tone the spoken reply should take,
// falling back to the keyword analyzer.
package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	analysis "github.com/zhouzirui/z-coach/internal/analysis/emotion"
	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/model/coach"
)

// Classifier 选择回复语音的情绪。
type Classifier interface {
	Classify(ctx context.Context, history []coach.Message, userText, replyText string) analysis.Decision
}

// Heuristic 只使用关键词规则。
type Heuristic struct{}

func (Heuristic) Classify(_ context.Context, _ []coach.Message, userText, replyText string) analysis.Decision {
	return analysis.Analyze(userText, replyText)
}

// Service 使用大模型判断语气，失败时回退到关键词规则。
type Service struct {
	classifier   compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	log          logrus.FieldLogger
}

// NewService 创建情绪分析服务。chatModel 可重用回复生成所用的模型实例。
func NewService(ctx context.Context, chatModel model.ChatModel, historyLimit int, logger logrus.FieldLogger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("emotion classifier requires a chat model")
	}
	if historyLimit <= 0 {
		historyLimit = 6
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	return &Service{
		classifier:   runnable,
		historyLimit: historyLimit,
		log:          logging.Component(logger, "emotion"),
	}, nil
}

// Classify 实现 Classifier。
func (s *Service) Classify(ctx context.Context, history []coach.Message, userText, replyText string) analysis.Decision {
	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"history": formatHistory(history, s.historyLimit),
		"user":    strings.TrimSpace(userText),
		"reply":   strings.TrimSpace(replyText),
	})
	if err != nil {
		s.log.WithError(err).Warn("classifier invoke failed, using keywords")
		return analysis.Analyze(userText, replyText)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return analysis.Analyze(userText, replyText)
	}

	decision, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.log.WithError(err).Debug("classifier output unusable, using keywords")
		return analysis.Analyze(userText, replyText)
	}
	return decision
}

type classifierPayload struct {
	Emotion string  `json:"emotion"`
	Scale   float32 `json:"scale"`
}

// parseClassifierOutput 从模型输出中取出第一个 JSON 对象。
func parseClassifierOutput(content string) (analysis.Decision, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return analysis.Decision{}, fmt.Errorf("missing json object")
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return analysis.Decision{}, err
	}

	label, ok := parseEmotionLabel(payload.Emotion)
	if !ok {
		return analysis.Decision{}, fmt.Errorf("unknown emotion %q", payload.Emotion)
	}
	scale := clampScale(payload.Scale)
	return analysis.Decision{Emotion: label, Scale: scale, Score: int(scale * 2)}, nil
}

func parseEmotionLabel(raw string) (analysis.Label, bool) {
	switch analysis.Label(strings.ToLower(strings.TrimSpace(raw))) {
	case analysis.Neutral:
		return analysis.Neutral, true
	case analysis.Happy:
		return analysis.Happy, true
	case analysis.Comfort:
		return analysis.Comfort, true
	case analysis.Magnetic:
		return analysis.Magnetic, true
	case analysis.Excited:
		return analysis.Excited, true
	default:
		return "", false
	}
}

func clampScale(val float32) float32 {
	if val <= 0 {
		return 3
	}
	return min(max(val, 1), 5)
}

func formatHistory(messages []coach.Message, limit int) string {
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	var builder strings.Builder
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		role := "User"
		if msg.Role == coach.RoleAssistant {
			role = "Coach"
		}
		builder.WriteString(role)
		builder.WriteString(": ")
		builder.WriteString(content)
	}
	if builder.Len() == 0 {
		return "(no earlier turns)"
	}
	return builder.String()
}

const classifierSystemPrompt = "You pick the speaking tone for a voice assistant's reply. Read the recent conversation, the user's message and the reply. Answer with one JSON object only: {{\"emotion\": one of neutral|happy|comfort|magnetic|excited, \"scale\": number from 1 to 5}}."

const classifierUserPrompt = "Recent conversation:\n{history}\n\nUser:\n{user}\n\nReply to be spoken:\n{reply}"
