// Package reply produces the assistant's text for one coach turn.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/model/coach"
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Generator turns the prior transcript and the new utterance into reply text.
type Generator interface {
	Generate(ctx context.Context, history []coach.Message, userText string) (string, error)
}

// ChainGenerator runs a prompt template and chat model as one eino chain.
type ChainGenerator struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	historyLimit int
	log          logrus.FieldLogger
}

// NewChainGenerator compiles the chain around chatModel. The model is
// usually built from config.AIConfig.NewChatModel and shared with the tone
// classifier.
func NewChainGenerator(ctx context.Context, chatModel model.ChatModel, systemPrompt string, historyLimit int, logger logrus.FieldLogger) (*ChainGenerator, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &ChainGenerator{
		chain:        runnable,
		systemPrompt: systemPrompt,
		historyLimit: historyLimit,
		log:          logging.Component(logger, "reply"),
	}, nil
}

func (g *ChainGenerator) Generate(ctx context.Context, history []coach.Message, userText string) (string, error) {
	response, err := g.chain.Invoke(ctx, map[string]any{
		"system":  g.systemPrompt,
		"history": historyMessages(history, g.historyLimit),
		"query":   userText,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", ErrEmptyReply
	}

	g.log.WithFields(logrus.Fields{
		"history": len(history),
		"length":  len(text),
	}).Debug("reply generated")
	return text, nil
}

func historyMessages(messages []coach.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Role {
		case coach.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case coach.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// StaticGenerator answers every turn with the same text. It keeps the
// service usable without model credentials.
type StaticGenerator struct {
	Text string
}

func (g StaticGenerator) Generate(_ context.Context, _ []coach.Message, userText string) (string, error) {
	if g.Text != "" {
		return g.Text, nil
	}
	return fmt.Sprintf("You said: %s. The assistant model is not configured yet, so this is an echo.", userText), nil
}
