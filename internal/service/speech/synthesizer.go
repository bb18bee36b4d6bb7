// Package speech synthesizes the coach's spoken reply.
package speech

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/zhouzirui/z-coach/internal/analysis/emotion"
)

// ErrEmptyText 表示没有可合成的文本。
var ErrEmptyText = errors.New("tts text is empty")

// Request 描述一次合成。
type Request struct {
	Text string
	// Voice 为空时使用配置中的默认音色。
	Voice     string
	SessionID string
	Tone      emotion.Decision
}

// Synthesizer 把文本合成为 MP3 并边合成边写入 w，返回写入的字节数。
// 出错时 w 可能已经收到部分音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request, w io.Writer) (int64, error)
}

// SilentSynthesizer 不产生任何音频，未配置语音服务时使用。
type SilentSynthesizer struct{}

func (SilentSynthesizer) Synthesize(_ context.Context, req Request, _ io.Writer) (int64, error) {
	if strings.TrimSpace(req.Text) == "" {
		return 0, ErrEmptyText
	}
	return 0, nil
}

// emotionParams 仅对支持情绪的音色返回情绪参数。
func emotionParams(voice string, tone emotion.Decision) (string, float32, bool) {
	if tone.Emotion == "" || tone.Emotion == emotion.Neutral || tone.Score <= 0 {
		return "", 0, false
	}
	if !strings.Contains(strings.ToLower(voice), "_emo") {
		return "", 0, false
	}
	scale := tone.Scale
	if scale <= 0 {
		scale = 3
	}
	return string(tone.Emotion), min(max(scale, 1), 5), true
}
