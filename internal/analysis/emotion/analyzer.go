// Package emotion picks the voice tone for a spoken coach reply from the
// wording of the turn.
package emotion

import "strings"

// Label is a TTS emotion name.
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Comfort  Label = "comfort"
	Magnetic Label = "magnetic"
	Excited  Label = "excited"
)

// Decision is the chosen tone and its intensity on the TTS 1-5 scale.
type Decision struct {
	Emotion Label
	Scale   float32
	Score   int
}

type bucket struct {
	label    Label
	keywords []string
}

// Buckets are checked in order; the first label wins a tie.
var buckets = []bucket{
	{label: Comfort, keywords: []string{
		"sorry", "unfortunately", "failed", "failure", "error", "couldn't", "could not",
		"frustrat", "stuck", "lost", "don't worry", "no problem", "try again",
	}},
	{label: Magnetic, keywords: []string{
		"important", "must", "required", "warning", "careful", "make sure",
		"quota", "limit", "expires", "deadline", "security",
	}},
	{label: Happy, keywords: []string{
		"great", "done", "finished", "complete", "success", "ready", "thanks",
		"thank you", "glad", "welcome", "nice", "perfect",
	}},
	{label: Excited, keywords: []string{
		"awesome", "amazing", "wow", "congratulations", "record", "fantastic",
	}},
}

// Analyze scores the reply first and falls back to answering the user's mood
// when the reply itself is flat.
func Analyze(userText, replyText string) Decision {
	best := score(replyText)
	if best.Score == 0 {
		if user := score(userText); user.Score > 0 {
			best = respondTo(user)
		}
	}
	if best.Score == 0 {
		return Decision{Emotion: Neutral, Scale: 3}
	}

	scale := 2 + float32(best.Score)/4
	switch best.Emotion {
	case Excited:
		scale++
	case Comfort, Magnetic:
		scale = min(scale, 3.5)
	}
	best.Scale = min(max(scale, 1), 5)
	return best
}

func score(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	best := Decision{Emotion: Neutral}
	for _, b := range buckets {
		points := 0
		for _, word := range b.keywords {
			if strings.Contains(normalized, word) {
				points += 3
			}
		}
		if b.label == Excited {
			points += 2 * strings.Count(text, "!")
		}
		if points > best.Score {
			best = Decision{Emotion: b.label, Score: points}
		}
	}
	return best
}

// respondTo maps the user's mood to the tone that answers it.
func respondTo(user Decision) Decision {
	switch user.Emotion {
	case Comfort:
		// a frustrated user gets a calm voice
		return Decision{Emotion: Comfort, Score: user.Score}
	case Excited, Happy:
		return Decision{Emotion: Happy, Score: user.Score}
	default:
		return Decision{Emotion: Neutral}
	}
}
