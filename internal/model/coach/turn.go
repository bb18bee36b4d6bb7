package coach

import "net/url"

// TurnRequest is the body of one coach request.
type TurnRequest struct {
	UserID    string  `json:"user_id"`
	TextInput string  `json:"text_input"`
	SessionID *string `json:"session_id"`
}

// Response headers carrying the out-of-band parts of a reply.
const (
	HeaderCoachText = "X-Coach-Text"
	HeaderSessionID = "X-Session-Id"

	AudioContentType = "audio/mpeg"
)

// EncodeHeaderText makes reply text safe to carry in a response header.
func EncodeHeaderText(text string) string {
	return url.QueryEscape(text)
}

// DecodeHeaderText reverses EncodeHeaderText. Values that are not valid
// escapes are returned unchanged so raw ASCII headers still decode.
func DecodeHeaderText(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
