package orchestrator

import "strings"

// Spoken replies for turns that could not produce a real answer.
const (
	replyBrainTimeout = "That took too long. Could you try a simpler request?"
	replyBrainFailed  = "I ran into an issue with that request."
	replyTmuxFailed   = "I couldn't complete that command."
	replyNoTier       = "I'm not able to handle that right now."
)

// endPhrases close a conversation when they appear anywhere in the
// utterance. "<wake-name>" is replaced with the configured wake name.
var endPhrases = []string{
	"end conversation",
	"stop conversation",
	"goodbye",
	"bye",
	"<wake-name> end",
	"<wake-name> stop",
	"that's all",
	"thats all",
	"never mind",
	"nevermind",
	"dismiss",
}

// isEndPhrase reports whether text closes the conversation. Matching is
// case-insensitive with punctuation stripped, anywhere in the utterance.
func isEndPhrase(text, wakeName string) bool {
	normalized := stripPunctuation(strings.ToLower(text))
	for _, phrase := range endPhrases {
		phrase = strings.ReplaceAll(phrase, "<wake-name>", strings.ToLower(wakeName))
		if strings.Contains(normalized, stripPunctuation(phrase)) {
			return true
		}
	}
	return false
}

// stripPunctuation drops everything but letters, digits and spaces.
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// promptPrefix is the leading slice of an assignment prompt spoken in a
// completion alert.
func promptPrefix(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if len(prompt) <= 50 {
		return prompt
	}
	return strings.TrimSpace(prompt[:50])
}
