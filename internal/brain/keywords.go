package brain

import "strings"

// actionKeywords force full mode: the request likely needs the desktop,
// not just a short factual answer.
var actionKeywords = map[string]struct{}{
	"click": {}, "type": {}, "open": {}, "mouse": {}, "screen": {},
	"browser": {}, "window": {}, "scroll": {}, "fill": {}, "form": {},
	"cursor": {}, "move": {}, "press": {}, "close": {}, "focus": {},
	"switch": {}, "tab": {}, "desktop": {}, "display": {}, "launch": {},
	"run": {},
}

// screenKeywords additionally trigger the vision path on a fresh
// screenshot. A superset of the action set's visual terms plus phrases
// about what is visible.
var screenKeywords = map[string]struct{}{
	"screen": {}, "see": {}, "open": {}, "running": {}, "browser": {},
	"window": {}, "app": {}, "application": {}, "tab": {}, "showing": {},
	"display": {}, "desktop": {}, "fill": {}, "form": {}, "click": {},
	"type": {}, "mouse": {}, "cursor": {},
}

// screenPhrases are multi-word visual triggers checked by substring.
var screenPhrases = []string{"looking at", "on my screen", "what is this"}

func containsActionKeyword(text string) bool {
	for _, word := range keywordTokens(text) {
		if _, ok := actionKeywords[word]; ok {
			return true
		}
	}
	return false
}

func containsScreenKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range screenPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, word := range keywordTokens(text) {
		if _, ok := screenKeywords[word]; ok {
			return true
		}
	}
	return false
}

func keywordTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".,!?;:\"'")
	}
	return fields
}
