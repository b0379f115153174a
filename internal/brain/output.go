package brain

import "strings"

// maxReplyLength is the longest reply worth speaking. Longer output is cut
// at the last full sentence inside the limit.
const maxReplyLength = 500

// Speakable converts raw agent output into something a TTS voice can read:
// markdown markers stripped, fenced code dropped, length bounded.
func Speakable(raw string) string {
	var out []string
	inFence := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "#")
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "`", "")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return truncateAtSentence(strings.Join(out, " "))
}

// truncateAtSentence bounds text to maxReplyLength, preferring to cut at
// the end of a sentence.
func truncateAtSentence(text string) string {
	if len(text) <= maxReplyLength {
		return text
	}
	cut := text[:maxReplyLength]
	last := strings.LastIndexAny(cut, ".!?")
	if last > 0 {
		return strings.TrimSpace(cut[:last+1])
	}
	return strings.TrimSpace(cut)
}

// stdoutTail extracts the trailing reply lines from agent stdout, skipping
// lines that merely echo the prompt or look like shell noise.
func stdoutTail(stdout, prompt string) string {
	echo := promptEcho(prompt)
	lines := strings.Split(stdout, "\n")

	var tail []string
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			if len(tail) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "$") || strings.HasPrefix(line, ">") {
			break
		}
		if echo != "" && strings.Contains(line, echo) {
			break
		}
		tail = append(tail, line)
	}

	// Collected back to front.
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return strings.Join(tail, "\n")
}

// promptEcho is the prompt fragment used to recognise command echo in
// stdout.
func promptEcho(prompt string) string {
	first := prompt
	if idx := strings.IndexByte(first, '\n'); idx > 0 {
		first = first[:idx]
	}
	first = strings.TrimSpace(first)
	if len(first) > 40 {
		first = first[:40]
	}
	return first
}
