package panes

import (
	"regexp"
	"strings"
)

// State is the inferred activity of a watched pane.
type State string

const (
	StateUnknown State = "unknown"
	StateWorking State = "working"
	StateIdle    State = "idle"
	StateErrored State = "errored"
)

// errorScanLines is how many trailing lines are scanned for error markers.
const errorScanLines = 15

// idlePrompts match a bare shell or REPL prompt as the last non-empty line.
// Anchored on both ends so prompt characters inside running output do not
// count.
var idlePrompts = []*regexp.Regexp{
	regexp.MustCompile(`^❯\s*$`),
	regexp.MustCompile(`^>\s*$`),
	regexp.MustCompile(`^\$\s*$`),
	regexp.MustCompile(`^%\s*$`),
	regexp.MustCompile(`^\(.*\)\s*❯\s*$`),
	regexp.MustCompile(`^\(.*\)\s*>\s*$`),
	regexp.MustCompile(`^\w+@.+[$#]\s*$`),
}

// errorMarkers match a line that begins a failure report. Anchored to line
// start so prose mentioning the word "error" stays WORKING.
var errorMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^error[:\s]`),
	regexp.MustCompile(`^Traceback \(most recent`),
	regexp.MustCompile(`^.*Exception:`),
	regexp.MustCompile(`^fatal:`),
	regexp.MustCompile(`^FAILED`),
	regexp.MustCompile(`^panic:`),
}

// Classify infers the pane state from its captured tail. A trailing bare
// prompt means IDLE; otherwise an anchored error marker in the last lines
// means ERRORED; otherwise WORKING. A blank capture is IDLE. Pure function
// of the snapshot.
func Classify(snapshot string) State {
	lines := nonEmptyLines(snapshot)
	if len(lines) == 0 {
		return StateIdle
	}

	last := lines[len(lines)-1]
	for _, re := range idlePrompts {
		if re.MatchString(last) {
			return StateIdle
		}
	}

	scan := lines
	if len(scan) > errorScanLines {
		scan = scan[len(scan)-errorScanLines:]
	}
	for _, line := range scan {
		for _, re := range errorMarkers {
			if re.MatchString(line) {
				return StateErrored
			}
		}
	}
	return StateWorking
}

// Tail returns the last n non-empty lines of snapshot joined by newlines.
func Tail(snapshot string, n int) string {
	lines := nonEmptyLines(snapshot)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimRight(line, " \t\r"); strings.TrimSpace(trimmed) != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
