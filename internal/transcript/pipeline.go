// Package transcript defines the transcript correction pipeline used to fix
// recognition errors in the orchestrator's working vocabulary.
//
// Raw speech-to-text output is rarely perfect for the names the voice loop
// routes on — agent names and tmux window names are frequently misheard
// ("clawed" or "cloud" for "claude", "code x" for "codex"). The [Pipeline]
// applies a two-stage correction strategy:
//
//  1. Phonetic matching ([PhoneticMatcher]): fast, dictionary-free alignment
//     based on pronunciation similarity. Runs in-process with no network
//     calls, so it sits on the real-time voice path.
//
//  2. LLM-assisted correction ([llmcorrect.Corrector]): a language model
//     resolves misheard names the phonetic stage missed, using the full name
//     list as context. Optional; a round-trip to the model costs real
//     latency, so it is off unless configured.
//
// Each [Correction] records which method produced the substitution and its
// confidence, so callers can audit, display, or selectively roll back changes.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import "context"

// Correction captures a single word-level substitution made by the pipeline.
type Correction struct {
	// Original is the word as produced by the speech-to-text provider.
	Original string

	// Corrected is the replacement selected by the pipeline.
	Corrected string

	// Confidence is the pipeline's confidence in this substitution (0.0–1.0).
	// Values above 0.9 are considered high-confidence; values below 0.5
	// indicate the correction is speculative.
	Confidence float64

	// Method describes which correction stage produced this substitution.
	// Well-known values:
	//   "phonetic" — produced by a [PhoneticMatcher].
	//   "llm"      — produced by a language-model correction pass.
	Method string
}

// CorrectedTranscript is the output of a [Pipeline.Correct] call.
// It pairs the original utterance text with the fully corrected text and an
// itemised record of every substitution that was applied.
type CorrectedTranscript struct {
	// Original is the raw text as received from the speech-to-text provider.
	Original string

	// Corrected is the full corrected text with all substitutions applied.
	// This is what the routing layers match commands against.
	Corrected string

	// Corrections is the ordered list of word-level substitutions applied to
	// produce Corrected. An empty (non-nil) slice means no corrections were
	// necessary.
	Corrections []Correction
}

// Pipeline applies multi-stage corrections to a raw utterance, resolving
// recognition errors in the orchestrator's working vocabulary.
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes text using the provided name list and returns a
	// [CorrectedTranscript] containing the corrected text and an itemised
	// record of every substitution made.
	//
	// names is the vocabulary the pipeline should recognise within the text:
	// agent names, tmux window names, and any other proper nouns routing
	// depends on. It is a per-call snapshot because windows come and go.
	//
	// Returns a non-nil *CorrectedTranscript on success. When no corrections
	// are needed, Corrected equals text and Corrections is an empty (non-nil)
	// slice.
	Correct(ctx context.Context, text string, names []string) (*CorrectedTranscript, error)
}

// PhoneticMatcher resolves a single word to a known name based on
// pronunciation similarity. It is the first stage of the correction pipeline
// and is designed to be fast enough for real-time use — no network calls,
// no LLM round-trips.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the name from names that is most phonetically
	// similar to word.
	//
	// Return values:
	//   corrected  — the best-matching name from names.
	//   confidence — similarity score in [0.0, 1.0] where 1.0 is a perfect match.
	//   matched    — true when a sufficiently similar name was found.
	//
	// When matched is false, corrected must equal word unchanged and confidence
	// must be 0. Implementations define their own similarity threshold for
	// deciding when a match is "sufficient".
	Match(word string, names []string) (corrected string, confidence float64, matched bool)
}
