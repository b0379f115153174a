// Package phonetic implements the [transcript.PhoneticMatcher] interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word in the input and for each known name. If any code from the
//     input overlaps with any code from a name, the name becomes a phonetic
//     candidate. This is what lets "clawed" and "cloud" resolve to the agent
//     "claude" — all three encode to the same leading phoneme cluster.
//
//  2. Jaro-Winkler ranking: Among phonetic candidates, the name with the
//     highest Jaro-Winkler similarity (computed on the original strings,
//     case-insensitive) is selected — provided its score exceeds the
//     configurable phonetic threshold.
//
//     When no phonetic candidate is found, a secondary pass tests pure
//     Jaro-Winkler similarity against all names using a higher fuzzy
//     threshold (default 0.85).
//
// Multi-word names (e.g., a window called "backend api") are supported: the
// matcher computes phonetic codes per word and considers the best pairwise
// score across all word pairs when ranking candidates.
//
// The vocabulary changes whenever tmux windows come and go, so callers that
// match many tokens against one vocabulary snapshot should use [PrepareVocab]
// once and [Matcher.MatchPrepared] per token to avoid recomputing name codes.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched name to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is a phonetic name matcher. It implements [transcript.PhoneticMatcher].
// All methods are safe for concurrent use — the Matcher is read-only after
// construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
// Default thresholds are 0.70 for phonetic matches and 0.85 for fuzzy
// fallback matches.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// vocabEntry is one prepared name: its canonical spelling plus the derived
// data every comparison needs.
type vocabEntry struct {
	name   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Vocab is a prepared snapshot of the known names. Build it once per
// vocabulary state with [PrepareVocab]; it is read-only afterwards and safe
// to share between goroutines.
type Vocab struct {
	entries  []vocabEntry
	maxWords int
}

// PrepareVocab tokenises names and precomputes their Double Metaphone codes.
// Blank names are dropped.
func PrepareVocab(names []string) *Vocab {
	v := &Vocab{entries: make([]vocabEntry, 0, len(names))}
	for _, name := range names {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.entries = append(v.entries, vocabEntry{
			name:   name,
			lower:  lower,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
		if len(tokens) > v.maxWords {
			v.maxWords = len(tokens)
		}
	}
	return v
}

// MaxWords returns the token count of the longest prepared name, or 0 for an
// empty vocabulary.
func (v *Vocab) MaxWords() int {
	return v.maxWords
}

// Match attempts to find the name from names that is most phonetically
// similar to word. It prepares the vocabulary on every call; use
// [PrepareVocab] and [Matcher.MatchPrepared] when matching repeatedly against
// the same names.
//
// word may be a single word or a space-separated phrase (n-gram). When word
// contains multiple tokens, the matcher checks whether any token phonetically
// aligns with any token in a multi-word name, then ranks by Jaro-Winkler on
// the full strings.
//
// Return values follow the [transcript.PhoneticMatcher] contract: when
// matched is false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, names []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(word, PrepareVocab(names))
}

// MatchPrepared is [Matcher.Match] against a prepared vocabulary.
func (m *Matcher) MatchPrepared(word string, vocab *Vocab) (corrected string, confidence float64, matched bool) {
	if vocab == nil || len(vocab.entries) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		name     string
		score    float64
		phonetic bool
	}

	var best candidate

	for _, entry := range vocab.entries {
		phoneticMatch := codesOverlap(inputCodes, entry.codes)

		// Compute the best Jaro-Winkler score for this name using several
		// comparison strategies to handle multi-word mismatches robustly.
		jwScore := bestJWScore(wordTokens, entry.tokens, wordLower, entry.lower)

		if phoneticMatch {
			if jwScore >= m.phoneticThreshold {
				if !best.phonetic || jwScore > best.score {
					best = candidate{name: entry.name, score: jwScore, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if jwScore >= m.fuzzyThreshold && jwScore > best.score {
				best = candidate{name: entry.name, score: jwScore, phonetic: false}
			}
		}
	}

	if best.name != "" {
		return best.name, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or
// contains no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	// Iterate over the smaller set for efficiency.
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and the name using three strategies:
//
//  1. Full-string comparison (e.g., "code x" vs "codex").
//  2. Space-stripped comparison (e.g., "backendapi" vs "backend api").
//  3. Best pairwise word comparison — the maximum JW score between any input
//     token and any name token (useful when one spoken word corresponds to
//     one name word).
//
// longTolerance is passed as false to use standard Jaro-Winkler scoring.
func bestJWScore(inputTokens, nameTokens []string, inputFull, nameFull string) float64 {
	// Strategy 1: full strings.
	score := matchr.JaroWinkler(inputFull, nameFull, false)

	// Strategy 2: concatenated (no spaces).
	if len(inputTokens) > 1 || len(nameTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(nameTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	// Strategy 3: best pairwise token score.
	for _, it := range inputTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(it, nt, false); s > score {
				score = s
			}
		}
	}

	return score
}
