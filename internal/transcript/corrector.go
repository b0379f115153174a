package transcript

import (
	"context"
	"log/slog"
	"strings"

	"github.com/attercap/sennet/internal/transcript/llmcorrect"
	"github.com/attercap/sennet/internal/transcript/phonetic"
)

// PipelineOption is a functional option for configuring a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the first correction
// stage. When nil (the default), the phonetic stage is skipped entirely.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// WithLLMCorrector attaches an [llmcorrect.Corrector] as the second correction
// stage. When nil (the default), the LLM stage is skipped entirely.
func WithLLMCorrector(c *llmcorrect.Corrector) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmCorrector = c
	}
}

// CorrectionPipeline is the two-stage transcript correction implementation of
// [Pipeline]. Stages are optional and are applied in order:
//
//  1. [PhoneticMatcher] — fast, in-process phonetic name alignment.
//  2. [llmcorrect.Corrector] — LLM-assisted correction for names the
//     phonetic stage missed.
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic     PhoneticMatcher
	llmCorrector *llmcorrect.Corrector
}

// Ensure CorrectionPipeline satisfies the Pipeline interface at compile time.
var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline constructs a [CorrectionPipeline] with the supplied options.
// By default both stages are disabled (nil); use [WithPhoneticMatcher] and
// [WithLLMCorrector] to activate them.
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct applies the configured correction stages to text and returns a
// [CorrectedTranscript].
//
// Pipeline flow:
//  1. The text is tokenised into whitespace-separated word tokens.
//  2. When a [PhoneticMatcher] is configured, every token is tested against
//     the name list. N-gram windows (up to the maximum name word count) are
//     tested too, so multi-word window names and split renderings like
//     "code x" resolve.
//  3. When an [llmcorrect.Corrector] is configured, it reviews the
//     phonetic-corrected text for misheard names the first stage missed.
//  4. Phonetic and LLM corrections are merged into the final
//     [CorrectedTranscript].
//
// A cancelled ctx returns an error. Any other LLM-stage failure is logged
// and the phonetic result stands; a dead model must not take the voice loop
// down with it.
func (p *CorrectionPipeline) Correct(
	ctx context.Context,
	text string,
	names []string,
) (*CorrectedTranscript, error) {
	result := &CorrectedTranscript{
		Original:    text,
		Corrections: []Correction{},
	}

	// --- Stage 1: phonetic matching ---
	workingText := text
	var phoneticCorrections []Correction

	if p.phonetic != nil && len(names) > 0 {
		workingText, phoneticCorrections = p.applyPhonetic(text, names)
	}

	// --- Stage 2: LLM correction ---
	var llmCorrections []Correction

	if p.llmCorrector != nil && len(names) > 0 {
		correctedText, rawCorrections, err := p.llmCorrector.Correct(ctx, workingText, names)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			slog.Warn("llm correction failed, keeping phonetic result", "err", err)
		default:
			workingText = correctedText
			for _, rc := range rawCorrections {
				llmCorrections = append(llmCorrections, Correction{
					Original:   rc.Original,
					Corrected:  rc.Corrected,
					Confidence: rc.Confidence,
					Method:     "llm",
				})
			}
		}
	}

	// --- Merge results ---
	result.Corrected = workingText
	result.Corrections = append(result.Corrections, phoneticCorrections...)
	result.Corrections = append(result.Corrections, llmCorrections...)

	return result, nil
}

// applyPhonetic runs the phonetic matching stage over the text.
// It returns the corrected text and the list of corrections applied.
//
// The algorithm:
//  1. Tokenise the text into words.
//  2. Determine the maximum number of words in any name.
//  3. At each token position, try n-gram windows from maxNameWords down to 1.
//     Accept the longest n-gram match so that multi-word names take
//     precedence over partial single-word matches.
//  4. Append matched (or unmatched) tokens to the output and advance the
//     cursor by the number of tokens consumed.
//
// Tokens are matched with surrounding punctuation stripped; trailing
// punctuation is re-attached after a substitution so sentence structure
// survives ("ask clawed, then..." keeps its comma).
func (p *CorrectionPipeline) applyPhonetic(
	text string,
	names []string,
) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	// When the matcher supports precomputation, prepare name data once
	// and use the fast path for all window comparisons.
	var matchFn func(string) (string, float64, bool)
	var maxNameWords int

	if pm, ok := p.phonetic.(*phonetic.Matcher); ok {
		vocab := phonetic.PrepareVocab(names)
		maxNameWords = vocab.MaxWords()
		matchFn = func(word string) (string, float64, bool) {
			return pm.MatchPrepared(word, vocab)
		}
	} else {
		maxNameWords = maxWordCount(names)
		matchFn = func(word string) (string, float64, bool) {
			return p.phonetic.Match(word, names)
		}
	}

	if maxNameWords == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := maxNameWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			raw := tokens[i : i+n]
			window := joinStripped(raw)
			name, conf, ok := matchFn(window)
			if !ok {
				continue
			}

			// Emit the canonical name tokens, keeping any trailing
			// punctuation from the consumed span.
			nameTokens := strings.Fields(name)
			output = append(output, nameTokens...)
			if trail := trailingPunct(raw[n-1]); trail != "" && len(output) > 0 {
				output[len(output)-1] += trail
			}
			if window != name {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  name,
					Confidence: conf,
					Method:     "phonetic",
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

const punctCutset = ".,!?;:\"'"

// joinStripped joins tokens with single spaces, stripping surrounding
// punctuation from each.
func joinStripped(tokens []string) string {
	clean := make([]string, len(tokens))
	for i, t := range tokens {
		clean[i] = strings.Trim(t, punctCutset)
	}
	return strings.Join(clean, " ")
}

// trailingPunct returns the run of punctuation characters ending token.
func trailingPunct(token string) string {
	return token[len(strings.TrimRight(token, punctCutset)):]
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any name string. Returns 1 when names is empty.
func maxWordCount(names []string) int {
	max := 1
	for _, n := range names {
		words := len(strings.Fields(n))
		if words > max {
			max = words
		}
	}
	return max
}
