// Package coqui implements tts.Synthesizer against a locally running Coqui
// TTS server. It is the offline fallback for when the hosted synthesizer is
// unreachable.
//
// Two server APIs are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
//     with URL query parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is performed via
//     POST /tts_to_audio/ with a JSON body.
//
// Both APIs return a complete RIFF/WAVE payload per request, which is passed
// through untouched; the audio player consumes the container directly.
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/attercap/sennet/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	apiTTSEndpoint = "/api/tts"
	xttsEndpoint   = "/tts_to_audio/"
)

// APIMode selects which Coqui server API the synthesizer targets.
type APIMode string

const (
	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"
)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the language code sent to the server (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.httpClient.Timeout = d }
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(s *Synthesizer) { s.apiMode = mode }
}

// Synthesizer implements tts.Synthesizer backed by a local Coqui TTS server.
// It is safe for concurrent use.
type Synthesizer struct {
	serverURL  string
	language   string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a Synthesizer that targets the Coqui server at serverURL (e.g.,
// "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format returns "wav"; both Coqui server APIs respond with RIFF/WAVE.
func (s *Synthesizer) Format() string { return "wav" }

// Synthesize renders one phrase through the configured server API and returns
// the WAV payload. voice selects the speaker: a speaker ID in standard mode,
// a speaker wav reference in XTTS mode. Single-speaker standard models accept
// an empty voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	var (
		wav []byte
		err error
	)
	if s.apiMode == APIModeXTTS {
		wav, err = s.synthesizeXTTS(ctx, text, voice)
	} else {
		wav, err = s.synthesizeStandard(ctx, text, voice)
	}
	if err != nil {
		return nil, err
	}
	if err := validateWAV(wav); err != nil {
		return nil, err
	}
	return wav, nil
}

// synthesizeStandard performs a single GET /api/tts request using URL query
// parameters.
func (s *Synthesizer) synthesizeStandard(ctx context.Context, text, voice string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice != "" {
		params.Set("speaker_id", voice)
	}
	if s.language != "" {
		params.Set("language_id", s.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	return s.do(req, apiTTSEndpoint)
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode).
func (s *Synthesizer) synthesizeXTTS(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		return nil, errors.New("coqui: voice must not be empty in XTTS mode")
	}
	body, err := json.Marshal(xttsRequest{
		Text:       text,
		SpeakerWav: voice,
		Language:   s.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.serverURL+xttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	return s.do(req, xttsEndpoint)
}

func (s *Synthesizer) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, endpoint, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return data, nil
}

// validateWAV walks the RIFF chunks and confirms the response is a WAVE
// container with a data chunk. Some server failure modes return HTML with
// status 200; this keeps such responses out of the audio cache.
func validateWAV(wav []byte) error {
	if len(wav) < 12 {
		return errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return errors.New("coqui: WAV response missing WAVE identifier")
	}

	// Chunks start after the 12-byte RIFF/WAVE header and are word-aligned.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		if chunkID == "data" {
			return nil
		}
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return errors.New("coqui: WAV response missing data chunk")
}
