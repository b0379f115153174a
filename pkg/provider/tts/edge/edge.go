// Package edge implements tts.Synthesizer on the Microsoft Edge read-aloud
// service: the same WebSocket endpoint the Edge browser uses for its
// read-aloud feature. It needs no API key and serves the full neural voice
// catalogue as MP3.
package edge

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/attercap/sennet/pkg/provider/tts"
)

const (
	wsEndpoint         = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	chromiumVersion    = "130.0.2849.68"
	userAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"

	defaultVoice  = "en-US-AriaNeural"
	defaultFormat = "audio-24khz-48kbitrate-mono-mp3"

	// maxMessageSize caps a single frame from the service; audio arrives in
	// chunks far below this.
	maxMessageSize = 1 << 22
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithVoice sets the default voice used when Synthesize is called with an
// empty voice (e.g., "en-US-AriaNeural", "en-GB-SoniaNeural").
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithOutputFormat sets the service output format string (e.g.,
// "audio-24khz-48kbitrate-mono-mp3"). The payload extension reported by
// Format follows it.
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) { s.outputFormat = format }
}

// Synthesizer implements tts.Synthesizer backed by the Edge read-aloud
// WebSocket API. One connection is dialled per Synthesize call.
type Synthesizer struct {
	voice        string
	outputFormat string
}

// New creates an Edge Synthesizer. The service is keyless, so New never
// performs network I/O and cannot fail beyond option validation.
func New(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		voice:        defaultVoice,
		outputFormat: defaultFormat,
	}
	for _, o := range opts {
		o(s)
	}
	if s.voice == "" {
		return nil, errors.New("edge: voice must not be empty")
	}
	return s, nil
}

// Format returns the container extension of the configured output format.
func (s *Synthesizer) Format() string {
	return formatExt(s.outputFormat)
}

// Synthesize renders text via one WebSocket exchange: speech.config, then the
// SSML request, then binary audio frames until the service signals turn.end.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("edge: text must not be empty")
	}
	if voice == "" {
		voice = s.voice
	}

	connID := strings.ReplaceAll(uuid.NewString(), "-", "")
	u := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=1-%s&ConnectionId=%s",
		wsEndpoint, trustedClientToken, secMSGEC(time.Now()), chromiumVersion, connID)

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Origin":        {"chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"},
			"User-Agent":    {userAgent},
			"Pragma":        {"no-cache"},
			"Cache-Control": {"no-cache"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("edge: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(maxMessageSize)

	ts := jsDate(time.Now())
	if err := conn.Write(ctx, websocket.MessageText, speechConfig(ts, s.outputFormat)); err != nil {
		return nil, fmt.Errorf("edge: send speech.config: %w", err)
	}
	reqID := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := conn.Write(ctx, websocket.MessageText, ssmlRequest(reqID, ts, voice, text)); err != nil {
		return nil, fmt.Errorf("edge: send ssml: %w", err)
	}

	var audio []byte
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("edge: read: %w", err)
		}
		switch typ {
		case websocket.MessageBinary:
			if payload, ok := audioPayload(data); ok {
				audio = append(audio, payload...)
			}
		case websocket.MessageText:
			if strings.Contains(string(data), "Path:turn.end") {
				if len(audio) == 0 {
					return nil, errors.New("edge: synthesis produced no audio")
				}
				return audio, nil
			}
		}
	}
}

// ---- wire helpers ----

// jsDate formats t the way a browser's Date.toString() does; the service
// expects this exact shape in X-Timestamp headers.
func jsDate(t time.Time) string {
	return t.UTC().Format("Mon Jan 02 2006 15:04:05") + " GMT+0000 (Coordinated Universal Time)"
}

// speechConfig builds the session configuration message that selects the
// output format and disables boundary metadata frames.
func speechConfig(ts, format string) []byte {
	var b strings.Builder
	b.WriteString("X-Timestamp:" + ts + "\r\n")
	b.WriteString("Content-Type:application/json; charset=utf-8\r\n")
	b.WriteString("Path:speech.config\r\n\r\n")
	b.WriteString(`{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + format + `"}}}}`)
	return []byte(b.String())
}

// ssmlRequest builds the synthesis request message carrying the SSML document.
func ssmlRequest(reqID, ts, voice, text string) []byte {
	ssml := fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>"+
		"<voice name='%s'><prosody pitch='+0Hz' rate='+0%%' volume='+0%%'>%s</prosody></voice></speak>",
		voice, escapeXML(text))
	var b strings.Builder
	b.WriteString("X-RequestId:" + reqID + "\r\n")
	b.WriteString("Content-Type:application/ssml+xml\r\n")
	b.WriteString("X-Timestamp:" + ts + "Z\r\n")
	b.WriteString("Path:ssml\r\n\r\n")
	b.WriteString(ssml)
	return []byte(b.String())
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func escapeXML(s string) string { return xmlEscaper.Replace(s) }

// audioPayload extracts the audio bytes from a binary service frame. Frames
// start with a big-endian uint16 header length followed by MIME-style headers;
// only frames whose Path header is audio carry a payload.
func audioPayload(frame []byte) ([]byte, bool) {
	if len(frame) < 2 {
		return nil, false
	}
	hlen := int(binary.BigEndian.Uint16(frame[:2]))
	if len(frame) < 2+hlen {
		return nil, false
	}
	if !strings.Contains(string(frame[2:2+hlen]), "Path:audio") {
		return nil, false
	}
	return frame[2+hlen:], true
}

// secMSGEC derives the anti-abuse token the service requires: the SHA-256 of
// the trusted client token appended to the current Windows file time floored
// to a five-minute boundary.
func secMSGEC(now time.Time) string {
	const unixToFileTimeSec = 11644473600
	ticks := now.UTC().Unix() + unixToFileTimeSec
	ticks -= ticks % 300
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", ticks*10_000_000, trustedClientToken)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// formatExt maps a service output format string to a file extension.
func formatExt(format string) string {
	switch {
	case strings.Contains(format, "mp3"):
		return "mp3"
	case strings.Contains(format, "opus"):
		return "opus"
	case strings.Contains(format, "ogg"):
		return "ogg"
	case strings.Contains(format, "riff"), strings.Contains(format, "pcm"):
		return "wav"
	default:
		return "mp3"
	}
}
