package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// buildTestWAV constructs a minimal valid RIFF/WAVE byte slice containing the
// supplied raw PCM samples: a 12-byte RIFF descriptor, a 16-byte fmt chunk,
// and the data chunk.
func buildTestWAV(pcm []byte) []byte {
	le := binary.LittleEndian
	buf := make([]byte, 0, 44+len(pcm))

	putU32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	buf = append(buf, "RIFF"...)
	putU32(uint32(36 + len(pcm)))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	putU32(16)
	putU16(1) // PCM
	putU16(1) // mono
	putU32(22050)
	putU32(22050 * 2)
	putU16(2)
	putU16(16)

	buf = append(buf, "data"...)
	putU32(uint32(len(pcm)))
	buf = append(buf, pcm...)
	return buf
}

func TestNewEmptyURLReturnsError(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestSynthesizeStandard(t *testing.T) {
	wav := buildTestWAV([]byte{1, 2, 3, 4})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/tts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("text") != "Listening." {
			t.Errorf("text param = %q, want %q", q.Get("text"), "Listening.")
		}
		if q.Get("speaker_id") != "p225" {
			t.Errorf("speaker_id param = %q, want p225", q.Get("speaker_id"))
		}
		if q.Get("language_id") != "en" {
			t.Errorf("language_id param = %q, want en", q.Get("language_id"))
		}
		w.Write(wav)
	}))
	defer srv.Close()

	s, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := s.Synthesize(context.Background(), "Listening.", "p225")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(wav) {
		t.Error("payload does not match the server response")
	}
	if s.Format() != "wav" {
		t.Errorf("Format() = %q, want wav", s.Format())
	}
}

func TestSynthesizeStandardOmitsEmptySpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["speaker_id"]; ok {
			t.Error("speaker_id should be omitted for single-speaker models")
		}
		w.Write(buildTestWAV([]byte{0, 0}))
	}))
	defer srv.Close()

	s, _ := New(srv.URL)
	if _, err := s.Synthesize(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}

func TestSynthesizeXTTS(t *testing.T) {
	wav := buildTestWAV([]byte{9, 8, 7, 6})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts_to_audio/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req xttsRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		if req.Text != "One moment." || req.SpeakerWav != "ref.wav" || req.Language != "en" {
			t.Errorf("unexpected body %+v", req)
		}
		w.Write(wav)
	}))
	defer srv.Close()

	s, err := New(srv.URL, WithAPIMode(APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := s.Synthesize(context.Background(), "One moment.", "ref.wav")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(wav) {
		t.Error("payload does not match the server response")
	}
}

func TestSynthesizeXTTSRequiresVoice(t *testing.T) {
	s, _ := New("http://localhost:8002", WithAPIMode(APIModeXTTS))
	if _, err := s.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected error for empty voice in XTTS mode")
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := New(srv.URL)
	if _, err := s.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestSynthesizeRejectsNonWAVBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "<html>internal error</html>")
	}))
	defer srv.Close()

	s, _ := New(srv.URL)
	_, err := s.Synthesize(context.Background(), "hi", "")
	if err == nil || !strings.Contains(err.Error(), "RIFF") {
		t.Fatalf("want RIFF validation error, got %v", err)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	s, _ := New("http://localhost:5002")
	if _, err := s.Synthesize(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestValidateWAV(t *testing.T) {
	if err := validateWAV(buildTestWAV([]byte{1, 2})); err != nil {
		t.Errorf("valid WAV rejected: %v", err)
	}
	if err := validateWAV([]byte("RIFFxxxxWAVEjunk")); err == nil {
		t.Error("WAV without data chunk accepted")
	}
	if err := validateWAV([]byte("short")); err == nil {
		t.Error("truncated buffer accepted")
	}
}
