package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/voiceid"
)

// DefaultThreshold is the minimum cosine similarity at which an utterance is
// accepted as the enrolled speaker.
const DefaultThreshold = 0.65

// DefaultProfileName is the file name used under the cache root when no
// profile path is configured. The daemon and the enrollment CLI must agree
// on it or enrollment writes a profile the daemon never finds.
const DefaultProfileName = "speaker_profile.json"

// minClipDuration is the shortest clip worth embedding; shorter clips yield
// vectors that compare poorly.
const minClipDuration = 100 * time.Millisecond

// profileFile is the persisted voiceprint format.
type profileFile struct {
	Dimensions int       `json:"dimensions"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"created_at"`
}

// Verifier compares utterances against an enrolled voiceprint so commands
// from background audio or other speakers are discarded. Verification is
// opt-in: with no profile on disk every utterance passes.
type Verifier struct {
	emb       voiceid.Embedder
	path      string
	threshold float64

	mu      sync.Mutex
	profile []float32
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithThreshold overrides the acceptance similarity.
func WithThreshold(t float64) VerifierOption {
	return func(v *Verifier) {
		if t > 0 {
			v.threshold = t
		}
	}
}

// NewVerifier creates a verifier persisting its profile at profilePath. An
// existing profile is loaded immediately; an unreadable or mismatched one is
// logged and ignored, leaving verification disabled.
func NewVerifier(emb voiceid.Embedder, profilePath string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		emb:       emb,
		path:      profilePath,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("no speaker profile; verification disabled", "path", profilePath)
		} else {
			slog.Warn("speaker profile unusable; verification disabled", "path", profilePath, "err", err)
		}
	} else {
		slog.Info("speaker profile loaded", "path", profilePath, "dimensions", len(v.profile))
	}
	return v
}

// Enrolled reports whether a voiceprint is active.
func (v *Verifier) Enrolled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.profile != nil
}

// Enroll embeds each clip, averages the vectors into a voiceprint, and
// persists it. Clips shorter than a tenth of a second are skipped; at least
// one usable clip is required.
func (v *Verifier) Enroll(ctx context.Context, clips []audio.Clip) error {
	var sum []float64
	used := 0
	for i, clip := range clips {
		if clip.Duration() < minClipDuration {
			slog.Warn("enrollment clip too short, skipping", "clip", i+1, "duration", clip.Duration())
			continue
		}
		vec, err := v.emb.Embed(ctx, clip)
		if err != nil {
			return fmt.Errorf("speech: enroll clip %d: %w", i+1, err)
		}
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		if len(vec) != len(sum) {
			return fmt.Errorf("speech: enroll clip %d: embedding length %d, want %d", i+1, len(vec), len(sum))
		}
		for j, x := range vec {
			sum[j] += float64(x)
		}
		used++
	}
	if used == 0 {
		return errors.New("speech: no usable enrollment clips")
	}

	mean := make([]float32, len(sum))
	for i, s := range sum {
		mean[i] = float32(s / float64(used))
	}

	if err := v.save(mean); err != nil {
		return err
	}
	v.mu.Lock()
	v.profile = mean
	v.mu.Unlock()
	slog.Info("speaker profile enrolled", "clips", used, "path", v.path)
	return nil
}

// Verify compares clip against the voiceprint and returns whether it passes
// along with the cosine similarity. With no profile every clip passes at
// similarity 1. A clip too short to embed fails at similarity 0.
func (v *Verifier) Verify(ctx context.Context, clip audio.Clip) (bool, float64, error) {
	v.mu.Lock()
	profile := v.profile
	v.mu.Unlock()
	if profile == nil {
		return true, 1.0, nil
	}
	if clip.Duration() < minClipDuration {
		return false, 0, nil
	}

	vec, err := v.emb.Embed(ctx, clip)
	if err != nil {
		return false, 0, fmt.Errorf("speech: verify: %w", err)
	}
	sim := cosine(vec, profile)
	return sim >= v.threshold, sim, nil
}

func (v *Verifier) load() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return err
	}
	var pf profileFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse profile: %w", err)
	}
	if len(pf.Vector) == 0 || len(pf.Vector) != pf.Dimensions {
		return fmt.Errorf("profile vector length %d does not match declared dimensions %d", len(pf.Vector), pf.Dimensions)
	}
	if want := v.emb.Dimensions(); want > 0 && want != len(pf.Vector) {
		return fmt.Errorf("profile has %d dimensions, embedder produces %d; re-enroll", len(pf.Vector), want)
	}
	v.mu.Lock()
	v.profile = pf.Vector
	v.mu.Unlock()
	return nil
}

func (v *Verifier) save(vec []float32) error {
	pf := profileFile{
		Dimensions: len(vec),
		Vector:     vec,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("speech: marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o755); err != nil {
		return fmt.Errorf("speech: create profile dir: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0o600); err != nil {
		return fmt.Errorf("speech: write profile: %w", err)
	}
	return nil
}

// cosine returns the cosine similarity of two vectors, or 0 when either has
// zero magnitude or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
