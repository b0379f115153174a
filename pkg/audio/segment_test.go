package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/audio/mock"
)

// Frames are 80 ms, so these params keep tests fast while exercising the
// same ratios the daemon uses.
func testParams() audio.ClipParams {
	return audio.ClipParams{
		WaitTimeout: 2 * time.Second,
		PhraseLimit: 15 * time.Second,
		Pause:       400 * time.Millisecond, // 5 frames
	}
}

func TestSegmenter_CapturesUtterance(t *testing.T) {
	t.Parallel()
	src := &mock.Source{}
	src.Append(mock.Silence(3), mock.Tone(10, 2000), mock.Silence(8))

	seg := audio.NewSegmenter(src)
	clip, err := seg.ReadClip(context.Background(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.Rate != audio.SampleRate {
		t.Errorf("clip rate: got %d, want %d", clip.Rate, audio.SampleRate)
	}
	// 10 voiced frames plus pre-roll and the pause tail.
	minSamples := 10 * audio.FrameSamples
	if len(clip.Samples) < minSamples {
		t.Errorf("clip too short: got %d samples, want at least %d", len(clip.Samples), minSamples)
	}
}

func TestSegmenter_TimesOutOnSilence(t *testing.T) {
	t.Parallel()
	src := &mock.Source{}
	src.Append(mock.Silence(100))

	seg := audio.NewSegmenter(src)
	p := testParams()
	p.WaitTimeout = 200 * time.Millisecond

	start := time.Now()
	_, err := seg.ReadClip(context.Background(), p)
	if !errors.Is(err, audio.ErrListenTimeout) {
		t.Fatalf("expected ErrListenTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestSegmenter_PhraseLimitCapsClip(t *testing.T) {
	t.Parallel()
	src := &mock.Source{}
	// A speaker who never pauses.
	src.Append(mock.Tone(100, 2000))

	seg := audio.NewSegmenter(src)
	p := testParams()
	p.PhraseLimit = 800 * time.Millisecond // 10 frames

	clip, err := seg.ReadClip(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	maxSamples := (10 + 2) * audio.FrameSamples // limit plus pre-roll slack
	if len(clip.Samples) > maxSamples {
		t.Errorf("clip exceeds phrase limit: got %d samples, want at most %d", len(clip.Samples), maxSamples)
	}
}

func TestSegmenter_ContextCancellation(t *testing.T) {
	t.Parallel()
	src := &mock.Source{BlockWhenEmpty: true}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	seg := audio.NewSegmenter(src)
	_, err := seg.ReadClip(ctx, testParams())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSegmenter_SourceErrorPropagates(t *testing.T) {
	t.Parallel()
	src := &mock.Source{ReadErr: audio.ErrSourceClosed}

	seg := audio.NewSegmenter(src)
	_, err := seg.ReadClip(context.Background(), testParams())
	if !errors.Is(err, audio.ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}

func TestSegmenter_NoiseFloorAdapts(t *testing.T) {
	t.Parallel()
	src := &mock.Source{}
	// Constant 200-RMS hum: below the absolute gate, so it never starts a
	// clip, but the floor should drift up toward it.
	src.Append(mock.Tone(30, 200))

	seg := audio.NewSegmenter(src)
	p := testParams()
	p.WaitTimeout = 100 * time.Millisecond
	before := seg.NoiseFloor()
	_, _ = seg.ReadClip(context.Background(), p)
	after := seg.NoiseFloor()

	if after <= before {
		t.Errorf("noise floor did not adapt upward: before=%v after=%v", before, after)
	}
}

func TestSegmenter_IgnoresQuietHum(t *testing.T) {
	t.Parallel()
	src := &mock.Source{}
	// Hum below the absolute minimum gate, then real speech.
	src.Append(mock.Tone(5, 150), mock.Tone(8, 3000), mock.Silence(8))

	seg := audio.NewSegmenter(src)
	clip, err := seg.ReadClip(context.Background(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.Duration() > 2*time.Second {
		t.Errorf("clip should contain only the speech burst, got %v", clip.Duration())
	}
}
