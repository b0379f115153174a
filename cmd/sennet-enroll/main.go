// Command sennet-enroll records a few spoken phrases from the microphone
// and saves the averaged voiceprint the daemon verifies utterances against.
// Re-running it replaces the existing profile.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/attercap/sennet/internal/config"
	"github.com/attercap/sennet/internal/speech"
	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/audio/miniaudio"
	"github.com/attercap/sennet/pkg/provider/voiceid/onnx"
)

// enrollListen bounds each sample recording. Longer than the daemon's
// conversational window so the user can read a full sentence.
var enrollListen = audio.ClipParams{
	WaitTimeout: 10 * time.Second,
	PhraseLimit: 10 * time.Second,
	Pause:       time.Second,
}

var samplePhrases = []string{
	"Hey, can you check on the build in window three for me?",
	"Tell the agent to run the tests and let me know when they finish.",
	"What was the last thing we talked about before lunch?",
	"Switch to window two and show me what went wrong there.",
	"Save a note that the deploy is scheduled for tomorrow morning.",
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "sennet.yaml", "path to the YAML configuration file")
	samples := flag.Int("samples", 3, "number of phrases to record (1-5)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if *samples < 1 || *samples > len(samplePhrases) {
		fmt.Fprintf(os.Stderr, "sennet-enroll: samples must be between 1 and %d\n", len(samplePhrases))
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-enroll: %v\n", err)
		return 1
	}
	if cfg.Providers.VoiceID.Name == "" {
		fmt.Fprintln(os.Stderr, "sennet-enroll: no voiceid provider configured")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := onnx.New(cfg.Providers.VoiceID.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-enroll: load speaker model: %v\n", err)
		return 1
	}

	src, err := miniaudio.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-enroll: open microphone: %v\n", err)
		return 1
	}
	defer src.Close()

	profilePath := cfg.Speaker.ProfilePath
	if profilePath == "" {
		root, err := config.CacheRoot()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sennet-enroll: %v\n", err)
			return 1
		}
		profilePath = filepath.Join(root, speech.DefaultProfileName)
	}

	fmt.Printf("Recording %d samples. Speak each phrase after the prompt.\n\n", *samples)

	segmenter := audio.NewSegmenter(src)
	clips := make([]audio.Clip, 0, *samples)
	for i := 0; i < *samples; i++ {
		fmt.Printf("[%d/%d] Say: %q\n", i+1, *samples, samplePhrases[i])
		clip, err := segmenter.ReadClip(ctx, enrollListen)
		if err != nil {
			if errors.Is(err, audio.ErrListenTimeout) {
				fmt.Println("  ...heard nothing, try again")
				i--
				continue
			}
			fmt.Fprintf(os.Stderr, "sennet-enroll: record: %v\n", err)
			return 1
		}
		fmt.Printf("  captured %.1fs of audio\n", float64(len(clip.Samples))/float64(clip.Rate))
		clips = append(clips, clip)
	}

	verifier := speech.NewVerifier(embedder, profilePath, speech.WithThreshold(cfg.Speaker.Threshold))
	if err := verifier.Enroll(ctx, clips); err != nil {
		fmt.Fprintf(os.Stderr, "sennet-enroll: %v\n", err)
		return 1
	}

	fmt.Printf("\nVoiceprint saved to %s\n", profilePath)
	return 0
}
