package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pmorken/simple-stt/internal/audio"
	"github.com/pmorken/simple-stt/internal/config"
	"github.com/pmorken/simple-stt/internal/hotkey"
	"github.com/pmorken/simple-stt/internal/inject"
	"github.com/pmorken/simple-stt/internal/logging"
	"github.com/pmorken/simple-stt/internal/stt"
	"github.com/pmorken/simple-stt/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/simple-stt/config.yaml)")
	tune := flag.Bool("tune", false, "run silence threshold calibration and save the result")
	tuneDuration := flag.Duration("tune-duration", 12*time.Second, "total length of a calibration run")
	verbose := flag.Bool("verbose", false, "enable debug logging on the console")
	stdoutOut := flag.Bool("stdout", false, "print the transcript instead of injecting it")
	stream := flag.Bool("stream", false, "record until the stop hotkey instead of until silence")
	checkConfig := flag.Bool("check-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, savePath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if *checkConfig {
		printConfig(cfg, savePath)
		return nil
	}

	log, err := logging.New(cfg.LogLevel, *verbose, config.DefaultDataDir())
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *tune {
		return runTune(ctx, cfg, savePath, *tuneDuration, log)
	}
	return runOnce(ctx, cfg, log, *stdoutOut, *stream)
}

// runOnce records a single utterance, transcribes it, and delivers the text.
// Backend preparation runs concurrently with the recording so model loading
// never delays capture.
func runOnce(ctx context.Context, cfg *config.Config, log *zap.Logger, toStdout, stream bool) error {
	dev, err := audio.OpenInput(audio.DeviceRequest{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		ChunkSize:  cfg.Audio.ChunkSize,
	}, log)
	if err != nil {
		return fmt.Errorf("opening input device: %w", err)
	}
	defer dev.Close()

	proc, err := stt.New(cfg.Whisper, log)
	if err != nil {
		return err
	}
	prep := stt.Begin(ctx, proc)

	rec := audio.NewRecorder(dev, audio.RecorderConfig{
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		SilenceDuration:  cfg.Audio.SilenceWindow(),
		MaxRecordingTime: cfg.Audio.MaxDuration(),
	}, log)

	repCtx, stopReporter := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error {
		ui.NewReporter(rec, os.Stderr).Run(repCtx)
		return nil
	})

	var clip *audio.Clip
	var recErr error
	if stream {
		clip, recErr = recordStreaming(ctx, cfg, rec)
	} else {
		fmt.Fprintln(os.Stderr, "Listening... speak now (stops after silence)")
		clip, recErr = rec.RecordUntilSilence(ctx)
	}
	stopReporter()
	g.Wait()

	if recErr != nil {
		if clip == nil {
			return recErr
		}
		log.Warn("recording ended with error, keeping partial audio",
			zap.String("path", clip.Path), zap.Error(recErr))
		fmt.Fprintf(os.Stderr, "Recording ended early (%v); partial audio kept at %s\n", recErr, clip.Path)
	}
	if clip == nil {
		fmt.Fprintln(os.Stderr, "No meaningful audio recorded.")
		return nil
	}

	// Join the preparation only now that there is audio to transcribe.
	proc, prepErr := prep.Wait(ctx)
	if prepErr != nil {
		fmt.Fprintf(os.Stderr, "Transcription backend unavailable: %v\nRecording kept at %s\n", prepErr, clip.Path)
		return nil
	}
	if !proc.IsConfigured() {
		fmt.Fprintf(os.Stderr, "Transcription backend is not configured.\nRecording kept at %s\n", clip.Path)
		return nil
	}

	tctx, tcancel := context.WithTimeout(ctx, time.Duration(cfg.Whisper.Timeout)*time.Second)
	defer tcancel()

	start := time.Now()
	text, err := proc.Transcribe(tctx, clip.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Transcription failed: %v\nRecording kept at %s\n", err, clip.Path)
		return err
	}
	log.Info("transcription finished",
		zap.Duration("took", time.Since(start).Round(time.Millisecond)),
		zap.Int("chars", len(text)))

	if text == "" {
		fmt.Fprintln(os.Stderr, "No speech detected.")
		os.Remove(clip.Path)
		return nil
	}

	if err := deliver(cfg, text, toStdout); err != nil {
		// Never lose the transcript: fall back to printing it.
		fmt.Println(text)
		return err
	}

	os.Remove(clip.Path)
	return nil
}

// recordStreaming runs an open-ended recording that the stop hotkey ends.
// The silence gate and recording cap still apply underneath.
func recordStreaming(ctx context.Context, cfg *config.Config, rec *audio.Recorder) (*audio.Clip, error) {
	stopper := hotkey.NewStopper(cfg.StopHotkey)
	go stopper.Start()
	defer stopper.Stop()

	fmt.Fprintf(os.Stderr, "Recording... press %s to stop\n", strings.Join(cfg.StopHotkey, "+"))

	ss := rec.Stream(ctx, nil)
	select {
	case <-stopper.Triggered():
		ss.Stop()
	case <-ss.Done():
	case <-ctx.Done():
		ss.Stop()
	}
	return ss.Wait()
}

// deliver sends the transcript to its destination.
func deliver(cfg *config.Config, text string, toStdout bool) error {
	if toStdout || cfg.Output.Method == "stdout" {
		fmt.Println(text)
		return nil
	}
	return inject.NewInjector(cfg.Output.Method).Inject(text)
}

// runTune runs the guided calibration, prints the suggestions, and persists
// the balanced threshold.
func runTune(ctx context.Context, cfg *config.Config, savePath string, total time.Duration, log *zap.Logger) error {
	dev, err := audio.OpenInput(audio.DeviceRequest{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		ChunkSize:  cfg.Audio.ChunkSize,
	}, log)
	if err != nil {
		return fmt.Errorf("opening input device: %w", err)
	}
	defer dev.Close()

	rec := audio.NewRecorder(dev, audio.RecorderConfig{
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		SilenceDuration:  cfg.Audio.SilenceWindow(),
		MaxRecordingTime: cfg.Audio.MaxDuration(),
	}, log)

	fmt.Println("=== Silence threshold calibration ===")
	res, err := rec.Tune(ctx, total, func(msg string) { fmt.Println(msg) })
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("tuning: %w", err)
	}

	fmt.Println()
	fmt.Printf("Silence  avg %.1f  max %.1f  p95 %.1f\n", res.AvgSilence, res.MaxSilence, res.P95Silence)
	fmt.Printf("Speech   avg %.1f  min %.1f  p10 %.1f\n", res.AvgSpeech, res.MinSpeech, res.P10Speech)
	fmt.Println()
	if !res.Separated {
		fmt.Println("Warning: silence and speech levels overlap; suggestions are approximate.")
	}
	fmt.Printf("Suggested thresholds:\n")
	fmt.Printf("  conservative %.1f (stops sooner)\n", res.Conservative)
	fmt.Printf("  balanced     %.1f (recommended)\n", res.Balanced)
	fmt.Printf("  aggressive   %.1f (tolerates pauses)\n", res.Aggressive)

	if err := cfg.UpdateSilenceThreshold(savePath, res.Balanced); err != nil {
		return fmt.Errorf("saving threshold: %w", err)
	}
	fmt.Printf("\nSaved silence_threshold=%.1f to %s\n", res.Balanced, savePath)
	return nil
}

// loadConfig loads the config from the given path, or the default path if it
// exists, or built-in defaults. It also returns the path Save should use.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	cfg := config.Default()
	cfg.ApplyEnv()
	return cfg, defaultPath, nil
}

// printConfig displays the effective configuration summary.
func printConfig(cfg *config.Config, path string) {
	fmt.Println("=== simple-stt ===")
	fmt.Printf("  Config:    %s\n", path)
	fmt.Printf("  Audio:     %dHz, %dch, chunk %d\n", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.ChunkSize)
	fmt.Printf("  Silence:   threshold %.1f, window %.1fs, cap %.0fs\n",
		cfg.Audio.SilenceThreshold, cfg.Audio.SilenceDuration, cfg.Audio.MaxRecordingTime)
	fmt.Printf("  Backend:   %s (model %s)\n", cfg.Whisper.Backend, cfg.Whisper.Model)
	fmt.Printf("  Output:    %s\n", cfg.Output.Method)
	fmt.Printf("  Stop key:  %s\n", strings.Join(cfg.StopHotkey, "+"))
	fmt.Printf("  Log level: %s\n", cfg.LogLevel)
	fmt.Println("==================")
}
