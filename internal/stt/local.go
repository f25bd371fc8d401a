package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pmorken/simple-stt/internal/config"
	"github.com/pmorken/simple-stt/internal/models"
)

// whisperBinaries are the executable names probed for the local backend, in
// preference order.
var whisperBinaries = []string{"whisper-cli", "whisper-cpp", "whisper"}

// localProcessor transcribes with a whisper.cpp CLI binary and a ggml model
// file. Preparation locates the binary and downloads the model when it is
// missing and downloads are enabled.
type localProcessor struct {
	model     string
	modelPath string
	download  bool
	timeout   time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	binPath string
	ready   bool
}

func newLocalProcessor(cfg config.WhisperConfig, log *zap.Logger) *localProcessor {
	modelPath := cfg.ModelPath
	if modelPath == "" {
		modelPath = filepath.Join(config.DefaultModelsDir(), fmt.Sprintf("ggml-%s.bin", cfg.Model))
	}

	return &localProcessor{
		model:     cfg.Model,
		modelPath: modelPath,
		download:  cfg.DownloadModels,
		timeout:   time.Duration(cfg.Timeout) * time.Second,
		log:       log,
	}
}

func (l *localProcessor) IsConfigured() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Prepare locates the whisper binary and ensures the model file exists,
// downloading it when allowed. Runs concurrently with recording; it must
// not touch the capture path.
func (l *localProcessor) Prepare(ctx context.Context) error {
	bin, err := findWhisperBinary()
	if err != nil {
		return err
	}

	if _, err := os.Stat(l.modelPath); err != nil {
		if !l.download {
			return fmt.Errorf("model file not found at %s (downloads disabled)", l.modelPath)
		}
		l.log.Info("downloading whisper model",
			zap.String("model", l.model),
			zap.String("dest", l.modelPath))
		if err := models.Download(ctx, l.model, l.modelPath, l.progress); err != nil {
			return fmt.Errorf("downloading model %q: %w", l.model, err)
		}
	}

	l.mu.Lock()
	l.binPath = bin
	l.ready = true
	l.mu.Unlock()

	l.log.Info("whisper backend ready",
		zap.String("binary", bin),
		zap.String("model", l.modelPath))
	return nil
}

// Transcribe runs the whisper CLI over the recording and returns its
// plain-text output.
func (l *localProcessor) Transcribe(ctx context.Context, path string) (string, error) {
	l.mu.Lock()
	bin := l.binPath
	ready := l.ready
	l.mu.Unlock()

	if !ready {
		return "", fmt.Errorf("whisper local backend is not prepared")
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	args := []string{
		"-m", l.modelPath,
		"-f", path,
		"--no-timestamps",
		"--no-prints",
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcription timed out after %s", l.timeout)
		}
		return "", fmt.Errorf("whisper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	l.log.Debug("local transcription finished",
		zap.Duration("took", time.Since(start)),
		zap.Int("chars", len(text)))

	return text, nil
}

func (l *localProcessor) progress(written, total int64) {
	if total <= 0 {
		return
	}
	pct := float64(written) / float64(total) * 100
	// Log at coarse steps only; this runs per write.
	if int(pct)%10 == 0 {
		l.log.Debug("model download progress", zap.Int("percent", int(pct)))
	}
}

// findWhisperBinary probes PATH for a usable whisper.cpp executable.
func findWhisperBinary() (string, error) {
	for _, name := range whisperBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no whisper.cpp binary found in PATH (tried %s)", strings.Join(whisperBinaries, ", "))
}
