// Package models downloads whisper ggml model files from HuggingFace.
package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// modelURLTemplate is a var so tests can point downloads at a local server.
var modelURLTemplate = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-%s.bin"

// Download fetches the ggml model with the given name (e.g. "base.en") to
// destPath. The file is written to a temp path and renamed so a failed
// download never leaves a truncated model behind. progress (may be nil)
// receives (written, total) byte counts as the body streams.
func Download(ctx context.Context, model, destPath string, progress func(written, total int64)) error {
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	url := fmt.Sprintf(modelURLTemplate, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	pw := &progressWriter{writer: f, total: resp.ContentLength, report: progress}
	_, err = io.Copy(pw, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing model file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving model file: %w", err)
	}

	return nil
}

// progressWriter wraps an io.Writer and reports cumulative progress.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	report  func(written, total int64)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.report != nil {
		pw.report(pw.written, pw.total)
	}
	return n, err
}
