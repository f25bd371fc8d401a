package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pmorken/simple-stt/internal/config"
)

const defaultTranscriptionURL = "https://api.openai.com/v1/audio/transcriptions"

// apiProcessor transcribes through the OpenAI audio transcription endpoint.
type apiProcessor struct {
	apiKey string
	model  string
	url    string
	http   *http.Client
	log    *zap.Logger
}

func newAPIProcessor(cfg config.WhisperConfig, log *zap.Logger) *apiProcessor {
	model := cfg.Model
	// Local model names like "base.en" make no sense for the API.
	if model == "" || strings.Contains(model, ".") {
		model = "whisper-1"
	}

	return &apiProcessor{
		apiKey: cfg.APIKey,
		model:  model,
		url:    defaultTranscriptionURL,
		http:   &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		log:    log,
	}
}

func (a *apiProcessor) IsConfigured() bool {
	return a.apiKey != ""
}

// Prepare validates the credential; there is nothing to download.
func (a *apiProcessor) Prepare(_ context.Context) error {
	if a.apiKey == "" {
		return fmt.Errorf("whisper api backend: no API key configured (set OPENAI_API_KEY)")
	}
	return nil
}

// Transcribe uploads the WAV file as a multipart request and returns the
// text field of the response.
func (a *apiProcessor) Transcribe(ctx context.Context, path string) (string, error) {
	if !a.IsConfigured() {
		return "", fmt.Errorf("whisper api backend is not configured")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copying audio data: %w", err)
	}
	if err := writer.WriteField("model", a.model); err != nil {
		return "", fmt.Errorf("writing model field: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("writing response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending transcription request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error %d: %s", resp.StatusCode, string(data))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	a.log.Debug("api transcription finished",
		zap.Duration("took", time.Since(start)),
		zap.Int("chars", len(parsed.Text)))

	return strings.TrimSpace(parsed.Text), nil
}
