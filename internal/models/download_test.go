package models

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("ggml"), 256)
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(payload)
	}))
	defer srv.Close()

	orig := modelURLTemplate
	modelURLTemplate = srv.URL + "/ggml-%s.bin"
	defer func() { modelURLTemplate = orig }()

	dest := filepath.Join(t.TempDir(), "models", "ggml-base.en.bin")

	var lastWritten, lastTotal int64
	err := Download(context.Background(), "base.en", dest, func(written, total int64) {
		lastWritten, lastTotal = written, total
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %d bytes, want %d matching bytes", len(got), len(payload))
	}
	if lastWritten != int64(len(payload)) {
		t.Errorf("progress written = %d, want %d", lastWritten, len(payload))
	}
	if lastTotal != int64(len(payload)) {
		t.Errorf("progress total = %d, want %d", lastTotal, len(payload))
	}

	// No temp file left behind.
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file still present after download")
	}

	// Existing file short-circuits without another request.
	if err := Download(context.Background(), "base.en", dest, nil); err != nil {
		t.Fatalf("second Download() error = %v", err)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	orig := modelURLTemplate
	modelURLTemplate = srv.URL + "/ggml-%s.bin"
	defer func() { modelURLTemplate = orig }()

	dest := filepath.Join(t.TempDir(), "ggml-nope.bin")
	if err := Download(context.Background(), "nope", dest, nil); err == nil {
		t.Fatal("Download() error = nil, want HTTP error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination file created despite failed download")
	}
}
