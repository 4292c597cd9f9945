package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/diascribe/diascribe/internal/config"
	"github.com/diascribe/diascribe/internal/store"
	"github.com/diascribe/diascribe/internal/transcript"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type processorFunc func(ctx context.Context, audioPath string) ([]transcript.Utterance, error)

func (f processorFunc) Process(ctx context.Context, audioPath string) ([]transcript.Utterance, error) {
	return f(ctx, audioPath)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEphemeralStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), config.StoreConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestServer(t *testing.T, p Processor) (*Server, *atomic.Int32) {
	t.Helper()
	cfg := config.PipelineConfig{
		RequestTimeoutMS: 60000,
		WorkDir:          t.TempDir(),
		MaxUploadBytes:   32 << 20,
	}
	srv := New(cfg, p, newEphemeralStore(t), nil, nil, newLogger())

	var removals atomic.Int32
	srv.removeFile = func(path string) error {
		removals.Add(1)
		return os.Remove(path)
	}
	return srv, &removals
}

func wavPayload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:   make([]int, 1600),
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func postTranscribe(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestTranscribeSuccess(t *testing.T) {
	want := []transcript.Utterance{
		{Speaker: "S1", Timestamp: 0.0, Text: "hi there"},
		{Speaker: "S2", Timestamp: 1.2, Text: "bob"},
	}
	srv, removals := newTestServer(t, processorFunc(func(_ context.Context, audioPath string) ([]transcript.Utterance, error) {
		if _, err := os.Stat(audioPath); err != nil {
			t.Errorf("expected materialized audio at %s: %v", audioPath, err)
		}
		return want, nil
	}))

	body, _ := json.Marshal(map[string]string{"fileName": "meeting.wav", "fileData": wavPayload(t)})
	rr := postTranscribe(t, srv, string(body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		TranscriptID  string                 `json:"transcript_id"`
		Transcription []transcript.Utterance `json:"transcription"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TranscriptID == "" {
		t.Fatal("expected a transcript id")
	}
	if len(resp.Transcription) != 2 || resp.Transcription[0].Text != "hi there" {
		t.Fatalf("unexpected transcription: %v", resp.Transcription)
	}
	if got := removals.Load(); got != 1 {
		t.Fatalf("expected upload removed exactly once, got %d", got)
	}
}

func TestTranscribeCleansUpWorkDir(t *testing.T) {
	srv, _ := newTestServer(t, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		return nil, nil
	}))

	body, _ := json.Marshal(map[string]string{"fileName": "a.wav", "fileData": wavPayload(t)})
	if rr := postTranscribe(t, srv, string(body)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	entries, err := os.ReadDir(srv.cfg.WorkDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty work dir, found %d entries", len(entries))
	}
}

func TestTranscribeInvalidJSON(t *testing.T) {
	srv, removals := newTestServer(t, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		t.Error("pipeline must not run for malformed requests")
		return nil, nil
	}))

	rr := postTranscribe(t, srv, "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var resp struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Detail == "" {
		t.Fatalf("expected detail message, got %s", rr.Body.String())
	}
	if removals.Load() != 0 {
		t.Fatal("no upload should have been materialized")
	}
}

func TestTranscribeBadBase64(t *testing.T) {
	srv, removals := newTestServer(t, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		t.Error("pipeline must not run for malformed payloads")
		return nil, nil
	}))

	body, _ := json.Marshal(map[string]string{"fileName": "a.wav", "fileData": "!!!not-base64!!!"})
	rr := postTranscribe(t, srv, string(body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if removals.Load() != 0 {
		t.Fatal("no upload should have been materialized")
	}
}

func TestTranscribeRejectsNonWavUpload(t *testing.T) {
	srv, removals := newTestServer(t, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		t.Error("pipeline must not run for unusable audio")
		return nil, nil
	}))

	payload := base64.StdEncoding.EncodeToString([]byte("plain text, not audio"))
	body, _ := json.Marshal(map[string]string{"fileName": "a.wav", "fileData": payload})
	rr := postTranscribe(t, srv, string(body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := removals.Load(); got != 1 {
		t.Fatalf("expected upload removed exactly once, got %d", got)
	}
}

func TestTranscribePipelineFailure(t *testing.T) {
	srv, removals := newTestServer(t, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		return nil, errors.New("diarization failed: no speakers detected")
	}))

	body, _ := json.Marshal(map[string]string{"fileName": "a.wav", "fileData": wavPayload(t)})
	rr := postTranscribe(t, srv, string(body))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var resp struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Detail, "diarization failed") {
		t.Fatalf("expected failure detail, got %q", resp.Detail)
	}
	if got := removals.Load(); got != 1 {
		t.Fatalf("expected upload removed exactly once on failure, got %d", got)
	}
}

func TestGetTranscriptNotFound(t *testing.T) {
	srv, _ := newTestServer(t, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		return nil, nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/transcripts/does-not-exist", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetTranscriptFromArchive(t *testing.T) {
	archive, err := store.Open(context.Background(), config.StoreConfig{
		Path:          filepath.Join(t.TempDir(), "transcripts.db"),
		RetentionMode: "persistent",
	}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = archive.Close() })

	rec := store.Record{
		ID:         "req-42",
		FileName:   "standup.wav",
		Utterances: []transcript.Utterance{{Speaker: "S1", Timestamp: 0, Text: "morning"}},
	}
	if err := archive.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	cfg := config.PipelineConfig{RequestTimeoutMS: 60000, WorkDir: t.TempDir(), MaxUploadBytes: 1 << 20}
	srv := New(cfg, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		return nil, nil
	}), archive, nil, nil, newLogger())

	req := httptest.NewRequest(http.MethodGet, "/transcripts/req-42", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("standup.wav")) {
		t.Fatalf("expected archived file name in response: %s", rr.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	srv, _ := newTestServer(t, processorFunc(func(context.Context, string) ([]transcript.Utterance, error) {
		return nil, nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rr.Code)
	}

	srv.SetReady(true)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after ready, got %d", rr.Code)
	}
}
