package asr

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/diascribe/diascribe/internal/config"
)

func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "stub.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestExecTranscriberParsesWords(t *testing.T) {
	stub := writeStub(t, `echo '{"words":[{"text":"hi","start":0.0,"end":0.5},{"text":"there","start":0.5,"end":1.0}]}'`)
	tr, err := NewExecTranscriber(config.ASRConfig{Mode: "exec", Command: stub})
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}

	words, err := tr.Transcribe(context.Background(), "audio.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
	if words[0].Text != "hi" || words[1].Start != 0.5 {
		t.Fatalf("unexpected words: %v", words)
	}
}

func TestExecTranscriberCommandFailure(t *testing.T) {
	stub := writeStub(t, `echo "model not found" >&2; exit 3`)
	tr, err := NewExecTranscriber(config.ASRConfig{Mode: "exec", Command: stub})
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}

	if _, err := tr.Transcribe(context.Background(), "audio.wav"); err == nil {
		t.Fatal("expected error from failing command")
	}
}

func TestExecTranscriberRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecTranscriber(config.ASRConfig{Mode: "exec", Command: "  "}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecTranscriberBadJSON(t *testing.T) {
	stub := writeStub(t, `echo 'not json'`)
	tr, err := NewExecTranscriber(config.ASRConfig{Mode: "exec", Command: stub})
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}

	if _, err := tr.Transcribe(context.Background(), "audio.wav"); err == nil {
		t.Fatal("expected decode error")
	}
}
