package asr

import (
	"context"

	"github.com/diascribe/diascribe/internal/transcript"
)

// Transcriber abstracts word-level speech recognition backends.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]transcript.Word, error)
}
