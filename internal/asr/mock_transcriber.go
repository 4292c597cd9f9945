package asr

import (
	"context"

	"github.com/diascribe/diascribe/internal/transcript"
)

type mockTranscriber struct{}

func NewMockTranscriber() Transcriber {
	return &mockTranscriber{}
}

func (m *mockTranscriber) Transcribe(_ context.Context, _ string) ([]transcript.Word, error) {
	return []transcript.Word{
		{Text: "hello", Start: 0.0, End: 0.4},
		{Text: "from", Start: 0.5, End: 0.7},
		{Text: "diascribe", Start: 0.8, End: 1.3},
	}, nil
}
