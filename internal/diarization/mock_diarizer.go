package diarization

import (
	"context"

	"github.com/diascribe/diascribe/internal/transcript"
)

type mockDiarizer struct{}

func NewMockDiarizer() Diarizer {
	return &mockDiarizer{}
}

func (m *mockDiarizer) Diarize(_ context.Context, _ string) ([]transcript.SpeakerTurn, error) {
	return []transcript.SpeakerTurn{
		{Speaker: "SPEAKER_01", Start: 0.0, End: 2.0},
	}, nil
}
