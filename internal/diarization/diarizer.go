package diarization

import (
	"context"

	"github.com/diascribe/diascribe/internal/transcript"
)

// Diarizer abstracts speaker diarization backends. Returned turns are not
// guaranteed to be sorted or non-overlapping.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]transcript.SpeakerTurn, error)
}
