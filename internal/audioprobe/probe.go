package audioprobe

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Info summarizes a probed WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Probe verifies that path holds a readable WAV container and reports its
// format. Uploads that fail here never reach the pipeline.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Info{}, fmt.Errorf("not a valid wav file: %s", path)
	}
	duration, err := decoder.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("read wav duration: %w", err)
	}
	return Info{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		Duration:   duration,
	}, nil
}
