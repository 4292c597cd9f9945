package transcript

// Word is one transcribed token with its position in the recording.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SpeakerTurn is a contiguous interval attributed to one speaker.
// Turns from a diarizer may overlap and may leave gaps.
type SpeakerTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Utterance is a maximal run of consecutive same-speaker words.
// Timestamp is the start time of the run's first word.
type Utterance struct {
	Speaker   string  `json:"speaker"`
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
}
