package pipeline

// TranscriptionError reports a failed transcription collaborator call.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return "transcription failed: " + e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// DiarizationError reports a failed diarization collaborator call.
type DiarizationError struct {
	Err error
}

func (e *DiarizationError) Error() string { return "diarization failed: " + e.Err.Error() }
func (e *DiarizationError) Unwrap() error { return e.Err }
