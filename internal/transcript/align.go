package transcript

import (
	"sort"
	"strings"
)

// DefaultSpeaker labels words whose start time falls outside every turn.
const DefaultSpeaker = "SPEAKER_00"

// SortTurns stable-sorts turns by start time ascending. Align takes the
// first turn containing a word, so callers sort first to get
// earliest-starting-turn-wins semantics for overlapping turns.
func SortTurns(turns []SpeakerTurn) {
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Start < turns[j].Start
	})
}

// Align assigns each word to a speaker turn and merges consecutive
// same-speaker words into utterances, preserving transcript order.
//
// A word belongs to the first turn whose interval contains the word's
// start time, bounds inclusive. Words covered by no turn get
// DefaultSpeaker. Align never fails: malformed timestamps are compared
// as-is and produce whatever membership the comparisons yield.
func Align(words []Word, turns []SpeakerTurn) []Utterance {
	if len(words) == 0 {
		return nil
	}

	utterances := make([]Utterance, 0, len(words))
	var (
		current string
		start   float64
		buf     []string
	)

	for _, word := range words {
		speaker := speakerAt(word.Start, turns)
		if speaker != current || buf == nil {
			if buf != nil {
				utterances = append(utterances, Utterance{
					Speaker:   current,
					Timestamp: start,
					Text:      strings.Join(buf, " "),
				})
			}
			current = speaker
			start = word.Start
			buf = []string{word.Text}
			continue
		}
		buf = append(buf, word.Text)
	}

	utterances = append(utterances, Utterance{
		Speaker:   current,
		Timestamp: start,
		Text:      strings.Join(buf, " "),
	})
	return utterances
}

func speakerAt(start float64, turns []SpeakerTurn) string {
	for _, turn := range turns {
		if turn.Start <= start && start <= turn.End {
			return turn.Speaker
		}
	}
	return DefaultSpeaker
}
