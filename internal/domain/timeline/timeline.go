package timeline

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/forPelevin/debatescribe/internal/types"
)

// Collect attributes one file's segments to its speaker.
func Collect(id types.Identity, segs []types.Segment) []types.Utterance {
	out := make([]types.Utterance, 0, len(segs))
	for _, s := range segs {
		out = append(out, types.Utterance{
			Team:        id.Team,
			Participant: id.Participant,
			Start:       s.Start,
			End:         s.End,
			Text:        strings.TrimSpace(s.Text),
		})
	}
	return out
}

// Merge returns the utterances ordered by start time. Equal starts keep their
// input order; overlapping speech is left as separate entries.
func Merge(us []types.Utterance) []types.Utterance {
	out := make([]types.Utterance, len(us))
	copy(out, us)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// FormatLine renders "[start - end] (team - participant): text" with
// two-decimal second timestamps.
func FormatLine(u types.Utterance) string {
	return fmt.Sprintf("[%.2fs - %.2fs] (%s - %s): %s", u.Start, u.End, u.Team, u.Participant, u.Text)
}

// RenderText is the readable form: one line per utterance.
func RenderText(us []types.Utterance) string {
	var b strings.Builder
	for _, u := range us {
		b.WriteString(FormatLine(u))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteJSON writes the structured form as an indented array.
func WriteJSON(w io.Writer, us []types.Utterance) error {
	if us == nil {
		us = []types.Utterance{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(us); err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	return nil
}
