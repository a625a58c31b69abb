package usecase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/types"
)

// writeParticipant stores <team>_<participant>.txt (full text) and .json
// (segment array) for one speaker.
func writeParticipant(dir string, id types.Identity, tr types.Transcript) error {
	base := filepath.Join(dir, id.Stem())
	if err := writeFile(base+".txt", []byte(strings.TrimSpace(tr.Text))); err != nil {
		return err
	}

	segs := tr.Segments
	if segs == nil {
		segs = []types.Segment{}
	}
	b, err := marshalIndent(segs)
	if err != nil {
		return apperr.Wrapf(err, apperr.KindIO, "encode segments for %s", id.Stem())
	}
	return writeFile(base+".json", b)
}

// loadParticipant reads back what writeParticipant stored under stem. Problems
// with one speaker's files are scoped to that speaker.
func loadParticipant(dir, stem string) (types.Transcript, error) {
	base := filepath.Join(dir, stem)

	jb, err := os.ReadFile(base + ".json")
	if err != nil {
		return types.Transcript{}, apperr.Wrapf(err, apperr.KindTranscription, "read segments for %s", stem)
	}
	var tr types.Transcript
	if err := json.Unmarshal(jb, &tr.Segments); err != nil {
		return types.Transcript{}, apperr.Wrapf(err, apperr.KindTranscription, "decode segments for %s", stem)
	}

	tb, err := os.ReadFile(base + ".txt")
	if err != nil {
		return types.Transcript{}, apperr.Wrapf(err, apperr.KindTranscription, "read text for %s", stem)
	}
	tr.Text = strings.TrimSpace(string(tb))
	return tr, nil
}

func marshalIndent(v any) ([]byte, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return []byte(sb.String()), nil
}

func writeFile(path string, b []byte) error {
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return apperr.Wrapf(err, apperr.KindIO, "write %s", path)
	}
	return nil
}
