package roster

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/types"
)

const separator = "_"

var audioExts = map[string]struct{}{
	".wav": {},
	".mp3": {},
}

// ParseFilename splits "<team>_<participant>.<ext>" on the first separator.
// Surrounding whitespace is trimmed from both names; case is kept as-is.
func ParseFilename(name string) (types.Identity, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	team, participant, ok := strings.Cut(stem, separator)
	if !ok {
		return types.Identity{}, apperr.Newf(apperr.KindParse,
			"filename %s must follow format: Team_Participant.wav", base)
	}
	team = strings.TrimSpace(team)
	participant = strings.TrimSpace(participant)
	if team == "" || participant == "" {
		return types.Identity{}, apperr.Newf(apperr.KindParse,
			"filename %s has an empty team or participant", base)
	}
	return types.Identity{Team: team, Participant: participant}, nil
}

func IsAudio(name string) bool {
	_, ok := audioExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Discover lists the audio files directly under dir, sorted lexicographically.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.KindIO, "list raw directory %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsAudio(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
