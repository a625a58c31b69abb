package usecase

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/domain/teams"
	"github.com/forPelevin/debatescribe/internal/domain/timeline"
	"github.com/forPelevin/debatescribe/internal/types"
)

const (
	conversationJSON = "conversation.json"
	conversationTxt  = "conversation.txt"
)

// Reduce folds per-file outcomes, in slice order, into the global timeline and
// the team transcripts. Failed outcomes contribute nothing.
func Reduce(outcomes []FileOutcome) Result {
	c := teams.NewCollector()
	var all []types.Utterance
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		c.Add(o.Identity.Team, strings.TrimSpace(o.Transcript.Text))
		all = append(all, timeline.Collect(o.Identity, o.Transcript.Segments)...)
	}
	return Result{
		Files:        outcomes,
		Conversation: timeline.Merge(all),
		Teams:        c.Transcripts(),
	}
}

// WriteOutputs writes <team>.txt per team plus the structured and readable
// conversation files into dir.
func WriteOutputs(dir string, res Result, logf func(string, ...any)) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrapf(err, apperr.KindIO, "create outputs directory %s", dir)
	}

	for _, tt := range res.Teams {
		if strings.EqualFold(tt.Team, reservedTeam) {
			logf("team %s would overwrite %s, skipped", tt.Team, conversationTxt)
			continue
		}
		p := filepath.Join(dir, tt.Team+".txt")
		if err := writeFile(p, []byte(tt.Text)); err != nil {
			return err
		}
		logf("team transcript saved: %s", p)
	}

	var buf bytes.Buffer
	if err := timeline.WriteJSON(&buf, res.Conversation); err != nil {
		return apperr.Wrap(err, apperr.KindIO, "render conversation")
	}
	jsonPath := filepath.Join(dir, conversationJSON)
	if err := writeFile(jsonPath, buf.Bytes()); err != nil {
		return err
	}
	txtPath := filepath.Join(dir, conversationTxt)
	if err := writeFile(txtPath, []byte(timeline.RenderText(res.Conversation))); err != nil {
		return err
	}
	logf("global conversation saved: %s, %s (%d utterances)", jsonPath, txtPath, len(res.Conversation))
	return nil
}

type MergeInput struct {
	ProcessedDir string
	OutputsDir   string
	Logf         func(format string, args ...any)
}

// Rebuild regenerates the team and conversation outputs from the
// per-participant artifacts in ProcessedDir, without transcribing again.
func Rebuild(ctx context.Context, in MergeInput) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	entries, err := os.ReadDir(in.ProcessedDir)
	if err != nil {
		return Result{}, apperr.Wrapf(err, apperr.KindIO, "list processed directory %s", in.ProcessedDir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	outcomes := make([]FileOutcome, 0, len(names))
	ids := newIdentities()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		o := FileOutcome{File: name}
		id, err := ids.claim(name)
		if err != nil {
			o.Err = err
		} else {
			o.Identity = id
			o.Transcript, o.Err = loadParticipant(in.ProcessedDir, strings.TrimSuffix(name, filepath.Ext(name)))
		}
		if o.Err != nil {
			logf("skipping %s: %v", name, o.Err)
		}
		outcomes = append(outcomes, o)
	}

	res := Reduce(outcomes)
	if err := WriteOutputs(in.OutputsDir, res, logf); err != nil {
		return res, err
	}
	return res, nil
}
