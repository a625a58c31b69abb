package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/b3"
	"github.com/forPelevin/debatescribe/internal/domain/roster"
	"github.com/forPelevin/debatescribe/internal/ports"
	"github.com/forPelevin/debatescribe/internal/types"
)

type Deps struct {
	Audio ports.AudioTool
	ASR   ports.ASR
	// Cache is optional.
	Cache ports.TranscriptCache
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	RawDir       string
	ProcessedDir string
	OutputsDir   string
	// WorkDir holds per-file scratch space for the ASR (normalized audio, raw model output).
	WorkDir string
	Workers int
	Logf    func(format string, args ...any)
}

// FileOutcome is the result of processing one input file. Err is set when the
// file contributes nothing to the outputs.
type FileOutcome struct {
	File       string
	Identity   types.Identity
	Transcript types.Transcript
	Cached     bool
	Err        error
}

type Result struct {
	Files        []FileOutcome
	Conversation []types.Utterance
	Teams        []types.TeamTranscript
}

func (r Result) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Run transcribes every audio file in RawDir and writes the per-participant,
// per-team and global outputs. A file that fails to parse, transcribe or save
// is reported in Result.Files and skipped.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	files, err := roster.Discover(in.RawDir)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(in.ProcessedDir, 0o755); err != nil {
		return Result{}, apperr.Wrapf(err, apperr.KindIO, "create processed directory %s", in.ProcessedDir)
	}

	workers := in.Workers
	if workers <= 0 {
		workers = 1
	}

	// Names are claimed up front, in filename order, so duplicate speakers
	// resolve the same way regardless of worker count.
	outcomes := make([]FileOutcome, len(files))
	ids := newIdentities()
	for i, name := range files {
		outcomes[i].File = name
		outcomes[i].Identity, outcomes[i].Err = ids.claim(name)
	}

	// Each worker owns one slot; aggregation happens after all workers finish,
	// in filename order.
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range outcomes {
		if outcomes[i].Err != nil {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return Result{}, ctx.Err()
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			logf("transcribing %s...", outcomes[i].File)
			outcomes[i] = u.processFile(ctx, in, outcomes[i], logf)
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for _, o := range outcomes {
		if o.Err == nil {
			logf("saved transcripts for %s-%s", o.Identity.Team, o.Identity.Participant)
			continue
		}
		if !apperr.IsRecoverable(o.Err) {
			return Result{Files: outcomes}, o.Err
		}
		logf("error transcribing %s: %v", o.File, o.Err)
	}

	res := Reduce(outcomes)
	if err := WriteOutputs(in.OutputsDir, res, logf); err != nil {
		return res, err
	}
	return res, nil
}

// processFile transcribes one claimed file and stores its participant
// artifacts. Every failure here is scoped to the file.
func (u Usecase) processFile(ctx context.Context, in Input, out FileOutcome, logf func(string, ...any)) FileOutcome {
	name, id := out.File, out.Identity
	path := filepath.Join(in.RawDir, name)

	var (
		hash string
		err  error
	)
	if u.d.Cache != nil {
		hash, err = b3.HashFile(path)
		if err != nil {
			out.Err = apperr.Wrapf(err, apperr.KindTranscription, "hash %s", name)
			return out
		}
		tr, ok, err := u.d.Cache.Get(ctx, hash, u.d.ASR.Engine())
		if err != nil {
			logf("cache lookup for %s failed, transcribing: %v", name, err)
		}
		if ok {
			out.Transcript = tr
			out.Cached = true
		}
	}

	if !out.Cached {
		tr, err := u.transcribe(ctx, filepath.Join(in.WorkDir, name), path)
		if err != nil {
			out.Err = apperr.Wrapf(err, apperr.KindTranscription, "transcribe %s", name)
			return out
		}
		out.Transcript = tr
		if u.d.Cache != nil {
			u.remember(ctx, hash, name, path, tr, logf)
		}
	}

	if err := writeParticipant(in.ProcessedDir, id, out.Transcript); err != nil {
		out.Err = apperr.Wrapf(err, apperr.KindTranscription, "save transcripts for %s", name)
	}
	return out
}

// transcribe runs the ASR with scratch files under workDir, which is private
// to one input file.
func (u Usecase) transcribe(ctx context.Context, workDir, path string) (types.Transcript, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return types.Transcript{}, fmt.Errorf("create work dir: %w", err)
	}

	audio := path
	if u.d.ASR.NeedsWav() {
		audio = filepath.Join(workDir, "audio.wav")
		if err := u.d.Audio.NormalizeMono16k(ctx, path, audio); err != nil {
			return types.Transcript{}, err
		}
	}
	tr, err := u.d.ASR.Transcribe(ctx, audio, workDir)
	if err != nil {
		return types.Transcript{}, err
	}
	if tr.Segments == nil {
		tr.Segments = []types.Segment{}
	}
	return tr, nil
}

// remember stores a fresh transcript; cache failures never fail the file.
func (u Usecase) remember(ctx context.Context, hash, name, path string, tr types.Transcript, logf func(string, ...any)) {
	var dur time.Duration
	if u.d.Audio != nil {
		d, err := u.d.Audio.ProbeDuration(ctx, path)
		if err != nil {
			logf("probe %s: %v", name, err)
		}
		dur = d
	}
	err := u.d.Cache.Put(ctx, ports.CacheEntry{
		Hash:       hash,
		Engine:     u.d.ASR.Engine(),
		Filename:   name,
		Duration:   dur,
		Transcript: tr,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logf("cache store for %s failed: %v", name, err)
	}
}
