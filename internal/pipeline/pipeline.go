package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/domain/roster"
	"github.com/forPelevin/debatescribe/internal/ports"
	"github.com/forPelevin/debatescribe/internal/ports/adapters/chatcompletion"
	"github.com/forPelevin/debatescribe/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/debatescribe/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/debatescribe/internal/ports/adapters/whisperpy"
	"github.com/forPelevin/debatescribe/internal/store"
	"github.com/forPelevin/debatescribe/internal/types"
	"github.com/forPelevin/debatescribe/internal/usecase"
)

const (
	EngineWhisperCPP = "whispercpp"
	EngineWhisper    = "whisper"
)

type TranscribeConfig struct {
	RawDir       string
	ProcessedDir string
	OutputsDir   string
	Workers      int
	Logf         func(format string, args ...any)

	// CacheDB is the sqlite transcript cache. Empty disables caching.
	CacheDB string

	FFmpegPath  string
	FFprobePath string

	Engine       string
	WhisperBin   string
	WhisperModel string
	Language     string
}

func (c TranscribeConfig) Validate() error {
	if c.RawDir == "" {
		return errors.New("raw dir is empty")
	}
	if c.ProcessedDir == "" {
		return errors.New("processed dir is empty")
	}
	if c.OutputsDir == "" {
		return errors.New("outputs dir is empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	switch c.Engine {
	case EngineWhisperCPP:
		if c.WhisperModel == "" {
			return fmt.Errorf("whisper model path is required for %s", EngineWhisperCPP)
		}
	case EngineWhisper:
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Engine, EngineWhisperCPP, EngineWhisper)
	}
	return nil
}

// RunTranscribe transcribes the raw directory and writes every output layer.
// Run history is recorded in the cache database when one is configured.
func RunTranscribe(ctx context.Context, cfg TranscribeConfig) (usecase.Result, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	// adapters
	deps := usecase.Deps{
		Audio: ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath),
		ASR:   newASR(cfg),
	}

	var db *store.SQLiteStore
	if cfg.CacheDB != "" {
		var err error
		db, err = store.Open(cfg.CacheDB)
		if err != nil {
			return usecase.Result{}, apperr.Wrap(err, apperr.KindIO, "open transcript cache")
		}
		defer db.Close()
		deps.Cache = db
		logf("cache: %s", cfg.CacheDB)
	}

	workDir, err := os.MkdirTemp("", "debatescribe-")
	if err != nil {
		return usecase.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	var runID string
	if db != nil {
		if files, err := roster.Discover(cfg.RawDir); err == nil {
			if runID, err = db.StartRun(ctx, len(files)); err != nil {
				logf("run history unavailable: %v", err)
			}
		}
	}

	started := time.Now()
	logf("engine: %s, workers: %d", deps.ASR.Engine(), cfg.Workers)
	res, err := usecase.New(deps).Run(ctx, usecase.Input{
		RawDir:       cfg.RawDir,
		ProcessedDir: cfg.ProcessedDir,
		OutputsDir:   cfg.OutputsDir,
		WorkDir:      workDir,
		Workers:      cfg.Workers,
		Logf:         logf,
	})
	if err != nil {
		return res, err
	}

	failed := res.Failed()
	if runID != "" {
		// The run context may already be done; history is best-effort.
		if err := db.FinishRun(context.WithoutCancel(ctx), runID, len(res.Files)-failed, failed); err != nil {
			logf("record run %s: %v", runID, err)
		}
	}
	logf("transcribed %d files (%d failed) in %s", len(res.Files), failed, time.Since(started).Round(time.Millisecond))
	return res, nil
}

type MergeConfig struct {
	ProcessedDir string
	OutputsDir   string
	Logf         func(format string, args ...any)
}

func (c MergeConfig) Validate() error {
	if c.ProcessedDir == "" {
		return errors.New("processed dir is empty")
	}
	if c.OutputsDir == "" {
		return errors.New("outputs dir is empty")
	}
	return nil
}

func RunMerge(ctx context.Context, cfg MergeConfig) (usecase.Result, error) {
	return usecase.Rebuild(ctx, usecase.MergeInput{
		ProcessedDir: cfg.ProcessedDir,
		OutputsDir:   cfg.OutputsDir,
		Logf:         cfg.Logf,
	})
}

type VerdictConfig struct {
	TranscriptPath string
	Logf           func(format string, args ...any)

	BaseURL      string
	AllowedHosts []string
	Model        string
	APIKey       string
	Timeout      time.Duration
	Temperature  float64
	MaxTokens    int
}

func (c VerdictConfig) Validate() error {
	if c.TranscriptPath == "" {
		return errors.New("transcript path is empty")
	}
	if _, err := os.Stat(c.TranscriptPath); err != nil {
		return fmt.Errorf("stat transcript: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	return chatcompletion.ValidateBaseURL(c.BaseURL, c.AllowedHosts)
}

func RunVerdict(ctx context.Context, cfg VerdictConfig) (string, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	llm := chatcompletion.New(cfg.BaseURL, cfg.Model, cfg.APIKey, cfg.Timeout)

	logf("requesting verdict for %s", cfg.TranscriptPath)
	return usecase.NewVerdict(llm).Run(ctx, usecase.VerdictInput{
		TranscriptPath: cfg.TranscriptPath,
		Options: types.CompletionOptions{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
	})
}

func newASR(cfg TranscribeConfig) ports.ASR {
	if cfg.Engine == EngineWhisper {
		return whisperpy.New(cfg.WhisperBin, cfg.WhisperModel, cfg.Language)
	}
	return whispercpp.New(cfg.WhisperBin, cfg.WhisperModel, cfg.Language)
}

// ensure adapters implement ports
var _ ports.AudioTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.ASR = (*whisperpy.Adapter)(nil)
var _ ports.ChatCompleter = (*chatcompletion.Adapter)(nil)
var _ ports.TranscriptCache = (*store.SQLiteStore)(nil)
