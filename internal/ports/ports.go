package ports

import (
	"context"
	"time"

	"github.com/forPelevin/debatescribe/internal/types"
)

type AudioTool interface {
	NormalizeMono16k(ctx context.Context, inAudio, outWav string) error
	ProbeDuration(ctx context.Context, inAudio string) (time.Duration, error)
}

type ASR interface {
	// Engine identifies the backend and model; transcripts are cached per engine.
	Engine() string
	// NeedsWav reports whether inputs must be normalized to 16 kHz mono WAV first.
	NeedsWav() bool
	Transcribe(ctx context.Context, audioPath, workDir string) (types.Transcript, error)
}

type ChatCompleter interface {
	Complete(ctx context.Context, messages []types.Message, opts types.CompletionOptions) (string, error)
}

// TranscriptCache stores transcripts keyed by audio content hash and engine.
type TranscriptCache interface {
	Get(ctx context.Context, hash, engine string) (types.Transcript, bool, error)
	Put(ctx context.Context, entry CacheEntry) error
}

type CacheEntry struct {
	Hash       string
	Engine     string
	Filename   string
	Duration   time.Duration
	Transcript types.Transcript
}
