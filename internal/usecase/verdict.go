package usecase

import (
	"context"
	"os"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/ports"
	"github.com/forPelevin/debatescribe/internal/types"
)

const VerdictSystemPrompt = "You are an assistant that summarizes a debate and picks the winner in the end."

type Verdict struct{ llm ports.ChatCompleter }

func NewVerdict(llm ports.ChatCompleter) Verdict { return Verdict{llm: llm} }

type VerdictInput struct {
	TranscriptPath string
	Options        types.CompletionOptions
}

// Run sends the transcript as the single user turn and returns the model's reply.
func (v Verdict) Run(ctx context.Context, in VerdictInput) (string, error) {
	b, err := os.ReadFile(in.TranscriptPath)
	if err != nil {
		return "", apperr.Wrapf(err, apperr.KindIO, "read transcript %s", in.TranscriptPath)
	}

	msgs := []types.Message{
		{Role: "system", Content: VerdictSystemPrompt},
		{Role: "user", Content: string(b)},
	}
	return v.llm.Complete(ctx, msgs, in.Options)
}
