package whisperpy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/forPelevin/debatescribe/internal/types"
)

// Adapter drives the openai-whisper command line tool.
type Adapter struct {
	bin      string
	model    string
	language string
}

func New(binPath, model, language string) *Adapter {
	if binPath == "" {
		binPath = "whisper"
	}
	if model == "" {
		model = "large"
	}
	return &Adapter{bin: binPath, model: model, language: language}
}

func (a *Adapter) Engine() string { return "whisper:" + a.model }

func (a *Adapter) NeedsWav() bool { return false }

func (a *Adapter) Transcribe(ctx context.Context, audioPath, workDir string) (types.Transcript, error) {
	args := []string{
		audioPath,
		"--model", a.model,
		"--output_format", "json",
		"--output_dir", workDir,
		"--verbose", "False",
	}
	if a.language != "" {
		args = append(args, "--language", a.language)
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("transcribing with whisper: %w\n%s", err, string(b))
	}

	base := filepath.Base(audioPath)
	resultPath := filepath.Join(workDir, strings.TrimSuffix(base, filepath.Ext(base))+".json")
	f, err := os.Open(resultPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("opening whisper transcribe result: %w", err)
	}
	defer f.Close()
	return decodeResult(f)
}

type (
	result struct {
		Text     string    `json:"text"`
		Language string    `json:"language"`
		Segments []segment `json:"segments"`
	}

	segment struct {
		ID               int             `json:"id"`
		Start            decimal.Decimal `json:"start"`
		End              decimal.Decimal `json:"end"`
		Text             string          `json:"text"`
		Tokens           []int           `json:"tokens"`
		Temperature      float64         `json:"temperature"`
		AvgLogprob       float64         `json:"avg_logprob"`
		CompressionRatio float64         `json:"compression_ratio"`
		NoSpeechProb     float64         `json:"no_speech_prob"`
		Words            []word          `json:"words"`
	}

	word struct {
		Word  string           `json:"word"`
		Start *decimal.Decimal `json:"start"`
		End   *decimal.Decimal `json:"end"`
	}
)

func decodeResult(r io.Reader) (types.Transcript, error) {
	var res result
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return types.Transcript{}, fmt.Errorf("decoding whisper json result: %w", err)
	}

	tr := types.Transcript{
		Text:     strings.TrimSpace(res.Text),
		Language: res.Language,
		Segments: make([]types.Segment, len(res.Segments)),
	}
	for n, s := range res.Segments {
		tr.Segments[n] = types.Segment{
			ID:               s.ID,
			Start:            s.Start.InexactFloat64(),
			End:              s.End.InexactFloat64(),
			Text:             strings.TrimSpace(s.Text),
			Tokens:           s.Tokens,
			Temperature:      s.Temperature,
			AvgLogprob:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
			Words:            wordsFrom(s.Words),
		}
	}
	return tr, nil
}

// wordsFrom drops words the aligner could not time.
func wordsFrom(ws []word) []types.Word {
	var out []types.Word
	for _, w := range ws {
		if w.Start == nil || w.End == nil {
			continue
		}
		out = append(out, types.Word{
			Start: w.Start.InexactFloat64(),
			End:   w.End.InexactFloat64(),
			Word:  strings.TrimSpace(w.Word),
		})
	}
	return out
}
