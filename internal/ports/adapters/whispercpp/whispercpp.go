package whispercpp

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

type Adapter struct {
	bin      string
	model    string
	language string
}

const defaultBin = ".cache/bin/whisper.cpp"

func New(binPath, modelPath, language string) *Adapter {
	if binPath == "" {
		binPath = defaultBin
	}
	return &Adapter{bin: binPath, model: modelPath, language: language}
}

func (a *Adapter) Engine() string {
	return "whispercpp:" + filepath.Base(a.model)
}

func (a *Adapter) NeedsWav() bool { return true }

func (a *Adapter) Transcribe(ctx context.Context, wavPath, workDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(workDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
	}
	if a.language != "" {
		args = append(args, "-l", a.language)
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	f, err := os.Open(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("opening whisper.cpp result: %w", err)
	}
	defer f.Close()
	return decodeOutput(f)
}

type output struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

var msPerSecond = decimal.NewFromInt(1000)

// decodeOutput maps whisper.cpp's millisecond offsets onto second-based segments.
func decodeOutput(r io.Reader) (types.Transcript, error) {
	var out output
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return types.Transcript{}, fmt.Errorf("decoding whisper.cpp json: %w", err)
	}

	tr := types.Transcript{
		Language: out.Result.Language,
		Segments: make([]types.Segment, 0, len(out.Transcription)),
	}
	var full strings.Builder
	for i, s := range out.Transcription {
		full.WriteString(s.Text)
		tr.Segments = append(tr.Segments, types.Segment{
			ID:    i,
			Start: seconds(s.Offsets.From),
			End:   seconds(s.Offsets.To),
			Text:  strings.TrimSpace(s.Text),
		})
	}
	tr.Text = strings.TrimSpace(full.String())
	return tr, nil
}

func seconds(ms int64) float64 {
	return decimal.NewFromInt(ms).Div(msPerSecond).InexactFloat64()
}
