package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/ports"
	"github.com/forPelevin/debatescribe/internal/types"
)

func TestRun_TwoSpeakerConversation(t *testing.T) {
	t.Parallel()

	in := newInput(t, "Red_Amy.wav", "Blue_Sam.wav")
	asr := &fakeASR{results: map[string]types.Transcript{
		"Red_Amy":  transcript("hi", seg(0.0, 1.0, "hi")),
		"Blue_Sam": transcript("yo", seg(0.5, 1.5, "yo")),
	}}

	res, err := New(Deps{Audio: &fakeAudio{}, ASR: asr}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Failed() != 0 {
		t.Fatalf("expected no failures, got %+v", res.Files)
	}

	var conv []types.Utterance
	readJSON(t, filepath.Join(in.OutputsDir, "conversation.json"), &conv)
	want := []types.Utterance{
		{Team: "Red", Participant: "Amy", Start: 0.0, End: 1.0, Text: "hi"},
		{Team: "Blue", Participant: "Sam", Start: 0.5, End: 1.5, Text: "yo"},
	}
	if !reflect.DeepEqual(conv, want) {
		t.Fatalf("conversation.json = %+v, want %+v", conv, want)
	}

	txt := readFile(t, filepath.Join(in.OutputsDir, "conversation.txt"))
	lines := strings.Split(strings.TrimRight(txt, "\n"), "\n")
	wantLines := []string{
		"[0.00s - 1.00s] (Red - Amy): hi",
		"[0.50s - 1.50s] (Blue - Sam): yo",
	}
	if !reflect.DeepEqual(lines, wantLines) {
		t.Fatalf("conversation.txt lines = %q, want %q", lines, wantLines)
	}

	if got := readFile(t, filepath.Join(in.OutputsDir, "Red.txt")); got != "hi" {
		t.Fatalf("Red.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(in.OutputsDir, "Blue.txt")); got != "yo" {
		t.Fatalf("Blue.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(in.ProcessedDir, "Red_Amy.txt")); got != "hi" {
		t.Fatalf("Red_Amy.txt = %q", got)
	}
	var segs []map[string]any
	readJSON(t, filepath.Join(in.ProcessedDir, "Blue_Sam.json"), &segs)
	if len(segs) != 1 || segs[0]["text"] != "yo" || segs[0]["start"] != 0.5 {
		t.Fatalf("unexpected Blue_Sam.json: %v", segs)
	}
}

func TestRun_IsolatesFailingFile(t *testing.T) {
	t.Parallel()

	in := newInput(t, "Red_Amy.wav", "Red_Zed.mp3", "Blue_Sam.wav")
	asr := &fakeASR{
		results: map[string]types.Transcript{
			"Red_Amy":  transcript("first", seg(1, 2, "first")),
			"Blue_Sam": transcript("second", seg(0, 1, "second")),
		},
		fail: map[string]error{"Red_Zed": errors.New("model exploded")},
	}

	res, err := New(Deps{Audio: &fakeAudio{}, ASR: asr}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Failed() != 1 {
		t.Fatalf("expected exactly one failed file, got %d", res.Failed())
	}
	for _, f := range res.Files {
		if f.File == "Red_Zed.mp3" && !apperr.IsKind(f.Err, apperr.KindTranscription) {
			t.Fatalf("expected transcription error for Red_Zed.mp3, got %v", f.Err)
		}
	}
	for _, u := range res.Conversation {
		if u.Participant == "Zed" {
			t.Fatalf("failed file leaked into timeline: %+v", u)
		}
	}
	if len(res.Conversation) != 2 || res.Conversation[0].Text != "second" {
		t.Fatalf("unexpected conversation: %+v", res.Conversation)
	}
	if got := readFile(t, filepath.Join(in.OutputsDir, "Red.txt")); got != "first" {
		t.Fatalf("Red.txt = %q", got)
	}
	if _, err := os.Stat(filepath.Join(in.ProcessedDir, "Red_Zed.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected no processed output for failing file, stat err=%v", err)
	}
}

func TestRun_SkipsUnparseableFilename(t *testing.T) {
	t.Parallel()

	in := newInput(t, "noseparator.wav", "Red_Amy.wav")
	asr := &fakeASR{results: map[string]types.Transcript{
		"Red_Amy": transcript("hi", seg(0, 1, "hi")),
	}}

	res, err := New(Deps{Audio: &fakeAudio{}, ASR: asr}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Failed() != 1 || !apperr.IsKind(res.Files[0].Err, apperr.KindParse) {
		t.Fatalf("expected parse failure for first file, got %+v", res.Files)
	}
	if asr.callCount() != 1 {
		t.Fatalf("expected ASR to run only for the parseable file, got %d calls", asr.callCount())
	}
	if len(res.Conversation) != 1 {
		t.Fatalf("unexpected conversation: %+v", res.Conversation)
	}
}

func TestRun_ParallelWorkersAreDeterministic(t *testing.T) {
	t.Parallel()

	names := []string{"A_One.wav", "A_Two.wav", "B_One.wav", "B_Two.wav", "C_One.wav"}
	in := newInput(t, names...)
	in.Workers = 4

	// Later files finish first and every file starts an utterance at t=0.
	results := map[string]types.Transcript{}
	delays := map[string]time.Duration{}
	for i, n := range names {
		stem := strings.TrimSuffix(n, ".wav")
		results[stem] = transcript(stem, seg(0, 1, stem), seg(float64(i)+1, float64(i)+2, stem+" again"))
		delays[stem] = time.Duration(len(names)-i) * 5 * time.Millisecond
	}
	asr := &fakeASR{results: results, delays: delays}

	res, err := New(Deps{Audio: &fakeAudio{}, ASR: asr}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var firstFive []string
	for _, u := range res.Conversation[:5] {
		firstFive = append(firstFive, u.Team+"_"+u.Participant)
	}
	want := []string{"A_One", "A_Two", "B_One", "B_Two", "C_One"}
	if !reflect.DeepEqual(firstFive, want) {
		t.Fatalf("tie order = %v, want filename order %v", firstFive, want)
	}
	wantTeams := []types.TeamTranscript{
		{Team: "A", Text: "A_One\nA_Two"},
		{Team: "B", Text: "B_One\nB_Two"},
		{Team: "C", Text: "C_One"},
	}
	if !reflect.DeepEqual(res.Teams, wantTeams) {
		t.Fatalf("teams = %+v, want %+v", res.Teams, wantTeams)
	}
}

func TestRun_UsesCacheAndNormalizesForWavEngines(t *testing.T) {
	t.Parallel()

	in := newInput(t, "Red_Amy.mp3")
	asr := &fakeASR{
		needsWav: true,
		results:  map[string]types.Transcript{"Red_Amy": transcript("hi", seg(0, 1, "hi"))},
	}
	audio := &fakeAudio{duration: 3 * time.Second}
	cache := newFakeCache()
	uc := New(Deps{Audio: audio, ASR: asr, Cache: cache})

	first, err := uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Files[0].Cached {
		t.Fatalf("first run cannot be a cache hit")
	}
	if audio.normalized != 1 {
		t.Fatalf("expected one normalization, got %d", audio.normalized)
	}
	if !strings.HasSuffix(asr.lastAudio, filepath.Join("Red_Amy.wav", "audio.wav")) {
		t.Fatalf("expected ASR to receive normalized wav, got %s", asr.lastAudio)
	}
	if len(cache.entries) != 1 {
		t.Fatalf("expected one cache entry, got %d", len(cache.entries))
	}
	for _, e := range cache.entries {
		if e.Duration != 3*time.Second || e.Engine != "fake" || e.Filename != "Red_Amy.mp3" {
			t.Fatalf("unexpected cache entry: %+v", e)
		}
	}

	second, err := uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Files[0].Cached {
		t.Fatalf("expected cache hit on second run")
	}
	if asr.callCount() != 1 {
		t.Fatalf("expected ASR to run once, got %d", asr.callCount())
	}
	if !reflect.DeepEqual(first.Conversation, second.Conversation) {
		t.Fatalf("cached run changed conversation: %+v vs %+v", first.Conversation, second.Conversation)
	}
}

func TestRun_ProcessedDirUnwritableIsFatal(t *testing.T) {
	t.Parallel()

	in := newInput(t, "Red_Amy.wav")
	if err := os.WriteFile(in.ProcessedDir, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := New(Deps{Audio: &fakeAudio{}, ASR: &fakeASR{}}).Run(context.Background(), in)
	if !apperr.IsKind(err, apperr.KindIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
}

func TestRun_DuplicateSpeakerKeepsFirstFile(t *testing.T) {
	t.Parallel()

	in := newInput(t, "Red_ Amy.wav", "Red_Amy.mp3", "Red_Amy.wav", "Blue_Sam.wav")
	in.Workers = 3
	asr := &fakeASR{results: map[string]types.Transcript{
		"Red_ Amy": transcript("spaced", seg(0, 1, "spaced")),
		"Red_Amy":  transcript("plain", seg(2, 3, "plain")),
		"Blue_Sam": transcript("yo", seg(1, 2, "yo")),
	}}

	res, err := New(Deps{Audio: &fakeAudio{}, ASR: asr}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// sorted: "Blue_Sam.wav", "Red_ Amy.wav", "Red_Amy.mp3", "Red_Amy.wav"
	for _, f := range res.Files[2:] {
		if !apperr.IsKind(f.Err, apperr.KindParse) || !strings.Contains(f.Err.Error(), "Red_ Amy.wav") {
			t.Fatalf("expected %s to be rejected in favor of Red_ Amy.wav, got %v", f.File, f.Err)
		}
	}
	if res.Failed() != 2 {
		t.Fatalf("expected 2 rejected files, got %+v", res.Files)
	}
	if n := asr.callCount(); n != 2 {
		t.Fatalf("rejected files must not be transcribed, got %d ASR calls", n)
	}
	if got := readFile(t, filepath.Join(in.OutputsDir, "Red.txt")); got != "spaced" {
		t.Fatalf("Red.txt = %q", got)
	}

	rebuilt, err := Rebuild(context.Background(), MergeInput{ProcessedDir: in.ProcessedDir, OutputsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !reflect.DeepEqual(rebuilt.Conversation, res.Conversation) || !reflect.DeepEqual(rebuilt.Teams, res.Teams) {
		t.Fatalf("merge disagrees with transcribe:\n%+v\n%+v", rebuilt, res)
	}
}

func TestRun_ParticipantWriteFailureSkipsFile(t *testing.T) {
	t.Parallel()

	in := newInput(t, "Red_Amy.wav", "Blue_Sam.wav")
	if err := os.MkdirAll(filepath.Join(in.ProcessedDir, "Blue_Sam.txt"), 0o755); err != nil {
		t.Fatalf("mkdir fixture: %v", err)
	}
	asr := &fakeASR{results: map[string]types.Transcript{
		"Red_Amy":  transcript("hi", seg(0, 1, "hi")),
		"Blue_Sam": transcript("yo", seg(0.5, 1.5, "yo")),
	}}

	res, err := New(Deps{Audio: &fakeAudio{}, ASR: asr}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("a single participant write failure must not abort the batch: %v", err)
	}
	if res.Failed() != 1 || res.Files[0].File != "Blue_Sam.wav" || !apperr.IsRecoverable(res.Files[0].Err) {
		t.Fatalf("expected Blue_Sam.wav to fail recoverably, got %+v", res.Files)
	}
	want := "[0.00s - 1.00s] (Red - Amy): hi\n"
	if got := readFile(t, filepath.Join(in.OutputsDir, "conversation.txt")); got != want {
		t.Fatalf("conversation.txt = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(in.OutputsDir, "Blue.txt")); !os.IsNotExist(err) {
		t.Fatalf("skipped team must not get a transcript, stat err=%v", err)
	}
}

func TestRun_RejectsReservedTeamName(t *testing.T) {
	t.Parallel()

	in := newInput(t, "conversation_Amy.wav", "Red_Bob.wav")
	asr := &fakeASR{results: map[string]types.Transcript{
		"conversation_Amy": transcript("team text", seg(0, 1, "team text")),
		"Red_Bob":          transcript("hello", seg(0, 1, "hello")),
	}}

	res, err := New(Deps{Audio: &fakeAudio{}, ASR: asr}).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// sorted: "Red_Bob.wav", "conversation_Amy.wav"
	if res.Files[0].Err != nil || !apperr.IsKind(res.Files[1].Err, apperr.KindParse) {
		t.Fatalf("expected only the reserved team to be rejected, got %+v", res.Files)
	}
	want := "[0.00s - 1.00s] (Red - Bob): hello\n"
	if got := readFile(t, filepath.Join(in.OutputsDir, "conversation.txt")); got != want {
		t.Fatalf("conversation.txt = %q, want %q", got, want)
	}
}

func TestRun_MissingRawDirIsFatal(t *testing.T) {
	t.Parallel()

	in := newInput(t)
	in.RawDir = filepath.Join(in.RawDir, "missing")
	_, err := New(Deps{Audio: &fakeAudio{}, ASR: &fakeASR{}}).Run(context.Background(), in)
	if !apperr.IsKind(err, apperr.KindIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	in := newInput(t, "Red_Amy.wav")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Deps{Audio: &fakeAudio{}, ASR: &fakeASR{}}).Run(ctx, in)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeAudio struct {
	mu         sync.Mutex
	normalized int
	duration   time.Duration
}

func (f *fakeAudio) NormalizeMono16k(_ context.Context, _, outWav string) error {
	f.mu.Lock()
	f.normalized++
	f.mu.Unlock()
	return os.WriteFile(outWav, []byte("wav"), 0o644)
}

func (f *fakeAudio) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	return f.duration, nil
}

// fakeASR answers by the file stem; the per-file work directory is named after
// the input file.
type fakeASR struct {
	needsWav bool
	results  map[string]types.Transcript
	fail     map[string]error
	delays   map[string]time.Duration

	mu        sync.Mutex
	calls     int
	lastAudio string
}

func (f *fakeASR) Engine() string { return "fake" }

func (f *fakeASR) NeedsWav() bool { return f.needsWav }

func (f *fakeASR) Transcribe(ctx context.Context, audioPath, workDir string) (types.Transcript, error) {
	base := filepath.Base(workDir)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	f.mu.Lock()
	f.calls++
	f.lastAudio = audioPath
	f.mu.Unlock()

	if d := f.delays[stem]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return types.Transcript{}, ctx.Err()
		}
	}
	if err := f.fail[stem]; err != nil {
		return types.Transcript{}, err
	}
	return f.results[stem], nil
}

func (f *fakeASR) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]ports.CacheEntry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]ports.CacheEntry{}}
}

func (c *fakeCache) Get(_ context.Context, hash, engine string) (types.Transcript, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash+"|"+engine]
	return e.Transcript, ok, nil
}

func (c *fakeCache) Put(_ context.Context, e ports.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Hash+"|"+e.Engine] = e
	return nil
}

func newInput(t *testing.T, files ...string) Input {
	t.Helper()
	root := t.TempDir()
	raw := filepath.Join(root, "data", "raw")
	if err := os.MkdirAll(raw, 0o755); err != nil {
		t.Fatalf("mkdir raw: %v", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(raw, f), []byte("audio:"+f), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
	return Input{
		RawDir:       raw,
		ProcessedDir: filepath.Join(root, "data", "processed"),
		OutputsDir:   filepath.Join(root, "outputs"),
		WorkDir:      filepath.Join(root, "work"),
	}
}

func seg(start, end float64, text string) types.Segment {
	return types.Segment{Start: start, End: end, Text: text}
}

func transcript(text string, segs ...types.Segment) types.Transcript {
	return types.Transcript{Text: text, Segments: segs}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(readFile(t, path)), v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}
