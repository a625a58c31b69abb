package types

// Transcript is the ASR result for one audio file.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Segment is one timed span as reported by the speech model. Fields past Text are
// model-specific and only present when the engine reports them.
type Segment struct {
	ID               int     `json:"id"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	AvgLogprob       float64 `json:"avg_logprob,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	NoSpeechProb     float64 `json:"no_speech_prob,omitempty"`
	Words            []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Identity is the (team, participant) pair encoded in a recording's filename.
type Identity struct {
	Team        string
	Participant string
}

// Stem is the artifact basename shared by the per-participant outputs.
func (id Identity) Stem() string {
	return id.Team + "_" + id.Participant
}

// Utterance is a segment attributed to a speaker on the global timeline.
type Utterance struct {
	Team        string  `json:"team"`
	Participant string  `json:"participant"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Text        string  `json:"text"`
}

type TeamTranscript struct {
	Team string
	Text string
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions are the sampling knobs sent with a chat completion request.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}
