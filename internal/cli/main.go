package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:           "debatescribe",
		Short:         "Transcribe per-speaker debate recordings into one timeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")

	transcribe := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe every <team>_<participant> recording and merge the results",
		Args:  cobra.NoArgs,
		RunE:  runTranscribe,
	}
	transcribe.Flags().String("raw", getenvDefault("DEBATE_RAW_DIR", "data/raw"), "Directory with input recordings")
	transcribe.Flags().String("processed", getenvDefault("DEBATE_PROCESSED_DIR", "data/processed"), "Directory for per-participant transcripts")
	transcribe.Flags().String("outputs", getenvDefault("DEBATE_OUTPUTS_DIR", "outputs"), "Directory for team and conversation outputs")
	transcribe.Flags().Int("workers", 1, "Files transcribed in parallel")
	transcribe.Flags().String("engine", getenvDefault("WHISPER_ENGINE", "whispercpp"), "ASR engine: whispercpp or whisper")
	transcribe.Flags().String("language", "", "Spoken language hint passed to the ASR")
	transcribe.Flags().String("cache", getenvDefault("DEBATE_CACHE_DB", "data/cache.db"), "Transcript cache database")
	transcribe.Flags().Bool("no-cache", false, "Disable the transcript cache")

	merge := &cobra.Command{
		Use:   "merge",
		Short: "Rebuild team and conversation outputs from processed transcripts",
		Args:  cobra.NoArgs,
		RunE:  runMerge,
	}
	merge.Flags().String("processed", getenvDefault("DEBATE_PROCESSED_DIR", "data/processed"), "Directory with per-participant transcripts")
	merge.Flags().String("outputs", getenvDefault("DEBATE_OUTPUTS_DIR", "outputs"), "Directory for team and conversation outputs")

	verdict := &cobra.Command{
		Use:   "verdict [transcript]",
		Short: "Ask a chat-completion model to summarize the debate and pick a winner",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVerdict,
	}
	verdict.Flags().Duration("timeout", 0, "Request timeout (default 5m)")

	// Hidden tuning flags
	verdict.Flags().Float64("temperature", 0.7, "Sampling temperature")
	verdict.Flags().Int("max-tokens", -1, "Completion token limit, -1 for unlimited")
	_ = verdict.Flags().MarkHidden("temperature")
	_ = verdict.Flags().MarkHidden("max-tokens")

	root.AddCommand(transcribe, merge, verdict)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
