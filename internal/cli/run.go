package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/forPelevin/debatescribe/internal/pipeline"
	"github.com/spf13/cobra"
)

func runTranscribe(cmd *cobra.Command, _ []string) error {
	rawDir, _ := cmd.Flags().GetString("raw")
	processedDir, _ := cmd.Flags().GetString("processed")
	outputsDir, _ := cmd.Flags().GetString("outputs")
	workers, _ := cmd.Flags().GetInt("workers")
	engine, _ := cmd.Flags().GetString("engine")
	language, _ := cmd.Flags().GetString("language")
	cacheDB, _ := cmd.Flags().GetString("cache")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	if noCache {
		cacheDB = ""
	}

	cfg := pipeline.TranscribeConfig{
		RawDir:       rawDir,
		ProcessedDir: processedDir,
		OutputsDir:   outputsDir,
		Workers:      workers,
		CacheDB:      cacheDB,
		Logf:         newLogf(cmd),

		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		Engine:       engine,
		WhisperBin:   os.Getenv("WHISPER_BIN"),
		WhisperModel: whisperModel(engine),
		Language:     language,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.Debug("transcribe", "raw", cfg.RawDir, "processed", cfg.ProcessedDir, "outputs", cfg.OutputsDir,
		"engine", cfg.Engine, "model", cfg.WhisperModel, "cache", cfg.CacheDB)

	ctx, stop := signalContext()
	defer stop()

	res, err := pipeline.RunTranscribe(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d utterances from %d files (%d failed)\n",
		len(res.Conversation), len(res.Files), res.Failed())
	return nil
}

func runMerge(cmd *cobra.Command, _ []string) error {
	processedDir, _ := cmd.Flags().GetString("processed")
	outputsDir, _ := cmd.Flags().GetString("outputs")

	cfg := pipeline.MergeConfig{
		ProcessedDir: processedDir,
		OutputsDir:   outputsDir,
		Logf:         newLogf(cmd),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := pipeline.RunMerge(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d utterances from %d participants (%d skipped)\n",
		len(res.Conversation), len(res.Files)-res.Failed(), res.Failed())
	return nil
}

func runVerdict(cmd *cobra.Command, args []string) error {
	path := filepath.Join(getenvDefault("DEBATE_OUTPUTS_DIR", "outputs"), "conversation.txt")
	if len(args) == 1 {
		path = args[0]
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	cfg := pipeline.VerdictConfig{
		TranscriptPath: path,
		Logf:           newLogf(cmd),

		BaseURL:      os.Getenv("VERDICT_BASE_URL"),
		AllowedHosts: splitList(os.Getenv("VERDICT_ALLOWED_HOSTS")),
		Model:        os.Getenv("VERDICT_MODEL"),
		APIKey:       os.Getenv("VERDICT_API_KEY"),
		Timeout:      timeout,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.Debug("verdict", "transcript", cfg.TranscriptPath, "base_url", cfg.BaseURL, "model", cfg.Model)

	ctx, stop := signalContext()
	defer stop()

	out, err := pipeline.RunVerdict(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(out))
	return nil
}

// newLogf routes pipeline progress through slog on stderr.
func newLogf(cmd *cobra.Command) func(format string, args ...any) {
	level := slog.LevelInfo
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func whisperModel(engine string) string {
	if engine == pipeline.EngineWhisper {
		return os.Getenv("WHISPER_MODEL")
	}
	return getenvDefault("WHISPER_MODEL", ".cache/models/ggml-base.bin")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
