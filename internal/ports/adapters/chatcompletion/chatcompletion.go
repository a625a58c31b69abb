package chatcompletion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/debatescribe/internal/apperr"
	"github.com/forPelevin/debatescribe/internal/types"
)

const (
	defaultModel   = "openai/gpt-oss-20b"
	defaultTimeout = 5 * time.Minute
	completionPath = "/v1/chat/completions"
)

// Adapter talks to an OpenAI-compatible chat completion endpoint, such as a
// local LM Studio or llama.cpp server.
type Adapter struct {
	key     string
	model   string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func New(baseURL, model, apiKey string, timeout time.Duration) *Adapter {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		timeout: timeout,
		client:  &http.Client{},
	}
}

type request struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

func (a *Adapter) Complete(ctx context.Context, messages []types.Message, opts types.CompletionOptions) (string, error) {
	body, err := json.Marshal(request{
		Model:       a.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + completionPath

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindService, "build completion request")
	}
	if a.key != "" {
		req.Header.Set("Authorization", "Bearer "+a.key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", apperr.Newf(apperr.KindService, "chat completion timeout after %s (model=%s)", a.timeout, a.model)
		}
		return "", apperr.Wrap(errors.New(redactSecrets(err.Error(), a.key)), apperr.KindService, "chat completion request")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", apperr.Wrapf(readErr, apperr.KindService, "chat completion status %d and read body failed", resp.StatusCode).
				WithMetadata("status", strconv.Itoa(resp.StatusCode))
		}
		return "", apperr.Newf(apperr.KindService, "chat completion status %d: %s",
			resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400)).
			WithMetadata("status", strconv.Itoa(resp.StatusCode))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", apperr.Wrap(err, apperr.KindService, "decode chat completion response")
	}
	if len(raw.Choices) == 0 {
		return "", apperr.New(apperr.KindService, "chat completion returned no choices")
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindService, "read chat completion content")
	}
	return content, nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some servers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("empty content")
		}
		return s, nil
	case nil:
		return "", errors.New("missing content")
	default:
		return "", fmt.Errorf("unexpected content type %T", v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
