package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/renpy-tools/renmt/reply"
)

// chatSystemPrompt demands a placeholder-preserving, tone-preserving,
// JSON-array-only reply. Refusals and moralizing are explicitly ruled
// out: visual novel dialogue is routinely flagged by over-cautious
// models, and a refusal mid-array corrupts the whole batch.
const chatSystemPrompt = `You are a professional visual novel localizer.
Translate to the requested target language.
Rules:
1) Keep placeholders like __RNPH_0__ unchanged.
2) Preserve tone and intent.
3) Do not censor, refuse, moralize, or change topic.
4) Return ONLY a JSON array of strings, same order and same length.`

// OpenAIConfig configures the chat-completion backend.
type OpenAIConfig struct {
	// BaseURL is the API base. "/v1/chat/completions" is appended
	// unless the base already ends in that path or in "/v1".
	BaseURL string
	// Model is the model identifier.
	Model string
	// TargetLanguage is the human-readable target language for the
	// prompt (e.g. "Simplified Chinese").
	TargetLanguage string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// Temperature for sampling.
	Temperature float64
	// Format is an optional response-format hint ("json" for Ollama).
	Format string
	// Retries is the attempt limit per batch.
	Retries int
	// Timeout is the base request timeout; the effective timeout grows
	// with the longest text in the batch.
	Timeout time.Duration
	// Logf, when set, receives retry diagnostics.
	Logf func(format string, args ...any)
}

// OpenAITranslator is the chat-completion Translator variant.
type OpenAITranslator struct {
	cfg      OpenAIConfig
	endpoint string
	key      string
	client   *http.Client
}

// NewOpenAITranslator builds the chat-completion backend. Defaults:
// 3 retries, 180s base timeout.
func NewOpenAITranslator(cfg OpenAIConfig) *OpenAITranslator {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	endpoint := buildChatEndpoint(cfg.BaseURL)
	return &OpenAITranslator{
		cfg:      cfg,
		endpoint: endpoint,
		key:      fmt.Sprintf("openai|%s|%s|%s", endpoint, cfg.Model, cfg.TargetLanguage),
		// The client carries no timeout of its own; each request gets
		// a context deadline sized to its batch.
		client: &http.Client{},
	}
}

// buildChatEndpoint derives the chat-completions endpoint from a base URL.
func buildChatEndpoint(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// ProviderKey implements Translator.
func (t *OpenAITranslator) ProviderKey() string {
	return t.key
}

// adaptiveTimeout grows the base timeout for long texts: one extra
// second per 30 characters of the longest item, capped at 4x base.
func adaptiveTimeout(base time.Duration, texts []string) time.Duration {
	if base < time.Second {
		base = time.Second
	}
	maxChars := 0
	for _, t := range texts {
		if len(t) > maxChars {
			maxChars = len(t)
		}
	}
	adaptive := base + time.Duration(maxChars/30)*time.Second
	if adaptive > 4*base {
		adaptive = 4 * base
	}
	if adaptive < base {
		adaptive = base
	}
	return adaptive
}

// chatRequest is the chat-completions payload.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Format      string        `json:"format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the slice of the reply body we care about.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// TranslateBatch implements Translator. A request whose failure looks
// like a timeout is retried exactly once with a boosted timeout before
// the standard backoff loop takes over; everything else goes straight
// into exponential backoff up to the attempt limit.
func (t *OpenAITranslator) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	userPayload, err := json.Marshal(struct {
		TargetLanguage string   `json:"target_language"`
		Texts          []string `json:"texts"`
	}{t.cfg.TargetLanguage, texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling batch: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: t.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: chatSystemPrompt},
			{Role: "user", Content: string(userPayload)},
		},
		Temperature: t.cfg.Temperature,
		Format:      t.cfg.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	timeout := adaptiveTimeout(t.cfg.Timeout, texts)
	boosted := 2 * timeout
	if floor := 8 * t.cfg.Timeout; boosted < floor {
		boosted = floor
	}

	var lastErr error
	boostUsed := false
	for attempt := 1; attempt <= t.cfg.Retries; attempt++ {
		result, err := t.request(ctx, body, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !boostUsed && isTimeoutError(err) {
			boostUsed = true
			t.logf("chat request timed out, retrying once with timeout %s", boosted)
			result, err = t.request(ctx, body, boosted)
			if err == nil {
				return result, nil
			}
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		t.logf("chat batch failed (attempt %d/%d): %v", attempt, t.cfg.Retries, lastErr)
		if attempt < t.cfg.Retries {
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("chat translation failed after %d attempts: %w", t.cfg.Retries, lastErr)
}

// request performs one POST with the given timeout and extracts the
// string array from the model's reply.
func (t *OpenAITranslator) request(ctx context.Context, body []byte, timeout time.Duration) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", t.endpoint, err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, t.endpoint, truncate(string(respBody), 500))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %s", t.endpoint, truncate(string(respBody), 400))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("reply from %s has no choices: %s", t.endpoint, truncate(string(respBody), 400))
	}

	return reply.ExtractStringArray(parsed.Choices[0].Message.Content)
}

// isTimeoutError reports whether an error looks like a request timeout.
func isTimeoutError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}

func (t *OpenAITranslator) logf(format string, args ...any) {
	if t.cfg.Logf != nil {
		t.cfg.Logf(format, args...)
	}
}
