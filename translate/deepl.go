package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// quotaStatus is DeepL's dedicated "quota exceeded" HTTP status.
const quotaStatus = 456

// DeepLConfig configures the form-POST backend.
type DeepLConfig struct {
	// BaseURL is the API base. "/v2/translate" is appended unless the
	// base already ends with it.
	BaseURL string
	// AuthKey is the DeepL authentication key (required).
	AuthKey string
	// TargetLang is the DeepL target_lang code (e.g. "ZH-HANS").
	TargetLang string
	// SourceLang is the optional source_lang code; empty means
	// auto-detect.
	SourceLang string
	// Retries is the attempt limit per batch.
	Retries int
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// Logf, when set, receives retry diagnostics.
	Logf func(format string, args ...any)
}

// DeepLTranslator is the form-POST Translator variant.
type DeepLTranslator struct {
	cfg      DeepLConfig
	endpoint string
	key      string
	client   *http.Client
}

// NewDeepLTranslator builds the DeepL backend. The auth key is
// mandatory; there is no anonymous DeepL API.
func NewDeepLTranslator(cfg DeepLConfig) (*DeepLTranslator, error) {
	if cfg.AuthKey == "" {
		return nil, fmt.Errorf("deepl backend requires an auth key")
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	endpoint := buildDeepLEndpoint(cfg.BaseURL)
	src := cfg.SourceLang
	if src == "" {
		src = "auto"
	}
	return &DeepLTranslator{
		cfg:      cfg,
		endpoint: endpoint,
		key:      fmt.Sprintf("deepl|%s|%s|%s", endpoint, src, cfg.TargetLang),
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// buildDeepLEndpoint derives the translate endpoint from a base URL.
func buildDeepLEndpoint(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v2/translate") {
		return base
	}
	return base + "/v2/translate"
}

// ProviderKey implements Translator.
func (t *DeepLTranslator) ProviderKey() string {
	return t.key
}

// deepLResponse is the translate endpoint's reply shape.
type deepLResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// TranslateBatch implements Translator. A quota-exhausted response is
// surfaced as ErrQuotaExhausted and never retried; every other failure,
// including a reply with the wrong number of translations, goes through
// the backoff loop up to the attempt limit.
func (t *DeepLTranslator) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	form := url.Values{}
	form.Set("target_lang", t.cfg.TargetLang)
	form.Set("preserve_formatting", "1")
	form.Set("split_sentences", "nonewlines")
	if t.cfg.SourceLang != "" {
		form.Set("source_lang", t.cfg.SourceLang)
	}
	for _, text := range texts {
		form.Add("text", text)
	}
	encoded := form.Encode()

	var lastErr error
	for attempt := 1; attempt <= t.cfg.Retries; attempt++ {
		result, err := t.request(ctx, encoded, len(texts))
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrQuotaExhausted) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		t.logf("deepl batch failed (attempt %d/%d): %v", attempt, t.cfg.Retries, err)
		if attempt < t.cfg.Retries {
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("deepl translation failed after %d attempts: %w", t.cfg.Retries, lastErr)
}

func (t *DeepLTranslator) request(ctx context.Context, encodedForm string, expected int) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(encodedForm))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+t.cfg.AuthKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", t.endpoint, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == quotaStatus || strings.Contains(string(body), "Quota exceeded") {
		return nil, fmt.Errorf("%w: HTTP %d from %s: %s", ErrQuotaExhausted, resp.StatusCode, t.endpoint, truncate(string(body), 300))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, t.endpoint, truncate(string(body), 500))
	}

	var parsed deepLResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %s", t.endpoint, truncate(string(body), 400))
	}

	result := make([]string, 0, len(parsed.Translations))
	for _, tr := range parsed.Translations {
		result = append(result, tr.Text)
	}
	if len(result) != expected {
		return nil, fmt.Errorf("expected %d translations, got %d", expected, len(result))
	}
	return result, nil
}

func (t *DeepLTranslator) logf(format string, args ...any) {
	if t.cfg.Logf != nil {
		t.cfg.Logf(format, args...)
	}
}
