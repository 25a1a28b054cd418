// Package config — .renmt.yaml configuration file support.
//
// When a .renmt.yaml file exists in the project root it supplies the
// run settings; environment variables override the file for secrets and
// endpoints, and command-line flags override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .renmt.yaml structure.
type File struct {
	// GameDir is the Ren'Py project root (the directory containing
	// game/). Default ".".
	GameDir string `yaml:"game_dir,omitempty"`
	// Language is the tl directory name under game/tl/.
	Language string `yaml:"language,omitempty"`
	// Provider selects the backend: "openai" or "deepl".
	Provider string `yaml:"provider,omitempty"`
	// CachePath overrides the translation cache location. Empty means
	// the default file name under GameDir.
	CachePath string `yaml:"cache_path,omitempty"`
	// BatchSize is how many lines go into one request.
	BatchSize int `yaml:"batch_size,omitempty"`
	// Retries is the attempt limit per request.
	Retries int `yaml:"retries,omitempty"`
	// TimeoutSeconds is the base per-request timeout.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
	// RequestDelaySeconds is an optional pause between batches.
	RequestDelaySeconds float64 `yaml:"request_delay_seconds,omitempty"`

	OpenAI OpenAI `yaml:"openai,omitempty"`
	DeepL  DeepL  `yaml:"deepl,omitempty"`
}

// OpenAI holds the chat-completion backend settings.
type OpenAI struct {
	// BaseURL is the API base; "/v1/chat/completions" is derived from it.
	BaseURL string `yaml:"base_url,omitempty" env:"OPENAI_BASE_URL"`
	// Model is the model identifier.
	Model string `yaml:"model,omitempty" env:"OPENAI_MODEL"`
	// APIKey is the bearer token. Prefer the environment variable or the
	// credential store over putting it in the file.
	APIKey string `yaml:"api_key,omitempty" env:"OPENAI_API_KEY"`
	// TargetLanguage is the human-readable target language for the
	// prompt. Empty means derive it from the tl language name.
	TargetLanguage string `yaml:"target_language,omitempty"`
	// Temperature for sampling.
	Temperature float64 `yaml:"temperature,omitempty"`
	// Format is an optional response-format hint ("json" for Ollama).
	Format string `yaml:"format,omitempty"`
}

// DeepL holds the form-POST backend settings.
type DeepL struct {
	// BaseURL is the API base; "/v2/translate" is derived from it.
	BaseURL string `yaml:"base_url,omitempty" env:"DEEPL_API_URL"`
	// AuthKey is the DeepL authentication key.
	AuthKey string `yaml:"auth_key,omitempty" env:"DEEPL_AUTH_KEY"`
	// TargetLang is the DeepL target_lang code. Empty means derive it
	// from the tl language name.
	TargetLang string `yaml:"target_lang,omitempty"`
	// SourceLang is the optional source_lang code; empty means auto-detect.
	SourceLang string `yaml:"source_lang,omitempty"`
}

// ProviderOpenAI selects the chat-completion backend.
const ProviderOpenAI = "openai"

// ProviderDeepL selects the DeepL backend.
const ProviderDeepL = "deepl"

// FileName is the default config file name.
const FileName = ".renmt.yaml"

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the settings used when no file and no environment
// override them.
func Default() *File {
	return &File{
		GameDir:        ".",
		Provider:       ProviderOpenAI,
		BatchSize:      20,
		Retries:        3,
		TimeoutSeconds: 180,
		OpenAI: OpenAI{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
		},
		DeepL: DeepL{
			BaseURL: "https://api-free.deepl.com",
		},
	}
}

// Load builds the effective configuration for a project root: defaults,
// then .renmt.yaml if present, then environment variables on top.
func Load(rootDir string) (*File, error) {
	f := Default()

	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(f); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := f.validate(path); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) validate(path string) error {
	switch f.Provider {
	case ProviderOpenAI, ProviderDeepL:
	default:
		return fmt.Errorf("%s: unknown provider %q (valid: %s, %s)",
			path, f.Provider, ProviderOpenAI, ProviderDeepL)
	}
	if f.BatchSize < 0 {
		return fmt.Errorf("%s: batch_size must be positive", path)
	}
	if f.Retries < 0 {
		return fmt.Errorf("%s: retries must be positive", path)
	}
	return nil
}

// Timeout returns the base per-request timeout as a duration.
func (f *File) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// RequestDelay returns the inter-batch pause as a duration.
func (f *File) RequestDelay() time.Duration {
	return time.Duration(f.RequestDelaySeconds * float64(time.Second))
}
