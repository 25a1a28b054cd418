package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	f, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q", f.Provider)
	}
	if f.BatchSize != 20 || f.Retries != 3 || f.TimeoutSeconds != 180 {
		t.Errorf("defaults = %d/%d/%d", f.BatchSize, f.Retries, f.TimeoutSeconds)
	}
	if f.OpenAI.BaseURL != "https://api.openai.com" {
		t.Errorf("OpenAI.BaseURL = %q", f.OpenAI.BaseURL)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
game_dir: ./mygame
language: chinese
provider: deepl
batch_size: 10
request_delay_seconds: 1.5
deepl:
  target_lang: ZH-HANS
  source_lang: EN
`)
	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.GameDir != "./mygame" || f.Language != "chinese" {
		t.Errorf("game/language = %q/%q", f.GameDir, f.Language)
	}
	if f.Provider != ProviderDeepL || f.BatchSize != 10 {
		t.Errorf("provider/batch = %q/%d", f.Provider, f.BatchSize)
	}
	if f.DeepL.SourceLang != "EN" {
		t.Errorf("DeepL.SourceLang = %q", f.DeepL.SourceLang)
	}
	if f.RequestDelay() != 1500*time.Millisecond {
		t.Errorf("RequestDelay = %s", f.RequestDelay())
	}
	// Unset fields keep their defaults.
	if f.Retries != 3 || f.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("defaults lost: %d/%q", f.Retries, f.OpenAI.Model)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
openai:
  api_key: from-file
  base_url: https://file.example.com
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("DEEPL_AUTH_KEY", "deepl-env")

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.OpenAI.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env value", f.OpenAI.APIKey)
	}
	if f.OpenAI.BaseURL != "https://file.example.com" {
		t.Errorf("BaseURL = %q, want file value", f.OpenAI.BaseURL)
	}
	if f.DeepL.AuthKey != "deepl-env" {
		t.Errorf("DeepL.AuthKey = %q", f.DeepL.AuthKey)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "provider: babelfish\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "provider: [unclosed\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for broken YAML")
	}
}

func TestTimeout(t *testing.T) {
	f := Default()
	if f.Timeout() != 180*time.Second {
		t.Errorf("Timeout = %s", f.Timeout())
	}
}
