package translate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/renpy-tools/renmt/cache"
)

// fakeTranslator drives the orchestrator without a network.
type fakeTranslator struct {
	key   string
	fn    func(texts []string) ([]string, error)
	calls [][]string
}

func (f *fakeTranslator) ProviderKey() string { return f.key }

func (f *fakeTranslator) TranslateBatch(_ context.Context, texts []string) ([]string, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	return f.fn(texts)
}

func writeScript(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "script.rpy")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestRun(t *testing.T, tr Translator, opts Options) (*Run, *cache.Cache) {
	t.Helper()
	store, err := cache.Load(filepath.Join(t.TempDir(), cache.DefaultFileName))
	if err != nil {
		t.Fatal(err)
	}
	return NewRun(tr, store, opts), store
}

func TestTranslateFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "    # e \"Hello\"\n    e \"Hello\"\n")

	fake := &fakeTranslator{key: "test|prov", fn: func(texts []string) ([]string, error) {
		return []string{"你好"}, nil
	}}
	run, store := newTestRun(t, fake, Options{})

	stats, err := run.TranslateFile(context.Background(), path)
	if err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	if stats.Translated != 1 || !stats.Changed {
		t.Errorf("stats = %+v", stats)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "    e \"你好\"\n") {
		t.Errorf("file not rewritten: %q", string(data))
	}
	if hit, ok := store.Get("test|prov", "Hello"); !ok || hit != "你好" {
		t.Errorf("cache miss after run: %q %v", hit, ok)
	}

	// Second run: the slot is translated, nothing to do, no backend call.
	calls := len(fake.calls)
	stats, err = run.TranslateFile(context.Background(), path)
	if err != nil {
		t.Fatalf("second TranslateFile: %v", err)
	}
	if stats.Changed || stats.Translated != 0 {
		t.Errorf("second run stats = %+v", stats)
	}
	if len(fake.calls) != calls {
		t.Errorf("second run made %d extra backend calls", len(fake.calls)-calls)
	}
}

func TestTranslateFileServesCacheHits(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "    old \"Hello\"\n    new \"Hello\"\n")

	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		return nil, fmt.Errorf("backend must not be called")
	}}
	run, store := newTestRun(t, fake, Options{})
	store.Set("p", "Hello", "你好")

	stats, err := run.TranslateFile(context.Background(), path)
	if err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	if stats.Translated != 1 || len(fake.calls) != 0 {
		t.Errorf("stats = %+v, calls = %d", stats, len(fake.calls))
	}
}

func TestTranslateFilePlaceholderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "    e \"Hi [player], {b}welcome{/b}!\"\n")

	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		if len(texts) != 1 || strings.Contains(texts[0], "[player]") {
			return nil, fmt.Errorf("markup leaked into backend request: %q", texts)
		}
		// Echo the tokens back around a translated core.
		out := texts[0]
		out = strings.Replace(out, "Hi", "你好", 1)
		out = strings.Replace(out, "welcome", "欢迎", 1)
		return []string{out}, nil
	}}
	run, _ := newTestRun(t, fake, Options{})

	if _, err := run.TranslateFile(context.Background(), path); err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	data, _ := os.ReadFile(path)
	got := string(data)
	if !strings.Contains(got, "[player]") || !strings.Contains(got, "{b}") {
		t.Errorf("markup not restored: %q", got)
	}
	if strings.Contains(got, "__RNPH_") {
		t.Errorf("placeholder token leaked into file: %q", got)
	}
}

func TestTranslateFileQuotaStopsRun(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, strings.Join([]string{
		"    old \"One\"",
		"    new \"One\"",
		"    old \"Two\"",
		"    new \"Two\"",
		"",
	}, "\n"))

	calls := 0
	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		calls++
		if calls == 1 {
			return []string{"一"}, nil
		}
		return nil, fmt.Errorf("HTTP 456: %w", ErrQuotaExhausted)
	}}
	run, store := newTestRun(t, fake, Options{BatchSize: 1})

	stats, err := run.TranslateFile(context.Background(), path)
	if err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	if !stats.QuotaExhausted || !run.QuotaExhausted() {
		t.Errorf("quota flag not set: %+v", stats)
	}
	if stats.Translated != 1 || stats.Deferred != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// The successful batch made it into the persisted cache.
	reloaded, err := cache.Load(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if hit, ok := reloaded.Get("p", "One"); !ok || hit != "一" {
		t.Errorf("persisted cache = %q %v", hit, ok)
	}

	// Once quota is hit, further files issue no requests at all.
	other := writeScript(t, t.TempDir(), "    e \"Three\"\n")
	before := calls
	if _, err := run.TranslateFile(context.Background(), other); err != nil {
		t.Fatalf("post-quota TranslateFile: %v", err)
	}
	if calls != before {
		t.Errorf("post-quota run made %d backend calls", calls-before)
	}
}

func TestTranslateFilePerItemFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, strings.Join([]string{
		"    old \"Good\"",
		"    new \"Good\"",
		"    old \"Poison\"",
		"    new \"Poison\"",
		"",
	}, "\n"))

	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		if len(texts) > 1 {
			return nil, fmt.Errorf("batch rejected")
		}
		if texts[0] == "Poison" {
			return nil, fmt.Errorf("still rejected")
		}
		return []string{"好"}, nil
	}}
	run, _ := newTestRun(t, fake, Options{})

	stats, err := run.TranslateFile(context.Background(), path)
	if err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	if stats.Translated != 1 || stats.Deferred != 1 {
		t.Errorf("stats = %+v", stats)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "    new \"好\"") {
		t.Errorf("good line not rewritten: %q", string(data))
	}
	if !strings.Contains(string(data), "    new \"Poison\"") {
		t.Errorf("poisoned line must stay untouched: %q", string(data))
	}
}

func TestTranslateFileWarnsOncePerCategory(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, strings.Join([]string{
		"    old \"A\"",
		"    new \"A\"",
		"    old \"B\"",
		"    new \"B\"",
		"    old \"C\"",
		"    new \"C\"",
		"    old \"D\"",
		"    new \"D\"",
		"",
	}, "\n"))

	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		// Always one extra element.
		out := make([]string, 0, len(texts)+1)
		for _, s := range texts {
			out = append(out, "x"+s)
		}
		return append(out, "stray"), nil
	}}

	var warnings []string
	run, _ := newTestRun(t, fake, Options{
		BatchSize: 2,
		OnError: func(format string, args ...any) {
			warnings = append(warnings, fmt.Sprintf(format, args...))
		},
	})

	if _, err := run.TranslateFile(context.Background(), path); err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	count := 0
	for _, w := range warnings {
		if strings.Contains(w, "extra translations") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("extra-translation warning emitted %d times, want 1: %v", count, warnings)
	}
}

func TestTranslateFileLeftoverTokenFallsBackToSource(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "    e \"Hi [player]\"\n")

	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		// An unknown token survives unmasking and poisons the result.
		return []string{"你好 __RNPH_9__"}, nil
	}}
	run, store := newTestRun(t, fake, Options{})

	if _, err := run.TranslateFile(context.Background(), path); err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	if hit, ok := store.Get("p", "Hi [player]"); !ok || hit != "Hi [player]" {
		t.Errorf("cache = %q %v, want source-text fallback", hit, ok)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "__RNPH_") {
		t.Errorf("token leaked into file: %q", string(data))
	}
}

func TestTranslateFileMaxLines(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, strings.Join([]string{
		"    old \"A\"",
		"    new \"A\"",
		"    old \"B\"",
		"    new \"B\"",
		"    old \"C\"",
		"    new \"C\"",
		"",
	}, "\n"))

	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		out := make([]string, len(texts))
		for i, s := range texts {
			out[i] = "t:" + s
		}
		return out, nil
	}}
	run, _ := newTestRun(t, fake, Options{MaxLines: 2})

	stats, err := run.TranslateFile(context.Background(), path)
	if err != nil {
		t.Fatalf("TranslateFile: %v", err)
	}
	if stats.Translated != 2 {
		t.Errorf("stats = %+v, want 2 translated", stats)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "    new \"C\"") {
		t.Errorf("third line must stay untouched: %q", string(data))
	}
}

func TestTranslateFileCancellation(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "    e \"Hello\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeTranslator{key: "p", fn: func(texts []string) ([]string, error) {
		t.Error("backend called after cancellation")
		return nil, nil
	}}
	run, _ := newTestRun(t, fake, Options{})

	if _, err := run.TranslateFile(ctx, path); err == nil {
		t.Fatal("expected context error")
	}
}

func TestStatsAdd(t *testing.T) {
	total := Stats{Translated: 1, Skipped: 2}
	total.Add(Stats{Translated: 3, Deferred: 1, Failed: 1, Changed: true, QuotaExhausted: true})
	want := Stats{Translated: 4, Skipped: 2, Deferred: 1, Failed: 1, Changed: true, QuotaExhausted: true}
	if total != want {
		t.Errorf("got %+v, want %+v", total, want)
	}
}

func TestCountJobs(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, strings.Join([]string{
		"    old \"A\"",
		"    new \"A\"",
		"    old \"B\"",
		"    new \"乙\"",
		"",
	}, "\n"))

	pending, total, err := CountJobs(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 || total != 2 {
		t.Errorf("pending/total = %d/%d, want 1/2", pending, total)
	}
}
