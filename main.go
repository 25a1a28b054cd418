// renmt — resilient machine translation for Ren'Py tl files.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/renpy-tools/renmt/cache"
	"github.com/renpy-tools/renmt/config"
	"github.com/renpy-tools/renmt/credentials"
	"github.com/renpy-tools/renmt/i18n"
	"github.com/renpy-tools/renmt/langmeta"
	"github.com/renpy-tools/renmt/rpyfile"
	"github.com/renpy-tools/renmt/translate"
	"github.com/spf13/cobra"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "renmt",
		Short: "Machine translation for Ren'Py tl files",
		Long: `renmt — resilient machine translation for Ren'Py tl files.

Scans game/tl/<language>/**/*.rpy, extracts untranslated dialogue and
string lines, translates them in batches through an OpenAI-compatible
chat API or DeepL, and rewrites the files in place. Ren'Py markup and
interpolation are masked before translation and restored afterwards.
Runs are resumable: already translated lines are skipped and every
completed batch is persisted to a translation cache.

Commands:
  status      Show per-file translation progress (no network)
  translate   Translate pending lines using the configured provider
  cache       Inspect or clear the translation cache
  auth        Manage stored provider API keys

Providers:
  openai  OpenAI-compatible chat API (OpenAI, Ollama, LM Studio, ...)
  deepl   DeepL REST API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newTranslateCmd(),
		newCacheCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("renmt version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// shared setup
// ---------------------------------------------------------------------------

// loadConfig reads .renmt.yaml plus environment overrides and resolves
// the game directory against --root.
func loadConfig() (*config.File, string, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, "", err
	}
	gameDir := cfg.GameDir
	if !filepath.IsAbs(gameDir) {
		gameDir = filepath.Join(rootDir, gameDir)
	}
	return cfg, gameDir, nil
}

// cachePath resolves the translation cache location: flag > file > default.
func cachePath(cfg *config.File, gameDir, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg.CachePath != "" {
		if filepath.IsAbs(cfg.CachePath) {
			return cfg.CachePath
		}
		return filepath.Join(rootDir, cfg.CachePath)
	}
	return filepath.Join(gameDir, cache.DefaultFileName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ---------------------------------------------------------------------------
// status (read-only: per-file translation progress)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-file translation progress",
		Long: `Show how many lines each tl file still needs translated.

Reads game/tl/<language>/**/*.rpy and counts pending and total lines per
file. Does not modify any files and never calls a translation backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(lang)
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "tl language directory (overrides .renmt.yaml)")

	return cmd
}

func runStatus(lang string) error {
	cfg, gameDir, err := loadConfig()
	if err != nil {
		return err
	}
	if lang == "" {
		lang = cfg.Language
	}
	if lang == "" {
		return fmt.Errorf("no language configured; use --lang or set language in %s", config.FileName)
	}

	fmt.Fprintf(os.Stderr, "\n%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	absGame, _ := filepath.Abs(gameDir)
	fmt.Fprintf(os.Stderr, "  Game dir:   %s\n", absGame)
	fmt.Fprintf(os.Stderr, "  Language:   %s\n", lang)
	fmt.Fprintf(os.Stderr, "  Provider:   %s\n", cfg.Provider)

	cPath := cachePath(cfg, gameDir, "")
	if fileExists(cPath) {
		store, err := cache.Load(cPath)
		if err != nil {
			logWarning("%v", err)
		}
		fmt.Fprintf(os.Stderr, "  Cache:      %s (%s)\n", cPath,
			fmt.Sprintf(i18n.N("%d entry", "%d entries", store.Len()), store.Len()))
	} else {
		fmt.Fprintf(os.Stderr, "  Cache:      %s (missing)\n", cPath)
	}
	fmt.Fprintln(os.Stderr)

	files, err := rpyfile.FindTLFiles(gameDir, lang)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logWarning("%s: game/tl/%s", i18n.T("No translation files found"), lang)
		return nil
	}

	fmt.Fprintf(os.Stderr, "%sTranslation Progress%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "\n%-40s %-10s %-10s %-8s\n", "File", "Pending", "Total", "Percent")
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	totalPending, totalLines, failed := 0, 0, 0
	for _, path := range files {
		rel, relErr := filepath.Rel(gameDir, path)
		if relErr != nil {
			rel = path
		}
		pending, total, err := translate.CountJobs(path, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%-40s %serror reading%s\n", rel, colorRed, colorReset)
			failed++
			continue
		}
		percent := 100
		if total > 0 {
			percent = (total - pending) * 100 / total
		}
		fmt.Fprintf(os.Stderr, "%-40s %-10d %-10d %d%%\n", rel, pending, total, percent)
		totalPending += pending
		totalLines += total
	}

	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "Total: %d pending of %d lines across %s\n\n",
		totalPending, totalLines,
		fmt.Sprintf(i18n.N("%d translation file", "%d translation files", len(files)), len(files)))

	if failed > 0 {
		logWarning("%d file(s) could not be read", failed)
	}
	if totalPending == 0 && failed == 0 {
		logSuccess("All translations are complete!")
	}
	return nil
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate pending lines using the configured provider",
		Long: `Translate untranslated tl lines in batches.

Settings come from .renmt.yaml, environment variables, and flags (flags
win). A run is resumable: lines that already hold a translation are
skipped, every completed batch is persisted to the translation cache,
and an interrupted run picks up where it left off.

Examples:
  # Translate with an OpenAI-compatible endpoint
  renmt translate --lang chinese --provider openai --model gpt-4o-mini

  # Local Ollama server with strict JSON output
  renmt translate --lang chinese --base-url http://localhost:11434 \
    --model qwen2.5 --format json

  # DeepL, re-translating everything
  renmt translate --lang german --provider deepl --overwrite`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(a)
		},
	}

	// Provider selection
	cmd.Flags().StringVar(&a.provider, "provider", "", "Backend: openai or deepl (default from .renmt.yaml)")
	cmd.Flags().StringVar(&a.model, "model", "", "Model name (openai provider)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or OPENAI_API_KEY / DEEPL_AUTH_KEY)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")
	cmd.Flags().StringVar(&a.format, "format", "", "Response format hint, e.g. json for Ollama")

	// Target selection
	cmd.Flags().StringVar(&a.lang, "lang", "", "tl language directory (overrides .renmt.yaml)")

	// Translation behavior
	cmd.Flags().IntVar(&a.batchSize, "batch-size", 0, "Lines per request (0 = config default)")
	cmd.Flags().BoolVar(&a.overwrite, "overwrite", false, "Re-translate lines that already hold a translation")
	cmd.Flags().IntVar(&a.maxLines, "max-lines", 0, "Translate at most N lines per file (0 = no limit)")
	cmd.Flags().BoolVar(&a.noStopOnQuota, "no-stop-on-quota", false, "Keep processing later files after a quota error")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Enable detailed logging")

	// Network
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Base request timeout (0 = config default)")
	cmd.Flags().IntVar(&a.retries, "retries", 0, "Attempts per request (0 = config default)")
	cmd.Flags().DurationVar(&a.requestDelay, "request-delay", 0, "Delay between batches")

	// Hidden overrides
	cmd.Flags().StringVar(&a.cacheFile, "cache", "", "Translation cache file")
	_ = cmd.Flags().MarkHidden("cache")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"openai\tOpenAI-compatible chat API (OpenAI, Ollama, LM Studio)",
			"deepl\tDeepL REST API",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

type translateArgs struct {
	provider, model, apiKey, baseURL, format string
	lang                                     string
	batchSize, maxLines, retries             int
	overwrite, noStopOnQuota, verbose        bool
	timeout, requestDelay                    time.Duration
	cacheFile                                string
}

func runTranslate(a translateArgs) error {
	cfg, gameDir, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, a)

	if cfg.Language == "" {
		return fmt.Errorf("no language configured; use --lang or set language in %s", config.FileName)
	}

	files, err := rpyfile.FindTLFiles(gameDir, cfg.Language)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logWarning("%s: game/tl/%s", i18n.T("No translation files found"), cfg.Language)
		return nil
	}
	logInfo(i18n.N("Found %d translation file", "Found %d translation files", len(files)), len(files))

	translator, err := buildTranslator(cfg, a)
	if err != nil {
		return err
	}

	cPath := cachePath(cfg, gameDir, a.cacheFile)
	store, err := cache.Load(cPath)
	if err != nil {
		logWarning("%v (starting with an empty cache)", err)
	}
	if a.verbose {
		log.Printf("cache: %s (%d entries)", cPath, store.Len())
		log.Printf("provider key: %s", translator.ProviderKey())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := translate.NewRun(translator, store, translate.Options{
		BatchSize:    cfg.BatchSize,
		RequestDelay: cfg.RequestDelay(),
		Overwrite:    a.overwrite,
		MaxLines:     a.maxLines,
		OnLog:        logInfo,
		OnError:      logWarning,
	})

	var total translate.Stats
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		rel, relErr := filepath.Rel(gameDir, path)
		if relErr != nil {
			rel = path
		}
		logInfo("Translating %s", rel)

		stats, err := run.TranslateFile(ctx, path)
		total.Add(stats)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logWarning(i18n.T("Interrupted"))
				break
			}
			logError("%s: %v", rel, err)
		}
		if run.QuotaExhausted() && !a.noStopOnQuota {
			break
		}
	}

	fmt.Fprintln(os.Stderr)
	logInfo(i18n.T("translated %d, skipped %d, deferred %d, failed %d"),
		total.Translated, total.Skipped, total.Deferred, total.Failed)
	if total.QuotaExhausted {
		logWarning(i18n.T("Quota exhausted, run stopped early"))
	}
	if total.Failed > 0 {
		os.Exit(1)
	}
	logSuccess(i18n.T("Done"))
	return nil
}

// applyFlags lays command-line flags over the loaded configuration.
func applyFlags(cfg *config.File, a translateArgs) {
	if a.provider != "" {
		cfg.Provider = a.provider
	}
	if a.lang != "" {
		cfg.Language = a.lang
	}
	if a.batchSize > 0 {
		cfg.BatchSize = a.batchSize
	}
	if a.retries > 0 {
		cfg.Retries = a.retries
	}
	if a.timeout > 0 {
		cfg.TimeoutSeconds = int(a.timeout / time.Second)
	}
	if a.requestDelay > 0 {
		cfg.RequestDelaySeconds = a.requestDelay.Seconds()
	}
	if a.model != "" {
		cfg.OpenAI.Model = a.model
	}
	if a.format != "" {
		cfg.OpenAI.Format = a.format
	}
	if a.baseURL != "" {
		cfg.OpenAI.BaseURL = a.baseURL
		cfg.DeepL.BaseURL = a.baseURL
	}
}

// buildTranslator constructs the configured backend. API keys resolve
// flag > environment > credential store; target languages not set in
// the config are derived from the tl directory name.
func buildTranslator(cfg *config.File, a translateArgs) (translate.Translator, error) {
	logf := func(format string, args ...any) {
		if a.verbose {
			log.Printf(format, args...)
		}
	}
	meta, metaOK := langmeta.Resolve(cfg.Language)

	switch cfg.Provider {
	case config.ProviderOpenAI:
		target := cfg.OpenAI.TargetLanguage
		if target == "" && metaOK {
			target = meta.Prompt
		}
		if target == "" {
			return nil, fmt.Errorf("cannot derive a target language from tl directory %q; set openai.target_language in %s",
				cfg.Language, config.FileName)
		}
		key := credentials.ResolveKey("openai", a.apiKey)
		if key == "" {
			key = cfg.OpenAI.APIKey
		}
		if a.baseURL == "" && cfg.OpenAI.BaseURL == config.Default().OpenAI.BaseURL {
			// A remembered custom endpoint travels with the stored key.
			if stored := credentials.GetBaseURL("openai"); stored != "" {
				cfg.OpenAI.BaseURL = stored
			}
		}
		return translate.NewOpenAITranslator(translate.OpenAIConfig{
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.Model,
			TargetLanguage: target,
			APIKey:         key,
			Temperature:    cfg.OpenAI.Temperature,
			Format:         cfg.OpenAI.Format,
			Retries:        cfg.Retries,
			Timeout:        cfg.Timeout(),
			Logf:           logf,
		}), nil

	case config.ProviderDeepL:
		target := cfg.DeepL.TargetLang
		if target == "" && metaOK {
			target = meta.DeepL
		}
		if target == "" {
			return nil, fmt.Errorf("cannot derive a DeepL target for tl directory %q; set deepl.target_lang in %s",
				cfg.Language, config.FileName)
		}
		key := credentials.ResolveKey("deepl", a.apiKey)
		if key == "" {
			key = cfg.DeepL.AuthKey
		}
		return translate.NewDeepLTranslator(translate.DeepLConfig{
			BaseURL:    cfg.DeepL.BaseURL,
			AuthKey:    key,
			TargetLang: target,
			SourceLang: cfg.DeepL.SourceLang,
			Retries:    cfg.Retries,
			Timeout:    cfg.Timeout(),
			Logf:       logf,
		})
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// ---------------------------------------------------------------------------
// cache (inspect / clear)
// ---------------------------------------------------------------------------

func newCacheCmd() *cobra.Command {
	var cacheFile string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the translation cache",
		Long:  `Show the translation cache location and entry count.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gameDir, err := loadConfig()
			if err != nil {
				return err
			}
			cPath := cachePath(cfg, gameDir, cacheFile)
			store, err := cache.Load(cPath)
			if err != nil {
				logWarning("%v", err)
			}
			fmt.Printf("%s: %s\n", i18n.T("Translation cache"), cPath)
			fmt.Printf("  %s\n", fmt.Sprintf(i18n.N("%d entry", "%d entries", store.Len()), store.Len()))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cacheFile, "cache", "", "Translation cache file")

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete the translation cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gameDir, err := loadConfig()
			if err != nil {
				return err
			}
			cPath := cachePath(cfg, gameDir, cacheFile)
			if err := os.Remove(cPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", cPath, err)
			}
			logSuccess(i18n.T("Cache cleared"))
			return nil
		},
	}
	cmd.AddCommand(clear)

	return cmd
}

// ---------------------------------------------------------------------------
// auth (stored API keys)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored provider API keys",
		Long: `Manage API keys stored in ` + credentials.FilePath() + `.

Stored keys are used when neither --api-key nor the provider environment
variable is set.`,
	}

	cmd.AddCommand(newAuthSetCmd(), newAuthRemoveCmd(), newAuthListCmd())
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var key, baseURL string

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := args[0]
			if credentials.EnvVarForProvider(provider) == "" {
				return fmt.Errorf("unknown provider %q (valid: openai, deepl)", provider)
			}
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			if err := credentials.SetKey(provider, key, baseURL); err != nil {
				return err
			}
			logSuccess("Stored key for %s (%s)", provider, credentials.MaskKey(key))
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key to store")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Remember a custom endpoint with the key")

	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <provider>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.Remove(args[0]); err != nil {
				return err
			}
			logSuccess("Removed credentials for %s", args[0])
			return nil
		},
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored API keys (masked)",
		Run: func(cmd *cobra.Command, args []string) {
			store := credentials.Load()
			if len(store) == 0 {
				logInfo("No stored credentials")
				return
			}
			for provider, info := range store {
				line := fmt.Sprintf("  %-8s %s", provider, credentials.MaskKey(info.Key))
				if info.BaseURL != "" {
					line += "  " + info.BaseURL
				}
				fmt.Fprintln(os.Stderr, line)
			}
		},
	}
}
