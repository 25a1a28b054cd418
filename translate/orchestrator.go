package translate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/renpy-tools/renmt/cache"
	"github.com/renpy-tools/renmt/placeholder"
	"github.com/renpy-tools/renmt/reply"
	"github.com/renpy-tools/renmt/rpyfile"
)

// Options controls one orchestration run.
type Options struct {
	// BatchSize is how many texts go into one backend call.
	BatchSize int
	// RequestDelay is an optional pause between batches.
	RequestDelay time.Duration
	// Overwrite disables the resumability filter and re-translates
	// lines that already hold a translation.
	Overwrite bool
	// MaxLines caps jobs per file (0 = no limit). Debugging aid.
	MaxLines int
	// OnLog and OnError receive progress and failure messages; the
	// package itself never prints.
	OnLog   func(format string, args ...any)
	OnError func(format string, args ...any)
}

func (o *Options) effectiveBatchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return 20
}

// Stats summarizes what one file (or a whole run, via Add) produced.
type Stats struct {
	// Translated lines were rewritten this run.
	Translated int
	// Skipped lines already held the correct text.
	Skipped int
	// Deferred lines had no translation this run and will be retried.
	Deferred int
	// Failed counts files that errored out.
	Failed int
	// Changed reports whether any file was rewritten.
	Changed bool
	// QuotaExhausted reports that the backend refused on quota and the
	// run stopped issuing new requests.
	QuotaExhausted bool
}

// Add folds another file's stats into a run total.
func (s *Stats) Add(o Stats) {
	s.Translated += o.Translated
	s.Skipped += o.Skipped
	s.Deferred += o.Deferred
	s.Failed += o.Failed
	s.Changed = s.Changed || o.Changed
	s.QuotaExhausted = s.QuotaExhausted || o.QuotaExhausted
}

// Run is one orchestration run over a set of tl files. It owns the
// run-scoped state the pipeline needs: the translator, the cache, the
// quota flag, and the set of warning categories already emitted, so
// self-healing situations warn once per run instead of once per line.
type Run struct {
	translator Translator
	store      *cache.Cache
	opts       Options
	warned     map[string]bool
	quotaHit   bool
}

// NewRun creates an orchestration run.
func NewRun(translator Translator, store *cache.Cache, opts Options) *Run {
	return &Run{
		translator: translator,
		store:      store,
		opts:       opts,
		warned:     make(map[string]bool),
	}
}

// QuotaExhausted reports whether the backend signaled quota exhaustion
// at any point in this run. Once set, no further requests are issued.
func (r *Run) QuotaExhausted() bool {
	return r.quotaHit
}

func (r *Run) log(format string, args ...any) {
	if r.opts.OnLog != nil {
		r.opts.OnLog(format, args...)
	}
}

func (r *Run) logError(format string, args ...any) {
	if r.opts.OnError != nil {
		r.opts.OnError(format, args...)
	} else if r.opts.OnLog != nil {
		r.opts.OnLog(format, args...)
	}
}

// warnOnce emits a warning the first time key is seen in this run.
func (r *Run) warnOnce(key, format string, args ...any) {
	if r.warned[key] {
		return
	}
	r.warned[key] = true
	r.logError(format+" (shown once)", args...)
}

// warnMismatch reports a count-normalization repair, once per category.
func (r *Run) warnMismatch(m reply.Mismatch) {
	switch m {
	case reply.MismatchEmpty:
		r.warnOnce(m.String(), "backend returned 0 translations for a request; source text kept for missing entries")
	case reply.MismatchSingleExtra:
		r.warnOnce(m.String(), "backend returned multiple candidates for one line; first differing candidate used")
	case reply.MismatchExtra:
		r.warnOnce(m.String(), "backend returned extra translations; extras truncated")
	case reply.MismatchMissing:
		r.warnOnce(m.String(), "backend returned fewer translations than requested; source text kept for missing entries")
	}
}

// TranslateFile runs the full pipeline over one tl file: extract jobs,
// dedup to unique sources, resolve through cache and backend, and
// rewrite the lines that changed. Unresolved jobs stay untouched and
// are picked up by the next run through the resumability filter.
func (r *Run) TranslateFile(ctx context.Context, path string) (Stats, error) {
	var stats Stats

	f, err := rpyfile.Load(path)
	if err != nil {
		stats.Failed = 1
		return stats, err
	}

	jobs := f.Jobs(r.opts.Overwrite)
	if r.opts.MaxLines > 0 && len(jobs) > r.opts.MaxLines {
		jobs = jobs[:r.opts.MaxLines]
	}
	if len(jobs) == 0 {
		return stats, nil
	}

	resolved, runErr := r.translateUnique(ctx, uniqueSources(jobs))
	stats.QuotaExhausted = r.quotaHit

	res := f.Apply(jobs, resolved)
	stats.Translated = res.Translated
	stats.Skipped = res.Skipped
	stats.Deferred = res.Deferred
	stats.Changed = res.Changed

	if res.Changed {
		if err := f.Save(); err != nil {
			stats.Failed = 1
			if serr := r.store.Save(); serr != nil {
				r.logError("saving cache: %v", serr)
			}
			return stats, err
		}
	}
	return stats, runErr
}

// uniqueSources returns the sorted set of source texts across jobs.
func uniqueSources(jobs []rpyfile.LineJob) []string {
	seen := make(map[string]bool, len(jobs))
	var sources []string
	for _, job := range jobs {
		if !seen[job.SourceText] {
			seen[job.SourceText] = true
			sources = append(sources, job.SourceText)
		}
	}
	sort.Strings(sources)
	return sources
}

// translateUnique resolves every source text: cache hits first, then
// the misses in batches through the backend. The cache is persisted
// after every batch so a crash or cancellation loses at most one batch.
func (r *Run) translateUnique(ctx context.Context, sources []string) (map[string]string, error) {
	providerKey := r.translator.ProviderKey()
	resolved := make(map[string]string, len(sources))
	var pending []string

	for _, text := range sources {
		if hit, ok := r.store.Get(providerKey, text); ok {
			resolved[text] = hit
		} else {
			pending = append(pending, text)
		}
	}
	if len(pending) == 0 || r.quotaHit {
		return resolved, nil
	}

	r.log("translating %d uncached text(s)", len(pending))
	batchSize := r.opts.effectiveBatchSize()
	done := 0

	for start := 0; start < len(pending); start += batchSize {
		if err := ctx.Err(); err != nil {
			r.saveCache()
			return resolved, err
		}

		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		masked := make([]string, len(batch))
		mappings := make([]map[string]string, len(batch))
		for i, text := range batch {
			masked[i], mappings[i] = placeholder.Mask(text)
		}

		results := make([]string, len(batch))
		got := make([]bool, len(batch))

		raw, err := r.translator.TranslateBatch(ctx, masked)
		switch {
		case err == nil:
			normalized, mismatch := reply.Normalize(raw, masked)
			r.warnMismatch(mismatch)
			for i := range batch {
				results[i] = normalized[i]
				got[i] = true
			}
		case errors.Is(err, ErrQuotaExhausted):
			r.quotaHit = true
			r.logError("quota exhausted, stopping new requests: %v", err)
			r.saveCache()
		case ctx.Err() != nil:
			r.saveCache()
			return resolved, ctx.Err()
		default:
			// A whole-batch failure is often one poisoned line; retry
			// each text alone and keep whatever individually succeeds.
			r.logError("batch failed, falling back to single requests: %v", err)
			for i := range masked {
				single, err := r.translator.TranslateBatch(ctx, masked[i:i+1])
				if err != nil {
					if errors.Is(err, ErrQuotaExhausted) {
						r.quotaHit = true
						r.logError("quota exhausted during fallback, stopping: %v", err)
						break
					}
					if ctx.Err() != nil {
						r.saveCache()
						return resolved, ctx.Err()
					}
					r.logError("single request failed, deferring this line: %v", err)
					continue
				}
				normalized, mismatch := reply.Normalize(single, masked[i:i+1])
				r.warnMismatch(mismatch)
				results[i] = normalized[0]
				got[i] = true
			}
		}

		applied := 0
		for i := range batch {
			if !got[i] {
				continue
			}
			restored := strings.TrimSpace(placeholder.Unmask(results[i], mappings[i]))
			if restored == "" || placeholder.HasTokens(restored) {
				restored = batch[i]
			}
			resolved[batch[i]] = restored
			r.store.Set(providerKey, batch[i], restored)
			applied++
		}

		done += applied
		if applied > 0 {
			r.log("translated %d/%d uncached text(s)", done, len(pending))
		}
		r.saveCache()

		if r.quotaHit {
			break
		}
		if end < len(pending) && r.opts.RequestDelay > 0 {
			if err := sleepCtx(ctx, r.opts.RequestDelay); err != nil {
				return resolved, err
			}
		}
	}

	return resolved, nil
}

func (r *Run) saveCache() {
	if err := r.store.Save(); err != nil {
		r.logError("saving cache: %v", err)
	}
}

// CountJobs reports how many lines a file would translate in the given
// mode without touching any backend. Used by the status command.
func CountJobs(path string, overwrite bool) (pending int, total int, err error) {
	f, err := rpyfile.Load(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return len(f.Jobs(overwrite)), len(f.Jobs(true)), nil
}
