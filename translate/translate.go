// Package translate implements machine translation of Ren'Py tl files
// through a pluggable backend: an OpenAI-compatible chat-completion API
// or the DeepL form-POST API.
//
// The package has two layers. The Translator capability is a closed set
// of backend variants sharing one batch-translate operation with
// retry/backoff and a distinguished quota-exhausted error. On top of it
// the batch orchestrator dedups a file's jobs to unique source texts,
// serves cache hits, masks placeholders, dispatches misses in batches,
// repairs the reply length, and rewrites only the lines that changed.
package translate

import (
	"context"
	"errors"
	"time"
)

// Translator is the batch translation capability. TranslateBatch makes
// a best effort to return one translation per input in the same order;
// exact-length enforcement is the caller's job via reply.Normalize.
type Translator interface {
	// ProviderKey uniquely identifies backend kind, endpoint, model or
	// language pair, and target language. It scopes cache validity.
	ProviderKey() string
	// TranslateBatch translates texts, retrying transient failures
	// internally. It returns ErrQuotaExhausted (wrapped) when the
	// backend reports its limits are spent; that error is never worth
	// retrying.
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
}

// ErrQuotaExhausted marks a backend-reported limit: further calls will
// fail until external quotas reset. Callers check it with errors.Is and
// stop issuing requests for the rest of the run.
var ErrQuotaExhausted = errors.New("provider quota exhausted")

// maxBackoff caps the exponential retry delay.
const maxBackoff = 8 * time.Second

// backoffDelay returns the exponential delay for a 1-based attempt
// number: 2^attempt seconds, capped.
func backoffDelay(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
