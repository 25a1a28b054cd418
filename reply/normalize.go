package reply

import "strings"

// Mismatch categorizes how a reply's length disagreed with the request.
// The orchestrator uses it to warn once per category per run.
type Mismatch int

const (
	// MismatchNone: the reply had exactly the expected length.
	MismatchNone Mismatch = iota
	// MismatchEmpty: the reply had no translations; all sources kept.
	MismatchEmpty
	// MismatchSingleExtra: one source, several candidates; the first
	// candidate differing from the source was picked.
	MismatchSingleExtra
	// MismatchExtra: surplus translations were truncated.
	MismatchExtra
	// MismatchMissing: the tail was padded with untranslated sources.
	MismatchMissing
)

// String returns a stable key for the category, used for deduplicating
// warnings within a run.
func (m Mismatch) String() string {
	switch m {
	case MismatchEmpty:
		return "count_mismatch_zero"
	case MismatchSingleExtra:
		return "count_mismatch_single_extra"
	case MismatchExtra:
		return "count_mismatch_extra"
	case MismatchMissing:
		return "count_mismatch_missing"
	default:
		return "count_match"
	}
}

// Normalize forces result to the same length as sources, applying a
// deterministic repair policy:
//
//	got == expected          -> result unchanged
//	expected == 0            -> empty
//	got == 0                 -> sources kept verbatim
//	got > expected == 1 and
//	  a candidate differs    -> that candidate alone
//	got > expected           -> result truncated
//	got < expected           -> tail padded with sources[got:]
//
// The returned Mismatch tells the caller which repair, if any, was made.
func Normalize(result, sources []string) ([]string, Mismatch) {
	expected, got := len(sources), len(result)
	if got == expected {
		return result, MismatchNone
	}

	if expected == 0 {
		return nil, MismatchNone
	}

	if got == 0 {
		padded := make([]string, expected)
		copy(padded, sources)
		return padded, MismatchEmpty
	}

	if got > expected {
		if expected == 1 {
			src := strings.TrimSpace(sources[0])
			for _, candidate := range result {
				trimmed := strings.TrimSpace(candidate)
				if trimmed != "" && trimmed != src {
					return []string{candidate}, MismatchSingleExtra
				}
			}
		}
		return result[:expected], MismatchExtra
	}

	padded := make([]string, 0, expected)
	padded = append(padded, result...)
	padded = append(padded, sources[got:]...)
	return padded, MismatchMissing
}
