// Package reply recovers a string array from whatever a text-generation
// backend actually returned.
//
// Models that are asked for "a JSON array of strings, nothing else" still
// wrap the array in prose, fence it in markdown, truncate it mid-string,
// or leave trailing commas behind. Instead of one forgiving parser, this
// package runs an ordered list of independent strategies — strict JSON
// first, relaxed scraping last — and takes the first success. A reply
// that defeats every strategy is a hard error, never an empty result.
package reply

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// arrayKeys are object fields commonly used by models that wrap the
// requested array in an envelope despite instructions.
var arrayKeys = []string{"translations", "texts", "output", "result", "data"}

var (
	fencedBlock   = regexp.MustCompile("(?is)```(?:json)?\\s*([\\s\\S]*?)```")
	trailingComma = regexp.MustCompile(`,\s*([\]}])`)
	quotedString  = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	// Broken single-item arrays: ["text...] with the closing quote lost.
	truncatedClosed = regexp.MustCompile(`(?s)\[\s*"(.+?)\]\s*$`)
	truncatedOpen   = regexp.MustCompile(`(?s)\[\s*"(.+)$`)
)

// strategy attempts one way of reading a string array out of a reply.
// It returns nil when the reply does not match its shape.
type strategy func(text string) []string

// strategies are tried in order; the first non-nil result wins.
var strategies = []strategy{
	parseWhole,
	parseFenced,
	parseEmbedded,
	parseRelaxed,
}

// ExtractStringArray extracts a string array from raw backend output.
// It returns an error when no strategy succeeds; callers must treat that
// as a malformed reply, not as zero translations.
func ExtractStringArray(raw string) ([]string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("model reply is empty")
	}
	for _, try := range strategies {
		if result := try(text); result != nil {
			return result, nil
		}
	}
	return nil, fmt.Errorf("model reply is not a JSON string array: %s", truncate(text, 500))
}

// parseWhole parses the entire reply (and a comma-sanitized variant) as
// JSON and accepts a string array or a known envelope around one.
func parseWhole(text string) []string {
	for _, candidate := range sanitizedVariants(text) {
		var value any
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			continue
		}
		if arr := stringArray(value); arr != nil {
			return arr
		}
	}
	return nil
}

// parseFenced extracts markdown code-block contents and retries the
// strict parse on each block.
func parseFenced(text string) []string {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		block := strings.TrimSpace(m[1])
		if block == "" {
			continue
		}
		if arr := parseWhole(block); arr != nil {
			return arr
		}
	}
	return nil
}

// parseEmbedded scans for the first decodable JSON value starting at each
// '[' or '{' in the reply, tolerating prose before and after it.
func parseEmbedded(text string) []string {
	for _, candidate := range sanitizedVariants(text) {
		for i := 0; i < len(candidate); i++ {
			if candidate[i] != '[' && candidate[i] != '{' {
				continue
			}
			dec := json.NewDecoder(strings.NewReader(candidate[i:]))
			var value any
			if err := dec.Decode(&value); err != nil {
				continue
			}
			if arr := stringArray(value); arr != nil {
				return arr
			}
		}
	}
	return nil
}

// parseRelaxed gives up on JSON structure: it locates a [...] span (or
// uses the whole reply), scrapes quoted string literals out of it, and
// as a last resort recovers a truncated single-element array.
func parseRelaxed(text string) []string {
	candidate := sanitize(text)

	segment := candidate
	if start, end := strings.Index(candidate, "["), strings.LastIndex(candidate, "]"); start != -1 && end > start {
		segment = candidate[start : end+1]
	}

	if matches := quotedString.FindAllStringSubmatch(segment, -1); len(matches) > 0 {
		result := make([]string, 0, len(matches))
		for _, m := range matches {
			result = append(result, unescapeFragment(m[1]))
		}
		return result
	}

	for _, re := range []*regexp.Regexp{truncatedClosed, truncatedOpen} {
		if m := re.FindStringSubmatch(segment); m != nil {
			value := strings.TrimRight(strings.TrimSpace(m[1]), `",`)
			if value != "" {
				return []string{value}
			}
		}
	}

	return nil
}

// stringArray accepts a decoded JSON value that is either a string array
// or an object carrying one under a known key.
func stringArray(value any) []string {
	switch v := value.(type) {
	case []any:
		return onlyStrings(v)
	case map[string]any:
		for _, key := range arrayKeys {
			if nested, ok := v[key].([]any); ok {
				if arr := onlyStrings(nested); arr != nil {
					return arr
				}
			}
		}
	}
	return nil
}

func onlyStrings(items []any) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		result = append(result, s)
	}
	return result
}

// sanitize strips a BOM and repeatedly removes trailing commas before
// closing brackets, the most common model-generated JSON defect.
func sanitize(text string) string {
	cleaned := strings.TrimPrefix(strings.TrimSpace(text), "\ufeff")
	for {
		next := trailingComma.ReplaceAllString(cleaned, "$1")
		if next == cleaned {
			return cleaned
		}
		cleaned = next
	}
}

// sanitizedVariants returns the candidate as-is plus, when different,
// its sanitized form, so strict parses run before repaired ones.
func sanitizedVariants(text string) []string {
	variants := []string{text}
	if cleaned := sanitize(text); cleaned != text {
		variants = append(variants, cleaned)
	}
	return variants
}

// unescapeFragment decodes one quoted-string body as JSON, falling back
// to unescaping just quotes and backslashes when the fragment is not a
// legal JSON string.
func unescapeFragment(fragment string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+fragment+`"`), &s); err == nil {
		return s
	}
	return strings.ReplaceAll(strings.ReplaceAll(fragment, `\"`, `"`), `\\`, `\`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
