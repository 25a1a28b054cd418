// Package rpyfile reads and rewrites Ren'Py translation (tl) files.
//
// A tl file is line-oriented: generated dialogue blocks carry the
// original text in a comment directly above the translation slot, and
// string blocks use explicit old/new marker lines:
//
//	# narrator "Hello"
//	narrator ""
//
//	old "Yes"
//	new ""
//
// There is no formal grammar to parse against; the extractor is a small
// state machine over raw lines with two single-slot pending states, one
// for the comment form and one for the old/new form. Each recovered
// pairing becomes a LineJob holding the source text and the exact span
// to rewrite.
package rpyfile

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/renpy-tools/renmt/placeholder"
)

// Line grammar. Quoted bodies allow escaped characters; the speaker
// prefix is an optional single identifier.
var (
	commentSayLine = regexp.MustCompile(`^(\s*)#\s*(?:[A-Za-z_]\w*\s+)?"((?:[^"\\]|\\.)*)"(\s*)$`)
	oldLine        = regexp.MustCompile(`^(\s*old\s+)"((?:[^"\\]|\\.)*)"(\s*)$`)
	newLine        = regexp.MustCompile(`^(\s*new\s+)"((?:[^"\\]|\\.)*)"(\s*)$`)
	sayLine        = regexp.MustCompile(`^(\s*(?:[A-Za-z_]\w*\s+)?)"((?:[^"\\]|\\.)*)"(\s*)$`)
)

// LineJob is one translatable line recovered from a tl file: the
// original text to translate plus the exact span to rewrite. SourceText
// is never mutated after extraction.
type LineJob struct {
	// LineIndex is the zero-based index of the line to rewrite.
	LineIndex int
	// Prefix and Suffix are the literal text around the quoted string.
	Prefix string
	Suffix string
	// SourceText is the untranslated reference text.
	SourceText string
	// CurrentText is what presently sits in the translation slot.
	CurrentText string
}

// File is a loaded tl file: raw lines with their endings preserved.
type File struct {
	Path  string
	Lines []string
}

// Load reads a tl file and splits it into lines, keeping each line's
// original ending so a rewrite never normalizes line endings.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &File{Path: path, Lines: splitKeepEndings(string(data))}, nil
}

// splitKeepEndings splits text after every newline, keeping the
// newline with its line. A final fragment without a newline is kept too.
func splitKeepEndings(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// Jobs extracts the ordered translation jobs from the file.
//
// A job is included only if overwrite was requested, the current text
// equals the source (never translated), or the current text still holds
// placeholder tokens from an interrupted run. Everything else is
// already translated and left alone, which is what makes an interrupted
// run resumable.
func (f *File) Jobs(overwrite bool) []LineJob {
	return CollectJobs(f.Lines, overwrite)
}

// CollectJobs runs the extractor state machine over raw lines.
func CollectJobs(lines []string, overwrite bool) []LineJob {
	var jobs []LineJob
	var pendingOld, pendingComment *string

	include := func(current, source string) bool {
		return overwrite || current == source || placeholder.HasTokens(current)
	}

	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r\n")

		if m := commentSayLine.FindStringSubmatch(line); m != nil {
			text := m[2]
			pendingComment = &text
			pendingOld = nil
			continue
		}

		if m := oldLine.FindStringSubmatch(line); m != nil {
			text := m[2]
			pendingOld = &text
			pendingComment = nil
			continue
		}

		if m := newLine.FindStringSubmatch(line); m != nil {
			current := m[2]
			source := current
			if pendingOld != nil {
				source = *pendingOld
			}
			if include(current, source) {
				jobs = append(jobs, LineJob{
					LineIndex:   i,
					Prefix:      m[1],
					Suffix:      m[3],
					SourceText:  source,
					CurrentText: current,
				})
			}
			pendingOld, pendingComment = nil, nil
			continue
		}

		if m := sayLine.FindStringSubmatch(line); m != nil && !strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			current := m[2]
			source := current
			if pendingComment != nil {
				source = *pendingComment
			}
			if include(current, source) {
				jobs = append(jobs, LineJob{
					LineIndex:   i,
					Prefix:      m[1],
					Suffix:      m[3],
					SourceText:  source,
					CurrentText: current,
				})
			}
			pendingOld, pendingComment = nil, nil
			continue
		}

		// Any other meaningful line breaks the pairing; a stale pending
		// slot must never attach to an unrelated quoted line below.
		if strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			pendingOld, pendingComment = nil, nil
		}
	}

	return jobs
}

// EscapeString escapes a translation for embedding in a double-quoted
// Ren'Py string: backslashes and quotes are escaped, and real newlines
// become \n escapes.
func EscapeString(text string) string {
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\r", "\n")
	return strings.ReplaceAll(escaped, "\n", `\n`)
}

// ApplyResult counts what Apply did to one file.
type ApplyResult struct {
	// Translated lines were rewritten with a new translation.
	Translated int
	// Skipped lines already held exactly the resolved text.
	Skipped int
	// Deferred jobs had no resolved translation this run.
	Deferred int
	// Changed reports whether any line was rewritten.
	Changed bool
}

// Apply maps every job's source text through resolved and rewrites the
// matching lines in place. Jobs without a resolved translation are left
// untouched for a later run. A line is only rewritten when the fully
// reconstructed text differs from what is already there.
func (f *File) Apply(jobs []LineJob, resolved map[string]string) ApplyResult {
	var res ApplyResult
	for _, job := range jobs {
		translated, ok := resolved[job.SourceText]
		if !ok {
			res.Deferred++
			continue
		}

		old := f.Lines[job.LineIndex]
		ending := ""
		if strings.HasSuffix(old, "\r\n") {
			ending = "\r\n"
		} else if strings.HasSuffix(old, "\n") {
			ending = "\n"
		}

		rebuilt := job.Prefix + `"` + EscapeString(translated) + `"` + job.Suffix + ending
		if rebuilt == old {
			res.Skipped++
			continue
		}
		f.Lines[job.LineIndex] = rebuilt
		res.Translated++
		res.Changed = true
	}
	return res
}

// Save writes the file back to disk.
func (f *File) Save() error {
	if err := os.WriteFile(f.Path, []byte(strings.Join(f.Lines, "")), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}
	return nil
}

// FindTLFiles returns the sorted .rpy files under game/tl/<language>
// inside gameDir. A missing tl directory yields an empty list, not an
// error: the caller reports it as "nothing to translate".
func FindTLFiles(gameDir, language string) ([]string, error) {
	base := filepath.Join(gameDir, "game", "tl", language)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".rpy") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", base, err)
	}
	sort.Strings(files)
	return files, nil
}
