// Package cache implements the persistent translation cache — a
// content-addressed store of prior (provider, source) → translation
// results that makes interrupted runs resumable without re-translating
// or corrupting already-applied lines.
//
// Entries are addressed by the SHA-1 of "providerKey\nsourceText", so
// changing the backend, endpoint, model, or target language invalidates
// prior results by construction. A read double-checks the stored
// provider and source against the lookup and rejects entries whose
// translation still carries synthetic placeholder tokens; a poisoned
// entry behaves exactly like a miss.
//
// The cache is saved after every processed batch and on file-level error
// paths: a crash loses at most one in-flight batch. A single writer
// process is assumed; two processes sharing one cache file are unsafe.
package cache

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/renpy-tools/renmt/placeholder"
)

// DefaultFileName is the cache file name used when the project
// configuration does not override it.
const DefaultFileName = ".translation_cache.json"

// Entry is one cached translation result.
type Entry struct {
	Provider    string `json:"provider"`
	Source      string `json:"source"`
	Translation string `json:"translation"`
}

// Cache is the on-disk translation store. Methods are not safe for
// concurrent use; the orchestrator runs single-threaded.
type Cache struct {
	Entries map[string]Entry `json:"entries"`

	path string
}

// Load reads the cache file at path, returning an empty cache when the
// file does not exist or cannot be parsed. A broken cache file is worth
// a warning, never a failed run: the content-addressed reads make stale
// or partial data harmless.
func Load(path string) (*Cache, error) {
	c := &Cache{
		Entries: make(map[string]Entry),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		c.Entries = make(map[string]Entry)
		return c, fmt.Errorf("parsing %s: %w", path, err)
	}
	if c.Entries == nil {
		c.Entries = make(map[string]Entry)
	}
	return c, nil
}

// hashKey derives the entry address from the provider key and source.
func hashKey(providerKey, sourceText string) string {
	sum := sha1.Sum([]byte(providerKey + "\n" + sourceText))
	return fmt.Sprintf("%x", sum)
}

// Get returns the cached translation for (providerKey, sourceText), or
// "" and false on a miss. An entry whose stored provider or source does
// not match the lookup exactly, or whose translation still contains
// placeholder tokens, is rejected as corrupt.
func (c *Cache) Get(providerKey, sourceText string) (string, bool) {
	entry, ok := c.Entries[hashKey(providerKey, sourceText)]
	if !ok {
		return "", false
	}
	if entry.Provider != providerKey || entry.Source != sourceText {
		return "", false
	}
	if placeholder.HasTokens(entry.Translation) {
		return "", false
	}
	return entry.Translation, true
}

// Set upserts the translation for (providerKey, sourceText).
func (c *Cache) Set(providerKey, sourceText, translation string) {
	c.Entries[hashKey(providerKey, sourceText)] = Entry{
		Provider:    providerKey,
		Source:      sourceText,
		Translation: translation,
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return len(c.Entries)
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// Save serializes the whole entry map to the cache file, creating the
// parent directory if needed.
func (c *Cache) Save() error {
	if c.path == "" {
		return fmt.Errorf("cache file path not set")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", c.path, err)
	}
	return nil
}
