// Package langmeta provides a shared language metadata registry mapping
// Ren'Py tl directory names to translation targets: the language name
// written into chat prompts and the DeepL target_lang code.
package langmeta

import "strings"

// Meta describes translation target metadata for a tl language.
type Meta struct {
	// Prompt is the human-readable language name used in chat prompts.
	Prompt string
	// DeepL is the DeepL target_lang code, empty when DeepL does not
	// support the language.
	DeepL string
}

// Registry contains canonical metadata keyed by the tl directory names
// Ren'Py projects conventionally use.
var Registry = map[string]Meta{
	"arabic":     {Prompt: "Arabic", DeepL: "AR"},
	"brazilian":  {Prompt: "Brazilian Portuguese", DeepL: "PT-BR"},
	"bulgarian":  {Prompt: "Bulgarian", DeepL: "BG"},
	"chinese":    {Prompt: "Simplified Chinese", DeepL: "ZH-HANS"},
	"czech":      {Prompt: "Czech", DeepL: "CS"},
	"danish":     {Prompt: "Danish", DeepL: "DA"},
	"dutch":      {Prompt: "Dutch", DeepL: "NL"},
	"english":    {Prompt: "English", DeepL: "EN-US"},
	"finnish":    {Prompt: "Finnish", DeepL: "FI"},
	"french":     {Prompt: "French", DeepL: "FR"},
	"german":     {Prompt: "German", DeepL: "DE"},
	"greek":      {Prompt: "Greek", DeepL: "EL"},
	"hungarian":  {Prompt: "Hungarian", DeepL: "HU"},
	"indonesian": {Prompt: "Indonesian", DeepL: "ID"},
	"italian":    {Prompt: "Italian", DeepL: "IT"},
	"japanese":   {Prompt: "Japanese", DeepL: "JA"},
	"korean":     {Prompt: "Korean", DeepL: "KO"},
	"norwegian":  {Prompt: "Norwegian", DeepL: "NB"},
	"polish":     {Prompt: "Polish", DeepL: "PL"},
	"portuguese": {Prompt: "Portuguese", DeepL: "PT-PT"},
	"romanian":   {Prompt: "Romanian", DeepL: "RO"},
	"russian":    {Prompt: "Russian", DeepL: "RU"},
	"schinese":   {Prompt: "Simplified Chinese", DeepL: "ZH-HANS"},
	"spanish":    {Prompt: "Spanish", DeepL: "ES"},
	"swedish":    {Prompt: "Swedish", DeepL: "SV"},
	"tchinese":   {Prompt: "Traditional Chinese", DeepL: "ZH-HANT"},
	"thai":       {Prompt: "Thai", DeepL: "TH"},
	"turkish":    {Prompt: "Turkish", DeepL: "TR"},
	"ukrainian":  {Prompt: "Ukrainian", DeepL: "UK"},
	"vietnamese": {Prompt: "Vietnamese", DeepL: ""},
}

// Resolve looks up a tl directory name. It tolerates case and suffixed
// variants like "chinese_simplified" or "russian2".
func Resolve(tlName string) (Meta, bool) {
	key := strings.ToLower(strings.TrimSpace(tlName))
	if m, ok := Registry[key]; ok {
		return m, true
	}
	if base, _, found := strings.Cut(key, "_"); found {
		if m, ok := Registry[base]; ok {
			return m, true
		}
	}
	key = strings.TrimRight(key, "0123456789")
	if m, ok := Registry[key]; ok {
		return m, true
	}
	return Meta{}, false
}
