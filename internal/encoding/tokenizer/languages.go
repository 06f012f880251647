package tokenizer

import "slices"

// DefaultLanguages are the language codes accepted when no list is configured.
// "xx" is the multi-language fallback.
var DefaultLanguages = []string{"en", "de", "es", "pt", "fr", "it", "nl", "xx"}

// Supported reports whether lang is in languages, falling back to
// DefaultLanguages when languages is empty.
func Supported(lang string, languages []string) bool {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	return slices.Contains(languages, lang)
}
