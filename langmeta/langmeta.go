// Package langmeta holds the closed registry of supported translation
// targets and their NLLB-200 locale tags. The registry is fixed at compile
// time: requests for codes outside it are rejected before any model call.
package langmeta

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupported marks a language code absent from the registry.
var ErrUnsupported = errors.New("unsupported language")

// Meta describes one supported language.
type Meta struct {
	Code   string // short code used on the command line and in file names
	Locale string // NLLB-200 locale tag passed to the model boundary
	Name   string // English display name
}

// registry is the closed lookup table. Adding a language is a code change,
// not configuration.
var registry = map[string]Meta{
	"en": {Code: "en", Locale: "eng_Latn", Name: "English"},
	"zh": {Code: "zh", Locale: "zho_Hans", Name: "Chinese (Simplified)"},
	"ar": {Code: "ar", Locale: "arb_Arab", Name: "Arabic"},
	"es": {Code: "es", Locale: "spa_Latn", Name: "Spanish"},
	"sw": {Code: "sw", Locale: "swh_Latn", Name: "Swahili"},
}

// Lookup resolves a short language code to its metadata. Codes are matched
// case-insensitively after trimming. Unknown codes return an error wrapping
// ErrUnsupported that names the supported set.
func Lookup(code string) (Meta, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Meta{}, fmt.Errorf("%w %q (supported: %s)", ErrUnsupported, code, strings.Join(Codes(), ", "))
	}
	return m, nil
}

// IsSupported reports whether code resolves in the registry.
func IsSupported(code string) bool {
	_, err := Lookup(code)
	return err == nil
}

// Codes returns the supported short codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for c := range registry {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// All returns the registry entries sorted by code.
func All() []Meta {
	metas := make([]Meta, 0, len(registry))
	for _, c := range Codes() {
		metas = append(metas, registry[c])
	}
	return metas
}

// NameForLocale returns the display name for an NLLB locale tag, or the tag
// itself when it is not in the registry.
func NameForLocale(locale string) string {
	for _, m := range registry {
		if m.Locale == locale {
			return m.Name
		}
	}
	return locale
}
