// Package cache provides translation caching implementations.
//
// A cache maps (source text, target language) pairs to previously produced
// translations so that re-running a project does not re-translate units whose
// text has not changed. Keys are content-addressed: the source text is hashed,
// so the cache never stores raw source text as a key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TranslationCache is the interface for translation caching.
type TranslationCache interface {
	// Get retrieves a cached translation. Returns empty string and false if
	// not found or expired.
	Get(key string) (string, bool)

	// Set stores a translation in the cache.
	Set(key string, value string) error
}

// HashText computes the SHA-256 hash of the trimmed text.
func HashText(text string) string {
	trimmed := strings.TrimSpace(text)
	hash := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(hash[:])
}

// Key generates a cache key for a source text and target language code.
// Two units with identical trimmed text share a key for the same target.
func Key(text, targetLang string) string {
	return HashText(text) + ":" + targetLang
}
