// Package manifest implements dtran.lock — a ledger that tracks MD5
// checksums of processed documents per target language. This enables
// incremental translation: a (language × file) pair whose processed document
// is unchanged since its last successful translation is skipped on re-runs.
//
// The ledger is stored alongside .dtran.yaml as dtran.lock.
package manifest

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the default ledger file name.
const FileName = "dtran.lock"

// Version is the ledger format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Manifest represents the dtran.lock file structure.
type Manifest struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"` // lang -> processed file -> md5

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the ledger from the given directory.
// Returns an empty ledger if the file doesn't exist.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	m.path = path

	if m.Checksums == nil {
		m.Checksums = make(map[string]map[string]string)
	}

	return m, nil
}

// Save writes the ledger to disk.
func (m *Manifest) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return fmt.Errorf("manifest path not set")
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", m.path, err)
	}

	return nil
}

// Path returns the ledger file path.
func (m *Manifest) Path() string {
	return m.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// FileKey normalizes a processed file name into a ledger key.
func FileKey(name string) string {
	return filepath.ToSlash(filepath.Base(name))
}

// IsChanged checks if a processed document has changed since it was last
// translated for lang. Returns true for pairs the ledger has never seen.
func (m *Manifest) IsChanged(lang, file, content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.Checksums[lang]
	if !ok {
		return true
	}
	oldHash, ok := files[FileKey(file)]
	if !ok {
		return true
	}
	return oldHash != Hash(content)
}

// Update records the checksum of a processed document after its translation
// for lang was written.
func (m *Manifest) Update(lang, file, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Checksums[lang] == nil {
		m.Checksums[lang] = make(map[string]string)
	}
	m.Checksums[lang][FileKey(file)] = Hash(content)
}

// Clean removes entries for processed files that no longer exist, so stale
// names don't accumulate across dataset renames.
func (m *Manifest) Clean(lang string, current []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.Checksums[lang]
	if existing == nil {
		return
	}

	valid := make(map[string]bool, len(current))
	for _, f := range current {
		valid[FileKey(f)] = true
	}

	for f := range existing {
		if !valid[f] {
			delete(existing, f)
		}
	}
}

// RemoveLanguage removes all checksums for a target language.
func (m *Manifest) RemoveLanguage(lang string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Checksums, lang)
}

// RemoveAll resets the ledger.
func (m *Manifest) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Checksums = make(map[string]map[string]string)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of languages and (language × file) pairs tracked.
func (m *Manifest) Stats() (languages, pairs int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	languages = len(m.Checksums)
	for _, files := range m.Checksums {
		pairs += len(files)
	}
	return
}

// Languages returns the tracked target languages, sorted.
func (m *Manifest) Languages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	langs := make([]string, 0, len(m.Checksums))
	for l := range m.Checksums {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Files returns the tracked processed file names for a language, sorted.
func (m *Manifest) Files(lang string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make([]string, 0, len(m.Checksums[lang]))
	for f := range m.Checksums[lang] {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Summary returns a human-readable summary string.
func (m *Manifest) Summary() string {
	languages, pairs := m.Stats()
	if languages == 0 {
		return "empty"
	}

	var parts []string
	for _, l := range m.Languages() {
		parts = append(parts, fmt.Sprintf("%s: %d files", l, len(m.Checksums[l])))
	}
	return fmt.Sprintf("%d languages, %d file pairs (%s)", languages, pairs, strings.Join(parts, ", "))
}
