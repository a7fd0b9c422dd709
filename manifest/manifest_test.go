package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	h1 := Hash("hello world")
	h2 := Hash("hello world")
	if h1 != h2 {
		t.Errorf("Hash not deterministic: %s != %s", h1, h2)
	}
	h3 := Hash("different")
	if h1 == h3 {
		t.Errorf("Hash collision: %s == %s", h1, h3)
	}
}

func TestLoadNonExistent(t *testing.T) {
	m, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error for non-existent file: %v", err)
	}
	if m.Version != Version {
		t.Errorf("Version = %d, want %d", m.Version, Version)
	}
	if len(m.Checksums) != 0 {
		t.Errorf("Checksums not empty: %v", m.Checksums)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.Update("zh", "processed_attacks.json", "[\n  \"q1\"\n]\n")
	m.Update("zh", "processed_chats.json", "[]\n")
	m.Update("ar", "processed_attacks.json", "[\n  \"q1\"\n]\n")

	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("manifest not created at %s", path)
	}

	m2, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}

	languages, pairs := m2.Stats()
	if languages != 2 {
		t.Errorf("languages = %d, want 2", languages)
	}
	if pairs != 3 {
		t.Errorf("pairs = %d, want 3", pairs)
	}
}

func TestIsChanged(t *testing.T) {
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}

	// Never-seen pair is always changed
	if !m.IsChanged("zh", "processed_a.json", "content") {
		t.Error("new pair should be changed")
	}

	// After update, same content is not changed
	m.Update("zh", "processed_a.json", "content")
	if m.IsChanged("zh", "processed_a.json", "content") {
		t.Error("unchanged pair should not be changed")
	}

	// Modified content is changed
	if !m.IsChanged("zh", "processed_a.json", "content!") {
		t.Error("modified content should be changed")
	}

	// Different language is changed
	if !m.IsChanged("ar", "processed_a.json", "content") {
		t.Error("different language should be changed")
	}
}

func TestFileKeyNormalizesPaths(t *testing.T) {
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}

	m.Update("zh", "/project/processed/processed_a.json", "content")
	if m.IsChanged("zh", "processed_a.json", "content") {
		t.Error("base name and full path should address the same entry")
	}
}

func TestClean(t *testing.T) {
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}

	m.Update("zh", "processed_a.json", "a")
	m.Update("zh", "processed_b.json", "b")
	m.Update("zh", "processed_gone.json", "gone")

	m.Clean("zh", []string{"processed_a.json", "processed_b.json"})

	if m.IsChanged("zh", "processed_a.json", "a") {
		t.Error("processed_a.json should still be tracked")
	}
	if !m.IsChanged("zh", "processed_gone.json", "gone") {
		t.Error("processed_gone.json should be removed by Clean")
	}
}

func TestRemoveLanguageAndAll(t *testing.T) {
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}

	m.Update("zh", "processed_a.json", "a")
	m.Update("ar", "processed_a.json", "a")

	m.RemoveLanguage("zh")
	languages, _ := m.Stats()
	if languages != 1 {
		t.Errorf("languages after RemoveLanguage = %d, want 1", languages)
	}

	m.RemoveAll()
	languages, pairs := m.Stats()
	if languages != 0 || pairs != 0 {
		t.Errorf("after RemoveAll stats = %d/%d, want 0/0", languages, pairs)
	}
}

func TestLanguagesAndFilesSorted(t *testing.T) {
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}

	m.Update("sw", "processed_b.json", "b")
	m.Update("ar", "processed_b.json", "b")
	m.Update("zh", "processed_b.json", "b")
	m.Update("zh", "processed_a.json", "a")

	langs := m.Languages()
	expected := []string{"ar", "sw", "zh"}
	if len(langs) != len(expected) {
		t.Fatalf("languages len = %d, want %d", len(langs), len(expected))
	}
	for i, want := range expected {
		if langs[i] != want {
			t.Errorf("languages[%d] = %q, want %q", i, langs[i], want)
		}
	}

	files := m.Files("zh")
	if len(files) != 2 || files[0] != "processed_a.json" || files[1] != "processed_b.json" {
		t.Errorf("Files(zh) = %v, want sorted [processed_a.json processed_b.json]", files)
	}
}

func TestSummary(t *testing.T) {
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}

	if m.Summary() != "empty" {
		t.Errorf("empty summary = %q, want %q", m.Summary(), "empty")
	}

	m.Update("zh", "processed_a.json", "a")
	m.Update("ar", "processed_a.json", "a")
	s := m.Summary()
	if s == "empty" {
		t.Error("summary should not be empty after updates")
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := &Manifest{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
	}

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			file := "processed_" + string(rune('0'+n)) + ".json"
			m.Update("zh", file, "content")
			m.IsChanged("zh", file, "content")
			m.Stats()
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	_, pairs := m.Stats()
	if pairs != 10 {
		t.Errorf("pairs after concurrent writes = %d, want 10", pairs)
	}
}
