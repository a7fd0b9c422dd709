package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/minios-linux/dtran/config"
	"github.com/minios-linux/dtran/translate"
)

func TestResolveTargets(t *testing.T) {
	proj := &config.Project{
		SourceLang: "en",
		Languages:  []string{"zh", "ar"},
	}

	tests := []struct {
		name    string
		langs   []string
		want    []string
		wantErr bool
	}{
		{
			name:  "explicit flags win over configured defaults",
			langs: []string{"es"},
			want:  []string{"es"},
		},
		{
			name:  "empty falls back to configured languages",
			langs: nil,
			want:  []string{"zh", "ar"},
		},
		{
			name:  "all expands to every supported language except the source",
			langs: []string{"all"},
			want:  []string{"ar", "es", "sw", "zh"},
		},
		{
			name:  "duplicates and case are normalized",
			langs: []string{"ZH", " zh ", "ar"},
			want:  []string{"zh", "ar"},
		},
		{
			name:    "unknown code is rejected",
			langs:   []string{"fr"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		got, err := resolveTargets(proj, tc.langs)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: resolveTargets() = %v, want error", tc.name, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: resolveTargets() error: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: resolveTargets() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestResolveTargetsNoneConfigured(t *testing.T) {
	proj := &config.Project{SourceLang: "en"}
	if _, err := resolveTargets(proj, nil); err == nil {
		t.Fatalf("resolveTargets() = nil error, want error for empty target list")
	}
}

func TestResolveProvider(t *testing.T) {
	// Point the credential store at an empty directory so stored endpoints
	// cannot leak into the resolution.
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	prov := resolveProvider("nllb", "", "", "", "", 0, 0, false)
	if prov.ID != translate.ProviderNLLB {
		t.Fatalf("resolveProvider(nllb).ID = %q, want %q", prov.ID, translate.ProviderNLLB)
	}
	if prov.BaseURL != "http://localhost:8000" {
		t.Fatalf("resolveProvider(nllb).BaseURL = %q, want provider default", prov.BaseURL)
	}
	if prov.Model != "facebook/nllb-200-3.3B" {
		t.Fatalf("resolveProvider(nllb).Model = %q, want provider default", prov.Model)
	}

	prov = resolveProvider("OpenAI", "https://proxy.example/v1", "sk-test", "gpt-4o", "http://proxy:8080", 30*time.Second, 5, true)
	if prov.ID != translate.ProviderOpenAI {
		t.Fatalf("resolveProvider(OpenAI).ID = %q, want %q", prov.ID, translate.ProviderOpenAI)
	}
	if prov.BaseURL != "https://proxy.example/v1" {
		t.Fatalf("resolveProvider().BaseURL = %q, want flag value", prov.BaseURL)
	}
	if prov.APIKey != "sk-test" || prov.Model != "gpt-4o" || prov.Proxy != "http://proxy:8080" {
		t.Fatalf("resolveProvider() overrides not applied: %+v", prov)
	}
	if prov.Timeout != 30*time.Second || prov.MaxRetries != 5 || !prov.Verbose {
		t.Fatalf("resolveProvider() tuning not applied: %+v", prov)
	}

	prov = resolveProvider("deepl", "", "", "", "", 0, 0, false)
	if prov.ID != "deepl" || prov.Name != "deepl" {
		t.Fatalf("resolveProvider(deepl) = %+v, want passthrough for unknown provider", prov)
	}
}

func TestValidateProvider(t *testing.T) {
	tests := []struct {
		name    string
		prov    translate.Provider
		wantErr bool
	}{
		{"nllb needs no key", translate.Provider{ID: translate.ProviderNLLB}, false},
		{"mock needs no key", translate.Provider{ID: translate.ProviderMock}, false},
		{"openai with key", translate.Provider{ID: translate.ProviderOpenAI, APIKey: "sk-test"}, false},
		{"openai without key", translate.Provider{ID: translate.ProviderOpenAI}, true},
		{"unknown provider", translate.Provider{ID: "deepl"}, true},
	}

	for _, tc := range tests {
		err := validateProvider(tc.prov)
		if tc.wantErr && err == nil {
			t.Fatalf("%s: validateProvider() = nil, want error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: validateProvider() error: %v", tc.name, err)
		}
	}

	err := validateProvider(translate.Provider{ID: translate.ProviderOpenAI})
	if err == nil || !strings.Contains(err.Error(), "auth login") {
		t.Fatalf("validateProvider(openai) error = %v, want hint pointing at auth login", err)
	}
}

func TestTextFieldsFor(t *testing.T) {
	proj := &config.Project{
		Datasets: []config.Dataset{
			{Name: "chats", Family: config.FamilyConversations, Path: "raw/chats.jsonl"},
			{Name: "incidents", Family: config.FamilyTable, Path: "raw/incidents.xlsx", TextColumn: "normalized_message_string"},
		},
	}

	if got := textFieldsFor(proj, "processed_incidents.json"); !reflect.DeepEqual(got, []string{"normalized_message_string"}) {
		t.Fatalf("textFieldsFor(table) = %v, want the configured text column", got)
	}
	if got := textFieldsFor(proj, "processed_chats.json"); got != nil {
		t.Fatalf("textFieldsFor(conversations) = %v, want nil", got)
	}
	if got := textFieldsFor(proj, "processed_unknown.json"); got != nil {
		t.Fatalf("textFieldsFor(unknown) = %v, want nil", got)
	}
}

func TestProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	proj := &config.Project{ProcessedDir: filepath.Join(dir, "processed")}

	if got := processedFiles(proj); got != nil {
		t.Fatalf("processedFiles(missing dir) = %v, want nil", got)
	}

	if err := os.MkdirAll(proj.ProcessedDir, 0755); err != nil {
		t.Fatalf("os.MkdirAll() error: %v", err)
	}
	for _, name := range []string{"processed_b.json", "processed_a.json", "notes.txt", "other.json"} {
		if err := os.WriteFile(filepath.Join(proj.ProcessedDir, name), []byte("[]"), 0644); err != nil {
			t.Fatalf("os.WriteFile() error: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(proj.ProcessedDir, "processed_dir.json"), 0755); err != nil {
		t.Fatalf("os.Mkdir() error: %v", err)
	}

	want := []string{"processed_a.json", "processed_b.json"}
	if got := processedFiles(proj); !reflect.DeepEqual(got, want) {
		t.Fatalf("processedFiles() = %v, want %v", got, want)
	}
}

func TestTranslatedCount(t *testing.T) {
	dir := t.TempDir()
	proj := &config.Project{TranslatedDir: dir}

	for _, name := range []string{
		"zh_translated_a.json",
		"zh_translated_b.json",
		"es_translated_a.json",
		"zh_notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0644); err != nil {
			t.Fatalf("os.WriteFile() error: %v", err)
		}
	}

	if got := translatedCount(proj, "zh"); got != 2 {
		t.Fatalf("translatedCount(zh) = %d, want 2", got)
	}
	if got := translatedCount(proj, "es"); got != 1 {
		t.Fatalf("translatedCount(es) = %d, want 1", got)
	}
	if got := translatedCount(proj, "ar"); got != 0 {
		t.Fatalf("translatedCount(ar) = %d, want 0", got)
	}
}

func TestRel(t *testing.T) {
	base := filepath.Join("/", "project")

	if got := rel(base, filepath.Join(base, "processed", "a.json")); got != filepath.Join("processed", "a.json") {
		t.Fatalf("rel(inside) = %q, want %q", got, filepath.Join("processed", "a.json"))
	}

	outside := filepath.Join("/", "elsewhere", "a.json")
	if got := rel(base, outside); got != outside {
		t.Fatalf("rel(outside) = %q, want the absolute path unchanged", got)
	}
}

func TestClearDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "processed")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("os.MkdirAll() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stale.json"), []byte("[]"), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}

	if err := clearDir(dir); err != nil {
		t.Fatalf("clearDir() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("os.ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("clearDir() left %d entries, want empty directory", len(entries))
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("ok"), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}

	if !fileExists(filePath) {
		t.Fatalf("fileExists(file) = false, want true")
	}
	if fileExists(dir) {
		t.Fatalf("fileExists(directory) = true, want false")
	}
	if fileExists(filepath.Join(dir, "missing.txt")) {
		t.Fatalf("fileExists(missing) = true, want false")
	}
}
