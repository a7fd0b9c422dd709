package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadDefaultsAndValidation(t *testing.T) {
	t.Run("missing file returns nil", func(t *testing.T) {
		dir := t.TempDir()
		f, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if f != nil {
			t.Fatalf("Load expected nil, got %#v", f)
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		dir := t.TempDir()
		yaml := "datasets:\n" +
			"  - name: attacks\n" +
			"    family: querylist\n" +
			"    path: raw/attacks.json\n" +
			"    list_field: multi_turn_queries\n"
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(yaml), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		f, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if f.SourceLang != "en" {
			t.Fatalf("SourceLang = %q, want en", f.SourceLang)
		}
		if !reflect.DeepEqual(f.Languages, []string{"ar", "es", "sw", "zh"}) {
			t.Fatalf("Languages = %v, want [ar es sw zh]", f.Languages)
		}
		if f.RawDir != "raw" || f.ProcessedDir != "processed" || f.TranslatedDir != "translated" {
			t.Fatalf("dirs = %q %q %q, want raw processed translated", f.RawDir, f.ProcessedDir, f.TranslatedDir)
		}
	})

	t.Run("keeps explicit settings", func(t *testing.T) {
		dir := t.TempDir()
		yaml := "source_lang: en\n" +
			"languages: [zh, ar]\n" +
			"processed_dir: out/processed\n" +
			"datasets:\n" +
			"  - name: conv\n" +
			"    family: conversations\n" +
			"    path: raw/conv.jsonl\n"
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(yaml), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		f, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if !reflect.DeepEqual(f.Languages, []string{"zh", "ar"}) {
			t.Fatalf("Languages = %v, want [zh ar]", f.Languages)
		}
		if f.ProcessedDir != "out/processed" {
			t.Fatalf("ProcessedDir = %q, want out/processed", f.ProcessedDir)
		}
	})

	bad := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "dataset without name",
			yaml: "datasets:\n  - family: querylist\n    path: a.json\n    list_field: q\n",
			want: "has no name",
		},
		{
			name: "duplicate dataset names",
			yaml: "datasets:\n" +
				"  - {name: a, family: conversations, path: a.jsonl}\n" +
				"  - {name: a, family: conversations, path: b.jsonl}\n",
			want: "duplicate dataset name",
		},
		{
			name: "dataset without path",
			yaml: "datasets:\n  - {name: a, family: conversations}\n",
			want: "has no path",
		},
		{
			name: "table without text_column",
			yaml: "datasets:\n  - {name: a, family: table, path: a.xlsx}\n",
			want: "requires text_column",
		},
		{
			name: "querylist without list_field",
			yaml: "datasets:\n  - {name: a, family: querylist, path: a.json}\n",
			want: "requires list_field",
		},
		{
			name: "unknown family",
			yaml: "datasets:\n  - {name: a, family: parquet, path: a.pq}\n",
			want: "unknown family",
		},
		{
			name: "unsupported language",
			yaml: "languages: [zh, xx]\ndatasets: []\n",
			want: "unsupported language",
		},
		{
			name: "unsupported source language",
			yaml: "source_lang: fr\ndatasets: []\n",
			want: "unsupported language",
		},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tc.yaml), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load error = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestArtifactNaming(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Attack_600.json", "processed_Attack_600.json"},
		{"mhj_formatted.xlsx", "processed_mhj_formatted.json"},
		{"CoSafe-Dataset/coreference.json", "processed_coreference.json"},
		{"conv.jsonl", "processed_conv.json"},
	}
	for _, tc := range tests {
		if got := ProcessedName(tc.raw); got != tc.want {
			t.Errorf("ProcessedName(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}

	if got := OriginalBase("processed_Attack_600.json"); got != "Attack_600" {
		t.Errorf("OriginalBase = %q, want Attack_600", got)
	}
	if got := TranslatedName("zh", "processed_Attack_600.json"); got != "zh_translated_Attack_600.json" {
		t.Errorf("TranslatedName = %q, want zh_translated_Attack_600.json", got)
	}
	if !IsProcessedName("processed_conv.json") {
		t.Error("IsProcessedName(processed_conv.json) = false, want true")
	}
	if IsProcessedName("zh_translated_conv.json") {
		t.Error("IsProcessedName(zh_translated_conv.json) = true, want false")
	}
}

func TestResolveAndPaths(t *testing.T) {
	dir := t.TempDir()
	f := &File{
		Datasets: []Dataset{
			{Name: "attacks", Family: FamilyQuerylist, Path: "raw/attacks.json", ListField: "q"},
		},
	}

	p, err := f.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	if p.ProcessedDir != filepath.Join(dir, "processed") {
		t.Fatalf("ProcessedDir = %q, want %q", p.ProcessedDir, filepath.Join(dir, "processed"))
	}

	d, ok := p.Dataset("attacks")
	if !ok {
		t.Fatal("Dataset(attacks) not found")
	}
	if got, want := p.DatasetPath(d), filepath.Join(dir, "raw", "attacks.json"); got != want {
		t.Fatalf("DatasetPath = %q, want %q", got, want)
	}
	if got, want := p.ProcessedPath("attacks.json"), filepath.Join(dir, "processed", "processed_attacks.json"); got != want {
		t.Fatalf("ProcessedPath = %q, want %q", got, want)
	}
	if got, want := p.TranslatedPath("ar", "processed_attacks.json"), filepath.Join(dir, "translated", "ar_translated_attacks.json"); got != want {
		t.Fatalf("TranslatedPath = %q, want %q", got, want)
	}

	if _, ok := p.Dataset("absent"); ok {
		t.Fatal("Dataset(absent) found, want miss")
	}
}

func TestDetect(t *testing.T) {
	t.Run("empty project", func(t *testing.T) {
		if f := Detect(t.TempDir()); f != nil {
			t.Fatalf("Detect = %#v, want nil", f)
		}
	})

	t.Run("classifies raw files", func(t *testing.T) {
		dir := t.TempDir()
		raw := filepath.Join(dir, "raw")
		if err := os.MkdirAll(filepath.Join(raw, "CoSafe-Dataset"), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}

		conversation := `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]` + "\n"
		files := map[string]string{
			"chats.jsonl":                     conversation,
			"mhj_formatted.xlsx":              "stub",
			"narratives.csv":                  "a,b\n1,2\n",
			"Attack_600.json":                 "[\n  {\"multi_turn_queries\": [\"q1\"]}\n]\n",
			"CoSafe-Dataset/coreference.json": conversation,
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(raw, name), []byte(content), 0644); err != nil {
				t.Fatalf("WriteFile %s: %v", name, err)
			}
		}

		f := Detect(dir)
		if f == nil {
			t.Fatal("Detect returned nil")
		}

		got := make(map[string]Dataset, len(f.Datasets))
		for _, d := range f.Datasets {
			got[d.Name] = d
		}

		if d := got["chats"]; d.Family != FamilyConversations {
			t.Errorf("chats family = %q, want conversations", d.Family)
		}
		if d := got["mhj_formatted"]; d.Family != FamilyTable || d.TextColumn != DefaultTextColumn {
			t.Errorf("mhj_formatted = %+v, want table with default text column", d)
		}
		if d := got["narratives"]; d.Family != FamilyTable {
			t.Errorf("narratives family = %q, want table", d.Family)
		}
		if d := got["Attack_600"]; d.Family != FamilyQuerylist || d.ListField != DefaultListField {
			t.Errorf("Attack_600 = %+v, want querylist with default list field", d)
		}
		if d := got["CoSafe-Dataset"]; d.Family != FamilyConversations {
			t.Errorf("CoSafe-Dataset family = %q, want conversations", d.Family)
		}

		for _, d := range f.Datasets {
			if filepath.IsAbs(d.Path) {
				t.Errorf("dataset %s path %q is absolute, want relative", d.Name, d.Path)
			}
		}
	})

	t.Run("single line query array stays querylist", func(t *testing.T) {
		dir := t.TempDir()
		raw := filepath.Join(dir, "raw")
		if err := os.MkdirAll(raw, 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		content := `[{"id":1,"multi_turn_queries":["q1","q2"]}]`
		if err := os.WriteFile(filepath.Join(raw, "compact.json"), []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		f := Detect(dir)
		if f == nil || len(f.Datasets) != 1 {
			t.Fatalf("Detect = %#v, want one dataset", f)
		}
		if f.Datasets[0].Family != FamilyQuerylist {
			t.Fatalf("family = %q, want querylist", f.Datasets[0].Family)
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := &File{
		Languages: []string{"zh", "sw"},
		Datasets: []Dataset{
			{Name: "t", Family: FamilyTable, Path: "raw/t.xlsx", TextColumn: "narrative"},
		},
	}
	if err := f.Save(dir); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reflect.DeepEqual(loaded.Languages, f.Languages) {
		t.Fatalf("Languages = %v, want %v", loaded.Languages, f.Languages)
	}
	if !reflect.DeepEqual(loaded.Datasets, f.Datasets) {
		t.Fatalf("Datasets = %+v, want %+v", loaded.Datasets, f.Datasets)
	}
}
