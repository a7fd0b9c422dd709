package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/dtran/config"
	"github.com/minios-linux/dtran/record"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

func collectWarnings(warnings *[]string) WarnFunc {
	return func(format string, args ...any) {
		*warnings = append(*warnings, fmt.Sprintf(format, args...))
	}
}

func TestProcessConversations(t *testing.T) {
	dir := t.TempDir()
	content := `[{"role":"user","content":"first question"},{"role":"assistant","content":"answer"}]` + "\n" +
		"not json\n" +
		`[{"role":"user","content":"second"},{"role":"user","content":"third"}]` + "\n"
	writeFile(t, filepath.Join(dir, "raw", "chats.jsonl"), content)

	proj := &config.Project{Root: dir}
	d := config.Dataset{Name: "chats", Family: config.FamilyConversations, Path: "raw/chats.jsonl"}

	var warnings []string
	outputs, err := Process(proj, d, collectWarnings(&warnings))
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	out := outputs[0]
	if out.Name != "processed_chats.json" {
		t.Errorf("Name = %q, want processed_chats.json", out.Name)
	}
	if out.Records != 2 || out.Units != 3 || out.Skipped != 1 {
		t.Errorf("counts = %d records %d units %d skipped, want 2/3/1", out.Records, out.Units, out.Skipped)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "line 2") {
		t.Errorf("warnings = %v, want one mentioning line 2", warnings)
	}

	if out.Doc.Kind != record.KindList {
		t.Fatalf("Doc.Kind = %v, want list", out.Doc.Kind)
	}
	var got []string
	for _, raw := range out.Doc.Units {
		s, ok := record.DecodeString(raw)
		if !ok {
			t.Fatalf("unit %q is not a string", raw)
		}
		got = append(got, s)
	}
	want := []string{"first question", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("units = %v, want %v", got, want)
	}
}

func TestProcessConversationsDirectory(t *testing.T) {
	dir := t.TempDir()
	conv := `[{"role":"user","content":"hi"}]` + "\n"
	writeFile(t, filepath.Join(dir, "raw", "CoSafe", "b_topic.json"), conv)
	writeFile(t, filepath.Join(dir, "raw", "CoSafe", "a_topic.json"), conv)
	writeFile(t, filepath.Join(dir, "raw", "CoSafe", "notes.txt"), "ignored")

	proj := &config.Project{Root: dir}
	d := config.Dataset{Name: "cosafe", Family: config.FamilyConversations, Path: "raw/CoSafe"}

	outputs, err := Process(proj, d, nil)
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	if outputs[0].Name != "processed_a_topic.json" || outputs[1].Name != "processed_b_topic.json" {
		t.Errorf("names = %q, %q; want sorted processed_a_topic.json, processed_b_topic.json",
			outputs[0].Name, outputs[1].Name)
	}
}

func TestProcessConversationsEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "raw", "empty"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	proj := &config.Project{Root: dir}
	d := config.Dataset{Name: "empty", Family: config.FamilyConversations, Path: "raw/empty"}

	if _, err := Process(proj, d, nil); err == nil {
		t.Fatal("expected error for directory without conversation files")
	}
}

func TestProcessTable(t *testing.T) {
	dir := t.TempDir()
	csv := "id,normalized_message_string,source\n" +
		"1,\"1. First step 2. Second step\",mhj\n" +
		"2,777,mhj\n"
	writeFile(t, filepath.Join(dir, "raw", "mhj.csv"), csv)

	proj := &config.Project{Root: dir}
	d := config.Dataset{
		Name:       "mhj",
		Family:     config.FamilyTable,
		Path:       "raw/mhj.csv",
		TextColumn: "normalized_message_string",
	}

	outputs, err := Process(proj, d, nil)
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	out := outputs[0]

	if out.Records != 2 || out.Units != 2 {
		t.Errorf("counts = %d records %d units, want 2/2", out.Records, out.Units)
	}
	if out.Doc.Kind != record.KindRecords {
		t.Fatalf("Doc.Kind = %v, want records", out.Doc.Kind)
	}

	rec := out.Doc.Records[0]
	wantKeys := []string{"id", "normalized_message_string", "source"}
	if !reflect.DeepEqual(rec.Keys(), wantKeys) {
		t.Errorf("keys = %v, want %v (narrative column must keep its position)", rec.Keys(), wantKeys)
	}

	raw, _ := rec.Get("normalized_message_string")
	items, ok := record.DecodeList(raw)
	if !ok {
		t.Fatalf("narrative value %q is not a list", raw)
	}
	var sections []string
	for _, it := range items {
		s, _ := record.DecodeString(it)
		sections = append(sections, s)
	}
	if !reflect.DeepEqual(sections, []string{"First step", "Second step"}) {
		t.Errorf("sections = %v, want [First step, Second step]", sections)
	}

	// Numeric narrative cell parses to no sections.
	raw2, _ := out.Doc.Records[1].Get("normalized_message_string")
	if string(raw2) != "[]" {
		t.Errorf("non-string narrative = %s, want []", raw2)
	}
	if id, _ := out.Doc.Records[1].Get("id"); string(id) != "2" {
		t.Errorf("id = %s, want 2 (non-text fields copied verbatim)", id)
	}
}

func TestProcessTableMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "raw", "t.csv"), "a,b\n1,2\n")

	proj := &config.Project{Root: dir}
	d := config.Dataset{Name: "t", Family: config.FamilyTable, Path: "raw/t.csv", TextColumn: "narrative"}

	_, err := Process(proj, d, nil)
	if err == nil {
		t.Fatal("expected error for missing narrative column")
	}
	if !strings.Contains(err.Error(), "narrative") {
		t.Errorf("error = %v, want it to name the missing column", err)
	}
}

func TestProcessQuerylist(t *testing.T) {
	dir := t.TempDir()
	content := `[
  {"id": 1, "multi_turn_queries": ["q1", "q2"]},
  {"id": 2, "category": "x"},
  {"id": 3, "multi_turn_queries": ["q3"]}
]`
	writeFile(t, filepath.Join(dir, "raw", "Attack_600.json"), content)

	proj := &config.Project{Root: dir}
	d := config.Dataset{
		Name:      "attacks",
		Family:    config.FamilyQuerylist,
		Path:      "raw/Attack_600.json",
		ListField: "multi_turn_queries",
	}

	var warnings []string
	outputs, err := Process(proj, d, collectWarnings(&warnings))
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	out := outputs[0]

	if out.Name != "processed_Attack_600.json" {
		t.Errorf("Name = %q, want processed_Attack_600.json", out.Name)
	}
	if out.Records != 3 || out.Units != 3 || out.Skipped != 1 {
		t.Errorf("counts = %d records %d units %d skipped, want 3/3/1", out.Records, out.Units, out.Skipped)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "object 1") {
		t.Errorf("warnings = %v, want one mentioning object 1", warnings)
	}

	var got []string
	for _, raw := range out.Doc.Units {
		s, _ := record.DecodeString(raw)
		got = append(got, s)
	}
	if !reflect.DeepEqual(got, []string{"q1", "q2", "q3"}) {
		t.Errorf("units = %v, want [q1 q2 q3]", got)
	}
}

func TestProcessUnknownFamily(t *testing.T) {
	proj := &config.Project{Root: t.TempDir()}
	d := config.Dataset{Name: "x", Family: "parquet", Path: "x.pq"}
	if _, err := Process(proj, d, nil); err == nil {
		t.Fatal("expected error for unknown family")
	}
}
