// Package config implements .dtran.yaml project configuration: loading,
// validation, path resolution, and dataset auto-detection.
//
// When a .dtran.yaml file exists in the project root, dtran uses it as the
// sole source of truth for datasets and target languages. Without one, Detect
// scans the project for recognizable raw dataset files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/dtran/langmeta"
)

// FileName is the project config file name.
const FileName = ".dtran.yaml"

// Dataset families.
const (
	// FamilyConversations: line-delimited JSON conversations; user-role
	// message content is flattened into one list per source file.
	FamilyConversations = "conversations"
	// FamilyTable: spreadsheet or CSV rows; one narrative column is replaced
	// by its parsed sections, every other column is copied verbatim.
	FamilyTable = "table"
	// FamilyQuerylist: a JSON array of objects; a named list field is
	// flattened into one global query list.
	FamilyQuerylist = "querylist"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .dtran.yaml structure.
type File struct {
	// SourceLang is the source language code (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// Languages is the default target list for translation. Empty means
	// every supported language except the source.
	Languages []string `yaml:"languages,omitempty"`
	// RawDir holds the raw dataset files (default "raw").
	RawDir string `yaml:"raw_dir,omitempty"`
	// ProcessedDir receives preprocess output (default "processed").
	ProcessedDir string `yaml:"processed_dir,omitempty"`
	// TranslatedDir receives translated output (default "translated").
	TranslatedDir string `yaml:"translated_dir,omitempty"`
	// Datasets is the list of raw inputs.
	Datasets []Dataset `yaml:"datasets"`
}

// Dataset describes one raw input file (or directory) and how to read it.
type Dataset struct {
	// Name is a human-readable label used in logs and --dataset selection.
	Name string `yaml:"name"`
	// Family: "conversations", "table", "querylist".
	Family string `yaml:"family"`
	// Path is the raw file or directory, relative to the project root.
	Path string `yaml:"path"`

	// TextColumn is the narrative column replaced in place by its parsed
	// sections (table family only).
	TextColumn string `yaml:"text_column,omitempty"`
	// ListField is the per-object field holding the query list
	// (querylist family only).
	ListField string `yaml:"list_field,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates .dtran.yaml from the given directory.
// Returns nil if no .dtran.yaml exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := f.validate(path); err != nil {
		return nil, err
	}

	return &f, nil
}

// validate applies defaults and checks every dataset declaration.
func (f *File) validate(path string) error {
	f.applyDefaults()

	if _, err := langmeta.Lookup(f.SourceLang); err != nil {
		return fmt.Errorf("%s: source_lang: %w", path, err)
	}
	for _, lang := range f.Languages {
		if _, err := langmeta.Lookup(lang); err != nil {
			return fmt.Errorf("%s: languages: %w", path, err)
		}
	}

	seen := make(map[string]bool)
	for i := range f.Datasets {
		d := &f.Datasets[i]

		if d.Name == "" {
			return fmt.Errorf("%s: dataset #%d has no name", path, i+1)
		}
		if seen[d.Name] {
			return fmt.Errorf("%s: duplicate dataset name %q", path, d.Name)
		}
		seen[d.Name] = true

		if d.Path == "" {
			return fmt.Errorf("%s: dataset %q has no path", path, d.Name)
		}

		switch d.Family {
		case FamilyConversations:
			// Nothing extra to declare.
		case FamilyTable:
			if d.TextColumn == "" {
				return fmt.Errorf("%s: dataset %q: table family requires text_column", path, d.Name)
			}
		case FamilyQuerylist:
			if d.ListField == "" {
				return fmt.Errorf("%s: dataset %q: querylist family requires list_field", path, d.Name)
			}
		case "":
			return fmt.Errorf("%s: dataset %q has no family", path, d.Name)
		default:
			return fmt.Errorf("%s: dataset %q has unknown family %q (valid: conversations, table, querylist)", path, d.Name, d.Family)
		}
	}

	return nil
}

// applyDefaults fills in unset fields.
func (f *File) applyDefaults() {
	if f.SourceLang == "" {
		f.SourceLang = "en"
	}
	if len(f.Languages) == 0 {
		for _, code := range langmeta.Codes() {
			if code != f.SourceLang {
				f.Languages = append(f.Languages, code)
			}
		}
	}
	if f.RawDir == "" {
		f.RawDir = "raw"
	}
	if f.ProcessedDir == "" {
		f.ProcessedDir = "processed"
	}
	if f.TranslatedDir == "" {
		f.TranslatedDir = "translated"
	}
}

// Save writes the config to rootDir/.dtran.yaml.
func (f *File) Save(rootDir string) error {
	f.applyDefaults()
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	path := filepath.Join(rootDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolving to a Project
// ---------------------------------------------------------------------------

// Project is a File resolved against an absolute project root.
type Project struct {
	// Root is the absolute project root.
	Root string
	// SourceLang is the source language code.
	SourceLang string
	// Languages is the default target language list.
	Languages []string
	// RawDir, ProcessedDir, TranslatedDir are absolute directories.
	RawDir        string
	ProcessedDir  string
	TranslatedDir string
	// Datasets is the validated dataset list.
	Datasets []Dataset
}

// Resolve converts a File into a Project with absolute paths.
func (f *File) Resolve(rootDir string) (*Project, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	f.applyDefaults()

	return &Project{
		Root:          absRoot,
		SourceLang:    f.SourceLang,
		Languages:     append([]string(nil), f.Languages...),
		RawDir:        filepath.Join(absRoot, f.RawDir),
		ProcessedDir:  filepath.Join(absRoot, f.ProcessedDir),
		TranslatedDir: filepath.Join(absRoot, f.TranslatedDir),
		Datasets:      append([]Dataset(nil), f.Datasets...),
	}, nil
}

// Dataset returns the dataset with the given name.
func (p *Project) Dataset(name string) (Dataset, bool) {
	for _, d := range p.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return Dataset{}, false
}

// DatasetPath returns the absolute raw path for a dataset.
func (p *Project) DatasetPath(d Dataset) string {
	if filepath.IsAbs(d.Path) {
		return d.Path
	}
	return filepath.Join(p.Root, d.Path)
}

// ProcessedPath returns the absolute path of the processed artifact for a
// raw file name.
func (p *Project) ProcessedPath(rawName string) string {
	return filepath.Join(p.ProcessedDir, ProcessedName(rawName))
}

// TranslatedPath returns the absolute path of the translated artifact for a
// processed file name and target language.
func (p *Project) TranslatedPath(lang, processedName string) string {
	return filepath.Join(p.TranslatedDir, TranslatedName(lang, processedName))
}

// ---------------------------------------------------------------------------
// Artifact naming
// ---------------------------------------------------------------------------

// processedPrefix marks preprocess output files.
const processedPrefix = "processed_"

// ProcessedName returns the processed artifact name for a raw file:
// processed_<stem>.json.
func ProcessedName(rawName string) string {
	stem := strings.TrimSuffix(filepath.Base(rawName), filepath.Ext(rawName))
	return processedPrefix + stem + ".json"
}

// IsProcessedName reports whether a file name is a preprocess artifact.
func IsProcessedName(name string) bool {
	return strings.HasPrefix(name, processedPrefix) && strings.HasSuffix(name, ".json")
}

// OriginalBase returns the raw stem encoded in a processed file name:
// processed_<stem>.json -> <stem>.
func OriginalBase(processedName string) string {
	base := strings.TrimSuffix(filepath.Base(processedName), ".json")
	return strings.TrimPrefix(base, processedPrefix)
}

// TranslatedName returns the translated artifact name for a processed file
// and target language: <lang>_translated_<stem>.json.
func TranslatedName(lang, processedName string) string {
	return lang + "_translated_" + OriginalBase(processedName) + ".json"
}
