package config

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Column and field names used by the known red-teaming datasets. Detect
// assumes them; init writes them out so they can be adjusted by hand.
const (
	// DefaultTextColumn is the narrative column of known table datasets.
	DefaultTextColumn = "normalized_message_string"
	// DefaultListField is the query-list field of known querylist datasets.
	DefaultListField = "multi_turn_queries"
)

// Detect scans rootDir for recognizable raw dataset files when no .dtran.yaml
// exists. Returns a File with one dataset per recognized input, or nil when
// nothing is found.
func Detect(rootDir string) *File {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		absRoot = rootDir
	}

	f := &File{}
	f.applyDefaults()

	// Prefer dedicated data directories; fall back to the root itself.
	var scanDirs []string
	for _, candidate := range []string{"raw", "data", "datasets"} {
		dir := filepath.Join(absRoot, candidate)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			scanDirs = append(scanDirs, dir)
		}
	}
	if len(scanDirs) == 0 {
		scanDirs = []string{absRoot}
	}

	for _, dir := range scanDirs {
		f.Datasets = append(f.Datasets, detectDatasets(absRoot, dir)...)
	}

	if len(f.Datasets) == 0 {
		return nil
	}

	sort.Slice(f.Datasets, func(i, j int) bool {
		return f.Datasets[i].Name < f.Datasets[j].Name
	})
	return f
}

// detectDatasets classifies the entries of one directory.
func detectDatasets(rootDir, dir string) []Dataset {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var datasets []Dataset
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)

		if entry.IsDir() {
			// Derived output directories are never inputs.
			switch name {
			case "processed", "translated", "raw", "data", "datasets":
				continue
			}
			// A directory of line-delimited conversation files counts as
			// one dataset producing one processed document per file.
			if hasConversationFiles(path) {
				datasets = append(datasets, Dataset{
					Name:   name,
					Family: FamilyConversations,
					Path:   relTo(rootDir, path),
				})
			}
			continue
		}

		stem := strings.TrimSuffix(name, filepath.Ext(name))
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jsonl":
			datasets = append(datasets, Dataset{
				Name:   stem,
				Family: FamilyConversations,
				Path:   relTo(rootDir, path),
			})
		case ".xlsx", ".csv":
			datasets = append(datasets, Dataset{
				Name:       stem,
				Family:     FamilyTable,
				Path:       relTo(rootDir, path),
				TextColumn: DefaultTextColumn,
			})
		case ".json":
			if IsProcessedName(name) {
				continue
			}
			switch sniffJSONFamily(path) {
			case FamilyConversations:
				datasets = append(datasets, Dataset{
					Name:   stem,
					Family: FamilyConversations,
					Path:   relTo(rootDir, path),
				})
			case FamilyQuerylist:
				datasets = append(datasets, Dataset{
					Name:      stem,
					Family:    FamilyQuerylist,
					Path:      relTo(rootDir, path),
					ListField: DefaultListField,
				})
			}
		}
	}
	return datasets
}

// hasConversationFiles reports whether a directory contains at least one
// line-delimited conversation file.
func hasConversationFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jsonl":
			return true
		case ".json":
			if sniffJSONFamily(filepath.Join(dir, name)) == FamilyConversations {
				return true
			}
		}
	}
	return false
}

// sniffJSONFamily distinguishes line-delimited conversation files from
// query-list arrays. A conversation file's first non-blank line is a complete
// JSON array of role/content messages; a query list is one JSON array of
// objects spanning the whole file.
func sniffJSONFamily(path string) string {
	fh, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msgs []struct {
			Role string `json:"role"`
		}
		if json.Unmarshal([]byte(line), &msgs) == nil && len(msgs) > 0 && msgs[0].Role != "" {
			return FamilyConversations
		}
		return FamilyQuerylist
	}
	return ""
}

// relTo returns path relative to root when possible, for readable configs.
func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
