// Package extract turns raw dataset files into processed documents: the flat
// unit lists and section-expanded record collections the translation engine
// consumes.
//
// Each dataset family has its own reader (convfile, tablefile, queryfile);
// this package dispatches on the family, applies the section parser where the
// family calls for it, and reports per-file unit and record counts.
package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/dtran/config"
	"github.com/minios-linux/dtran/convfile"
	"github.com/minios-linux/dtran/queryfile"
	"github.com/minios-linux/dtran/record"
	"github.com/minios-linux/dtran/section"
	"github.com/minios-linux/dtran/tablefile"
)

// WarnFunc receives non-fatal preprocessing warnings: skipped lines, objects
// missing their list field. May be nil.
type WarnFunc func(format string, args ...any)

// Output is one processed document derived from one raw file.
type Output struct {
	// Source is the raw file the document came from.
	Source string
	// Name is the processed artifact file name (processed_<stem>.json).
	Name string
	// Doc is the processed document.
	Doc *record.Document
	// Records counts source records consumed (conversations, rows, objects).
	Records int
	// Units counts text units the document contributes.
	Units int
	// Skipped counts undecodable source records passed over.
	Skipped int
}

// Process reads one dataset and produces one Output per raw file. Unit-level
// problems are reported through warn and never abort the dataset; unreadable
// files and missing narrative columns do.
func Process(proj *config.Project, d config.Dataset, warn WarnFunc) ([]Output, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}

	path := proj.DatasetPath(d)
	switch d.Family {
	case config.FamilyConversations:
		return processConversations(path, warn)
	case config.FamilyTable:
		out, err := processTable(path, d.TextColumn)
		if err != nil {
			return nil, err
		}
		return []Output{*out}, nil
	case config.FamilyQuerylist:
		out, err := processQuerylist(path, d.ListField, warn)
		if err != nil {
			return nil, err
		}
		return []Output{*out}, nil
	default:
		return nil, fmt.Errorf("dataset %q: unknown family %q", d.Name, d.Family)
	}
}

// ---------------------------------------------------------------------------
// conversations
// ---------------------------------------------------------------------------

func processConversations(path string, warn WarnFunc) ([]Output, error) {
	files, err := conversationFiles(path)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(files))
	for _, file := range files {
		res, err := convfile.ParseFile(file)
		if err != nil {
			return nil, err
		}
		for _, s := range res.Skipped {
			warn("%s: line %d: %v", file, s.Line, s.Err)
		}
		outputs = append(outputs, Output{
			Source:  file,
			Name:    config.ProcessedName(file),
			Doc:     record.NewStringListDocument(res.Units),
			Records: res.Conversations,
			Units:   len(res.Units),
			Skipped: len(res.Skipped),
		})
	}
	return outputs, nil
}

// conversationFiles expands a dataset path into the conversation files it
// names: the file itself, or every .json/.jsonl file of a directory.
func conversationFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".jsonl":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: no conversation files found", path)
	}
	sort.Strings(files)
	return files, nil
}

// ---------------------------------------------------------------------------
// table
// ---------------------------------------------------------------------------

func processTable(path, textColumn string) (*Output, error) {
	t, err := tablefile.Read(path)
	if err != nil {
		return nil, err
	}

	col, ok := t.ColumnIndex(textColumn)
	if !ok {
		return nil, fmt.Errorf("%s: narrative column %q not found (columns: %s)",
			path, textColumn, strings.Join(t.Columns, ", "))
	}

	units := 0
	records := make([]*record.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := record.New()
		for i, name := range t.Columns {
			raw := row[i]
			if i == col {
				// The narrative cell is replaced in place by its parsed
				// sections; non-string cells contribute no units.
				var sections []string
				if s, ok := record.DecodeString(raw); ok {
					sections = section.Parse(s)
				}
				units += len(sections)
				raw = encodeSections(sections)
			}
			rec.Set(name, raw)
		}
		records = append(records, rec)
	}

	return &Output{
		Source:  path,
		Name:    config.ProcessedName(path),
		Doc:     record.NewRecordsDocument(records),
		Records: len(t.Rows),
		Units:   units,
	}, nil
}

func encodeSections(sections []string) json.RawMessage {
	raws := make([]json.RawMessage, len(sections))
	for i, s := range sections {
		raws[i] = record.EncodeString(s)
	}
	return record.EncodeList(raws)
}

// ---------------------------------------------------------------------------
// querylist
// ---------------------------------------------------------------------------

func processQuerylist(path, listField string, warn WarnFunc) (*Output, error) {
	res, err := queryfile.ParseFile(path, listField)
	if err != nil {
		return nil, err
	}
	for _, s := range res.Skipped {
		warn("%s: object %d: %v", path, s.Index, s.Err)
	}
	return &Output{
		Source:  path,
		Name:    config.ProcessedName(path),
		Doc:     record.NewListDocument(res.Units),
		Records: res.Objects,
		Units:   len(res.Units),
		Skipped: len(res.Skipped),
	}, nil
}
