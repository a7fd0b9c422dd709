// Package queryfile reads structured attack-query files: a JSON array of
// objects, each carrying a named list of query strings. The lists are
// flattened into one ordered sequence; objects missing the list field are
// skipped and reported.
package queryfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Skip reports one object that contributed no units.
type Skip struct {
	Index int
	Err   error
}

// Result is one parsed query file.
type Result struct {
	Units   []json.RawMessage
	Skipped []Skip
	Objects int
}

// Parse flattens the named list field of every object in a JSON array.
// Non-string list entries are kept in place; they pass through translation
// unchanged later.
func Parse(data []byte, listField string) (*Result, error) {
	if listField == "" {
		return nil, fmt.Errorf("list field name is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	t, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}
	if d, ok := t.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("query file must be a JSON array, got %v", t)
	}

	res := &Result{}
	idx := 0
	for dec.More() {
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("decode object %d: %w", idx, err)
		}
		raw, ok := obj[listField]
		if !ok {
			res.Skipped = append(res.Skipped, Skip{Index: idx, Err: fmt.Errorf("missing field %q", listField)})
			idx++
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			res.Skipped = append(res.Skipped, Skip{Index: idx, Err: fmt.Errorf("field %q is not a list: %w", listField, err)})
			idx++
			continue
		}
		res.Units = append(res.Units, items...)
		idx++
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read query file end: %w", err)
	}
	res.Objects = idx
	return res, nil
}

// ParseFile reads a query file from disk.
func ParseFile(path string, listField string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := Parse(data, listField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}
