// Package tablefile reads spreadsheet datasets (.xlsx, .csv) into
// column-ordered tables. Cell text that parses cleanly as an integer, float
// or boolean is typed accordingly; empty cells become null; everything else
// stays a string.
package tablefile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/minios-linux/dtran/record"
)

// Table is one sheet of tabular data: a header row and typed cell values.
type Table struct {
	Columns []string
	Rows    [][]json.RawMessage
}

// ColumnIndex returns the position of a named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Read loads a table from disk, picking the reader by file extension.
func Read(path string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return readXLSX(path)
	case ".csv":
		return readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported table format %q (want .xlsx or .csv)", ext)
	}
}

func readXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	t, err := fromStringRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func readCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t, err := fromStringRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// fromStringRows types the cells under the first row's header. Short rows
// are padded with nulls so every row matches the header width.
func fromStringRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}
	header := make([]string, len(rows[0]))
	copy(header, rows[0])

	t := &Table{Columns: header}
	for _, row := range rows[1:] {
		cells := make([]json.RawMessage, len(header))
		for i := range header {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			cells[i] = typedCell(v)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

// typedCell converts one cell's text into a JSON value.
func typedCell(v string) json.RawMessage {
	s := strings.TrimSpace(v)
	if s == "" {
		return json.RawMessage("null")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return json.RawMessage(strconv.FormatInt(n, 10))
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64))
	}
	if strings.EqualFold(s, "true") {
		return json.RawMessage("true")
	}
	if strings.EqualFold(s, "false") {
		return json.RawMessage("false")
	}
	return record.EncodeString(v)
}
