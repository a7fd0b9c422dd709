// Package record implements order-preserving JSON documents for dataset
// processing. Fields keep their source order and untouched values round-trip
// byte-exact, so a transformed document differs from its source only where a
// transformation actually wrote.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Record is an ordered mapping from field name to raw JSON value.
type Record struct {
	keys   []string
	fields map[string]json.RawMessage
}

// New returns an empty record.
func New() *Record {
	return &Record{fields: make(map[string]json.RawMessage)}
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Keys returns the field names in source order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Has reports whether the field exists.
func (r *Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Get returns the raw value of a field.
func (r *Record) Get(key string) (json.RawMessage, bool) {
	raw, ok := r.fields[key]
	return raw, ok
}

// Set stores a raw value, appending the key if it is new. Existing keys keep
// their position.
func (r *Record) Set(key string, raw json.RawMessage) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = raw
}

// Clone returns a record sharing the raw value bytes but with independent
// key order and field map, so Set on the clone never touches the source.
func (r *Record) Clone() *Record {
	c := &Record{
		keys:   make([]string, len(r.keys)),
		fields: make(map[string]json.RawMessage, len(r.fields)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.fields {
		c.fields[k] = v
	}
	return c
}

// MarshalJSON renders the record with fields in source order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(EncodeString(k))
		buf.WriteByte(':')
		raw := r.fields[k]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseRecord reads one JSON object preserving field order.
func ParseRecord(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	t, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("record must be a JSON object, got %v", t)
	}
	r := New()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read record key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("record key must be a string, got %v", kt)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		r.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read record end: %w", err)
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// Kind tells the two document shapes apart.
type Kind int

const (
	// KindList is a flat JSON array of values, one unit per element.
	KindList Kind = iota
	// KindRecords is a JSON array of objects.
	KindRecords
)

// Document is one processed dataset file: either a flat list of units or an
// ordered sequence of records.
type Document struct {
	Kind    Kind
	Units   []json.RawMessage
	Records []*Record
}

// NewListDocument builds a flat document from raw units.
func NewListDocument(units []json.RawMessage) *Document {
	return &Document{Kind: KindList, Units: units}
}

// NewStringListDocument builds a flat document from plain strings.
func NewStringListDocument(units []string) *Document {
	raw := make([]json.RawMessage, len(units))
	for i, u := range units {
		raw[i] = EncodeString(u)
	}
	return NewListDocument(raw)
}

// NewRecordsDocument builds a record document.
func NewRecordsDocument(records []*Record) *Document {
	return &Document{Kind: KindRecords, Records: records}
}

// Len returns the element count of the document's top-level array.
func (d *Document) Len() int {
	if d.Kind == KindRecords {
		return len(d.Records)
	}
	return len(d.Units)
}

// Clone returns a document whose units and records can be replaced without
// touching the source.
func (d *Document) Clone() *Document {
	c := &Document{Kind: d.Kind}
	if d.Units != nil {
		c.Units = make([]json.RawMessage, len(d.Units))
		copy(c.Units, d.Units)
	}
	if d.Records != nil {
		c.Records = make([]*Record, len(d.Records))
		for i, r := range d.Records {
			c.Records[i] = r.Clone()
		}
	}
	return c
}

// ParseDocument reads a JSON array, preserving element order and, for record
// documents, field order. The shape is detected from the first element.
func ParseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	t, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if d, ok := t.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("document must be a JSON array, got %v", t)
	}
	doc := &Document{Kind: KindList}
	n := 0
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode element %d: %w", n, err)
		}
		if n == 0 && len(raw) > 0 && raw[0] == '{' {
			doc.Kind = KindRecords
		}
		if doc.Kind == KindRecords {
			if len(raw) == 0 || raw[0] != '{' {
				return nil, fmt.Errorf("element %d: expected an object", n)
			}
			rec, err := ParseRecord(raw)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", n, err)
			}
			doc.Records = append(doc.Records, rec)
		} else {
			doc.Units = append(doc.Units, raw)
		}
		n++
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read document end: %w", err)
	}
	return doc, nil
}

// Marshal renders the document indented with two spaces, field order and
// source bytes preserved, a trailing newline appended.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	switch d.Kind {
	case KindRecords:
		for i, rec := range d.Records {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := rec.MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("marshal record %d: %w", i, err)
			}
			buf.Write(b)
		}
	default:
		for i, raw := range d.Units {
			if i > 0 {
				buf.WriteByte(',')
			}
			if len(raw) == 0 {
				raw = json.RawMessage("null")
			}
			buf.Write(raw)
		}
	}
	buf.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent document: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// ReadFile parses a document from disk.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteFile renders the document to disk.
func (d *Document) WriteFile(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ---------------------------------------------------------------------------
// Raw value helpers
// ---------------------------------------------------------------------------

// EncodeString renders a JSON string without HTML escaping, keeping Unicode
// content readable in output files.
func EncodeString(s string) json.RawMessage {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		// strings cannot fail to encode; keep the signature small
		return json.RawMessage(`""`)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n"))
}

// IsString reports whether the raw value holds a JSON string.
func IsString(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '"'
}

// DecodeString extracts a JSON string value; ok is false for any other type.
func DecodeString(raw json.RawMessage) (string, bool) {
	if !IsString(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// IsList reports whether the raw value holds a JSON array.
func IsList(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}

// DecodeList splits a JSON array into its raw elements; ok is false for any
// other type.
func DecodeList(raw json.RawMessage) ([]json.RawMessage, bool) {
	if !IsList(raw) {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// EncodeList joins raw elements back into a JSON array.
func EncodeList(items []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(it) == 0 {
			it = json.RawMessage("null")
		}
		buf.Write(it)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
