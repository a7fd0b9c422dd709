// Package convfile reads line-delimited JSON conversation files. Each line
// holds one conversation: a JSON array of role/content messages. Only
// user-role content is collected for translation; undecodable lines are
// skipped and reported, never fatal.
package convfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Skip reports one line that could not be decoded.
type Skip struct {
	Line int
	Err  error
}

// Result is one parsed conversation file: user-role content flattened across
// lines in source order, plus the lines that were passed over.
type Result struct {
	Units         []string
	Skipped       []Skip
	Conversations int
}

// Parse reads conversations from r. Blank lines are ignored; lines that do
// not decode as a message array are recorded in Skipped and skipped.
func Parse(r io.Reader) (*Result, error) {
	sc := bufio.NewScanner(r)
	// conversations can run long; the default 64K line limit is too small
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	res := &Result{}
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var msgs []Message
		if err := json.Unmarshal([]byte(text), &msgs); err != nil {
			res.Skipped = append(res.Skipped, Skip{Line: line, Err: err})
			continue
		}
		res.Conversations++
		for _, m := range msgs {
			if m.Role != "user" {
				continue
			}
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			res.Units = append(res.Units, m.Content)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan conversations: %w", err)
	}
	return res, nil
}

// ParseFile reads conversations from a file on disk.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	res, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}
