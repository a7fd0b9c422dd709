// Package section splits free-form numbered narratives into ordered text
// units. Narratives in the wild delimit steps with ordinal markers like
// "1." or "12." at arbitrary positions; the parser recovers the units
// between markers and falls back to line scanning, then to the whole text,
// so non-empty input never parses to nothing.
package section

import (
	"regexp"
	"strings"
)

var (
	markerRe     = regexp.MustCompile(`\d+\.\s*`)
	markerFullRe = regexp.MustCompile(`^\d+\.\s*$`)
	lineMarkerRe = regexp.MustCompile(`^\d+\.\s*`)
)

// Parse returns the ordered text units of a narrative. Units are trimmed and
// never empty; empty or whitespace-only input yields nil. Markers only
// delimit: text before the first marker becomes the first unit, and a
// trailing marker with no content yields no unit.
func Parse(text string) []string {
	if text == "" {
		return nil
	}

	parts := splitKeepMarkers(text)
	var units []string
	current := ""
	for i := 0; i < len(parts); {
		trimmed := strings.TrimSpace(parts[i])
		if trimmed == "" {
			i++
			continue
		}
		if markerFullRe.MatchString(parts[i]) {
			if s := strings.TrimSpace(current); s != "" {
				units = append(units, s)
			}
			if i+1 < len(parts) {
				current = parts[i+1]
				i += 2
			} else {
				current = ""
				i++
			}
			continue
		}
		if current == "" {
			current = trimmed
		} else {
			current = current + " " + trimmed
		}
		i++
	}
	if s := strings.TrimSpace(current); s != "" {
		units = append(units, s)
	}

	if len(units) == 0 && strings.TrimSpace(text) != "" {
		units = parseLines(text)
	}
	if len(units) == 0 && strings.TrimSpace(text) != "" {
		units = []string{strings.TrimSpace(text)}
	}
	return units
}

// splitKeepMarkers splits text around ordinal markers, keeping each marker
// as its own part so the walk can tell delimiters from content. The result
// alternates content and marker parts; empty content parts are preserved.
func splitKeepMarkers(text string) []string {
	locs := markerRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	parts := make([]string, 0, 2*len(locs)+1)
	last := 0
	for _, loc := range locs {
		parts = append(parts, text[last:loc[0]], text[loc[0]:loc[1]])
		last = loc[1]
	}
	return append(parts, text[last:])
}

// parseLines is the conservative fallback: only lines that start with an
// ordinal marker are accepted, with the marker prefix stripped.
func parseLines(text string) []string {
	var units []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !lineMarkerRe.MatchString(line) {
			continue
		}
		if s := lineMarkerRe.ReplaceAllString(line, ""); s != "" {
			units = append(units, s)
		}
	}
	return units
}
