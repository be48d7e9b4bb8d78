// Package htmlscan pulls tag-delimited text spans out of the HTML reports
// written by the sleepgraph stress harness.
//
// It is deliberately not an HTML parser. The harness emits a narrow and
// stable table layout, sometimes with unbalanced or unquoted markup, and
// the scanner only has to understand that layout: split on row and cell
// openers and cut text between a start pattern and an end literal.
package htmlscan

import (
	"regexp"
	"strings"
	"sync"
)

var (
	patternsMu sync.Mutex
	patterns   = make(map[string]*regexp.Regexp, 16)
)

// compile caches start patterns, the same handful are used for every file.
func compile(pattern string) *regexp.Regexp {
	patternsMu.Lock()
	defer patternsMu.Unlock()

	re, ok := patterns[pattern]
	if !ok {
		re = regexp.MustCompile(pattern)
		patterns[pattern] = re
	}

	return re
}

// All returns, in document order, the text found between each match of
// the start pattern and the next occurrence of the end literal. Scanning
// stops at the first start match that is not followed by end.
func All(html, start, end string) []string {
	re := compile(start)

	matches := re.FindAllStringIndex(html, -1)
	out := make([]string, 0, len(matches))

	for _, m := range matches {
		rest := html[m[1]:]

		e := strings.Index(rest, end)
		if e < 0 {
			break
		}

		out = append(out, rest[:e])
	}

	return out
}

// First returns the span following the first match of start, or an empty
// string when start does not match or is not followed by end.
func First(html, start, end string) string {
	loc := compile(start).FindStringIndex(html)
	if loc == nil {
		return ""
	}

	rest := html[loc[1]:]

	e := strings.Index(rest, end)
	if e < 0 {
		return ""
	}

	return rest[:e]
}

// Literal quotes s so it can be used as a start pattern.
func Literal(s string) string {
	return regexp.QuoteMeta(s)
}

// Rows splits a document on table row openers. The first chunk is whatever
// precedes the first row.
func Rows(html string) []string {
	return strings.Split(html, "<tr")
}

// Cell is one <td> of a row.
type Cell struct {
	// Raw is everything after "<td" minus one character, up to "</td>",
	// so attributes such as id="sfreezemax" stay visible.
	Raw string
	// Text is the cell content with any opening tag attributes removed.
	Text string
}

// Cells returns the <td> cells of a single row chunk. Newlines inside a
// cell are dropped.
func Cells(row string) []Cell {
	parts := strings.Split(row, "<td")
	if len(parts) < 2 {
		return nil
	}

	cells := make([]Cell, 0, len(parts)-1)

	for _, part := range parts[1:] {
		part = strings.ReplaceAll(part, "\n", "")
		if part == "" {
			cells = append(cells, Cell{})

			continue
		}

		raw := part[1:]
		if e := strings.Index(raw, "</td>"); e >= 0 {
			raw = raw[:e]
		}

		text := raw
		if part[0] != '>' {
			if gt := strings.IndexByte(raw, '>'); gt >= 0 {
				text = raw[gt+1:]
			}
		}

		cells = append(cells, Cell{Raw: raw, Text: text})
	}

	return cells
}

// HeaderNames returns the lower-cased, trimmed <th> labels of a header
// row in column order.
func HeaderNames(row string) []string {
	s := strings.Index(row, "<th>")
	e := strings.LastIndex(row, "</th>")

	if s < 0 || e < s+4 {
		return nil
	}

	body := strings.ReplaceAll(row[s+4:e], "</th>", "")
	labels := strings.Split(body, "<th>")

	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, strings.ToLower(strings.TrimSpace(l)))
	}

	return names
}

var hrefRe = regexp.MustCompile(`^<a href="(.*)">`)

// Href returns the target of an anchor that opens s, if any.
func Href(s string) (string, bool) {
	m := hrefRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}

	return m[1], true
}
