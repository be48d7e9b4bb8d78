package summary

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethpandaops/stressoor/pkg/htmlscan"
)

// ParseIssues reads a summary-issues.html file. Header rows are skipped;
// any other row with fewer than four closed cells is an ErrFormat.
func ParseIssues(file string) ([]Issue, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	issues := make([]Issue, 0, 16)

	for i, row := range htmlscan.Rows(string(data)) {
		// Chunk 0 precedes the first <tr.
		if i == 0 || strings.Contains(row, "<th>") || strings.Contains(row, `class="head"`) ||
			strings.Contains(row, "<html>") {
			continue
		}

		vals := htmlscan.All(row, cellStart, "</td>")
		if len(vals) < 4 {
			return nil, fmt.Errorf(
				"%s: %w: issue row has %d fields, summary file is out of date, rerun sleepgraph",
				file, ErrFormat, len(vals))
		}

		count, err := strconv.Atoi(strings.TrimSpace(vals[0]))
		if err != nil {
			return nil, fmt.Errorf("%s: %w: issue count %q: %w", file, ErrFormat, vals[0], err)
		}

		var link string
		if u, ok := htmlscan.Href(vals[3]); ok {
			link = filepath.Join(filepath.Dir(file), u)
		}

		issues = append(issues, Issue{
			Count: count,
			Line:  vals[1],
			Link:  link,
		})
	}

	return issues, nil
}
