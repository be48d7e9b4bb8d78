// Package render turns a scanned collection of stress test runs into
// the cross-run summary reports.
package render

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethpandaops/stressoor/pkg/summary"
)

// Format selects an output representation.
type Format string

const (
	FormatText  Format = "text"
	FormatHTML  Format = "html"
	FormatSheet Format = "sheet"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatHTML, FormatSheet, FormatJSON, FormatYAML}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}

	return "", fmt.Errorf("unknown format %q", s)
}

// ContentType returns the MIME type of a rendered document.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/plain"
	}
}

// Extension returns the file extension used when the report is stored.
func (f Format) Extension() string {
	switch f {
	case FormatHTML:
		return ".html"
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	default:
		return ".txt"
	}
}

// Linker resolves hosted spreadsheet locations for runs. A key such as
// "{host}" asks for the location of that path component instead of the
// run's own document. Implementations return "" when nothing is hosted.
type Linker interface {
	Link(tmpl string, run *summary.Run, key string) string
}

// Options controls what the reports contain.
type Options struct {
	// Devices and Issues append the device tables and per-run issue
	// lists. They only have content when the scan extracted them.
	Devices bool
	Issues  bool

	// URLPrefix replaces the local scan root in embedded links.
	URLPrefix string

	// Linker, when set, hyperlinks kernel, host, mode and test cells.
	Linker Linker

	// TestPath is the per-run spreadsheet path template given to Linker.
	TestPath string
}

// Render produces a document in the given format. The sheet format has
// no local representation and is rejected.
func Render(f Format, c *summary.Collection, opts Options) ([]byte, error) {
	switch f {
	case FormatText:
		return []byte(Text(c, opts)), nil
	case FormatHTML:
		return []byte(HTML(c, opts)), nil
	case FormatJSON:
		return JSON(c)
	case FormatYAML:
		return YAML(c)
	default:
		return nil, fmt.Errorf("format %q cannot be rendered locally", f)
	}
}

// SortRuns returns the runs ordered by kernel, host, mode, date and time.
func SortRuns(runs []*summary.Run) []*summary.Run {
	out := make([]*summary.Run, len(runs))
	copy(out, runs)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		switch {
		case a.Kernel != b.Kernel:
			return a.Kernel < b.Kernel
		case a.Host != b.Host:
			return a.Host < b.Host
		case a.Mode != b.Mode:
			return a.Mode < b.Mode
		case a.Date != b.Date:
			return a.Date < b.Date
		default:
			return a.Time < b.Time
		}
	})

	return out
}

// deviceCount is one entry of a worst device tally.
type deviceCount struct {
	Name  string
	Count int
}

// byCount orders a worst device tally, most frequent first.
func byCount(tally map[string]int) []deviceCount {
	out := make([]deviceCount, 0, len(tally))
	for name, n := range tally {
		out = append(out, deviceCount{Name: name, Count: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].Name < out[j].Name
	})

	return out
}

// issuesByCount orders issues, most frequent first.
func issuesByCount(issues []summary.Issue) []summary.Issue {
	out := make([]summary.Issue, len(issues))
	copy(out, issues)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})

	return out
}

// deviceTable returns the collection's device table, or an empty one.
func deviceTable(c *summary.Collection) *summary.DeviceTable {
	if c.Devices == nil {
		return summary.NewDeviceTable()
	}

	return c.Devices
}

// link rewrites a local path below root for external hosting.
func (o Options) link(root, path string) string {
	return URL(root, o.URLPrefix, path)
}

// URL maps a local path below root to its location under prefix. The
// path is returned unchanged when prefix is empty.
func URL(root, prefix, path string) string {
	if prefix == "" || path == "" {
		return path
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}

	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(filepath.ToSlash(rel), "/")
}
