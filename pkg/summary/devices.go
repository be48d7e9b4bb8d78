package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ethpandaops/stressoor/pkg/htmlscan"
)

// Cell start pattern used by the device and issue tables, which put a
// few bare attributes on some cells.
const cellStart = `<td[a-z= ]*>`

var sectionRe = regexp.MustCompile(`^.*\(([A-Z]*) `)

// DeviceTable accumulates device callback timings across runs. It is
// filled while walking and read-only once Finalize has been called.
type DeviceTable struct {
	stats map[DeviceKey]*DeviceStat
}

// NewDeviceTable creates an empty table.
func NewDeviceTable() *DeviceTable {
	return &DeviceTable{stats: make(map[DeviceKey]*DeviceStat, 128)}
}

// NewDeviceTableFrom builds a finalized table from per-run entries.
func NewDeviceTableFrom(stats []DeviceStat) *DeviceTable {
	t := NewDeviceTable()
	for _, s := range stats {
		t.Merge(s)
	}

	t.Finalize()

	return t
}

// Merge folds one run's figures for a device into the table. Counts and
// totals are summed; the worst time keeps the host and link of the run
// that produced it. Equal worst times prefer the smaller host, then link,
// so the result does not depend on merge order.
func (t *DeviceTable) Merge(s DeviceStat) {
	key := DeviceKey{Phase: s.Phase, Name: s.Name}

	cur, ok := t.stats[key]
	if !ok {
		s.Average = 0
		t.stats[key] = &s

		return
	}

	if s.Worst > cur.Worst || (s.Worst == cur.Worst && worseTie(s, *cur)) {
		cur.Worst = s.Worst
		cur.Host = s.Host
		cur.Link = s.Link
	}

	cur.Count += s.Count
	cur.Total += s.Total
}

func worseTie(a, b DeviceStat) bool {
	if a.Host != b.Host {
		return a.Host < b.Host
	}

	return a.Link < b.Link
}

// Finalize computes the per-device averages.
func (t *DeviceTable) Finalize() {
	for _, s := range t.stats {
		if s.Count > 0 {
			s.Average = s.Total / float64(s.Count)
		} else {
			s.Average = 0
		}
	}
}

// Get returns the entry for a device, if any.
func (t *DeviceTable) Get(p Phase, name string) (DeviceStat, bool) {
	s, ok := t.stats[DeviceKey{Phase: p, Name: name}]
	if !ok {
		return DeviceStat{}, false
	}

	return *s, true
}

// Len returns the number of devices over all phases.
func (t *DeviceTable) Len() int {
	return len(t.stats)
}

// ByWorst returns the devices of a phase, worst time first.
func (t *DeviceTable) ByWorst(p Phase) []DeviceStat {
	out := make([]DeviceStat, 0, len(t.stats))

	for k, s := range t.stats {
		if k.Phase == p {
			out = append(out, *s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Worst != out[j].Worst {
			return out[i].Worst > out[j].Worst
		}

		return out[i].Name < out[j].Name
	})

	return out
}

// All returns every device, grouped by phase in report order.
func (t *DeviceTable) All() []DeviceStat {
	out := make([]DeviceStat, 0, len(t.stats))
	for _, p := range Phases {
		out = append(out, t.ByWorst(p)...)
	}

	return out
}

// MarshalJSON encodes the table as a flat list.
func (t *DeviceTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.All())
}

// MarshalYAML encodes the table as a flat list.
func (t *DeviceTable) MarshalYAML() (any, error) {
	return t.All(), nil
}

// ParseDevices reads a summary-devices.html file. Sections whose heading
// does not name a known phase are ignored. A row with fewer than five
// cells means the file predates the current layout and is an ErrFormat.
func ParseDevices(file string) ([]DeviceStat, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	var out []DeviceStat

	for _, block := range strings.Split(string(data), stampStart) {
		m := sectionRe.FindStringSubmatch(block)
		if m == nil {
			continue
		}

		phase, ok := ParsePhase(m[1])
		if !ok {
			continue
		}

		for _, row := range htmlscan.Rows(block) {
			if !strings.Contains(row, "</td>") {
				continue
			}

			stat, err := parseDeviceRow(file, phase, row)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}

			out = append(out, stat)
		}
	}

	return out, nil
}

func parseDeviceRow(file string, phase Phase, row string) (DeviceStat, error) {
	vals := htmlscan.All(row, cellStart, "</td>")
	if len(vals) < 5 {
		return DeviceStat{}, fmt.Errorf(
			"%w: device row has %d fields, summary file is out of date, rerun sleepgraph",
			ErrFormat, len(vals))
	}

	count, err := strconv.Atoi(strings.TrimSpace(vals[2]))
	if err != nil {
		return DeviceStat{}, fmt.Errorf("%w: device count %q: %w", ErrFormat, vals[2], err)
	}

	avg, err := leadingFloat(vals[1])
	if err != nil {
		return DeviceStat{}, err
	}

	worst, err := leadingFloat(vals[3])
	if err != nil {
		return DeviceStat{}, err
	}

	var link string
	if len(vals) > 5 {
		if u, ok := htmlscan.Href(vals[5]); ok {
			link = filepath.Join(filepath.Dir(file), u)
		}
	}

	return DeviceStat{
		Phase: phase,
		Name:  vals[0],
		Count: count,
		Total: float64(count) * avg,
		Worst: worst,
		Host:  vals[4],
		Link:  link,
	}, nil
}

// leadingFloat parses the number in a cell such as "1.234 ms".
func leadingFloat(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty time value", ErrFormat)
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: time value %q: %w", ErrFormat, s, err)
	}

	return v, nil
}
