package summary

import (
	"strconv"
	"strings"
	"time"
)

// Phase names a timed transition under test.
type Phase string

const (
	PhaseSuspend Phase = "suspend"
	PhaseResume  Phase = "resume"
)

// Phases lists the phases in report order.
var Phases = []Phase{PhaseSuspend, PhaseResume}

// ParsePhase maps a section heading word to a phase, case-insensitively.
func ParsePhase(s string) (Phase, bool) {
	switch Phase(strings.ToLower(s)) {
	case PhaseSuspend:
		return PhaseSuspend, true
	case PhaseResume:
		return PhaseResume, true
	default:
		return "", false
	}
}

// ResultCounts holds the outcome buckets of a run.
type ResultCounts struct {
	Tests int `json:"tests" yaml:"tests"`
	Pass  int `json:"pass" yaml:"pass"`
	Fail  int `json:"fail" yaml:"fail"`
	Hang  int `json:"hang" yaml:"hang"`
	Crash int `json:"crash" yaml:"crash"`
}

// Sum returns the total of the outcome buckets.
func (r ResultCounts) Sum() int {
	return r.Pass + r.Fail + r.Hang + r.Crash
}

// Result is one non-empty outcome bucket.
type Result struct {
	Name    string
	Count   int
	Percent float64
}

// Breakdown returns the non-empty buckets in pass, fail, hang, crash order
// with their share of the total.
func (r ResultCounts) Breakdown() []Result {
	buckets := []struct {
		name  string
		count int
	}{
		{"pass", r.Pass},
		{"fail", r.Fail},
		{"hang", r.Hang},
		{"crash", r.Crash},
	}

	out := make([]Result, 0, len(buckets))

	for _, b := range buckets {
		if b.count < 1 {
			continue
		}

		var pct float64
		if r.Tests > 0 {
			pct = 100 * float64(b.count) / float64(r.Tests)
		}

		out = append(out, Result{Name: b.name, Count: b.count, Percent: pct})
	}

	return out
}

// Stat is a named timing statistic and the detail page of the test that
// produced it.
type Stat struct {
	Value string `json:"value" yaml:"value"`
	Link  string `json:"link,omitempty" yaml:"link,omitempty"`
}

// StatSet holds the max, median and min statistics of one phase.
type StatSet [3]Stat

// Stat kinds, in StatSet order.
var statKinds = [3]string{"max", "med", "min"}

// Issue is one kind of kernel log problem found across a run.
type Issue struct {
	Count int    `json:"count" yaml:"count"`
	Line  string `json:"line" yaml:"line"`
	Link  string `json:"link,omitempty" yaml:"link,omitempty"`
}

// Run is the parsed content of one summary.html.
type Run struct {
	Host    string       `json:"host" yaml:"host"`
	Kernel  string       `json:"kernel" yaml:"kernel"`
	Mode    string       `json:"mode" yaml:"mode"`
	File    string       `json:"file" yaml:"file"`
	Results ResultCounts `json:"results" yaml:"results"`

	// Date and Time are the start of the first test, as YYYYMMDD and HHMMSS.
	Date  string    `json:"date" yaml:"date"`
	Time  string    `json:"time" yaml:"time"`
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`

	// TestTime is the average seconds per test, TotalTime the estimated
	// seconds for the whole run.
	TestTime  float64 `json:"test_time" yaml:"test_time"`
	TotalTime float64 `json:"total_time" yaml:"total_time"`

	Suspend StatSet `json:"suspend" yaml:"suspend"`
	Resume  StatSet `json:"resume" yaml:"resume"`

	WorstSuspend map[string]int `json:"worst_suspend" yaml:"worst_suspend"`
	WorstResume  map[string]int `json:"worst_resume" yaml:"worst_resume"`

	// Timestamp is taken from the batch directory name when it follows the
	// suspend-<mode>-YYMMDD-HHMMSS-<n>min convention.
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`

	// SysLPI is only set for freeze runs; -1 means unsupported.
	SysLPI *int `json:"syslpi,omitempty" yaml:"syslpi,omitempty"`

	// Issues is nil when issues were not extracted.
	Issues []Issue `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Worst returns the worst device tally of a phase.
func (r *Run) Worst(p Phase) map[string]int {
	if p == PhaseSuspend {
		return r.WorstSuspend
	}

	return r.WorstResume
}

// Expand substitutes {host}, {kernel}, {mode}, {count}, {date} and {time}
// in a path template.
func (r *Run) Expand(tmpl string) string {
	return strings.NewReplacer(
		"{host}", r.Host,
		"{kernel}", r.Kernel,
		"{mode}", r.Mode,
		"{count}", strconv.Itoa(r.Results.Tests),
		"{date}", r.Date,
		"{time}", r.Time,
	).Replace(tmpl)
}

// DeviceKey identifies a device callback within a phase.
type DeviceKey struct {
	Phase Phase
	Name  string
}

// DeviceStat is the cross-run timing of one device callback.
type DeviceStat struct {
	Phase   Phase   `json:"phase" yaml:"phase"`
	Name    string  `json:"name" yaml:"name"`
	Count   int     `json:"count" yaml:"count"`
	Total   float64 `json:"total" yaml:"total"`
	Worst   float64 `json:"worst" yaml:"worst"`
	Host    string  `json:"host" yaml:"host"`
	Link    string  `json:"link,omitempty" yaml:"link,omitempty"`
	Average float64 `json:"average" yaml:"average"`
}

// Collection is everything gathered from one folder scan.
type Collection struct {
	Root    string       `json:"root" yaml:"root"`
	Runs    []*Run       `json:"runs" yaml:"runs"`
	Devices *DeviceTable `json:"devices,omitempty" yaml:"devices,omitempty"`
	Options ParseOptions `json:"-" yaml:"-"`
}
