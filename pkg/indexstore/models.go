package indexstore

import (
	"time"

	"github.com/ethpandaops/stressoor/pkg/summary"
)

// Run is one indexed summary.html. Runs are keyed by the scanned root and
// the file's path.
type Run struct {
	ID     uint   `gorm:"primaryKey"`
	Root   string `gorm:"not null;uniqueIndex:idx_runs_root_file"`
	File   string `gorm:"not null;uniqueIndex:idx_runs_root_file"`
	Host   string `gorm:"index"`
	Kernel string `gorm:"index"`
	Mode   string

	Date      string
	Time      string
	StartedAt int64
	EndedAt   int64

	Tests int
	Pass  int
	Fail  int
	Hang  int
	Crash int

	TestTime  float64
	TotalTime float64

	SuspendMax string
	SuspendMed string
	SuspendMin string
	ResumeMax  string
	ResumeMed  string
	ResumeMin  string

	SysLPI     *int
	IssueCount int

	IndexedAt time.Time
}

// Device is the aggregated timing of one device callback within a root.
type Device struct {
	ID      uint   `gorm:"primaryKey"`
	Root    string `gorm:"not null;uniqueIndex:idx_devices_key"`
	Phase   string `gorm:"not null;uniqueIndex:idx_devices_key"`
	Name    string `gorm:"not null;uniqueIndex:idx_devices_key"`
	Count   int
	Total   float64
	Worst   float64
	Average float64
	Host    string
	Link    string
}

// NewRun flattens a parsed run for storage.
func NewRun(root string, r *summary.Run) *Run {
	issues := 0
	for _, i := range r.Issues {
		issues += i.Count
	}

	return &Run{
		Root:       root,
		File:       r.File,
		Host:       r.Host,
		Kernel:     r.Kernel,
		Mode:       r.Mode,
		Date:       r.Date,
		Time:       r.Time,
		StartedAt:  r.Start.Unix(),
		EndedAt:    r.End.Unix(),
		Tests:      r.Results.Tests,
		Pass:       r.Results.Pass,
		Fail:       r.Results.Fail,
		Hang:       r.Results.Hang,
		Crash:      r.Results.Crash,
		TestTime:   r.TestTime,
		TotalTime:  r.TotalTime,
		SuspendMax: r.Suspend[0].Value,
		SuspendMed: r.Suspend[1].Value,
		SuspendMin: r.Suspend[2].Value,
		ResumeMax:  r.Resume[0].Value,
		ResumeMed:  r.Resume[1].Value,
		ResumeMin:  r.Resume[2].Value,
		SysLPI:     r.SysLPI,
		IssueCount: issues,
	}
}

// NewDevice converts an aggregated device for storage.
func NewDevice(root string, d summary.DeviceStat) Device {
	return Device{
		Root:    root,
		Phase:   string(d.Phase),
		Name:    d.Name,
		Count:   d.Count,
		Total:   d.Total,
		Worst:   d.Worst,
		Average: d.Average,
		Host:    d.Host,
		Link:    d.Link,
	}
}
