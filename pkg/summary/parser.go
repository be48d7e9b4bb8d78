package summary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/stressoor/pkg/htmlscan"
	"github.com/sirupsen/logrus"
)

// File names written by the harness into every batch directory.
const (
	SummaryFile = "summary.html"
	DevicesFile = "summary-devices.html"
	IssuesFile  = "summary-issues.html"
)

const (
	testTimeLayout   = "2006/01/02 15:04:05"
	detailTimeLayout = "060102150405"
	stampStart       = `<div class="stamp">`
)

// Column names, lower-cased as they appear in the results table header.
const (
	colHost         = "host"
	colKernel       = "kernel"
	colMode         = "mode"
	colResult       = "result"
	colTestTime     = "test time"
	colSuspend      = "suspend"
	colResume       = "resume"
	colDetail       = "detail"
	colExtra        = "extra"
	colWorstSuspend = "worst suspend device"
	colWorstResume  = "worst resume device"
)

var requiredColumns = []string{
	colHost, colKernel, colMode, colResult, colTestTime, colSuspend, colResume,
}

var (
	stampRe      = regexp.MustCompile(`^(.*) (.*) (.*) \((.*)\)`)
	resultRe     = regexp.MustCompile(`(\d+) (fail in \w+|[a-z]+)`)
	detailTimeRe = regexp.MustCompile(`.*/suspend-([0-9]*)-([0-9]*)/.*`)
	batchDirRe   = regexp.MustCompile(`.*/suspend-[a-z]*-([0-9]*)-([0-9]*)-[0-9]*min/summary\.html$`)
	sysLPIRe     = regexp.MustCompile(`^SYSLPI=[0-9.]*$`)
)

// ParseOptions selects the optional sibling files read for every run.
type ParseOptions struct {
	Devices bool
	Issues  bool
}

// Parser turns summary files into runs and folds their device
// breakdowns into a shared table.
type Parser struct {
	log     logrus.FieldLogger
	opts    ParseOptions
	devices *DeviceTable
}

// NewParser creates a parser that merges device data into devices.
func NewParser(log logrus.FieldLogger, opts ParseOptions, devices *DeviceTable) *Parser {
	return &Parser{
		log:     log.WithField("component", "parser"),
		opts:    opts,
		devices: devices,
	}
}

// columns maps header names to cell positions for one results table.
type columns map[string]int

func (c columns) has(name string) bool {
	_, ok := c[name]

	return ok
}

// Parse reads one summary.html. Errors satisfying IsSkippable only
// disqualify this file, anything else is fatal for the scan.
func (p *Parser) Parse(file string) (*Run, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	html := string(data)

	line := htmlscan.First(html, htmlscan.Literal(stampStart), "</div>")
	if line == "" {
		return nil, fmt.Errorf("%s: %w", file, ErrUnrecognized)
	}

	m := stampRe.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("%s: %w", file, ErrMultipleHosts)
	}

	results, err := parseResults(m[4])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	run := &Run{
		Host:         m[1],
		Kernel:       m[2],
		Mode:         m[3],
		File:         file,
		Results:      results,
		WorstSuspend: make(map[string]int, 8),
		WorstResume:  make(map[string]int, 8),
	}

	if err := p.parseTable(run, html); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	if ts, ok, err := batchTimestamp(file); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	} else if ok {
		run.Timestamp = &ts
	}

	if p.opts.Devices {
		if err := p.readDevices(file); err != nil {
			return nil, err
		}
	}

	if p.opts.Issues {
		issues, err := p.readIssues(file)
		if err != nil {
			return nil, err
		}

		run.Issues = issues
	}

	return run, nil
}

// parseResults reads the parenthesised part of a stamp line, e.g.
// "100 tests, 90 pass, 5 fail in resume, 5 hang".
func parseResults(s string) (ResultCounts, error) {
	var (
		rc       ResultCounts
		hasTotal bool
	)

	for _, m := range resultRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return rc, fmt.Errorf("%w: result count %q: %w", ErrFormat, m[1], err)
		}

		key := m[2]

		switch {
		case key == "tests":
			rc.Tests += n
			hasTotal = true
		case key == "pass":
			rc.Pass += n
		case key == "fail", strings.HasPrefix(key, "fail in "):
			rc.Fail += n
		case key == "hang":
			rc.Hang += n
		case key == "crash":
			rc.Crash += n
		default:
			return rc, fmt.Errorf("%w: unknown result %q", ErrFormat, key)
		}
	}

	if !hasTotal {
		rc.Tests = rc.Sum()
	}

	if rc.Sum() != rc.Tests {
		return rc, fmt.Errorf("%w: results (%d) do not add up to %d tests",
			ErrFormat, rc.Sum(), rc.Tests)
	}

	return rc, nil
}

// parseTable walks the results table, filling in timing, statistics,
// worst device tallies and SYSLPI.
func (p *Parser) parseTable(run *Run, html string) error {
	statNames := make([]string, 0, 6)
	for _, prefix := range []string{"s", "r"} {
		for _, kind := range statKinds {
			statNames = append(statNames, prefix+run.Mode+kind)
		}
	}

	links := make([]string, len(statNames))

	var (
		cols        columns
		first, last time.Time
		rows        int
		sysLPI      = -1
	)

	for _, row := range htmlscan.Rows(html) {
		if strings.Contains(row, "<th>") {
			names := htmlscan.HeaderNames(row)

			cols = make(columns, len(names))
			for i, name := range names {
				cols[name] = i
			}

			for _, name := range requiredColumns {
				if !cols.has(name) {
					return fmt.Errorf("%w: %q column missing", ErrFormat, name)
				}
			}

			continue
		}

		if len(cols) == 0 || strings.Contains(row, `class="head"`) ||
			strings.Contains(row, "<html>") {
			continue
		}

		cells := htmlscan.Cells(row)
		if len(cells) < len(cols) {
			return fmt.Errorf("%w: row has %d cells, header has %d",
				ErrFormat, len(cells), len(cols))
		}

		url := ""
		if idx, ok := cols[colDetail]; ok {
			if u, ok := htmlscan.Href(cells[idx].Text); ok {
				url = filepath.Join(filepath.Dir(run.File), u)
			}
		}

		testTime, err := rowTime(cells[cols[colTestTime]].Text, url)
		if err != nil {
			return err
		}

		if rows == 0 || testTime.After(last) {
			last = testTime
		}

		if rows == 0 || testTime.Before(first) {
			first = testTime
		}

		rows++

		for i, name := range statNames {
			col := colSuspend
			if i >= len(statKinds) {
				col = colResume
			}

			if strings.Contains(cells[cols[col]].Raw, name) {
				links[i] = url
			}
		}

		for col, tally := range map[string]map[string]int{
			colWorstSuspend: run.WorstSuspend,
			colWorstResume:  run.WorstResume,
		} {
			if idx, ok := cols[col]; ok {
				if name := cells[idx].Text; name != "" {
					tally[name]++
				}
			}
		}

		if idx, ok := cols[colExtra]; ok && sysLPIRe.MatchString(cells[idx].Text) {
			if sysLPI < 0 {
				sysLPI = 0
			}

			val, err := strconv.ParseFloat(cells[idx].Text[len("SYSLPI="):], 64)
			if err != nil {
				return fmt.Errorf("%w: %q: %w", ErrFormat, cells[idx].Text, err)
			}

			if val > 0 {
				sysLPI++
			}
		}
	}

	if cols == nil {
		return fmt.Errorf("%w: results table not found", ErrFormat)
	}

	if rows == 0 {
		return ErrNoTests
	}

	links = fillForward(links)

	for i := range statKinds {
		run.Suspend[i] = Stat{
			Value: statValue(html, statNames[i]),
			Link:  links[i],
		}
		run.Resume[i] = Stat{
			Value: statValue(html, statNames[len(statKinds)+i]),
			Link:  links[len(statKinds)+i],
		}
	}

	cnt := run.Results.Tests - 1
	if cnt < 1 {
		cnt = 1
	}

	run.Start = first
	run.End = last
	run.Date = first.Format("20060102")
	run.Time = first.Format("150405")
	run.TestTime = last.Sub(first).Seconds() / float64(cnt)
	run.TotalTime = run.TestTime * float64(run.Results.Tests)

	if run.Mode == "freeze" {
		run.SysLPI = &sysLPI
	}

	return nil
}

// rowTime returns the start of a test. A timestamp embedded in the detail
// link is preferred over the test time column.
func rowTime(testTime, url string) (time.Time, error) {
	if url != "" {
		if m := detailTimeRe.FindStringSubmatch(filepath.ToSlash(url)); m != nil {
			t, err := time.Parse(detailTimeLayout, m[1]+m[2])
			if err != nil {
				return t, fmt.Errorf("%w: detail link time: %w", ErrFormat, err)
			}

			return t, nil
		}
	}

	t, err := time.Parse(testTimeLayout, testTime)
	if err != nil {
		return t, fmt.Errorf("%w: test time: %w", ErrFormat, err)
	}

	return t, nil
}

func statValue(html, name string) string {
	return htmlscan.First(html, htmlscan.Literal(`<a href="#`+name+`">`), "</a>")
}

// batchTimestamp extracts the start time encoded in the batch directory
// name, if it follows the harness naming convention.
func batchTimestamp(file string) (time.Time, bool, error) {
	m := batchDirRe.FindStringSubmatch(filepath.ToSlash(file))
	if m == nil {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(detailTimeLayout, m[1]+m[2])
	if err != nil {
		return t, false, fmt.Errorf("%w: batch directory time: %w", ErrFormat, err)
	}

	return t, true, nil
}

func (p *Parser) readDevices(file string) error {
	path := filepath.Join(filepath.Dir(file), DevicesFile)

	stats, err := ParseDevices(path)
	if errors.Is(err, os.ErrNotExist) {
		p.log.WithField("file", path).
			Warn("Device summary is missing, rerun sleepgraph -summary")

		return nil
	}

	if err != nil {
		return err
	}

	for _, s := range stats {
		p.devices.Merge(s)
	}

	return nil
}

func (p *Parser) readIssues(file string) ([]Issue, error) {
	path := filepath.Join(filepath.Dir(file), IssuesFile)

	issues, err := ParseIssues(path)
	if errors.Is(err, os.ErrNotExist) {
		p.log.WithField("file", path).
			Warn("Issues summary is missing, rerun sleepgraph -summary")

		return nil, nil
	}

	return issues, err
}
