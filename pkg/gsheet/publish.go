package gsheet

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"

	"github.com/ethpandaops/stressoor/pkg/render"
	"github.com/ethpandaops/stressoor/pkg/summary"
)

const (
	tabSummary = "Summary"
	tabSuspend = "Suspend Devices"
	tabResume  = "Resume Devices"
)

var summaryHeader = []any{
	"Kernel", "Host", "Mode", "Test Data", "Duration (hours)", "Avg Test Time (s)",
	"Tests", "Pass", "Fail", "Hang", "Crash",
	"Suspend Max", "Suspend Med", "Suspend Min",
	"Resume Max", "Resume Med", "Resume Min",
	"Worst Suspend Device", "Worst Resume Device", "Report",
}

var deviceHeader = []any{
	"Device callback", "Average time (ms)", "Count", "Worst time (ms)", "Host", "Report",
}

// CreateSummary publishes one spreadsheet per kernel at summaryTmpl,
// replacing any previous one. Runs link to their own documents at
// testTmpl when those exist. It returns the spreadsheet URLs.
func (c *Client) CreateSummary(
	ctx context.Context,
	col *summary.Collection,
	summaryTmpl, testTmpl, urlPrefix string,
) ([]string, error) {
	if len(col.Runs) == 0 {
		return nil, ErrNoRuns
	}

	byKernel := make(map[string][]*summary.Run, 4)
	for _, run := range col.Runs {
		byKernel[run.Kernel] = append(byKernel[run.Kernel], run)
	}

	kernels := make([]string, 0, len(byKernel))
	for k := range byKernel {
		kernels = append(kernels, k)
	}

	sort.Strings(kernels)

	urls := make([]string, 0, len(kernels))

	for _, kernel := range kernels {
		runs := render.SortRuns(byKernel[kernel])
		path := strings.ReplaceAll(summaryTmpl, "{kernel}", kernel)

		data := []*sheets.ValueRange{{
			Range: a1(tabSummary),
			Values: SummaryRows(runs, col.Root, urlPrefix, func(r *summary.Run) string {
				return c.Link(testTmpl, r, "")
			}),
		}}

		if col.Devices != nil && col.Devices.Len() > 0 {
			data = append(data,
				&sheets.ValueRange{
					Range:  a1(tabSuspend),
					Values: DeviceRows(col.Devices, summary.PhaseSuspend, col.Root, urlPrefix),
				},
				&sheets.ValueRange{
					Range:  a1(tabResume),
					Values: DeviceRows(col.Devices, summary.PhaseResume, col.Root, urlPrefix),
				},
			)
		}

		url, err := c.publish(ctx, path, data)
		if err != nil {
			return urls, fmt.Errorf("publishing %s: %w", kernel, err)
		}

		c.log.WithFields(logrus.Fields{
			"kernel": kernel,
			"runs":   len(runs),
			"url":    url,
		}).Info("Published summary spreadsheet")

		urls = append(urls, url)
	}

	return urls, nil
}

// publish writes a fresh spreadsheet at path holding the given tabs.
func (c *Client) publish(ctx context.Context, path string, data []*sheets.ValueRange) (string, error) {
	dir, name := splitDir(path)
	if name == "" {
		return "", fmt.Errorf("empty spreadsheet path %q", path)
	}

	folderID, err := c.mkdirs(ctx, dir)
	if err != nil {
		return "", err
	}

	old, err := c.child(ctx, path, folderID, name)
	if err != nil {
		return "", err
	}

	if old != nil {
		if _, err := c.drive.Files.Update(old.Id, &drive.File{Trashed: true}).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("trashing previous %q: %w", path, err)
		}

		c.forget(path)
		c.log.WithField("path", path).Debug("Trashed previous spreadsheet")
	}

	tabs := make([]*sheets.Sheet, 0, len(data))
	for _, vr := range data {
		tabs = append(tabs, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: tabTitle(vr.Range)},
		})
	}

	ss, err := c.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: name},
		Sheets:     tabs,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}

	cur, err := c.drive.Files.Get(ss.SpreadsheetId).Fields("parents").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("reading spreadsheet parents: %w", err)
	}

	if _, err := c.drive.Files.Update(ss.SpreadsheetId, &drive.File{}).
		AddParents(folderID).
		RemoveParents(strings.Join(cur.Parents, ",")).
		Context(ctx).
		Do(); err != nil {
		return "", fmt.Errorf("moving spreadsheet: %w", err)
	}

	if _, err := c.sheets.Spreadsheets.Values.BatchUpdate(ss.SpreadsheetId, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("writing values: %w", err)
	}

	return spreadsheetURL + ss.SpreadsheetId, nil
}

// SummaryRows builds the summary tab, one row per run after the header.
func SummaryRows(runs []*summary.Run, root, urlPrefix string, testLink func(*summary.Run) string) [][]any {
	rows := make([][]any, 0, len(runs)+1)
	rows = append(rows, summaryHeader)

	for _, run := range runs {
		var link string
		if testLink != nil {
			link = testLink(run)
		}

		row := []any{
			run.Kernel,
			run.Host,
			run.Mode,
			hyperlink(link, run.Expand("{date}{time}")),
			round(run.TotalTime/3600, 1),
			round(run.TestTime, 1),
			run.Results.Tests,
			run.Results.Pass,
			run.Results.Fail,
			run.Results.Hang,
			run.Results.Crash,
		}

		for _, set := range []summary.StatSet{run.Suspend, run.Resume} {
			for _, s := range set {
				row = append(row, hyperlink(render.URL(root, urlPrefix, s.Link), s.Value))
			}
		}

		row = append(row,
			topDevice(run.WorstSuspend),
			topDevice(run.WorstResume),
			hyperlink(render.URL(root, urlPrefix, run.File), "html"),
		)

		rows = append(rows, row)
	}

	return rows
}

// DeviceRows builds a device tab for one phase, worst time first.
func DeviceRows(devices *summary.DeviceTable, phase summary.Phase, root, urlPrefix string) [][]any {
	list := devices.ByWorst(phase)

	rows := make([][]any, 0, len(list)+1)
	rows = append(rows, deviceHeader)

	for _, d := range list {
		rows = append(rows, []any{
			d.Name,
			round(d.Average, 3),
			d.Count,
			round(d.Worst, 3),
			d.Host,
			hyperlink(render.URL(root, urlPrefix, d.Link), "html"),
		})
	}

	return rows
}

// topDevice names the most frequent worst device with its count.
func topDevice(tally map[string]int) string {
	var (
		best  string
		count int
	)

	for name, n := range tally {
		if n > count || (n == count && name < best) {
			best, count = name, n
		}
	}

	if count == 0 {
		return ""
	}

	return fmt.Sprintf("%s (x%d)", best, count)
}

// hyperlink returns a HYPERLINK formula, or text alone without a url.
func hyperlink(url, text string) string {
	if url == "" || text == "" {
		return text
	}

	q := func(s string) string { return strings.ReplaceAll(s, `"`, `""`) }

	return fmt.Sprintf(`=HYPERLINK("%s","%s")`, q(url), q(text))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))

	return math.Round(v*p) / p
}

// a1 addresses the top left cell of a tab.
func a1(tab string) string {
	return "'" + tab + "'!A1"
}

// tabTitle recovers the tab name from an a1 range.
func tabTitle(rng string) string {
	name, _, _ := strings.Cut(rng, "!")

	return strings.Trim(name, "'")
}
