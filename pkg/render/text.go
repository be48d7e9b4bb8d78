package render

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/stressoor/pkg/summary"
)

const timestampLayout = "2006-01-02 15:04:05"

// Text renders the plain text report.
func Text(c *summary.Collection, opts Options) string {
	var sb strings.Builder

	for _, run := range SortRuns(c.Runs) {
		writeTextRun(&sb, run)
	}

	if opts.Devices {
		for _, phase := range summary.Phases {
			writeTextDevices(&sb, deviceTable(c), phase)
		}
	}

	return sb.String()
}

func writeTextRun(sb *strings.Builder, run *summary.Run) {
	fmt.Fprintf(sb, "Kernel : %s\n", run.Kernel)
	fmt.Fprintf(sb, "Host   : %s\n", run.Host)
	fmt.Fprintf(sb, "Mode   : %s\n", run.Mode)

	if run.Timestamp != nil {
		fmt.Fprintf(sb, "   Timestamp: %s\n", run.Timestamp.Format(timestampLayout))
	}

	fmt.Fprintf(sb, "   Duration: %.1f hours\n", run.TotalTime/3600)
	fmt.Fprintf(sb, "   Avg test time: %.1f seconds\n", run.TestTime)

	sb.WriteString("   Results:\n")

	for _, r := range run.Results.Breakdown() {
		fmt.Fprintf(sb, "   - %s: %d/%d (%.2f%%)\n",
			strings.ToUpper(r.Name), r.Count, run.Results.Tests, r.Percent)
	}

	if run.SysLPI != nil {
		if *run.SysLPI < 0 {
			sb.WriteString("   SYSLPI: UNSUPPORTED\n")
		} else {
			fmt.Fprintf(sb, "   SYSLPI: %d/%d\n", *run.SysLPI, run.Results.Tests)
		}
	}

	fmt.Fprintf(sb, "   Suspend: %s\n", statValues(run.Suspend))
	fmt.Fprintf(sb, "   Resume: %s\n", statValues(run.Resume))

	for _, phase := range summary.Phases {
		fmt.Fprintf(sb, "   Worst %s Devices:\n", phaseTitle(phase))

		for _, d := range byCount(run.Worst(phase)) {
			fmt.Fprintf(sb, "   - %s (%d times)\n", d.Name, d.Count)
		}
	}

	if len(run.Issues) == 0 {
		return
	}

	sb.WriteString("   Issues found in dmesg logs:\n")

	for _, issue := range issuesByCount(run.Issues) {
		fmt.Fprintf(sb, "   (x%d) %s\n", issue.Count, issue.Line)
	}
}

func writeTextDevices(sb *strings.Builder, devices *summary.DeviceTable, phase summary.Phase) {
	fmt.Fprintf(sb, "\n%-50s %10s %9s %5s %s\n",
		strings.ToUpper(string(phase)), "WORST", "AVG", "COUNT", "HOST")

	for _, d := range devices.ByWorst(phase) {
		fmt.Fprintf(sb, "%50s %10.3f %9.3f %5d %s\n",
			d.Name, d.Worst, d.Average, d.Count, d.Host)
	}
}

func statValues(set summary.StatSet) string {
	vals := make([]string, 0, len(set))
	for _, s := range set {
		vals = append(vals, s.Value)
	}

	return strings.Join(vals, ", ")
}

func phaseTitle(p summary.Phase) string {
	s := string(p)
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
