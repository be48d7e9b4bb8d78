package render

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/stressoor/pkg/summary"
)

const htmlHead = `<!DOCTYPE html>
<html>
<head>
	<meta http-equiv="content-type" content="text/html; charset=UTF-8">
	<title>SleepGraph Summary of Summaries</title>
	<style type='text/css'>
		table {width:100%; border-collapse: collapse;}
		.summary {border:1px solid black;}
		th {border: 1px solid black;background:#622;color:white;}
		td {font: 14px "Times New Roman";}
		td.issuehdr {width:90%;}
		td.kerr {font: 12px "Courier";}
		c {font: 12px "Times New Roman";}
		ul {list-style-type: none;}
		ul.devlist {list-style-type: circle; font-size: 10px; padding: 0 0 0 20px;}
		tr.alt {background-color:#ddd;}
		tr.hline {background-color:#000;}
	</style>
</head>
<body>
`

const htmlTail = "</body>\n</html>\n"

var runColumns = []string{
	"Kernel", "Host", "Mode", "Test Data", "Duration", "Results",
	"Suspend Time", "Resume Time", "Worst Suspend Devices", "Worst Resume Devices",
}

// HTML renders the standalone HTML report.
func HTML(c *summary.Collection, opts Options) string {
	var sb strings.Builder

	sb.WriteString(htmlHead)
	sb.WriteString("<table class=\"summary\">\n")
	writeHeaderRow(&sb, runColumns)

	for i, run := range SortRuns(c.Runs) {
		rowOpen := "<tr>\n"
		if i%2 == 1 {
			rowOpen = "<tr class=alt>\n"
		}

		writeHTMLRun(&sb, c.Root, run, opts, rowOpen)
	}

	sb.WriteString("</table><br>\n")

	if opts.Devices {
		for _, phase := range summary.Phases {
			writeHTMLDevices(&sb, c.Root, deviceTable(c), phase, opts)
		}
	}

	sb.WriteString(htmlTail)

	return sb.String()
}

func writeHeaderRow(sb *strings.Builder, names []string) {
	sb.WriteString("<tr>\n")

	for _, name := range names {
		fmt.Fprintf(sb, "\t<th>%s</th>\n", name)
	}

	sb.WriteString("</tr>\n")
}

func writeCell(sb *strings.Builder, content string) {
	fmt.Fprintf(sb, "\t<td nowrap>%s</td>\n", content)
}

func anchor(href, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, href, text)
}

// sheetLink hyperlinks text to the hosted spreadsheet location for key,
// or returns it unchanged when nothing is hosted.
func (o Options) sheetLink(run *summary.Run, key, text string) string {
	if o.Linker == nil {
		return text
	}

	if href := o.Linker.Link(o.TestPath, run, key); href != "" {
		return anchor(href, text)
	}

	return text
}

func writeHTMLRun(sb *strings.Builder, root string, run *summary.Run, opts Options, rowOpen string) {
	sb.WriteString(rowOpen)

	writeCell(sb, opts.sheetLink(run, "{kernel}", run.Kernel))
	writeCell(sb, opts.sheetLink(run, "{host}", run.Host))
	writeCell(sb, opts.sheetLink(run, "{mode}", run.Mode))
	writeCell(sb, opts.sheetLink(run, "", run.Expand("{date}{time}")))

	var dur strings.Builder

	dur.WriteString("<table><tr>")
	writeCell(&dur, fmt.Sprintf("%.1f hours", run.TotalTime/3600))
	dur.WriteString("</tr><tr>")
	writeCell(&dur, fmt.Sprintf("%d x %.1f sec", run.Results.Tests, run.TestTime))
	dur.WriteString("</tr></table>")
	writeCell(sb, dur.String())

	var res strings.Builder

	res.WriteString("<table>")

	for _, r := range run.Results.Breakdown() {
		fmt.Fprintf(&res, "<tr><td nowrap>%s</td><td nowrap>%d/%d <c>(%.2f%%)</c></td></tr>",
			strings.ToUpper(r.Name), r.Count, run.Results.Tests, r.Percent)
	}

	res.WriteString("</table>")
	writeCell(sb, res.String())

	for _, set := range []summary.StatSet{run.Suspend, run.Resume} {
		var st strings.Builder

		st.WriteString("<table>")

		for _, s := range set {
			val := s.Value
			if s.Link != "" && val != "" {
				val = anchor(opts.link(root, s.Link), val)
			}

			fmt.Fprintf(&st, "<tr><td nowrap>%s</td></tr>", val)
		}

		st.WriteString("</table>")
		writeCell(sb, st.String())
	}

	for _, phase := range summary.Phases {
		var dl strings.Builder

		dl.WriteString("<ul class=devlist>")

		for _, d := range byCount(run.Worst(phase)) {
			fmt.Fprintf(&dl, "<li>%s (x%d)</li>", d.Name, d.Count)
		}

		dl.WriteString("</ul>")
		writeCell(sb, dl.String())
	}

	sb.WriteString("</tr>\n")

	if !opts.Issues || run.Issues == nil {
		return
	}

	fmt.Fprintf(sb, "%s<td colspan=10><table border=1 width=\"100%%\">", rowOpen)
	fmt.Fprintf(sb, "%s<td colspan=8 class=\"issuehdr\"><b>Issues found</b></td><td><b>Count</b></td><td><b>html</b></td>\n</tr>", rowOpen)

	if len(run.Issues) == 0 {
		fmt.Fprintf(sb, "%s<td colspan=10>NONE</td></tr>\n", rowOpen)
	}

	for _, issue := range issuesByCount(run.Issues) {
		fmt.Fprintf(sb, "%s<td colspan=8 class=\"kerr\">%s</td><td>%d times</td><td>%s</td></tr>\n",
			rowOpen, issue.Line, issue.Count, anchor(opts.link(root, issue.Link), "html"))
	}

	sb.WriteString("</table></td></tr>\n")
}

func writeHTMLDevices(sb *strings.Builder, root string, devices *summary.DeviceTable, phase summary.Phase, opts Options) {
	sb.WriteString("<table border=1 class=\"summary\">\n")
	writeHeaderRow(sb, []string{
		fmt.Sprintf("Device callback (%s)", strings.ToUpper(string(phase))),
		"Average time", "Count", "Worst time", "Host", "html",
	})

	for _, d := range devices.ByWorst(phase) {
		sb.WriteString("<tr>\n")
		writeCell(sb, d.Name)
		writeCell(sb, fmt.Sprintf("%.3f ms", d.Average))
		writeCell(sb, fmt.Sprintf("%d", d.Count))
		writeCell(sb, fmt.Sprintf("%.3f ms", d.Worst))
		writeCell(sb, d.Host)
		writeCell(sb, anchor(opts.link(root, d.Link), "html"))
		sb.WriteString("</tr>\n")
	}

	sb.WriteString("</table>\n")
}
