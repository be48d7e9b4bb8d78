package summary

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var defaultHeader = []string{
	"Host", "Kernel", "Mode", "Result", "Test Time", "Suspend", "Resume",
	"Worst Suspend Device", "Worst Resume Device", "Detail",
}

// summaryRow describes one test row of a generated summary.html.
type summaryRow struct {
	testTime     string
	suspendID    string
	resumeID     string
	worstSuspend string
	worstResume  string
	detail       string
	extra        string
}

func td(s string) string {
	return "<td>" + s + "</td>"
}

func tdID(id, s string) string {
	if id == "" {
		return td(s)
	}

	return fmt.Sprintf(`<td id="%s">%s</td>`, id, s)
}

// buildSummary renders a summary.html in the layout sleepgraph produces.
func buildSummary(stamp string, header []string, rows []summaryRow) string {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<title>summary</title>\n</head>\n<body>\n")

	if stamp != "" {
		fmt.Fprintf(&sb, "<div class=\"stamp\">%s</div>\n", stamp)
	}

	sb.WriteString("<table class=\"summary\">\n")
	sb.WriteString(`<tr class="head"><td>Suspend: <a href="#sfreezemax">Max=210.5ms</a>, ` +
		`<a href="#sfreezemed">Med=100.1ms</a>, <a href="#sfreezemin">Min=80.0ms</a></td></tr>` + "\n")
	sb.WriteString(`<tr class="head"><td>Resume: <a href="#rfreezemax">Max=400.2ms</a>, ` +
		`<a href="#rfreezemed">Med=300.0ms</a>, <a href="#rfreezemin">Min=250.9ms</a></td></tr>` + "\n")

	sb.WriteString("<tr>")

	for _, h := range header {
		fmt.Fprintf(&sb, "<th>%s</th>", h)
	}

	sb.WriteString("</tr>\n")

	for _, r := range rows {
		sb.WriteString("<tr>\n")

		for _, h := range header {
			switch strings.ToLower(h) {
			case "host":
				sb.WriteString(td("hostA"))
			case "kernel":
				sb.WriteString(td("5.10"))
			case "mode":
				sb.WriteString(td("freeze"))
			case "result":
				sb.WriteString(td("pass"))
			case "test time":
				sb.WriteString(td(r.testTime))
			case "suspend":
				sb.WriteString(tdID(r.suspendID, "120.0"))
			case "resume":
				sb.WriteString(tdID(r.resumeID, "310.0"))
			case "worst suspend device":
				sb.WriteString(td(r.worstSuspend))
			case "worst resume device":
				sb.WriteString(td(r.worstResume))
			case "detail":
				if r.detail != "" {
					sb.WriteString(td(fmt.Sprintf(`<a href="%s">html</a>`, r.detail)))
				} else {
					sb.WriteString(td(""))
				}
			case "extra":
				sb.WriteString(td(r.extra))
			default:
				sb.WriteString(td(""))
			}
		}

		sb.WriteString("\n</tr>\n")
	}

	sb.WriteString("</table>\n</body>\n</html>\n")

	return sb.String()
}

// ascendingRows returns n rows one minute apart.
func ascendingRows(n int) []summaryRow {
	rows := make([]summaryRow, 0, n)

	for i := 0; i < n; i++ {
		rows = append(rows, summaryRow{
			testTime:     fmt.Sprintf("2024/03/01 10:%02d:00", i),
			worstSuspend: "deviceX",
			worstResume:  "deviceY",
		})
	}

	return rows
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

type deviceRow struct {
	name, avg, count, worst, host, link string
}

func buildDevices(sections map[string][]deviceRow) string {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html>\n<body>\n")

	for _, title := range []string{"SUSPEND", "RESUME", "OTHER"} {
		rows, ok := sections[title]
		if !ok {
			continue
		}

		fmt.Fprintf(&sb, "<div class=\"stamp\">Device Callbacks (%s %d devices)</div>\n", title, len(rows))
		sb.WriteString("<table>\n<tr class=\"head\"><th>Device</th><th>Average</th><th>Count</th>" +
			"<th>Worst</th><th>Host</th><th>Link</th></tr>\n")

		for _, r := range rows {
			fmt.Fprintf(&sb, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td>",
				r.name, r.avg, r.count, r.worst, r.host)

			if r.link != "" {
				fmt.Fprintf(&sb, `<td><a href="%s">html</a></td>`, r.link)
			}

			sb.WriteString("</tr>\n")
		}

		sb.WriteString("</table>\n")
	}

	sb.WriteString("</body>\n</html>\n")

	return sb.String()
}
