package gsheet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/ethpandaops/stressoor/pkg/summary"
)

func TestTruncatePath(t *testing.T) {
	const tmpl = "pm-graph-test/{kernel}/{host}/{mode}-x{count}-summary"

	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "no key", key: "", want: tmpl},
		{name: "kernel", key: "{kernel}", want: "pm-graph-test/{kernel}"},
		{name: "host", key: "{host}", want: "pm-graph-test/{kernel}/{host}"},
		{name: "last component", key: "{mode}", want: tmpl},
		{name: "absent", key: "{date}", want: tmpl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncatePath(tmpl, tt.key))
		})
	}
}

func TestSplitDir(t *testing.T) {
	dir, name := splitDir("/a//b/c")
	assert.Equal(t, "a/b", dir)
	assert.Equal(t, "c", name)

	dir, name = splitDir("only")
	assert.Equal(t, "", dir)
	assert.Equal(t, "only", name)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s a \\ test`, escapeQuery(`it's a \ test`))
}

func TestHyperlink(t *testing.T) {
	assert.Equal(t, "plain", hyperlink("", "plain"))
	assert.Equal(t, `=HYPERLINK("http://x/a.html","html")`, hyperlink("http://x/a.html", "html"))
	assert.Equal(t, `=HYPERLINK("u","say ""hi""")`, hyperlink("u", `say "hi"`))
}

func TestTopDevice(t *testing.T) {
	assert.Equal(t, "", topDevice(nil))
	assert.Equal(t, "b (x3)", topDevice(map[string]int{"a": 1, "b": 3, "c": 3}))
}

func testRun() *summary.Run {
	return &summary.Run{
		Host:         "hostA",
		Kernel:       "6.1",
		Mode:         "freeze",
		File:         "/data/hostA/summary.html",
		Results:      summary.ResultCounts{Tests: 10, Pass: 9, Fail: 1},
		Date:         "20240102",
		Time:         "030405",
		TestTime:     30.04,
		TotalTime:    5400,
		Suspend:      summary.StatSet{{Value: "1.0", Link: "/data/hostA/x.html"}, {Value: "0.5"}, {Value: "0.1"}},
		Resume:       summary.StatSet{{Value: "2.0"}, {Value: "1.5"}, {Value: "1.1"}},
		WorstSuspend: map[string]int{"pci": 4},
	}
}

func TestSummaryRows(t *testing.T) {
	rows := SummaryRows([]*summary.Run{testRun()}, "/data", "http://h/r", func(*summary.Run) string {
		return "https://sheet"
	})

	require.Len(t, rows, 2)
	assert.Equal(t, summaryHeader, rows[0])
	require.Len(t, rows[1], len(summaryHeader))

	row := rows[1]
	assert.Equal(t, `=HYPERLINK("https://sheet","20240102030405")`, row[3])
	assert.Equal(t, 1.5, row[4])
	assert.Equal(t, 30.0, row[5])
	assert.Equal(t, 9, row[7])
	assert.Equal(t, `=HYPERLINK("http://h/r/hostA/x.html","1.0")`, row[11])
	assert.Equal(t, "0.5", row[12])
	assert.Equal(t, "pci (x4)", row[17])
	assert.Equal(t, "", row[18])
	assert.Equal(t, `=HYPERLINK("http://h/r/hostA/summary.html","html")`, row[19])
}

func TestDeviceRows(t *testing.T) {
	table := summary.NewDeviceTableFrom([]summary.DeviceStat{
		{Phase: summary.PhaseSuspend, Name: "slow", Count: 3, Total: 3, Worst: 2.5, Host: "a"},
		{Phase: summary.PhaseSuspend, Name: "fast", Count: 1, Total: 0.1, Worst: 0.1, Host: "b"},
		{Phase: summary.PhaseResume, Name: "other", Count: 1, Total: 1, Worst: 1, Host: "c"},
	})

	rows := DeviceRows(table, summary.PhaseSuspend, "/data", "")

	require.Len(t, rows, 3)
	assert.Equal(t, "slow", rows[1][0])
	assert.Equal(t, 1.0, rows[1][1])
	assert.Equal(t, "fast", rows[2][0])
}

func TestA1(t *testing.T) {
	assert.Equal(t, "'Suspend Devices'!A1", a1(tabSuspend))
	assert.Equal(t, tabSuspend, tabTitle(a1(tabSuspend)))
}

// fakeDrive answers files.list with a fixed tree keyed by parent id.
func fakeDrive(t *testing.T, tree map[string]map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/files") {
			http.NotFound(w, r)

			return
		}

		q := r.URL.Query().Get("q")

		type file struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			MimeType string `json:"mimeType"`
		}

		out := struct {
			Files []file `json:"files"`
		}{Files: []file{}}

		for parent, children := range tree {
			if !strings.Contains(q, "'"+parent+"' in parents") {
				continue
			}

			for name, id := range children {
				if !strings.Contains(q, "name = '"+name+"'") {
					continue
				}

				mime := mimeFolder
				if strings.HasPrefix(id, "sheet") {
					mime = mimeSpreadsheet
				}

				out.Files = append(out.Files, file{ID: id, Name: name, MimeType: mime})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestLink(t *testing.T) {
	srv := fakeDrive(t, map[string]map[string]string{
		"root":     {"pm-graph-test": "f-root"},
		"f-root":   {"6.1": "f-kernel"},
		"f-kernel": {"hostA": "f-host"},
		"f-host":   {"freeze-x10-summary": "sheet-1"},
	})
	defer srv.Close()

	log, _ := test.NewNullLogger()

	c, err := newClient(context.Background(), log,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	const tmpl = "pm-graph-test/{kernel}/{host}/{mode}-x{count}-summary"

	run := testRun()

	assert.Equal(t, spreadsheetURL+"sheet-1", c.Link(tmpl, run, ""))
	assert.Equal(t, folderURL+"f-host", c.Link(tmpl, run, "{host}"))
	assert.Equal(t, folderURL+"f-kernel", c.Link(tmpl, run, "{kernel}"))

	run.Host = "missing"
	assert.Equal(t, "", c.Link(tmpl, run, "{host}"))
}

func TestCreateSummary_NoRuns(t *testing.T) {
	c := &Client{}

	_, err := c.CreateSummary(context.Background(), &summary.Collection{}, "a/{kernel}", "b", "")
	require.ErrorIs(t, err, ErrNoRuns)
}
