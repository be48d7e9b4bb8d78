package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/stressoor/pkg/config"
	"github.com/ethpandaops/stressoor/pkg/indexstore"
)

const minimalSummary = `<!DOCTYPE html>
<html>
<body>
<div class="stamp">hostA 6.1 freeze (2 pass)</div>
<table>
<tr><th>Host</th><th>Kernel</th><th>Mode</th><th>Result</th><th>Test Time</th><th>Suspend</th><th>Resume</th><th>Worst Suspend Device</th><th>Worst Resume Device</th></tr>
<tr><td>hostA</td><td>6.1</td><td>freeze</td><td>pass</td><td>2024/03/01 10:00:00</td><td>1.0</td><td>2.0</td><td>deviceX</td><td>deviceY</td></tr>
<tr><td>hostA</td><td>6.1</td><td>freeze</td><td>pass</td><td>2024/03/01 10:01:00</td><td>1.0</td><td>2.0</td><td>deviceX</td><td>deviceY</td></tr>
</table>
</body>
</html>
`

func writeRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "run1")

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.html"), []byte(minimalSummary), 0o644))

	return root
}

func newTestServer(t *testing.T, opts Options, cfg config.ServerConfig) *httptest.Server {
	t.Helper()

	log, _ := test.NewNullLogger()

	s, ok := NewServer(log, &cfg, opts).(*server)
	require.True(t, ok)

	if cfg.RateLimit.Enabled {
		s.limiter = newRateLimiterMap(cfg.RateLimit.RequestsPerMinute)
		t.Cleanup(s.limiter.stop)
	}

	srv := httptest.NewServer(s.buildRouter())
	t.Cleanup(srv.Close)

	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{Root: t.TempDir()}, config.ServerConfig{})

	resp, body := get(t, srv.URL+"/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestReports(t *testing.T) {
	srv := newTestServer(t, Options{Root: writeRoot(t)}, config.ServerConfig{})

	resp, body := get(t, srv.URL+"/summary.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Host   : hostA\n")
	assert.Contains(t, body, "   - PASS: 2/2 (100.00%)\n")

	resp, body = get(t, srv.URL+"/summary.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, "<!DOCTYPE html>"))
	assert.Contains(t, body, "<li>deviceX (x2)</li>")

	resp, body = get(t, srv.URL+"/api/v1/summary")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Runs []struct {
			Kernel string `json:"kernel"`
		} `json:"runs"`
	}

	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.Len(t, doc.Runs, 1)
	assert.Equal(t, "6.1", doc.Runs[0].Kernel)
}

func TestReport_MissingRoot(t *testing.T) {
	srv := newTestServer(t, Options{Root: filepath.Join(t.TempDir(), "gone")}, config.ServerConfig{})

	resp, body := get(t, srv.URL+"/summary.txt")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "folder not found")
}

func TestFiles(t *testing.T) {
	srv := newTestServer(t, Options{Root: writeRoot(t)}, config.ServerConfig{})

	resp, body := get(t, srv.URL+"/files/run1/summary.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "hostA 6.1 freeze")

	resp, _ = get(t, srv.URL+"/files/run1/missing.html")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/files/run1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFiles_RelativeRoot(t *testing.T) {
	t.Chdir(writeRoot(t))

	srv := newTestServer(t, Options{Root: "."}, config.ServerConfig{})

	resp, body := get(t, srv.URL+"/files/run1/summary.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "hostA 6.1 freeze")

	resp, _ = get(t, srv.URL+"/files/../run1/summary.html")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFiles_Traversal(t *testing.T) {
	srv := newTestServer(t, Options{Root: writeRoot(t)}, config.ServerConfig{})

	resp, _ := get(t, srv.URL+"/files/../../etc/passwd")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIndexEndpoints(t *testing.T) {
	log, _ := test.NewNullLogger()

	store := indexstore.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, store.Start(context.Background()))
	t.Cleanup(func() { _ = store.Stop() })

	srv := newTestServer(t, Options{Root: writeRoot(t), Index: store}, config.ServerConfig{})

	resp, body := get(t, srv.URL+"/api/v1/index/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var empty struct {
		Runs []indexstore.Run `json:"runs"`
	}

	require.NoError(t, json.Unmarshal([]byte(body), &empty))
	assert.Empty(t, empty.Runs)

	// A report request scans and indexes the folder.
	resp, _ = get(t, srv.URL+"/summary.txt")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = get(t, srv.URL+"/api/v1/index/runs?kernel=6.1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"Host":"hostA"`)

	resp, _ = get(t, srv.URL+"/api/v1/index/devices?phase=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{Root: writeRoot(t)}, config.ServerConfig{
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1},
	})

	resp, _ := get(t, srv.URL+"/summary.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/summary.txt")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health checks are never limited.
	resp, _ = get(t, srv.URL+"/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExtractIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", extractIP(r))

	r.Header.Set("X-Forwarded-For", "192.168.1.1, 10.0.0.2")
	assert.Equal(t, "192.168.1.1", extractIP(r))
}
