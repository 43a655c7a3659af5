package evalrun

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeReports saves two results files an hour apart and returns their names,
// oldest first.
func writeReports(t *testing.T, dir string) []string {
	t.Helper()
	older := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var names []string
	for i, at := range []time.Time{older, older.Add(time.Hour)} {
		results := sampleResults()
		if i == 1 {
			results[0].Name = "latest-case"
			results[0].Details = &Details{
				ResponseText: "Revenue was <b>42</b>",
				ExpectedData: Rows{{"region": "eu", "revenue": 42}},
				Comparison:   "ROW  COLUMN  ACTUAL  EXPECTED",
			}
		}
		path, err := WriteReport(dir, results, at)
		require.NoError(t, err)
		names = append(names, filepath.Base(path))
	}
	return names
}

func TestListReports(t *testing.T) {
	dir := t.TempDir()
	names := writeReports(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "results_latest.json"), []byte("{}"), 0o644))

	files, err := ListReports(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{names[1], names[0]}, files)

	files, err = ListReports(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestViewer_Routes(t *testing.T) {
	dir := t.TempDir()
	names := writeReports(t, dir)
	srv := httptest.NewServer(NewViewer(dir, nil).Handler())
	defer srv.Close()

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	t.Run("index redirects to newest", func(t *testing.T) {
		resp, err := noRedirect.Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/results/"+names[1], resp.Header.Get("Location"))
	})

	t.Run("report page", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/results/" + names[1])
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		page := string(body)
		assert.Contains(t, page, "latest-case")
		assert.Contains(t, page, names[0])
		assert.Contains(t, page, "Revenue was &lt;b&gt;42&lt;/b&gt;")
		assert.Contains(t, page, "Expected data")
		assert.Contains(t, page, "66%")
	})

	t.Run("files api", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/files")
		require.NoError(t, err)
		defer resp.Body.Close()

		var files []string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&files))
		assert.Equal(t, []string{names[1], names[0]}, files)
	})

	t.Run("report api", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/results/" + names[0])
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var report map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		summary := report["summary"].(map[string]any)
		assert.Equal(t, 0.0029, summary["total_cost"])
		assert.Len(t, report["results"], 3)
	})

	t.Run("bad name", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/results/config.yaml")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing report", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/results/results_20200101_000000.json")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestViewer_EmptyDir(t *testing.T) {
	rec := httptest.NewRecorder()
	NewViewer(t.TempDir(), nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No results yet")
}

func TestViewer_ServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewViewer(t.TempDir(), nil).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/files")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
