package evalrun

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []Result {
	return []Result{
		{Name: "a", Model: "openai:gpt-4.1", Passed: true, Message: "match", Tokens: 1100,
			Cost: decimal.RequireFromString("0.0028"), DurationMS: 1234, ToolCallCount: 1},
		{Name: "b", Model: "openai:gpt-4.1", Passed: false, Message: "error", Error: "boom",
			DurationMS: 100},
		{Name: "c", Model: "openai:gpt-4.1", Passed: true, Message: "no verification", Tokens: 50,
			Cost: decimal.RequireFromString("0.0001"), DurationMS: 2000, ToolCallCount: 1},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1150, s.TotalTokens)
	assert.Equal(t, "0.0029", s.TotalCost.String())
	assert.Equal(t, int64(3334), s.TotalDurationMS)
	assert.Equal(t, 3.33, s.TotalDurationS)
	assert.Equal(t, 1111.0, s.AvgDurationMS)
	assert.Equal(t, 0.7, s.AvgToolCalls)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	path, err := WriteReport(dir, sampleResults(), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "results_20250314_092653.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "2025-03-14T09:26:53Z", doc["timestamp"])
	assert.Len(t, doc["results"], 3)

	summary := doc["summary"].(map[string]any)
	assert.Equal(t, float64(3), summary["total"])
	assert.Equal(t, 0.0029, summary["total_cost"])

	first := doc["results"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1234), first["duration_ms"])
	assert.Equal(t, 0.0028, first["cost"])
	assert.NotContains(t, first, "error")

	second := doc["results"].([]any)[1].(map[string]any)
	assert.Equal(t, float64(0), second["cost"])
}

func TestReport_RoundTrip(t *testing.T) {
	data, err := json.Marshal(Report{Results: sampleResults(), Summary: Summarize(sampleResults())})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cost":0.0028`)
	assert.Contains(t, string(data), `"total_cost":0.0029`)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Results, 3)
	assert.Equal(t, "0.0028", back.Results[0].Cost.String())
	assert.Equal(t, "0.0029", back.Summary.TotalCost.String())
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	PrintSummary(&buf, sampleResults())
	out := buf.String()
	assert.Contains(t, out, "TEST")
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "$0.0028")
	assert.Contains(t, out, "2 passed, 1 failed, 3 total")

	buf.Reset()
	PrintSummary(&buf, sampleResults()[:1])
	assert.Contains(t, buf.String(), "All 1 test(s) passed")
}
