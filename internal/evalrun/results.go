// ABOUTME: Evaluation report: JSON results file plus a colored terminal summary
// ABOUTME: Files are named results_<YYYYmmdd_HHMMSS>.json under the output directory

package evalrun

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

// Summary aggregates a set of results.
type Summary struct {
	Total           int             `json:"total"`
	Passed          int             `json:"passed"`
	Failed          int             `json:"failed"`
	TotalTokens     int             `json:"total_tokens"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	TotalDurationMS int64           `json:"total_duration_ms"`
	TotalDurationS  float64         `json:"total_duration_s"`
	TotalToolCalls  int             `json:"total_tool_calls"`
	AvgDurationMS   float64         `json:"avg_duration_ms"`
	AvgToolCalls    float64         `json:"avg_tool_calls"`
}

// Report is the JSON document written for a run.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Results   []Result  `json:"results"`
	Summary   Summary   `json:"summary"`
}

// MarshalJSON writes cost as a bare number.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		Cost json.Number `json:"cost"`
	}{plain(r), json.Number(r.Cost.String())})
}

// MarshalJSON writes total_cost as a bare number.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		TotalCost json.Number `json:"total_cost"`
	}{plain(s), json.Number(s.TotalCost.String())})
}

// Summarize totals results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		s.TotalTokens += r.Tokens
		s.TotalCost = s.TotalCost.Add(r.Cost)
		s.TotalDurationMS += r.DurationMS
		s.TotalToolCalls += r.ToolCallCount
	}
	s.TotalDurationS = roundTo(float64(s.TotalDurationMS)/1000, 2)
	if s.Total > 0 {
		s.AvgDurationMS = math.Round(float64(s.TotalDurationMS) / float64(s.Total))
		s.AvgToolCalls = roundTo(float64(s.TotalToolCalls)/float64(s.Total), 1)
	}
	return s
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// WriteReport writes results to dir and returns the file path.
func WriteReport(dir string, results []Result, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	if results == nil {
		results = []Result{}
	}
	data, err := json.MarshalIndent(Report{
		Timestamp: now,
		Results:   results,
		Summary:   Summarize(results),
	}, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "results_"+now.Format("20060102_150405")+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing results: %w", err)
	}
	return path, nil
}

// PrintSummary writes a results table and pass/fail totals to w.
func PrintSummary(w io.Writer, results []Result) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST\tMODEL\tSTATUS\tMESSAGE\tTOKENS\tCOST\tTIME (s)\tTOOLS")
	for _, r := range results {
		status := green("✓")
		if !r.Passed {
			status = red("✗")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t$%s\t%.1f\t%d\n",
			r.Name, r.Model, status, r.Message, r.Tokens,
			r.Cost.StringFixed(4), float64(r.DurationMS)/1000, r.ToolCallCount)
	}
	s := Summarize(results)
	fmt.Fprintf(tw, "TOTAL\t\t\t\t%d\t$%s\t%.1f\t%d\n",
		s.TotalTokens, s.TotalCost.StringFixed(4), s.TotalDurationS, s.TotalToolCalls)
	tw.Flush()

	fmt.Fprintln(w)
	if s.Failed == 0 {
		fmt.Fprintln(w, green(fmt.Sprintf("All %d test(s) passed", s.Total)))
		return
	}
	fmt.Fprintf(w, "%s, %s, %d total\n",
		green(fmt.Sprintf("%d passed", s.Passed)),
		red(fmt.Sprintf("%d failed", s.Failed)),
		s.Total)
}
