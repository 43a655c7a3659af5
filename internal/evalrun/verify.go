// ABOUTME: Data verification for cases that carry a reference SQL query
// ABOUTME: Compares the model's JSON rows against the query result with numeric tolerance

package evalrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Rows is tabular data keyed by column name.
type Rows []map[string]any

// Querier runs a reference query. *sql.DB satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tolerance bounds how far numeric cells may drift and still match.
type Tolerance struct {
	Rel float64
	Abs float64
}

// DefaultTolerance matches numpy's allclose defaults.
var DefaultTolerance = Tolerance{Rel: 1e-5, Abs: 1e-8}

// ErrNoRows is returned when a response carries no JSON array.
var ErrNoRows = errors.New("no JSON rows in response")

// QueryRows runs query and returns its rows and column order.
func QueryRows(ctx context.Context, db Querier, query string) (Rows, []string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("running reference sql: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out Rows
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scanning reference row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, columns, rows.Err()
}

// ExtractRows pulls the outermost JSON array of objects out of a model reply,
// tolerating prose or code fences around it.
func ExtractRows(text string) (Rows, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, ErrNoRows
	}

	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()
	var rows Rows
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRows, err)
	}
	return rows, nil
}

// VerificationPrompt asks the model to restate its answer as rows with the
// given columns.
func VerificationPrompt(columns []string) string {
	return fmt.Sprintf("Return the data that answers my previous question as a JSON array of objects "+
		"with exactly these keys: %s. Reply with the JSON array only.", strings.Join(columns, ", "))
}

// CompareRows checks actual against expected over columns (every expected
// column when empty). It returns whether they match, a short message, and a
// cell-by-cell comparison when values differ.
func CompareRows(actual, expected Rows, columns []string, tol Tolerance) (bool, string, string) {
	switch {
	case len(actual) == 0 && len(expected) == 0:
		return true, "both empty", ""
	case len(actual) == 0:
		return false, "actual is empty", ""
	case len(expected) == 0:
		return false, "expected is empty", ""
	}

	if len(columns) == 0 {
		columns = keys(expected)
	} else {
		have := make(map[string]bool)
		for _, k := range keys(actual) {
			have[k] = true
		}
		var missing []string
		for _, c := range columns {
			if !have[c] {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			return false, "missing columns: " + strings.Join(missing, ", "), ""
		}
	}
	columns = append([]string(nil), columns...)
	sort.Strings(columns)

	if len(actual) != len(expected) {
		return false, fmt.Sprintf("row count: %d vs %d", len(actual), len(expected)), ""
	}

	exact, approx := true, true
	var diffs [][4]string
	for i := range actual {
		for _, col := range columns {
			a, e := actual[i][col], expected[i][col]
			if sameValue(a, e) {
				continue
			}
			exact = false
			if closeValue(a, e, tol) {
				continue
			}
			approx = false
			diffs = append(diffs, [4]string{strconv.Itoa(i), col, display(a), display(e)})
		}
	}
	switch {
	case exact:
		return true, "match", ""
	case approx:
		return true, "match (approximate)", ""
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tCOLUMN\tACTUAL\tEXPECTED")
	for _, d := range diffs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d[0], d[1], d[2], d[3])
	}
	tw.Flush()
	return false, "values differ", b.String()
}

func keys(rows Rows) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		return fa == fb
	}
	if aNum != bNum {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func closeValue(a, b any, tol Tolerance) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if !aNum || !bNum {
		return false
	}
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return math.IsNaN(fa) && math.IsNaN(fb)
	}
	return math.Abs(fa-fb) <= tol.Abs+tol.Rel*math.Abs(fb)
}

// number reports v as a float when it is numeric. Strings stay strings.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func display(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}
