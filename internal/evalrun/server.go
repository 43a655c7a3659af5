// ABOUTME: Local web viewer for eval results files
// ABOUTME: Lists results_*.json newest first and renders one report per page

package evalrun

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultViewerAddr is where the viewer listens unless told otherwise.
const DefaultViewerAddr = "localhost:8765"

// reportName guards file lookups; anything else is rejected before touching disk.
var reportName = regexp.MustCompile(`^results_[0-9]{8}_[0-9]{6}\.json$`)

// ListReports returns the results files in dir, newest first.
func ListReports(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "results_*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if name := filepath.Base(m); reportName.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// ReadReport loads a results file.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// Viewer serves the results in one output directory.
type Viewer struct {
	dir    string
	tmpl   *template.Template
	logger *slog.Logger
}

type viewerData struct {
	Files    []string
	Selected string
	Report   *Report
	PassRate int
}

// NewViewer creates a Viewer over dir.
func NewViewer(dir string, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl := template.Must(template.New("viewer").Funcs(template.FuncMap{
		"seconds": func(ms int64) string { return fmt.Sprintf("%.1f", float64(ms)/1000) },
		"inc":     func(i int) int { return i + 1 },
		"columns": keys,
		"cell":    func(row map[string]any, col string) string { return display(row[col]) },
		"json": func(v any) string {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err.Error()
			}
			return string(b)
		},
	}).ParseFS(templateFS, "templates/viewer.html"))

	return &Viewer{
		dir:    dir,
		tmpl:   tmpl,
		logger: logger.With("component", "viewer"),
	}
}

// Handler returns the viewer's routes.
func (v *Viewer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", v.handleIndex)
	mux.HandleFunc("GET /results/{name}", v.handleReportPage)
	mux.HandleFunc("GET /api/files", v.handleFiles)
	mux.HandleFunc("GET /api/results/{name}", v.handleReportJSON)
	return mux
}

func (v *Viewer) handleIndex(w http.ResponseWriter, r *http.Request) {
	files, err := ListReports(v.dir)
	if err != nil {
		v.logger.Error("failed to list reports", "error", err)
		http.Error(w, "Failed to list results", http.StatusInternalServerError)
		return
	}
	if len(files) == 0 {
		v.render(w, viewerData{})
		return
	}
	http.Redirect(w, r, "/results/"+files[0], http.StatusSeeOther)
}

func (v *Viewer) handleReportPage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	report, status := v.load(name)
	if report == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	files, err := ListReports(v.dir)
	if err != nil {
		v.logger.Error("failed to list reports", "error", err)
	}

	data := viewerData{Files: files, Selected: name, Report: report}
	if report.Summary.Total > 0 {
		data.PassRate = report.Summary.Passed * 100 / report.Summary.Total
	}
	v.render(w, data)
}

func (v *Viewer) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := ListReports(v.dir)
	if err != nil {
		v.logger.Error("failed to list reports", "error", err)
		http.Error(w, "Failed to list results", http.StatusInternalServerError)
		return
	}
	writeJSON(w, files)
}

func (v *Viewer) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	report, status := v.load(r.PathValue("name"))
	if report == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeJSON(w, report)
}

// load reads a named report, returning the HTTP status to use on failure.
func (v *Viewer) load(name string) (*Report, int) {
	if !reportName.MatchString(name) {
		return nil, http.StatusBadRequest
	}
	report, err := ReadReport(filepath.Join(v.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, http.StatusNotFound
		}
		v.logger.Error("failed to read report", "file", name, "error", err)
		return nil, http.StatusInternalServerError
	}
	return report, http.StatusOK
}

func (v *Viewer) render(w http.ResponseWriter, data viewerData) {
	if data.Files == nil {
		data.Files = []string{}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := v.tmpl.ExecuteTemplate(w, "viewer.html", data); err != nil {
		v.logger.Error("failed to render viewer", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// Serve runs the viewer on ln until ctx is cancelled.
func (v *Viewer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           v.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		v.logger.Info("viewer listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("viewer server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
