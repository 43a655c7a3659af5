// ABOUTME: Prompt evaluation cases loaded from YAML files in a tests directory
// ABOUTME: A case passes when the response contains every expected substring

package evalrun

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Case is one prompt to evaluate.
type Case struct {
	Name   string   `yaml:"name"`
	Prompt string   `yaml:"prompt"`
	SQL    string   `yaml:"sql"`
	Expect []string `yaml:"expect"`
	// Columns limits data verification to these columns of the sql result.
	Columns []string `yaml:"columns"`

	Path string `yaml:"-"`
}

// LoadCase reads a case file. The name defaults to the file stem.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return nil, fmt.Errorf("%s: prompt is required", filepath.Base(path))
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	c.Path = path
	return &c, nil
}

// Discover loads every *.yml and *.yaml file in dir, sorted by path. Files
// that fail to load are returned in skipped rather than failing discovery.
func Discover(dir string) (cases []*Case, skipped []error, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("tests folder: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("tests folder %s is not a directory", dir)
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, f := range files {
		c, err := LoadCase(f)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		cases = append(cases, c)
	}
	return cases, skipped, nil
}

// Check verifies a response against the case's expectations.
func (c *Case) Check(text string) (bool, string) {
	if len(c.Expect) == 0 {
		return true, "no verification"
	}
	lower := strings.ToLower(text)
	var missing []string
	for _, want := range c.Expect {
		if !strings.Contains(lower, strings.ToLower(want)) {
			missing = append(missing, fmt.Sprintf("%q", want))
		}
	}
	if len(missing) > 0 {
		return false, "missing " + strings.Join(missing, ", ")
	}
	return true, "match"
}

// ErrNoCases is returned when there is nothing to run.
var ErrNoCases = errors.New("no test cases found")
