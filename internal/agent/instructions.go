// ABOUTME: System prompt templates rendered per session
// ABOUTME: Carries the built-in prompt used when none is configured

package agent

import (
	"fmt"
	"strings"
	"text/template"
)

const defaultInstructions = `You are a helpful assistant working inside project {{.ProjectID}}.
{{- if .Title}}
The conversation is titled "{{.Title}}".
{{- end}}
Today's date is {{.Date}}.
Answer concisely. Use the available tools when they help.`

// InstructionData is the template input for the system prompt.
type InstructionData struct {
	ProjectID string
	Title     string
	Date      string
}

// Instructions renders the system prompt for a session.
type Instructions struct {
	tmpl *template.Template
}

// ParseInstructions compiles a system prompt template. Empty text selects
// the built-in prompt.
func ParseInstructions(text string) (*Instructions, error) {
	if strings.TrimSpace(text) == "" {
		text = defaultInstructions
	}
	tmpl, err := template.New("instructions").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing instructions template: %w", err)
	}
	return &Instructions{tmpl: tmpl}, nil
}

// DefaultInstructions returns the built-in prompt.
func DefaultInstructions() *Instructions {
	return &Instructions{tmpl: template.Must(template.New("instructions").Parse(defaultInstructions))}
}

// Render executes the template.
func (i *Instructions) Render(data InstructionData) (string, error) {
	var b strings.Builder
	if err := i.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering instructions: %w", err)
	}
	return b.String(), nil
}
