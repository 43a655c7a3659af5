// ABOUTME: Built-in tools offered to agent sessions
// ABOUTME: Registers the current_time tool, which takes an optional IANA zone

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/parley/internal/llm"
)

// DefaultTools returns the tools offered to every session unless overridden.
func DefaultTools() []llm.Tool {
	return []llm.Tool{CurrentTimeTool(time.Now)}
}

// CurrentTimeTool reports the current time, optionally in an IANA zone.
func CurrentTimeTool(now func() time.Time) llm.Tool {
	return llm.FuncTool{
		Def: llm.ToolSpec{
			Name:        "current_time",
			Description: "Returns the current date and time in RFC 3339 format.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": "IANA time zone such as Europe/Paris. Defaults to UTC.",
					},
				},
			},
		},
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			loc := time.UTC
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", tz)
				}
				loc = l
			}
			return now().In(loc).Format(time.RFC3339), nil
		},
	}
}
