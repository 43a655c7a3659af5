// ABOUTME: Function-backed implementation of the Tool interface
// ABOUTME: Lets callers declare a tool from a spec and a plain func

package llm

import "context"

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	Def ToolSpec
	Fn  func(ctx context.Context, args map[string]any) (string, error)
}

// Spec returns the tool definition.
func (t FuncTool) Spec() ToolSpec { return t.Def }

// Execute invokes the wrapped function.
func (t FuncTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.Fn(ctx, args)
}
