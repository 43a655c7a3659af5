// ABOUTME: The chat command: sends one prompt to a project's agent and streams the reply
// ABOUTME: Resumes a conversation by id, or starts one that is announced first

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/conversation"
)

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

// runChat sends one prompt and streams the reply. Ctrl+C stops the run; the
// partial reply is still saved.
func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	project := fs.String("project", "", "Project ID (required for a new conversation)")
	user := fs.String("user", defaultUser(), "User ID")
	convID := fs.String("conversation", "", "Conversation ID to continue")
	model := fs.String("model", "", "Model as provider:model_id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("a prompt is required")
	}

	var selection *agent.ModelSelection
	if *model != "" {
		sel, err := agent.ParseSelection(*model)
		if err != nil {
			return err
		}
		selection = &sel
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc := conversation.New(a.store, a.agents, a.logger)
	resp, err := svc.Start(ctx, conversation.ChatRequest{
		ConversationID: *convID,
		UserID:         *user,
		ProjectID:      *project,
		Prompt:         prompt,
		Selection:      selection,
	})
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	var streamErr error
	for ev := range resp.Stream {
		switch ev.Type {
		case agent.EventConversation:
			gray.Fprintf(os.Stderr, "conversation %s (%s)\n", ev.Conversation.ID, ev.Conversation.Title)
		case agent.EventTextDelta:
			fmt.Print(ev.Text)
		case agent.EventToolCall:
			yellow.Fprintf(os.Stderr, "\n→ %s\n", ev.ToolCall.Name)
		case agent.EventToolResult:
			if ev.ToolResult.IsError {
				red.Fprintf(os.Stderr, "  ✗ %s\n", ev.ToolResult.Output)
			}
		case agent.EventFinish, agent.EventError:
			fmt.Println()
			if ev.Type == agent.EventError {
				streamErr = errors.New(ev.Error)
			}
			if ev.Usage != nil && ev.Cost != nil {
				gray.Fprintf(os.Stderr, "[%s] %d tokens, $%s\n",
					ev.FinishReason, ev.Usage.TotalTokens, ev.Cost.TotalCost.StringFixed(6))
			}
		}
	}

	if resp.Created {
		gray.Fprintf(os.Stderr, "continue with: parley chat --conversation %s ...\n", resp.Conversation.ID)
	}
	return streamErr
}
