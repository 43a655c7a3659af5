// ABOUTME: The usage command: token and cost totals recorded for conversations
// ABOUTME: Filters by conversation, provider, or age

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/2389/parley/internal/store"
)

// runUsage prints aggregated token usage and cost.
func runUsage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ContinueOnError)
	convID := fs.String("conversation", "", "Only this conversation")
	provider := fs.String("provider", "", "Only this provider")
	since := fs.Duration("since", 0, "Only usage newer than this (e.g. 24h)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var filter store.UsageFilter
	if *convID != "" {
		filter.ConversationID = convID
	}
	if *provider != "" {
		filter.LLMProvider = provider
	}
	if *since > 0 {
		t := time.Now().Add(-*since)
		filter.Since = &t
	}

	stats, err := a.store.GetUsageStats(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Messages\t%d\n", stats.MessageCount)
	fmt.Fprintf(w, "Input tokens\t%d\n", stats.InputTotalTokens)
	fmt.Fprintf(w, "  cache read\t%d\n", stats.InputCacheReadTokens)
	fmt.Fprintf(w, "  cache write\t%d\n", stats.InputCacheWriteTokens)
	fmt.Fprintf(w, "Output tokens\t%d\n", stats.OutputTotalTokens)
	fmt.Fprintf(w, "  reasoning\t%d\n", stats.OutputReasoningTokens)
	fmt.Fprintf(w, "Total tokens\t%d\n", stats.TotalTokens)
	fmt.Fprintf(w, "Total cost\t$%s\n", stats.TotalCost.StringFixed(6))
	w.Flush()

	if *convID == "" {
		return nil
	}

	rows, err := a.store.GetConversationUsage(ctx, *convID)
	if err != nil {
		return err
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE\tMODEL\tTOKENS\tCOST\tAT")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s:%s\t%d\t$%s\t%s\n",
			r.MessageID, r.LLMProvider, r.LLMModelID, r.Usage.TotalTokens,
			r.Cost.TotalCost.StringFixed(6), r.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}
