// ABOUTME: The configs command: set, list, and delete per-project provider configs
// ABOUTME: Listing shows whether a key is set, never the key itself

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

// runConfigs manages per-project provider credentials. API keys are written
// but never printed.
func runConfigs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: parley configs set|list|delete --project P [--provider X] [--api-key K] [--base-url U]")
	}

	fs := flag.NewFlagSet("configs "+args[0], flag.ContinueOnError)
	project := fs.String("project", "", "Project ID")
	provider := fs.String("provider", "", "Provider (anthropic, openai, openrouter)")
	apiKey := fs.String("api-key", "", "API key")
	baseURL := fs.String("base-url", "", "Base URL override")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *project == "" {
		return fmt.Errorf("--project is required")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "set":
		p, err := llm.ParseProvider(*provider)
		if err != nil {
			return err
		}
		if *apiKey == "" {
			return fmt.Errorf("--api-key is required")
		}
		if err := a.store.UpsertProjectLLMConfig(ctx, &store.LLMConfig{
			ProjectID: *project,
			Provider:  string(p),
			APIKey:    *apiKey,
			BaseURL:   *baseURL,
		}); err != nil {
			return err
		}
		fmt.Printf("Saved %s config for project %s\n", p, *project)

	case "list":
		configs, err := a.store.GetProjectLLMConfigs(ctx, *project)
		if err != nil {
			return err
		}
		if len(configs) == 0 {
			fmt.Println("No provider configs for this project.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tBASE URL\tAPI KEY\tUPDATED")
		for _, c := range configs {
			base := c.BaseURL
			if base == "" {
				base = "-"
			}
			key := "unset"
			if c.APIKey != "" {
				key = "set"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Provider, base, key, c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()

	case "delete":
		p, err := llm.ParseProvider(*provider)
		if err != nil {
			return err
		}
		if err := a.store.DeleteProjectLLMConfig(ctx, *project, string(p)); err != nil {
			return err
		}
		fmt.Printf("Deleted %s config for project %s\n", p, *project)

	default:
		return fmt.Errorf("unknown configs command: %s", args[0])
	}
	return nil
}
