// ABOUTME: The eval command: runs prompt cases against models and writes a results file
// ABOUTME: "eval serve" browses earlier results files in a local web viewer

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/evalrun"
)

// runEval runs every case in the tests folder against each model and writes a
// results file.
func runEval(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "serve" {
		return runEvalServe(ctx, args[1:])
	}

	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	var models stringsFlag
	fs.Var(&models, "m", "Model to test as provider:model_id (repeatable)")
	fs.Var(&models, "model", "Alias for -m")
	threads := fs.Int("t", 0, "Parallel runs (default from config)")
	testsDir := fs.String("tests", "", "Tests folder (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	printBanner()

	if len(models) == 0 {
		models = a.cfg.Eval.Models
	}
	var selections []agent.ModelSelection
	for _, m := range models {
		sel, err := agent.ParseSelection(m)
		if err != nil {
			return err
		}
		selections = append(selections, sel)
	}

	dir := a.cfg.Eval.TestsDir
	if *testsDir != "" {
		dir = *testsDir
	}
	parallel := a.cfg.Eval.Parallel
	if *threads > 0 {
		parallel = *threads
	}

	gray := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	cases, skipped, err := evalrun.Discover(dir)
	if err != nil {
		return err
	}
	for _, e := range skipped {
		red.Fprintf(os.Stderr, "Failed to load %v\n", e)
	}
	if len(cases) == 0 {
		yellow.Println("No tests to run.")
		return nil
	}

	gray.Printf("Tests folder: %s\n", dir)
	fmt.Printf("Found %d test(s) × %d model(s) = %d run(s)\n\n", len(cases), len(selections), len(cases)*len(selections))

	opts := evalrun.Options{
		ProjectID:         a.cfg.Eval.ProjectID,
		UserID:            a.cfg.Eval.UserID,
		Parallel:          parallel,
		RequestsPerSecond: a.cfg.Eval.RequestsPerSecond,
		Tolerance: evalrun.Tolerance{
			Rel: a.cfg.Eval.RelTolerance,
			Abs: a.cfg.Eval.AbsTolerance,
		},
	}
	if a.cfg.Eval.Database != "" {
		db, err := openWarehouse(a.cfg.Eval.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Data = db
		gray.Printf("Verifying data against: %s\n", a.cfg.Eval.Database)
	}
	runner := evalrun.NewRunner(a.agents, opts, a.logger)

	results, runErr := runner.Run(ctx, cases, selections)

	path, err := evalrun.WriteReport(a.cfg.Eval.OutputDir, results, time.Now())
	if err != nil {
		return err
	}
	gray.Printf("Results saved to: %s\n\n", path)

	evalrun.PrintSummary(os.Stdout, results)
	return runErr
}

// openWarehouse opens the database that reference sql runs against. It must
// already exist; sqlite would otherwise create an empty one.
func openWarehouse(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("eval.database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening eval database: %w", err)
	}
	return db, nil
}

// runEvalServe serves the results viewer until interrupted.
func runEvalServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval serve", flag.ContinueOnError)
	addr := fs.String("addr", evalrun.DefaultViewerAddr, "Address to listen on")
	port := fs.Int("p", 0, "Port on localhost (overrides --addr)")
	fs.IntVar(port, "port", 0, "Alias for -p")
	outputDir := fs.String("output", "", "Results folder (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	dir := cfg.Eval.OutputDir
	if *outputDir != "" {
		dir = *outputDir
	}
	listen := *addr
	if *port > 0 {
		listen = fmt.Sprintf("localhost:%d", *port)
	}

	files, err := evalrun.ListReports(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		color.New(color.FgYellow).Printf("No results files in %s yet. Run 'parley eval' first.\n", dir)
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}
	color.New(color.FgGreen).Printf("Results viewer at http://%s (Ctrl+C to stop)\n", ln.Addr())

	return evalrun.NewViewer(dir, logger).Serve(ctx, ln)
}
