// ABOUTME: Runs evaluation cases against one or more models through agent sessions
// ABOUTME: Bounded parallelism with errgroup and optional request pacing with a rate limiter

package evalrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

// Sessions creates agent sessions.
type Sessions interface {
	Create(ctx context.Context, conv *store.Conversation, selection *agent.ModelSelection) (*agent.Session, error)
}

// Options configures a Runner.
type Options struct {
	ProjectID string
	UserID    string
	// Parallel bounds concurrent runs; values below 1 run sequentially.
	Parallel int
	// RequestsPerSecond paces run starts; zero means unlimited.
	RequestsPerSecond float64
	// Data answers the reference sql of cases that carry one. When nil those
	// cases fall back to their expected substrings.
	Data Querier
	// Tolerance applies to numeric cells; zero uses DefaultTolerance.
	Tolerance Tolerance
}

// Result is the outcome of one case against one model.
type Result struct {
	Name          string          `json:"name"`
	Model         string          `json:"model"`
	Passed        bool            `json:"passed"`
	Message       string          `json:"message"`
	Tokens        int             `json:"tokens"`
	Cost          decimal.Decimal `json:"cost"`
	DurationMS    int64           `json:"duration_ms"`
	ToolCallCount int             `json:"tool_call_count"`
	Error         string          `json:"error,omitempty"`
	Details       *Details        `json:"details,omitempty"`
}

// Details carries what the model said and did, for debugging failures.
type Details struct {
	ResponseText string           `json:"response_text"`
	SQL          string           `json:"sql,omitempty"`
	ActualData   Rows             `json:"actual_data,omitempty"`
	ExpectedData Rows             `json:"expected_data,omitempty"`
	Comparison   string           `json:"comparison,omitempty"`
	ToolCalls    []ToolCallDetail `json:"tool_calls,omitempty"`
}

// ToolCallDetail is one tool call with its result.
type ToolCallDetail struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output"`
	IsError  bool           `json:"is_error,omitempty"`
}

// Runner evaluates cases × models.
type Runner struct {
	sessions Sessions
	opts     Options
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(sessions Sessions, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.Tolerance == (Tolerance{}) {
		opts.Tolerance = DefaultTolerance
	}
	r := &Runner{
		sessions: sessions,
		opts:     opts,
		logger:   logger.With("component", "evalrun"),
	}
	if opts.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return r
}

type run struct {
	c     *Case
	model agent.ModelSelection
}

// Run executes every case against every model, models outermost. Results
// keep that order regardless of parallelism. A cancelled ctx stops pending
// runs and is returned alongside the results gathered so far.
func (r *Runner) Run(ctx context.Context, cases []*Case, models []agent.ModelSelection) ([]Result, error) {
	if len(cases) == 0 {
		return nil, ErrNoCases
	}

	var runs []run
	for _, m := range models {
		for _, c := range cases {
			runs = append(runs, run{c: c, model: m})
		}
	}

	r.logger.Info("starting evaluation",
		"cases", len(cases),
		"models", len(models),
		"runs", len(runs),
		"parallel", r.opts.Parallel)

	results := make([]Result, len(runs))
	done := make([]bool, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)
	for i, rn := range runs {
		g.Go(func() error {
			if r.limiter != nil {
				if err := r.limiter.Wait(gctx); err != nil {
					return err
				}
			} else if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runOne(gctx, rn)
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	finished := results[:0]
	for i := range results {
		if done[i] {
			finished = append(finished, results[i])
		}
	}
	return finished, err
}

func (r *Runner) runOne(ctx context.Context, rn run) Result {
	logger := r.logger.With("case", rn.c.Name, "model", rn.model.String())
	res := Result{Name: rn.c.Name, Model: rn.model.String()}

	fail := func(err error) Result {
		logger.Warn("run failed", "error", err)
		res.Passed = false
		res.Message = "error"
		res.Error = err.Error()
		return res
	}

	prompt := agent.UserText(uuid.New().String(), rn.c.Prompt)
	out, err := r.generate(ctx, rn.c.Name, rn.model, []agent.UIMessage{prompt})
	if err != nil {
		return fail(err)
	}

	res.Passed, res.Message = rn.c.Check(out.Text)
	res.Tokens = out.Usage.TotalTokens
	res.Cost = out.Cost.TotalCost
	res.DurationMS = out.Duration.Milliseconds()
	res.ToolCallCount = out.ToolCallCount()
	res.Details = &Details{
		ResponseText: out.Text,
		SQL:          rn.c.SQL,
		ToolCalls:    toolCallDetails(out),
	}

	if rn.c.SQL != "" && r.opts.Data != nil {
		if err := r.verify(ctx, rn, prompt, out, &res); err != nil {
			return fail(err)
		}
	}

	logger.Info("run finished",
		"passed", res.Passed,
		"message", res.Message,
		"tokens", res.Tokens,
		"cost", res.Cost.String(),
		"duration_ms", res.DurationMS)
	return res
}

// generate runs one throwaway conversation to completion.
func (r *Runner) generate(ctx context.Context, title string, sel agent.ModelSelection, messages []agent.UIMessage) (*agent.GenerateResult, error) {
	now := time.Now()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		UserID:    r.opts.UserID,
		ProjectID: r.opts.ProjectID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess, err := r.sessions.Create(ctx, conv, &sel)
	if err != nil {
		return nil, err
	}
	return sess.Generate(messages)
}

// verify asks the model to restate its answer as rows and compares them with
// the case's reference query. The follow-up turn's usage counts toward res.
func (r *Runner) verify(ctx context.Context, rn run, prompt agent.UIMessage, out *agent.GenerateResult, res *Result) error {
	expected, columns, err := QueryRows(ctx, r.opts.Data, rn.c.SQL)
	if err != nil {
		return err
	}
	res.Details.ExpectedData = expected

	reply := agent.UIMessage{
		ID:    uuid.New().String(),
		Role:  llm.RoleAssistant,
		Parts: []agent.UIPart{{Type: store.PartText, Text: out.Text}},
	}
	ask := agent.UserText(uuid.New().String(), VerificationPrompt(columns))
	check, err := r.generate(ctx, rn.c.Name+" (verification)", rn.model, []agent.UIMessage{prompt, reply, ask})
	if err != nil {
		return fmt.Errorf("verification turn: %w", err)
	}
	res.Tokens += check.Usage.TotalTokens
	res.Cost = res.Cost.Add(check.Cost.TotalCost)
	res.DurationMS += check.Duration.Milliseconds()

	actual, err := ExtractRows(check.Text)
	if err != nil {
		res.Passed, res.Message = false, err.Error()
		return nil
	}
	res.Details.ActualData = actual
	if len(rn.c.Columns) > 0 {
		columns = rn.c.Columns
	}
	res.Passed, res.Message, res.Details.Comparison = CompareRows(actual, expected, columns, r.opts.Tolerance)
	return nil
}

func toolCallDetails(out *agent.GenerateResult) []ToolCallDetail {
	var details []ToolCallDetail
	for _, step := range out.Steps {
		for j, tc := range step.ToolCalls {
			d := ToolCallDetail{ToolName: tc.Name, Input: tc.Arguments}
			if j < len(step.ToolResults) {
				d.Output = step.ToolResults[j].Output
				d.IsError = step.ToolResults[j].IsError
			}
			details = append(details, d)
		}
	}
	return details
}
