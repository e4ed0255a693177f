package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/projection"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerProjectionTools()
	s.registerJobTools()
}

// instrument wraps a handler with invocation metrics and failure logging.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.start(ctx, name)
		res, out, err := h(ctx, req, args)
		done(err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// compute marshals args as the engine input and decodes the result into out.
// Argument types mirror the engine's JSON field names.
func (s *Server) compute(ctx context.Context, typ projection.MessageType, args, out any) (json.RawMessage, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	raw, err := s.engine.Compute(ctx, typ, data)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return raw, nil
}

// ===== PROJECTION TOOLS =====

type healthArgs struct {
	MonthlyIncome   float64 `json:"monthly_income" jsonschema:"Monthly take-home income"`
	MonthlyExpenses float64 `json:"monthly_expenses" jsonschema:"Monthly living expenses"`
	TotalDebt       float64 `json:"total_debt" jsonschema:"Total outstanding debt"`
	EmergencyFund   float64 `json:"emergency_fund" jsonschema:"Cash set aside for emergencies"`
}

type debtArg struct {
	Name         string  `json:"name" jsonschema:"Debt name"`
	Balance      float64 `json:"balance" jsonschema:"Outstanding balance"`
	InterestRate float64 `json:"interest_rate" jsonschema:"Annual interest rate in percent, e.g. 19.9"`
	MinPayment   float64 `json:"min_payment" jsonschema:"Minimum monthly payment"`
}

type debtArgs struct {
	Debts        []debtArg `json:"debts" jsonschema:"Debts to pay off"`
	ExtraPayment float64   `json:"extra_payment,omitempty" jsonschema:"Monthly amount on top of the minimums, applied avalanche-first"`
	Rollover     bool      `json:"rollover,omitempty" jsonschema:"Add minimums of paid-off debts to the extra payment"`
}

type goalArg struct {
	Name                string  `json:"name" jsonschema:"Goal name"`
	CurrentAmount       float64 `json:"current_amount" jsonschema:"Amount saved so far"`
	TargetAmount        float64 `json:"target_amount" jsonschema:"Amount to reach"`
	MonthlyContribution float64 `json:"monthly_contribution" jsonschema:"Monthly contribution"`
	AnnualRate          float64 `json:"annual_rate" jsonschema:"Annual growth rate in percent"`
	DeadlineMonths      int     `json:"deadline_months,omitempty" jsonschema:"Optional deadline in months"`
}

type goalArgs struct {
	Goals []goalArg `json:"goals" jsonschema:"Savings goals to project"`
}

type transactionArg struct {
	Amount   string `json:"amount" jsonschema:"Amount as a decimal string, e.g. 42.50"`
	Category string `json:"category,omitempty" jsonschema:"Spending category"`
	Date     string `json:"date" jsonschema:"Transaction date, YYYY-MM-DD"`
}

type spendingArgs struct {
	Transactions []transactionArg `json:"transactions" jsonschema:"Transactions to analyze"`
}

func (s *Server) registerProjectionTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "financial_health",
		Description: "Score overall financial health from income, expenses, debt and emergency savings",
	}, instrument(s, "financial_health", func(ctx context.Context, _ *mcp.CallToolRequest, args healthArgs) (*mcp.CallToolResult, any, error) {
		var res projection.HealthResult
		raw, err := s.compute(ctx, projection.CalculateFinancialHealth, args, &res)
		if err != nil {
			return nil, nil, err
		}
		return textResult("Financial health score %.1f (%s)", res.Score, res.Rating), raw, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "debt_payoff",
		Description: "Simulate an avalanche debt payoff schedule month by month",
	}, instrument(s, "debt_payoff", func(ctx context.Context, _ *mcp.CallToolRequest, args debtArgs) (*mcp.CallToolResult, any, error) {
		var res projection.DebtResult
		raw, err := s.compute(ctx, projection.CalculateDebtPayoff, args, &res)
		if err != nil {
			return nil, nil, err
		}
		if !res.PaidOff {
			return textResult("Debts not paid off within %d months; interest so far %.2f", res.Months, res.TotalInterest), raw, nil
		}
		return textResult("Debt free in %d months, total interest %.2f", res.Months, res.TotalInterest), raw, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "goal_projections",
		Description: "Project savings goals with compound growth and report months to target",
	}, instrument(s, "goal_projections", func(ctx context.Context, _ *mcp.CallToolRequest, args goalArgs) (*mcp.CallToolResult, any, error) {
		var res projection.GoalResult
		raw, err := s.compute(ctx, projection.CalculateGoalProjections, args, &res)
		if err != nil {
			return nil, nil, err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d goal(s) projected", len(res.Goals))
		for _, g := range res.Goals {
			if g.Reached {
				fmt.Fprintf(&b, "\n- %s: reached in %d months", g.Name, g.Months)
			} else {
				fmt.Fprintf(&b, "\n- %s: not reached within %d months", g.Name, g.Months)
			}
		}
		return textResult("%s", b.String()), raw, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "spending_patterns",
		Description: "Summarize transactions by category and month",
	}, instrument(s, "spending_patterns", func(ctx context.Context, _ *mcp.CallToolRequest, args spendingArgs) (*mcp.CallToolResult, any, error) {
		var res projection.SpendingResult
		raw, err := s.compute(ctx, projection.AnalyzeSpendingPatterns, args, &res)
		if err != nil {
			return nil, nil, err
		}
		if res.Count == 0 {
			return textResult("No transactions"), raw, nil
		}
		return textResult("Total %s across %d transactions, top category %s", res.Total.StringFixed(2), res.Count, res.TopCategory), raw, nil
	}))
}

// ===== JOB TOOLS =====

type jobSubmitArgs struct {
	Type string `json:"type" jsonschema:"Job type: CALCULATE_FINANCIAL_HEALTH, CALCULATE_DEBT_PAYOFF, CALCULATE_GOAL_PROJECTIONS, ANALYZE_SPENDING_PATTERNS or PROJECTION_BATCH"`
	Data any    `json:"data" jsonschema:"Job input; for PROJECTION_BATCH a list of {type, data} objects"`
}

type jobSubmitOutput struct {
	JobID string `json:"job_id" jsonschema:"ID to pass to job_status and job_cancel"`
}

type jobIDArgs struct {
	JobID string `json:"job_id" jsonschema:"Job ID returned by job_submit"`
}

type jobCancelOutput struct {
	JobID  string `json:"job_id" jsonschema:"Job ID"`
	Status string `json:"status" jsonschema:"Status after the cancel request"`
}

func (s *Server) registerJobTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "job_submit",
		Description: "Submit a long-running projection job and return its ID",
	}, instrument(s, "job_submit", func(ctx context.Context, _ *mcp.CallToolRequest, args jobSubmitArgs) (*mcp.CallToolResult, jobSubmitOutput, error) {
		data, err := json.Marshal(args.Data)
		if err != nil {
			return nil, jobSubmitOutput{}, fmt.Errorf("encode data: %w", err)
		}
		id, err := s.jobs.Submit(jobs.WithOwner(ctx, Owner), args.Type, data)
		if err != nil {
			return nil, jobSubmitOutput{}, fmt.Errorf("job submit failed: %w", err)
		}
		return textResult("Job submitted: %s", id), jobSubmitOutput{JobID: id}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "job_status",
		Description: "Get the status, progress and result of a job",
	}, instrument(s, "job_status", func(ctx context.Context, _ *mcp.CallToolRequest, args jobIDArgs) (*mcp.CallToolResult, any, error) {
		if args.JobID == "" {
			return nil, nil, fmt.Errorf("%w: job_id must not be empty", errInvalidArgument)
		}
		st, err := s.jobs.Status(ctx, args.JobID)
		if err != nil {
			return nil, nil, fmt.Errorf("job status failed: %w", err)
		}
		if st.Error != "" {
			return textResult("Job %s: %s (%s)", args.JobID, st.Status, st.Error), st, nil
		}
		return textResult("Job %s: %s (%d%%)", args.JobID, st.Status, st.Progress), st, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "job_cancel",
		Description: "Cancel a pending or running job; finished jobs are left unchanged",
	}, instrument(s, "job_cancel", func(ctx context.Context, _ *mcp.CallToolRequest, args jobIDArgs) (*mcp.CallToolResult, jobCancelOutput, error) {
		if args.JobID == "" {
			return nil, jobCancelOutput{}, fmt.Errorf("%w: job_id must not be empty", errInvalidArgument)
		}
		if err := s.jobs.Cancel(ctx, args.JobID); err != nil {
			return nil, jobCancelOutput{}, fmt.Errorf("job cancel failed: %w", err)
		}
		st, err := s.jobs.Status(ctx, args.JobID)
		if err != nil {
			return nil, jobCancelOutput{}, fmt.Errorf("job status failed: %w", err)
		}
		out := jobCancelOutput{JobID: args.JobID, Status: string(st.Status)}
		return textResult("Job %s: %s", out.JobID, out.Status), out, nil
	}))
}
