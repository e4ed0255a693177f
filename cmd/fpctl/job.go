package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finplan/internal/config"
	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/monitor"
	"github.com/fyrsmithlabs/finplan/internal/poller"
	"github.com/fyrsmithlabs/finplan/internal/projection"
)

var (
	// job submit flags
	submitWait  bool
	submitWatch bool
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Submit and track projection jobs",
}

var jobSubmitCmd = &cobra.Command{
	Use:   "submit <type> <file>",
	Short: "Submit a projection job",
	Long: `Submit a projection job to the finplan server.

The input file is JSON or TOML ("-" reads JSON from stdin). Types are
CALCULATE_FINANCIAL_HEALTH, CALCULATE_DEBT_PAYOFF, CALCULATE_GOAL_PROJECTIONS,
ANALYZE_SPENDING_PATTERNS and PROJECTION_BATCH.

Examples:
  # Submit and print the job ID
  fpctl job submit CALCULATE_DEBT_PAYOFF debts.toml

  # Wait for the result
  fpctl job submit CALCULATE_GOAL_PROJECTIONS goals.json --wait

  # Follow progress in a live view
  fpctl job submit PROJECTION_BATCH batch.json --watch`,
	Args: cobra.ExactArgs(2),
	RunE: runJobSubmit,
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a job's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobCancel,
}

func init() {
	jobSubmitCmd.Flags().BoolVar(&submitWait, "wait", false, "wait for the job and print its result")
	jobSubmitCmd.Flags().BoolVar(&submitWatch, "watch", false, "follow the job in a live progress view")
	jobSubmitCmd.MarkFlagsMutuallyExclusive("wait", "watch")
	jobCmd.AddCommand(jobSubmitCmd, jobStatusCmd, jobCancelCmd)
}

func newTransport(cfg *config.Config) *poller.HTTPTransport {
	return poller.NewHTTPTransport(resolveServer(cfg), &http.Client{Timeout: cfg.Poller.RequestTimeout})
}

func runJobSubmit(cmd *cobra.Command, args []string) error {
	typ, err := jobs.ParseType(strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	data, err := readInput(cmd.InOrStdin(), args[1], typ)
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd)
	transport := newTransport(cfg)
	out := cmd.OutOrStdout()

	if !submitWait && !submitWatch {
		id, err := transport.Submit(cmd.Context(), string(typ), data)
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		fmt.Fprintf(out, "Job submitted: %s\n", id)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	p := poller.New(transport,
		poller.WithInterval(cfg.Poller.Interval),
		poller.WithRequestTimeout(cfg.Poller.RequestTimeout),
	)

	var feed *monitor.Feed
	if submitWatch {
		feed = monitor.Watch(p)
		defer feed.Close()
	}

	id, err := p.Submit(ctx, string(typ), data, poller.Callbacks{})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Job submitted: %s\n", id)

	if submitWatch {
		model := monitor.NewModel(id, string(typ), feed.Updates(), func() error {
			return p.Cancel(context.WithoutCancel(ctx))
		})
		if _, err := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(out)).Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("monitor failed: %w", err)
		}
		if p.Active() && ctx.Err() == nil {
			fmt.Fprintf(out, "Detached; check progress with: fpctl job status %s\n", id)
			return nil
		}
	}

	return waitForResult(ctx, p, out, typ)
}

// waitForResult blocks until the job finishes and prints the outcome. An
// interrupt cancels the job on the server.
func waitForResult(ctx context.Context, p *poller.Poller, out io.Writer, typ jobs.Type) error {
	st, err := p.Wait(ctx)
	if ctx.Err() != nil {
		if cerr := p.Cancel(context.WithoutCancel(ctx)); cerr != nil {
			return fmt.Errorf("interrupted, cancel failed: %w", cerr)
		}
		return errors.New("interrupted, job cancelled")
	}
	if err != nil {
		return err
	}
	return printResult(out, typ, st.Result, false)
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	st, err := newTransport(cfg).Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", args[0])
	fmt.Fprintf(out, "Status:   %s\n", st.Status)
	fmt.Fprintf(out, "Progress: %s\n", monitor.FormatPercentage(float64(st.Progress)/100))
	if st.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", st.Error)
	}
	if len(st.Result) > 0 {
		fmt.Fprintln(out, "Result:")
		return printJSON(out, st.Result)
	}
	return nil
}

func runJobCancel(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if err := newTransport(cfg).Cancel(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
	return nil
}

// printResult renders a projection or batch result.
func printResult(out io.Writer, typ jobs.Type, raw json.RawMessage, chart bool) error {
	if typ != jobs.TypeBatch {
		text, err := monitor.RenderResult(projection.MessageType(typ), raw, chart)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		return nil
	}

	var results []jobs.BatchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return fmt.Errorf("decode batch result: %w", err)
	}
	for i, r := range results {
		text, err := monitor.RenderResult(r.Type, r.Result, chart)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		fmt.Fprintf(out, "[%d] %s\n%s\n", i+1, r.Type, text)
	}
	return nil
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(pretty))
	return nil
}
