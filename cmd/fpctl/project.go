package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/projection"
)

var projectChart bool

var projectCmd = &cobra.Command{
	Use:   "project <type> <file>",
	Short: "Run a projection locally",
	Long: `Run a projection on a local engine without contacting the server.

Examples:
  # Debt payoff with a balance chart
  fpctl project CALCULATE_DEBT_PAYOFF debts.toml --chart

  # Spending analysis from stdin
  cat spending.json | fpctl project ANALYZE_SPENDING_PATTERNS -`,
	Args: cobra.ExactArgs(2),
	RunE: runProject,
}

func init() {
	projectCmd.Flags().BoolVar(&projectChart, "chart", false, "draw debt and goal charts")
}

func runProject(cmd *cobra.Command, args []string) error {
	typ := projection.MessageType(strings.ToUpper(args[0]))
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", jobs.ErrUnknownType, args[0])
	}
	data, err := readInput(cmd.InOrStdin(), args[1], jobs.Type(typ))
	if err != nil {
		return err
	}

	engine := projection.New()
	defer engine.Close()

	result, err := engine.Compute(cmd.Context(), typ, data)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), jobs.Type(typ), result, projectChart)
}
