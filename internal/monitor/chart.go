package monitor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/finplan/internal/projection"
)

const chartWidth = 40

// RenderResult formats a projection result for the terminal. With chart set,
// debt and goal results include a sparkline.
func RenderResult(typ projection.MessageType, raw json.RawMessage, chart bool) (string, error) {
	switch typ {
	case projection.CalculateFinancialHealth:
		var res projection.HealthResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", fmt.Errorf("decode health result: %w", err)
		}
		return RenderHealth(res), nil
	case projection.CalculateDebtPayoff:
		var res projection.DebtResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", fmt.Errorf("decode debt result: %w", err)
		}
		return RenderDebt(res, chart), nil
	case projection.CalculateGoalProjections:
		var res projection.GoalResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", fmt.Errorf("decode goal result: %w", err)
		}
		return RenderGoals(res, chart), nil
	case projection.AnalyzeSpendingPatterns:
		var res projection.SpendingResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", fmt.Errorf("decode spending result: %w", err)
		}
		return RenderSpending(res), nil
	}
	return "", fmt.Errorf("unknown projection type %q", typ)
}

func ratingStyle(rating string) string {
	switch rating {
	case "excellent", "good":
		return healthyStyle.Render(rating)
	case "fair":
		return warningStyle.Render(rating)
	default:
		return errorStyle.Render(rating)
	}
}

// RenderHealth formats a financial health score.
func RenderHealth(res projection.HealthResult) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("┃ Financial Health") + "\n")
	b.WriteString(labelStyle.Render("  Score: ") + valueStyle.Render(fmt.Sprintf("%.1f", res.Score)) +
		" " + ratingStyle(res.Rating) + "\n")
	b.WriteString(labelStyle.Render("  Savings rate: ") + valueStyle.Render(FormatPercentage(res.Components.SavingsRate)) + "\n")
	b.WriteString(labelStyle.Render("  Debt to income: ") + valueStyle.Render(FormatPercentage(res.Components.DebtToIncome)) + "\n")
	b.WriteString(labelStyle.Render("  Expense ratio: ") + valueStyle.Render(FormatPercentage(res.Components.ExpenseRatio)) + "\n")
	b.WriteString(labelStyle.Render("  Emergency fund: ") + valueStyle.Render(FormatPercentage(res.Components.EmergencyFund)) + "\n")
	return b.String()
}

// RenderDebt formats a payoff schedule summary.
func RenderDebt(res projection.DebtResult, chart bool) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("┃ Debt Payoff") + "\n")
	if res.PaidOff {
		b.WriteString(labelStyle.Render("  Debt free in: ") + valueStyle.Render(FormatMonths(res.Months)) + "\n")
	} else {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  Not paid off within %s", FormatMonths(res.Months))) + "\n")
	}
	b.WriteString(labelStyle.Render("  Total interest: ") + valueStyle.Render(FormatMoney(res.TotalInterest)) + "\n")
	b.WriteString(labelStyle.Render("  Total paid: ") + valueStyle.Render(FormatMoney(res.TotalPaid)) + "\n")

	if len(res.PayoffOrder) > 0 {
		b.WriteString(labelStyle.Render("  Payoff order:") + "\n")
		for i, p := range res.PayoffOrder {
			b.WriteString(fmt.Sprintf("    %d. %s %s\n", i+1, valueStyle.Render(p.Name), dimStyle.Render("month "+fmt.Sprint(p.Month))))
		}
	}

	if chart {
		balances := make([]float64, 0, len(res.Schedule))
		for _, s := range res.Schedule {
			balances = append(balances, s.TotalBalance)
		}
		b.WriteString(labelStyle.Render("  Balance:") + "\n")
		b.WriteString(indent(createSparkline(balances, chartWidth, sparklineHeight+2), "  ") + "\n")
	}
	return b.String()
}

// RenderGoals formats goal projections.
func RenderGoals(res projection.GoalResult, chart bool) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("┃ Goals") + "\n")
	for _, g := range res.Goals {
		status := healthyStyle.Render("reached in " + FormatMonths(g.Months))
		if !g.Reached {
			status = errorStyle.Render("not reached within " + FormatMonths(g.Months))
		}
		b.WriteString("  " + valueStyle.Render(g.Name) + " " + status + "\n")
		b.WriteString(labelStyle.Render("    Final: ") + valueStyle.Render(FormatMoney(g.FinalAmount)) +
			dimStyle.Render(fmt.Sprintf("  contributions %s, growth %s", FormatMoney(g.TotalContributions), FormatMoney(g.TotalGrowth))) + "\n")
		if g.OnTrack != nil && g.RequiredMonthlyContribution != nil {
			track := healthyStyle.Render("on track")
			if !*g.OnTrack {
				track = warningStyle.Render("behind")
			}
			b.WriteString(labelStyle.Render("    Deadline: ") + track +
				dimStyle.Render(fmt.Sprintf("  needs %s/month", FormatMoney(*g.RequiredMonthlyContribution))) + "\n")
		}
		if chart && len(g.Milestones) > 0 {
			amounts := make([]float64, 0, len(g.Milestones))
			for _, m := range g.Milestones {
				amounts = append(amounts, m.Amount)
			}
			b.WriteString(indent(createSparkline(amounts, chartWidth, sparklineHeight), "    ") + "\n")
		}
	}
	return b.String()
}

// RenderSpending formats a spending breakdown.
func RenderSpending(res projection.SpendingResult) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("┃ Spending") + "\n")
	b.WriteString(labelStyle.Render("  Total: ") + valueStyle.Render(res.Total.StringFixed(2)) +
		dimStyle.Render(fmt.Sprintf("  %d transactions, %s/month", res.Count, res.AverageMonthly.StringFixed(2))) + "\n")
	for _, c := range res.ByCategory {
		b.WriteString(fmt.Sprintf("  %-16s %12s %s\n", c.Category, c.Total.StringFixed(2), dimStyle.Render(fmt.Sprintf("%.1f%%", c.Share))))
	}
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
