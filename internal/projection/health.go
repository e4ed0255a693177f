package projection

import "math"

// Component weights; they sum to 100.
const (
	weightSavingsRate   = 30
	weightDebtToIncome  = 25
	weightExpenseRatio  = 20
	weightEmergencyFund = 25

	emergencyFundTargetMonths = 6
)

// HealthInput describes a household's monthly cash flow and balances.
type HealthInput struct {
	MonthlyIncome   float64 `json:"monthly_income" toml:"monthly_income"`
	MonthlyExpenses float64 `json:"monthly_expenses" toml:"monthly_expenses"`
	TotalDebt       float64 `json:"total_debt" toml:"total_debt"`
	EmergencyFund   float64 `json:"emergency_fund" toml:"emergency_fund"`
}

// HealthComponents holds each bounded ratio, in [0,1].
type HealthComponents struct {
	SavingsRate   float64 `json:"savings_rate"`
	DebtToIncome  float64 `json:"debt_to_income"`
	ExpenseRatio  float64 `json:"expense_ratio"`
	EmergencyFund float64 `json:"emergency_fund"`
}

// HealthResult is the weighted score in [0,100] and its rating.
type HealthResult struct {
	Score      float64          `json:"score"`
	Rating     string           `json:"rating"`
	Components HealthComponents `json:"components"`
}

// FinancialHealth scores in as a weighted sum of four bounded ratios.
// Zero or negative income zeroes the income-based ratios.
func FinancialHealth(in HealthInput) (HealthResult, error) {
	fields := []struct {
		name string
		v    float64
	}{
		{"monthly_income", in.MonthlyIncome},
		{"monthly_expenses", in.MonthlyExpenses},
		{"total_debt", in.TotalDebt},
		{"emergency_fund", in.EmergencyFund},
	}
	for _, f := range fields {
		if !finite(f.v) {
			return HealthResult{}, invalidInput("%s must be a finite number", f.name)
		}
	}

	var c HealthComponents
	if in.MonthlyIncome > 0 {
		c.SavingsRate = clamp01((in.MonthlyIncome - in.MonthlyExpenses) / in.MonthlyIncome)
		c.DebtToIncome = clamp01(1 - math.Min(1, in.TotalDebt/(12*in.MonthlyIncome)))
		c.ExpenseRatio = clamp01(1 - math.Min(1, in.MonthlyExpenses/in.MonthlyIncome))
	}
	switch {
	case in.MonthlyExpenses > 0:
		c.EmergencyFund = clamp01((in.EmergencyFund / in.MonthlyExpenses) / emergencyFundTargetMonths)
	case in.EmergencyFund > 0:
		c.EmergencyFund = 1
	}

	score := c.SavingsRate*weightSavingsRate +
		c.DebtToIncome*weightDebtToIncome +
		c.ExpenseRatio*weightExpenseRatio +
		c.EmergencyFund*weightEmergencyFund
	score = math.Round(math.Max(0, math.Min(100, score))*10) / 10

	return HealthResult{
		Score:      score,
		Rating:     rating(score),
		Components: c,
	}, nil
}

func rating(score float64) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
