package projection

import (
	"errors"
	"math"
)

// Goal is a savings target. AnnualRate is a percentage compounded monthly.
type Goal struct {
	Name                string  `json:"name" toml:"name"`
	CurrentAmount       float64 `json:"current_amount" toml:"current_amount"`
	TargetAmount        float64 `json:"target_amount" toml:"target_amount"`
	MonthlyContribution float64 `json:"monthly_contribution" toml:"monthly_contribution"`
	AnnualRate          float64 `json:"annual_rate" toml:"annual_rate"`
	DeadlineMonths      int     `json:"deadline_months,omitempty" toml:"deadline_months"`
}

// GoalInput lists the goals to project.
type GoalInput struct {
	Goals []Goal `json:"goals" toml:"goals"`
}

// GoalMilestone is the balance at the end of each simulated year.
type GoalMilestone struct {
	Month  int     `json:"month"`
	Amount float64 `json:"amount"`
}

// GoalProjection is the outcome for one goal.
type GoalProjection struct {
	Name               string          `json:"name"`
	Months             int             `json:"months"`
	Reached            bool            `json:"reached"`
	FinalAmount        float64         `json:"final_amount"`
	TotalContributions float64         `json:"total_contributions"`
	TotalGrowth        float64         `json:"total_growth"`
	Milestones         []GoalMilestone `json:"milestones"`

	// Set only when DeadlineMonths > 0.
	OnTrack                     *bool    `json:"on_track,omitempty"`
	RequiredMonthlyContribution *float64 `json:"required_monthly_contribution,omitempty"`
}

// GoalResult holds one projection per input goal, in input order.
type GoalResult struct {
	Goals []GoalProjection `json:"goals"`
}

// GoalProjections compounds each goal monthly until it reaches its target
// or MaxMonths elapse. A goal already at target finishes at month 0.
func GoalProjections(in GoalInput) (GoalResult, error) {
	if len(in.Goals) == 0 {
		return GoalResult{}, invalidInput("at least one goal is required")
	}

	res := GoalResult{Goals: make([]GoalProjection, 0, len(in.Goals))}
	for i, g := range in.Goals {
		if err := validateGoal(g); err != nil {
			return GoalResult{}, invalidInput("goals[%d]: %v", i, err)
		}
		res.Goals = append(res.Goals, projectGoal(g))
	}
	return res, nil
}

func projectGoal(g Goal) GoalProjection {
	r := g.AnnualRate / 100 / 12
	amount := g.CurrentAmount
	p := GoalProjection{
		Name:       g.Name,
		Milestones: []GoalMilestone{},
	}

	month := 0
	for amount < g.TargetAmount && month < MaxMonths {
		month++
		amount = amount*(1+r) + g.MonthlyContribution
		p.TotalContributions += g.MonthlyContribution
		if month%12 == 0 {
			p.Milestones = append(p.Milestones, GoalMilestone{Month: month, Amount: amount})
		}
	}

	p.Months = month
	p.Reached = amount >= g.TargetAmount
	p.FinalAmount = amount
	p.TotalGrowth = amount - g.CurrentAmount - p.TotalContributions

	if g.DeadlineMonths > 0 {
		onTrack := p.Reached && p.Months <= g.DeadlineMonths
		required := requiredContribution(g.CurrentAmount, g.TargetAmount, r, g.DeadlineMonths)
		p.OnTrack = &onTrack
		p.RequiredMonthlyContribution = &required
	}
	return p
}

// requiredContribution solves the future value of an annuity for the
// payment that reaches target in n months at monthly rate r.
func requiredContribution(current, target, r float64, n int) float64 {
	if current >= target {
		return 0
	}
	if r == 0 {
		return (target - current) / float64(n)
	}
	growth := math.Pow(1+r, float64(n))
	return math.Max(0, (target-current*growth)*r/(growth-1))
}

func validateGoal(g Goal) error {
	switch {
	case !finite(g.CurrentAmount) || g.CurrentAmount < 0:
		return errors.New("current_amount must be a non-negative number")
	case !finite(g.TargetAmount) || g.TargetAmount < 0:
		return errors.New("target_amount must be a non-negative number")
	case !finite(g.MonthlyContribution) || g.MonthlyContribution < 0:
		return errors.New("monthly_contribution must be a non-negative number")
	case !finite(g.AnnualRate) || g.AnnualRate < 0:
		return errors.New("annual_rate must be a non-negative number")
	case g.DeadlineMonths < 0:
		return errors.New("deadline_months must not be negative")
	}
	return nil
}
