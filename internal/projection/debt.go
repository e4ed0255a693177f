package projection

import (
	"math"
	"sort"
)

const (
	// closedThreshold is half a cent; smaller balances are clamped to zero.
	closedThreshold = 0.005
	snapshotEvery   = 6
)

// Debt is one liability. InterestRate is an annual percentage.
type Debt struct {
	Name         string  `json:"name" toml:"name"`
	Balance      float64 `json:"balance" toml:"balance"`
	InterestRate float64 `json:"interest_rate" toml:"interest_rate"`
	MinPayment   float64 `json:"min_payment" toml:"min_payment"`
}

// DebtInput configures an avalanche payoff simulation.
type DebtInput struct {
	Debts        []Debt  `json:"debts" toml:"debts"`
	ExtraPayment float64 `json:"extra_payment" toml:"extra_payment"`
	// Rollover adds the minimum payments of closed debts to the monthly surplus.
	Rollover bool `json:"rollover,omitempty" toml:"rollover"`
}

// DebtPayoff records the month a debt reached zero.
type DebtPayoff struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Month int    `json:"month"`
}

// DebtSnapshot is the state at the end of a month.
type DebtSnapshot struct {
	Month          int       `json:"month"`
	Balances       []float64 `json:"balances"`
	TotalBalance   float64   `json:"total_balance"`
	InterestToDate float64   `json:"interest_to_date"`
}

// DebtResult summarizes a payoff simulation.
type DebtResult struct {
	Months        int            `json:"months"`
	TotalInterest float64        `json:"total_interest"`
	TotalPaid     float64        `json:"total_paid"`
	PaidOff       bool           `json:"paid_off"`
	PayoffOrder   []DebtPayoff   `json:"payoff_order"`
	Schedule      []DebtSnapshot `json:"schedule"`
}

// DebtPayoffSchedule simulates month-by-month repayment using the avalanche
// method: after minimums, the surplus goes to the open debt with the highest
// rate, cascading to the next when that debt closes.
func DebtPayoffSchedule(in DebtInput) (DebtResult, error) {
	return simulateDebts(in, nil)
}

// allocationFunc observes the surplus paid to each debt in a month.
type allocationFunc func(month int, surplus []float64)

func simulateDebts(in DebtInput, observe allocationFunc) (DebtResult, error) {
	if err := validateDebts(in); err != nil {
		return DebtResult{}, err
	}

	n := len(in.Debts)
	balances := make([]float64, n)
	closed := make([]bool, n)
	for i, d := range in.Debts {
		balances[i] = d.Balance
		if d.Balance < closedThreshold {
			balances[i] = 0
			closed[i] = true
		}
	}

	// Avalanche order; stable so equal rates keep input order.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return in.Debts[order[a]].InterestRate > in.Debts[order[b]].InterestRate
	})

	res := DebtResult{
		PayoffOrder: []DebtPayoff{},
		Schedule:    []DebtSnapshot{},
	}
	closeDebt := func(i, month int) {
		balances[i] = 0
		closed[i] = true
		res.PayoffOrder = append(res.PayoffOrder, DebtPayoff{Name: in.Debts[i].Name, Index: i, Month: month})
	}

	month := 0
	for !allClosed(closed) && month < MaxMonths {
		month++

		surplus := in.ExtraPayment
		if in.Rollover {
			for i, c := range closed {
				if c {
					surplus += in.Debts[i].MinPayment
				}
			}
		}

		for i := range balances {
			if closed[i] {
				continue
			}
			interest := balances[i] * in.Debts[i].InterestRate / 100 / 12
			balances[i] += interest
			res.TotalInterest += interest
		}

		for i := range balances {
			if closed[i] {
				continue
			}
			pay := math.Min(in.Debts[i].MinPayment, balances[i])
			balances[i] -= pay
			res.TotalPaid += pay
			if balances[i] < closedThreshold {
				closeDebt(i, month)
			}
		}

		var allocated []float64
		if observe != nil {
			allocated = make([]float64, n)
		}
		for _, i := range order {
			if surplus <= 0 {
				break
			}
			if closed[i] {
				continue
			}
			pay := math.Min(surplus, balances[i])
			balances[i] -= pay
			surplus -= pay
			res.TotalPaid += pay
			if allocated != nil {
				allocated[i] += pay
			}
			if balances[i] < closedThreshold {
				closeDebt(i, month)
			}
		}
		if observe != nil {
			observe(month, allocated)
		}

		done := allClosed(closed)
		if month%snapshotEvery == 0 || done {
			res.Schedule = append(res.Schedule, snapshot(month, balances, res.TotalInterest))
		}
	}

	res.Months = month
	res.PaidOff = allClosed(closed)
	return res, nil
}

func validateDebts(in DebtInput) error {
	if len(in.Debts) == 0 {
		return invalidInput("at least one debt is required")
	}
	if !finite(in.ExtraPayment) || in.ExtraPayment < 0 {
		return invalidInput("extra_payment must be a non-negative number")
	}
	for i, d := range in.Debts {
		switch {
		case !finite(d.Balance) || d.Balance < 0:
			return invalidInput("debts[%d]: balance must be a non-negative number", i)
		case !finite(d.InterestRate) || d.InterestRate < 0:
			return invalidInput("debts[%d]: interest_rate must be a non-negative number", i)
		case !finite(d.MinPayment) || d.MinPayment < 0:
			return invalidInput("debts[%d]: min_payment must be a non-negative number", i)
		}
	}
	return nil
}

func snapshot(month int, balances []float64, interest float64) DebtSnapshot {
	s := DebtSnapshot{
		Month:          month,
		Balances:       make([]float64, len(balances)),
		InterestToDate: interest,
	}
	copy(s.Balances, balances)
	for _, b := range balances {
		s.TotalBalance += b
	}
	return s
}

func allClosed(closed []bool) bool {
	for _, c := range closed {
		if !c {
			return false
		}
	}
	return true
}
