package projection

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const uncategorized = "uncategorized"

var hundred = decimal.NewFromInt(100)

// Transaction is one spending record. Date is YYYY-MM-DD or RFC 3339.
type Transaction struct {
	Amount   decimal.Decimal `json:"amount" toml:"amount"`
	Category string          `json:"category" toml:"category"`
	Date     string          `json:"date" toml:"date"`
}

// SpendingInput lists the transactions to aggregate.
type SpendingInput struct {
	Transactions []Transaction `json:"transactions" toml:"transactions"`
}

// CategoryTotal aggregates one category. Share is a percentage of the total.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	Share    float64         `json:"share"`
}

// MonthTotal aggregates one calendar month (YYYY-MM).
type MonthTotal struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// SpendingResult is the aggregation of a transaction list.
type SpendingResult struct {
	Total          decimal.Decimal `json:"total"`
	Count          int             `json:"count"`
	ByCategory     []CategoryTotal `json:"by_category"`
	ByMonth        []MonthTotal    `json:"by_month"`
	TopCategory    string          `json:"top_category"`
	AverageMonthly decimal.Decimal `json:"average_monthly"`
}

// SpendingPatterns groups transactions by category and by month in one pass.
func SpendingPatterns(in SpendingInput) (SpendingResult, error) {
	categories := make(map[string]*CategoryTotal)
	months := make(map[string]*MonthTotal)
	total := decimal.Zero

	for i, tx := range in.Transactions {
		date, err := parseDate(tx.Date)
		if err != nil {
			return SpendingResult{}, invalidInput("transactions[%d]: invalid date %q", i, tx.Date)
		}

		name := strings.TrimSpace(tx.Category)
		if name == "" {
			name = uncategorized
		}
		cat, ok := categories[name]
		if !ok {
			cat = &CategoryTotal{Category: name, Total: decimal.Zero}
			categories[name] = cat
		}
		cat.Total = cat.Total.Add(tx.Amount)
		cat.Count++

		key := date.Format("2006-01")
		mon, ok := months[key]
		if !ok {
			mon = &MonthTotal{Month: key, Total: decimal.Zero}
			months[key] = mon
		}
		mon.Total = mon.Total.Add(tx.Amount)
		mon.Count++

		total = total.Add(tx.Amount)
	}

	res := SpendingResult{
		Total:          total,
		Count:          len(in.Transactions),
		ByCategory:     make([]CategoryTotal, 0, len(categories)),
		ByMonth:        make([]MonthTotal, 0, len(months)),
		AverageMonthly: decimal.Zero,
	}

	for _, cat := range categories {
		if !total.IsZero() {
			cat.Share = cat.Total.Div(total).Mul(hundred).Round(2).InexactFloat64()
		}
		res.ByCategory = append(res.ByCategory, *cat)
	}
	sort.Slice(res.ByCategory, func(i, j int) bool {
		a, b := res.ByCategory[i], res.ByCategory[j]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})

	for _, mon := range months {
		res.ByMonth = append(res.ByMonth, *mon)
	}
	sort.Slice(res.ByMonth, func(i, j int) bool {
		return res.ByMonth[i].Month < res.ByMonth[j].Month
	})

	if len(res.ByCategory) > 0 {
		res.TopCategory = res.ByCategory[0].Category
	}
	if len(res.ByMonth) > 0 {
		res.AverageMonthly = total.DivRound(decimal.NewFromInt(int64(len(res.ByMonth))), 2)
	}
	return res, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
