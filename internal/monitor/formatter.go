package monitor

import (
	"fmt"
	"time"
)

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatElapsed formats d as "Xh Ym", "Xm Ys" or "X.Ys".
func FormatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	seconds := int64(d / time.Second)
	return FormatDuration(seconds)
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm Ys"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds%60)
}

// FormatMoney formats an amount with two decimals and thousands separators.
func FormatMoney(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := fmt.Sprintf("%.2f", amount)
	whole, frac := s[:len(s)-3], s[len(s)-3:]

	var out []byte
	for i := range len(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, whole[i])
	}
	return sign + string(out) + frac
}

// FormatMonths formats a month count as "N months" or "Y years M months".
func FormatMonths(months int) string {
	switch {
	case months == 1:
		return "1 month"
	case months < 12:
		return fmt.Sprintf("%d months", months)
	case months%12 == 0:
		return pluralYears(months / 12)
	default:
		return fmt.Sprintf("%s %d mo", pluralYears(months/12), months%12)
	}
}

func pluralYears(y int) string {
	if y == 1 {
		return "1 year"
	}
	return fmt.Sprintf("%d years", y)
}
