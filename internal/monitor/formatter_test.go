package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "0.0%", FormatPercentage(0))
	assert.Equal(t, "42.0%", FormatPercentage(0.42))
	assert.Equal(t, "100.0%", FormatPercentage(1))
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{"zero", 0, "0.0s"},
		{"sub_second", 260 * time.Millisecond, "0.3s"},
		{"seconds", 12*time.Second + 300*time.Millisecond, "12.3s"},
		{"minutes", 2*time.Minute + 5*time.Second, "2m 5s"},
		{"hours", 2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatElapsed(tt.d))
		})
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   float64
		expected string
	}{
		{0, "0.00"},
		{5.5, "5.50"},
		{999.999, "1,000.00"},
		{1234.5, "1,234.50"},
		{239.2048704935483, "239.20"},
		{1234567.891, "1,234,567.89"},
		{-2500, "-2,500.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatMoney(tt.amount))
	}
}

func TestFormatMonths(t *testing.T) {
	assert.Equal(t, "1 month", FormatMonths(1))
	assert.Equal(t, "11 months", FormatMonths(11))
	assert.Equal(t, "1 year", FormatMonths(12))
	assert.Equal(t, "1 year 4 mo", FormatMonths(16))
	assert.Equal(t, "50 years", FormatMonths(600))
}
