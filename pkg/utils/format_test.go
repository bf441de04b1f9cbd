package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var indianGrouping = regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

func parseIndianCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	v, _ := strconv.ParseFloat(s, 64)
	if negative {
		return -v
	}
	return v
}

// Property: FormatIndianCurrency always yields a rupee amount with two
// decimals, lakh/crore digit grouping, and the original value to the paisa.
func TestProperty_IndianCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("valid Indian format", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)
			prefix := "₹"
			if amount < 0 {
				prefix = "-₹"
			}
			if !strings.HasPrefix(formatted, prefix) {
				return false
			}
			intPart, decPart, ok := strings.Cut(strings.TrimPrefix(strings.TrimPrefix(formatted, "-"), "₹"), ".")
			return ok && len(decPart) == 2 && indianGrouping.MatchString(intPart)
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("value preserved", prop.ForAll(
		func(amount float64) bool {
			parsed := parseIndianCurrency(FormatIndianCurrency(amount))
			return math.Abs(parsed-math.Round(amount*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

func TestFormatIndianCurrency(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "₹0.00"},
		{999, "₹999.00"},
		{1000, "₹1,000.00"},
		{100000, "₹1,00,000.00"},
		{10000000, "₹1,00,00,000.00"},
		{-1234.56, "-₹1,234.56"},
		{12345678.90, "₹1,23,45,678.90"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatIndianCurrency(tt.amount))
		})
	}
}

func TestFormatPnLAndPercent(t *testing.T) {
	assert.Equal(t, "+₹2,500.00", FormatPnL(2500))
	assert.Equal(t, "-₹2,500.00", FormatPnL(-2500))
	assert.Equal(t, "₹0.00", FormatPnL(0))
	assert.Equal(t, "+1.50%", FormatPercent(1.5))
	assert.Equal(t, "-2.50%", FormatPercent(-2.5))
	assert.Equal(t, "12.50", FormatPrice(12.5))
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC) // 08:30 IST
	got := StartOfDay(in, IndiaLocation)
	assert.Equal(t, 15, got.Day())
	assert.Equal(t, 0, got.Hour())
	assert.Equal(t, IndiaLocation, got.Location())
}
