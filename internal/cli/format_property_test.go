package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: FormatMoney groups the integer digits in threes, keeps exactly
// two decimal places, and parses back to the rounded input value.
func TestProperty_MoneyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	grouped := regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)

	properties.Property("FormatMoney produces grouped digits and two decimals", prop.ForAll(
		func(amount float64) bool {
			if math.IsNaN(amount) || math.IsInf(amount, 0) {
				return true
			}

			formatted := FormatMoney(amount)

			if amount < 0 && !strings.HasPrefix(formatted, "-") {
				t.Logf("Expected - prefix for %f, got %s", amount, formatted)
				return false
			}

			numPart := strings.TrimPrefix(formatted, "-")
			parts := strings.Split(numPart, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("Expected two decimal places for %f, got %s", amount, formatted)
				return false
			}
			if !grouped.MatchString(parts[0]) {
				t.Logf("Invalid digit grouping for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatMoney preserves the rounded value", prop.ForAll(
		func(amount float64) bool {
			if math.IsNaN(amount) || math.IsInf(amount, 0) {
				return true
			}

			formatted := FormatMoney(amount)
			parsed, err := strconv.ParseFloat(strings.ReplaceAll(formatted, ",", ""), 64)
			if err != nil {
				t.Logf("Unparseable output for %f: %s", amount, formatted)
				return false
			}

			expected, err := strconv.ParseFloat(strconv.FormatFloat(amount, 'f', 2, 64), 64)
			if err != nil {
				return false
			}
			if math.Abs(parsed-expected) > 1e-6 {
				t.Logf("Round-trip mismatch for %f: formatted %s parsed %f expected %f", amount, formatted, parsed, expected)
				return false
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

// Property: FormatQuantity never ends in a redundant trailing zero but
// always keeps at least one decimal digit, and parses back to the input.
func TestProperty_QuantityFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatQuantity trims zeros and round-trips", prop.ForAll(
		func(qty float64) bool {
			if math.IsNaN(qty) || math.IsInf(qty, 0) {
				return true
			}

			formatted := FormatQuantity(qty)

			if !strings.Contains(formatted, ".") {
				t.Logf("Expected decimal point for %f, got %s", qty, formatted)
				return false
			}
			if strings.HasSuffix(formatted, "0") && !strings.HasSuffix(formatted, ".0") {
				t.Logf("Trailing zero not trimmed for %f: %s", qty, formatted)
				return false
			}

			parsed, err := strconv.ParseFloat(formatted, 64)
			if err != nil {
				t.Logf("Unparseable output for %f: %s", qty, formatted)
				return false
			}
			expected, err := strconv.ParseFloat(strconv.FormatFloat(qty, 'f', 8, 64), 64)
			if err != nil {
				return false
			}
			if math.Abs(parsed-expected) > 1e-9 {
				t.Logf("Round-trip mismatch for %f: %s", qty, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(0, 1e6),
	))

	properties.TestingRun(t)
}
