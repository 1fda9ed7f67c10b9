package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatMoney formats an amount with thousands separators, e.g. 10,234.57.
func FormatMoney(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return sign + b.String() + "." + parts[1]
}

// FormatQuantity formats a quantity trimming trailing zeros, keeping at
// least one decimal place.
func FormatQuantity(qty float64) string {
	s := strconv.FormatFloat(qty, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// FormatConfidence renders confidence as a percentage.
func FormatConfidence(conf float64) string {
	return fmt.Sprintf("%.0f%%", conf*100)
}

// FormatTime renders a timestamp in compact UTC form.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
