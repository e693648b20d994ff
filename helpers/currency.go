package helpers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatRupiah formats an amount as Indonesian Rupiah, rounded to whole
// rupiah with dots as thousand separators ("Rp 1.234.567")
func FormatRupiah(amount float64) string {
	digits := decimal.NewFromFloat(amount).Round(0).String()

	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	b.WriteString("Rp ")
	if negative {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatPercent formats a signed percentage with two decimals ("+1.50%")
func FormatPercent(pct float64) string {
	d := decimal.NewFromFloat(pct).Round(2)
	s := d.StringFixed(2) + "%"
	if d.IsPositive() {
		return "+" + s
	}
	return s
}
