package receipt

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	rupeeSign   = "₹"
	rupeePrefix = "Rs "
)

// FormatMoney renders an amount in rupees with Indian digit grouping, for
// example ₹1,23,456.50.
func FormatMoney(d decimal.Decimal) string {
	return signed(d, rupeeSign)
}

// FormatMoneyASCII is FormatMoney for printers without the rupee glyph.
func FormatMoneyASCII(d decimal.Decimal) string {
	return signed(d, rupeePrefix)
}

func signed(d decimal.Decimal, symbol string) string {
	d = d.Round(2)
	if d.IsNegative() {
		return "-" + symbol + groupIndian(d.Neg())
	}
	return symbol + groupIndian(d)
}

// groupIndian formats a non-negative amount as 12,34,567.89.
func groupIndian(d decimal.Decimal) string {
	s := d.StringFixed(2)
	whole, frac := s[:len(s)-3], s[len(s)-2:]
	if len(whole) <= 3 {
		return whole + "." + frac
	}

	head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return strings.Join(groups, ",") + "," + tail + "." + frac
}
