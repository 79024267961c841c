package receipt

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "0", want: "₹0.00"},
		{in: "5", want: "₹5.00"},
		{in: "999.995", want: "₹1,000.00"},
		{in: "22656", want: "₹22,656.00"},
		{in: "123456.5", want: "₹1,23,456.50"},
		{in: "12345678.999", want: "₹1,23,45,679.00"},
		{in: "-50", want: "-₹50.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatMoneyASCII(t *testing.T) {
	assert.Equal(t, "Rs 1,23,456.50", FormatMoneyASCII(decimal.RequireFromString("123456.5")))
}
