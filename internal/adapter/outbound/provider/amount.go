package provider

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimal lists the currencies card networks charge in whole units.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

func exponent(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// toMinor converts a decimal amount string to integer minor units.
func toMinor(amount, currency string) (int64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	minor := d.Shift(exponent(currency))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", amount, currency)
	}
	return minor.IntPart(), nil
}

// fromMinor converts integer minor units back to a decimal amount.
func fromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -exponent(currency))
}
