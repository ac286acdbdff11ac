package transaction

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultFeePercentage is the platform fee applied when none is configured.
var DefaultFeePercentage = decimal.NewFromFloat(2.5)

var hundred = decimal.NewFromInt(100)

// currencyMinorUnits lists currencies whose minor unit is not two decimals.
var currencyMinorUnits = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// MinorUnits returns the number of decimals in a currency's minor unit.
func MinorUnits(currency string) int32 {
	if places, ok := currencyMinorUnits[strings.ToUpper(currency)]; ok {
		return places
	}
	return 2
}

// RoundToMinorUnit rounds half-to-even to the currency's minor unit.
func RoundToMinorUnit(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(MinorUnits(currency))
}

// FitsMinorUnit reports whether amount has no precision beyond the currency's minor unit.
func FitsMinorUnit(amount decimal.Decimal, currency string) bool {
	return amount.Equal(amount.Truncate(MinorUnits(currency)))
}

// FormatAmount renders amount with exactly the currency's minor-unit decimals.
func FormatAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixedBank(MinorUnits(currency))
}

// FeeBreakdown is the split of a gross amount into fee and merchant settlement.
type FeeBreakdown struct {
	Amount     decimal.Decimal
	Percentage decimal.Decimal
	Fee        decimal.Decimal
	Settlement decimal.Decimal
	Currency   string
}

// FeeCalculator computes platform fees at a fixed percentage.
type FeeCalculator struct {
	percentage decimal.Decimal
}

// NewFeeCalculator creates a calculator for a percentage in [0, 100].
func NewFeeCalculator(percentage decimal.Decimal) (*FeeCalculator, error) {
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return nil, fmt.Errorf("fee percentage %s outside [0, 100]", percentage)
	}
	return &FeeCalculator{percentage: percentage}, nil
}

// Percentage returns the configured fee percentage.
func (c *FeeCalculator) Percentage() decimal.Decimal {
	return c.percentage
}

// Calculate splits amount into fee and settlement.
func (c *FeeCalculator) Calculate(amount decimal.Decimal, currency string) (FeeBreakdown, error) {
	return CalculateFee(amount, currency, c.percentage)
}

// CalculateFee computes settlement = amount × (1 − pct/100), rounded
// half-to-even to the currency's minor unit, and fee = amount − settlement.
// Fee and settlement always sum to the gross amount.
func CalculateFee(amount decimal.Decimal, currency string, percentage decimal.Decimal) (FeeBreakdown, error) {
	if amount.IsNegative() {
		return FeeBreakdown{}, fmt.Errorf("amount %s is negative", amount)
	}
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return FeeBreakdown{}, fmt.Errorf("fee percentage %s outside [0, 100]", percentage)
	}

	factor := decimal.NewFromInt(1).Sub(percentage.Div(hundred))
	settlement := RoundToMinorUnit(amount.Mul(factor), currency)

	return FeeBreakdown{
		Amount:     amount,
		Percentage: percentage,
		Fee:        amount.Sub(settlement),
		Settlement: settlement,
		Currency:   strings.ToUpper(currency),
	}, nil
}
