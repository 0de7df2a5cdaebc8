package payments

import (
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

// ToMinorUnits converts an amount into the processor's smallest currency unit.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(units int64, currency string) decimal.Decimal {
	d := decimal.NewFromInt(units)
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return d
	}
	return d.Shift(-2)
}

// SplitShare returns each fulfiller's cut of amount: share of the total divided evenly,
// truncated to cents so the parts never add up to more than the payment.
func SplitShare(amount, share decimal.Decimal, fulfillers int) decimal.Decimal {
	if fulfillers < 1 {
		return decimal.Zero
	}
	pool := amount.Mul(share)
	return pool.Div(decimal.NewFromInt(int64(fulfillers))).Truncate(2)
}
