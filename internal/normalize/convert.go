package normalize

import (
	"math"

	"github.com/shopspring/decimal"
)

// isDecimalOdds reports whether an upstream numeric looks like European
// decimal odds rather than an American price. A value strictly between -1 and
// 3 that is not an integer can only be decimal odds; every other numeric is
// treated as already-American.
func isDecimalOdds(v float64) bool {
	return v > -1 && v < 3 && v != math.Trunc(v)
}

// AmericanFromDecimal converts decimal odds (d > 1) to an American price.
func AmericanFromDecimal(d float64) int {
	dd := decimal.NewFromFloat(d)
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	if d >= 2.0 {
		return int(dd.Sub(one).Mul(hundred).Round(0).IntPart())
	}
	return int(hundred.Neg().Div(dd.Sub(one)).Round(0).IntPart())
}

// DecimalFromAmerican converts an American price back to decimal odds.
func DecimalFromAmerican(a int) float64 {
	if a > 0 {
		return 1 + float64(a)/100
	}
	return 1 + 100/float64(-a)
}

// priceFromUpstream maps any upstream numeric price onto the canonical
// American convention. The second return is false when the value cannot be a
// valid price (decimal odds at or below 1, or a zero American price), in
// which case the market is omitted rather than defaulted.
func priceFromUpstream(v float64) (int, bool) {
	if isDecimalOdds(v) {
		if v <= 1 {
			return 0, false
		}
		return AmericanFromDecimal(v), true
	}
	a := int(math.Round(v))
	if a == 0 {
		return 0, false
	}
	return a, true
}
