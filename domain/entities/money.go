package entities

import (
	"fmt"
	"strconv"
)

// Money is an amount in minor currency units (cents). All stake and payout
// arithmetic stays in integers; display formatting is the only place the
// value is rendered as dollars.
type Money int64

// MoneyFromDollars builds a Money from a whole-dollar amount.
func MoneyFromDollars(dollars int64) Money {
	return Money(dollars * 100)
}

// Dollars returns the amount as a float for display and metrics only.
func (m Money) Dollars() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

// Price is an American odds quote: -110 risks 110 to win 100, +145 risks 100
// to win 145. The zero value means no quote is offered.
type Price int32

// Valid reports whether p sits on the American odds ladder, which has no
// values between -100 and +100 exclusive.
func (p Price) Valid() bool {
	return p >= 100 || p <= -100
}

// Underdog reports whether the price pays better than even money.
func (p Price) Underdog() bool {
	return p >= 100
}

// DecimalFactor converts to European-style decimal odds (stake included).
func (p Price) DecimalFactor() float64 {
	switch {
	case p >= 100:
		return 1 + float64(p)/100
	case p <= -100:
		return 1 + 100/float64(-p)
	default:
		return 0
	}
}

// ToWin returns the payout won by risking the given amount at this price.
func (p Price) ToWin(risk Money) Money {
	switch {
	case p >= 100:
		return Money(int64(risk) * int64(p) / 100)
	case p <= -100:
		return Money(int64(risk) * 100 / int64(-p))
	default:
		return 0
	}
}

// RiskToWin returns the stake required to win the given amount at this price.
func (p Price) RiskToWin(win Money) Money {
	switch {
	case p >= 100:
		return Money(int64(win) * 100 / int64(p))
	case p <= -100:
		return Money(int64(win) * int64(-p) / 100)
	default:
		return 0
	}
}

func (p Price) String() string {
	if p > 0 {
		return fmt.Sprintf("+%d", int32(p))
	}
	return strconv.Itoa(int(p))
}

// ConvertAtPrice expresses a running chain budget in the entry units of a leg
// priced p. Bettors enter favorites in to-win units and underdogs in risk
// units, so a favorite shrinks the budget by 100/|p| while an underdog passes
// it through unchanged.
func ConvertAtPrice(budget Money, p Price) Money {
	if p <= -100 {
		return Money(int64(budget) * 100 / int64(-p))
	}
	return budget
}

// Line is a point handicap or total in half-point granularity. Half points
// are exactly representable, so direct comparison is safe.
type Line float64

func (l Line) String() string {
	return strconv.FormatFloat(float64(l), 'f', -1, 64)
}
