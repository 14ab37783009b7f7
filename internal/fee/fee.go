// Package fee computes the platform fee withheld from a withdrawal.
package fee

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"payouts.hh/internal/withdrawal"
)

var ErrInvalidPolicy = errors.New("invalid fee policy")

// Policy is a percentage of the requested amount plus an optional flat
// component, both charged in minor units.
type Policy struct {
	Rate  decimal.Decimal
	Fixed int64
}

func DefaultPolicy() Policy {
	return Policy{Rate: decimal.NewFromFloat(0.03)}
}

type Calculator struct {
	policy Policy
}

func NewCalculator(p Policy) (*Calculator, error) {
	if p.Rate.IsNegative() || p.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: rate %s outside [0, 1)", ErrInvalidPolicy, p.Rate)
	}
	if p.Fixed < 0 {
		return nil, fmt.Errorf("%w: negative fixed fee %d", ErrInvalidPolicy, p.Fixed)
	}
	return &Calculator{policy: p}, nil
}

// Compute splits requested into the fee and the net payout. The percentage
// part is rounded half-up to the minor unit. The sum is checked before it is
// narrowed back to int64.
func (c *Calculator) Compute(requested int64) (fee, net int64, err error) {
	if requested <= 0 {
		return 0, 0, withdrawal.ErrInvalidAmount
	}

	amount := decimal.NewFromInt(requested)
	total := amount.Mul(c.policy.Rate).Round(0).Add(decimal.NewFromInt(c.policy.Fixed))
	if total.GreaterThanOrEqual(amount) {
		return 0, 0, fmt.Errorf("%w: fee %s consumes requested amount %d", withdrawal.ErrInvalidAmount, total, requested)
	}
	fee = total.IntPart()
	return fee, requested - fee, nil
}
