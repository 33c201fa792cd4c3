package fees

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidFraction is returned for fractions with a zero divisor or a
// numerator above the divisor.
var ErrInvalidFraction = errors.New("fees: invalid fraction")

// Fraction is a mul/div ratio applied with integer division toward zero.
type Fraction struct {
	Mul uint64
	Div uint64
}

// DefaultFee is the protocol fee taken from every trade (0.2%).
var DefaultFee = Fraction{Mul: 2, Div: 1000}

// DefaultSplit sends 60% of the fee to the burn sink and the rest to stakers.
var DefaultSplit = Fraction{Mul: 6, Div: 10}

// Validate checks div > 0 and mul <= div.
func (f Fraction) Validate() error {
	if f.Div == 0 || f.Mul > f.Div {
		return fmt.Errorf("%w: %d/%d", ErrInvalidFraction, f.Mul, f.Div)
	}
	return nil
}

// Apply returns amount × mul ÷ div.
func (f Fraction) Apply(amount *big.Int) *big.Int {
	if amount == nil || f.Div == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(f.Mul))
	return out.Quo(out, new(big.Int).SetUint64(f.Div))
}

// IsZero reports whether the fraction always yields zero.
func (f Fraction) IsZero() bool { return f.Mul == 0 }

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Mul, f.Div) }

// Domains label where a fee was realised.
const (
	DomainLimitOrder  = "limit"
	DomainMarketOrder = "market"
)

// NormalizeDomain canonicalises domain identifiers for consistent lookups.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// Split is the division of a realised fee between the burn sink and the reward
// pool.
type Split struct {
	Fee   *big.Int
	Burn  *big.Int
	Stake *big.Int
}

// ApplySplit divides fee using split: burn = fee × mul ÷ div and stake takes
// the remainder, so Burn + Stake == Fee always holds.
func ApplySplit(fee *big.Int, split Fraction) Split {
	result := Split{Fee: big.NewInt(0), Burn: big.NewInt(0), Stake: big.NewInt(0)}
	if fee == nil || fee.Sign() <= 0 {
		return result
	}
	result.Fee = new(big.Int).Set(fee)
	result.Burn = split.Apply(fee)
	result.Stake = new(big.Int).Sub(fee, result.Burn)
	return result
}

// Totals aggregates fee accounting per domain.
type Totals struct {
	Domain string
	Gross  *big.Int
	Fee    *big.Int
	Burned *big.Int
	Staked *big.Int
	Count  uint64
}

// Clone returns a copy of the totals structure with duplicated big.Int values.
func (t Totals) Clone() Totals {
	clone := Totals{Domain: t.Domain, Count: t.Count}
	if t.Gross != nil {
		clone.Gross = new(big.Int).Set(t.Gross)
	}
	if t.Fee != nil {
		clone.Fee = new(big.Int).Set(t.Fee)
	}
	if t.Burned != nil {
		clone.Burned = new(big.Int).Set(t.Burned)
	}
	if t.Staked != nil {
		clone.Staked = new(big.Int).Set(t.Staked)
	}
	return clone
}

// Record folds one realised split into the totals and returns the updated
// copy.
func (t Totals) Record(gross *big.Int, split Split) Totals {
	next := t.Clone()
	next.Gross = addOrInit(next.Gross, gross)
	next.Fee = addOrInit(next.Fee, split.Fee)
	next.Burned = addOrInit(next.Burned, split.Burn)
	next.Staked = addOrInit(next.Staked, split.Stake)
	next.Count++
	return next
}

func addOrInit(acc, delta *big.Int) *big.Int {
	if acc == nil {
		acc = big.NewInt(0)
	}
	if delta == nil {
		return acc
	}
	return new(big.Int).Add(acc, delta)
}
