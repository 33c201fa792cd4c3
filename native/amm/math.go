package amm

import "math/big"

// LP fee of 0.30%, expressed over 1000.
var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
	feeTaken       = big.NewInt(3)
)

// GetAmountOut returns the maximum output for amountIn given the reserves.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	withFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(withFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, withFee)
	return numerator.Div(numerator, denominator), nil
}

// Quote returns the amount of B equivalent to amountA at the current reserve
// ratio, without fees.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA == nil || amountA.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveA == nil || reserveB == nil || reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	out := new(big.Int).Mul(amountA, reserveB)
	return out.Div(out, reserveA), nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
