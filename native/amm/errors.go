package amm

import "errors"

var (
	ErrPairNotFound             = errors.New("amm: pair not found")
	ErrPairExists               = errors.New("amm: pair exists")
	ErrIdenticalTokens          = errors.New("amm: identical tokens")
	ErrInvalidPath              = errors.New("amm: invalid path")
	ErrExpired                  = errors.New("amm: expired")
	ErrInsufficientOutputAmount = errors.New("amm: insufficient output amount")
	ErrInsufficientInputAmount  = errors.New("amm: insufficient input amount")
	ErrInsufficientLiquidity    = errors.New("amm: insufficient liquidity")
	ErrInvariant                = errors.New("amm: constant product violated")
)
