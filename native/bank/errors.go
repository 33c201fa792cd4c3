package bank

import "errors"

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInsufficientAllowance is returned when a spender exceeds its approval.
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	// ErrUnknownToken is returned for tokens that were never registered.
	ErrUnknownToken = errors.New("bank: unknown token")
	// ErrTokenExists is returned when a token address is registered twice.
	ErrTokenExists = errors.New("bank: token already registered")
	// ErrOverflow is returned when a credit would exceed 256 bits.
	ErrOverflow = errors.New("bank: amount overflows 256 bits")
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
	// ErrInvalidFee is returned when a transfer fee exceeds 100%.
	ErrInvalidFee = errors.New("bank: transfer fee out of range")
)
