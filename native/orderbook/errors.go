package orderbook

import (
	"errors"

	"limitbook/native/fees"
)

var (
	ErrNotFound           = errors.New("orderbook: order not found")
	ErrPermissionDenied   = errors.New("orderbook: permission denied")
	ErrNotOpen            = errors.New("orderbook: order not open")
	ErrInvalidOrder       = errors.New("orderbook: invalid order")
	ErrInvalidCommitment  = errors.New("orderbook: attached value must match commitment")
	ErrCommitmentMismatch = errors.New("orderbook: additional value must match commitment change")
	ErrNoRoute            = errors.New("orderbook: unavailable pair")
	ErrTransferFailed     = errors.New("orderbook: transfer failed")
	ErrUpstreamSwapFailed = errors.New("orderbook: upstream swap failed")
	ErrIndexOutOfRange    = errors.New("orderbook: index out of range")
	ErrNotOwner           = errors.New("orderbook: caller is not the owner")
	ErrInvalidFraction    = fees.ErrInvalidFraction

	errNilSink = errors.New("orderbook: fee sink not configured")
)
