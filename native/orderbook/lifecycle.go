package orderbook

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/events"
	"limitbook/core/types"
)

// validateTerms checks the direction, the token pair and the amounts of an
// order or market swap.
func (e *Engine) validateTerms(dir Direction, tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: unknown direction %d", ErrInvalidOrder, dir)
	}
	zero := common.Address{}
	if tokenIn == zero || tokenOut == zero || tokenIn == tokenOut {
		return fmt.Errorf("%w: token pair", ErrInvalidOrder)
	}
	wrapped := e.bank.WrappedToken()
	switch dir {
	case CurrencyForToken:
		if tokenIn != wrapped {
			return fmt.Errorf("%w: currency input must name the wrapped token", ErrInvalidOrder)
		}
	case TokenForCurrency:
		if tokenOut != wrapped {
			return fmt.Errorf("%w: currency output must name the wrapped token", ErrInvalidOrder)
		}
	case TokenForToken:
		if tokenIn == wrapped || tokenOut == wrapped {
			return fmt.Errorf("%w: token order cannot name the wrapped token", ErrInvalidOrder)
		}
	}
	if !positive(amountIn) || !positive(amountOut) {
		return fmt.Errorf("%w: amounts must be positive", ErrInvalidOrder)
	}
	return nil
}

// route resolves the fee-bearing leg and the trading pair of an order.
func (e *Engine) route(dir Direction, tokenIn, tokenOut common.Address) (common.Address, error) {
	wrapped := e.bank.WrappedToken()
	feeLeg := [2]common.Address{tokenIn, wrapped}
	if dir.CurrencyIn() {
		feeLeg = [2]common.Address{wrapped, tokenOut}
	}
	if _, ok := e.exchange.GetPair(feeLeg[0], feeLeg[1]); !ok {
		return common.Address{}, ErrNoRoute
	}
	pair, ok := e.exchange.GetPair(tokenIn, tokenOut)
	if !ok {
		return common.Address{}, ErrNoRoute
	}
	return pair, nil
}

// pullToken moves amount of token from owner into custody and returns what
// actually arrived.
func (e *Engine) pullToken(token, owner common.Address, amount *big.Int) (*big.Int, error) {
	before := e.bank.BalanceOf(token, e.address)
	if _, err := e.bank.TransferFrom(token, e.address, owner, e.address, amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	received := new(big.Int).Sub(e.bank.BalanceOf(token, e.address), before)
	if received.Sign() <= 0 {
		return nil, fmt.Errorf("%w: token delivered nothing", ErrInvalidOrder)
	}
	return received, nil
}

func (e *Engine) pullCurrency(call types.Call) error {
	if !call.HasValue() {
		return nil
	}
	if err := e.bank.TransferNative(call.Sender, e.address, call.AttachedValue()); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// Place validates and escrows a new order without swapping. The attached value
// must equal executorFee, plus amountIn when the input is currency. Token
// inputs are pulled with an allowance granted to Address() and recorded as
// received.
func (e *Engine) Place(call types.Call, dir Direction, tokenIn, tokenOut common.Address, amountIn, amountOut, executorFee *big.Int) (id uint64, err error) {
	done, err := e.enter()
	if err != nil {
		return 0, err
	}
	defer func() { err = done(err) }()

	if err := e.validateTerms(dir, tokenIn, tokenOut, amountIn, amountOut); err != nil {
		return 0, err
	}
	if !positive(executorFee) {
		return 0, fmt.Errorf("%w: executor fee must be positive", ErrInvalidOrder)
	}
	commitment := cloneBigInt(executorFee)
	if dir.CurrencyIn() {
		commitment.Add(commitment, amountIn)
	}
	if call.AttachedValue().Cmp(commitment) != 0 {
		return 0, ErrInvalidCommitment
	}
	pair, err := e.route(dir, tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}

	if err := e.pullCurrency(call); err != nil {
		return 0, err
	}
	offered := cloneBigInt(amountIn)
	deflationary := false
	if !dir.CurrencyIn() {
		received, err := e.pullToken(tokenIn, call.Sender, amountIn)
		if err != nil {
			return 0, err
		}
		deflationary = received.Cmp(amountIn) < 0
		offered = received
	}

	now := e.now()
	order := &Order{
		ID:                uint64(len(e.orders)),
		Direction:         dir,
		Maker:             call.Sender,
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Pair:              pair,
		AmountInOffered:   offered,
		AmountOutExpected: cloneBigInt(amountOut),
		ExecutorFee:       cloneBigInt(executorFee),
		TotalCommitted:    commitment,
		State:             StateOpen,
		Deflationary:      deflationary,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	e.appendOrder(order)
	e.appendHistory(order.Maker, order.ID)
	e.appendHistory(order.Pair, order.ID)
	e.activate(order.ID)

	e.emit(events.OrderPlaced{
		ID:           order.ID,
		Direction:    dir.String(),
		Maker:        order.Maker,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     cloneBigInt(offered),
		AmountOut:    cloneBigInt(amountOut),
		ExecutorFee:  cloneBigInt(executorFee),
		Deflationary: deflationary,
	})
	return order.ID, nil
}

// Update amends an open order. Raising a token amount pulls the difference,
// lowering it refunds the difference at once. The currency commitment is
// recomputed from the new terms: growth must be attached exactly, and a shrink
// is refunded with nothing attached.
func (e *Engine) Update(call types.Call, id uint64, amountIn, amountOut, executorFee *big.Int) (updated *Order, err error) {
	done, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer func() { err = done(err) }()

	order, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if order.Maker != call.Sender {
		return nil, ErrPermissionDenied
	}
	if order.State != StateOpen {
		return nil, ErrNotOpen
	}
	if !positive(amountIn) || !positive(amountOut) || !positive(executorFee) {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrInvalidOrder)
	}

	newTotal := cloneBigInt(executorFee)
	if order.Direction.CurrencyIn() {
		newTotal.Add(newTotal, amountIn)
	}
	attached := call.AttachedValue()
	growth := new(big.Int).Sub(newTotal, order.TotalCommitted)
	if growth.Sign() > 0 {
		if attached.Cmp(growth) != 0 {
			return nil, ErrCommitmentMismatch
		}
	} else if attached.Sign() != 0 {
		return nil, ErrCommitmentMismatch
	}

	if err := e.pullCurrency(call); err != nil {
		return nil, err
	}
	offered := cloneBigInt(amountIn)
	deflationary := order.Deflationary
	if !order.Direction.CurrencyIn() {
		delta := new(big.Int).Sub(amountIn, order.AmountInOffered)
		switch delta.Sign() {
		case 1:
			received, err := e.pullToken(order.TokenIn, order.Maker, delta)
			if err != nil {
				return nil, err
			}
			if received.Cmp(delta) < 0 {
				deflationary = true
			}
			offered = received.Add(received, order.AmountInOffered)
		case -1:
			if _, err := e.bank.Transfer(order.TokenIn, e.address, order.Maker, delta.Neg(delta)); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
			}
		}
	}
	if growth.Sign() < 0 {
		if err := e.bank.TransferNative(e.address, order.Maker, new(big.Int).Neg(growth)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}

	e.mutate(order, func(o *Order) {
		o.AmountInOffered = offered
		o.AmountOutExpected = cloneBigInt(amountOut)
		o.ExecutorFee = cloneBigInt(executorFee)
		o.TotalCommitted = newTotal
		o.Deflationary = deflationary
	})
	e.emit(events.OrderUpdated{
		ID:             order.ID,
		Maker:          order.Maker,
		AmountIn:       cloneBigInt(order.AmountInOffered),
		AmountOut:      cloneBigInt(order.AmountOutExpected),
		ExecutorFee:    cloneBigInt(order.ExecutorFee),
		TotalCommitted: cloneBigInt(order.TotalCommitted),
		Deflationary:   order.Deflationary,
	})
	return order.Clone(), nil
}

// Cancel closes an open order and refunds the escrowed tokens and currency to
// the maker. History indices keep the order.
func (e *Engine) Cancel(caller common.Address, id uint64) (err error) {
	done, err := e.enter()
	if err != nil {
		return err
	}
	defer func() { err = done(err) }()

	order, err := e.load(id)
	if err != nil {
		return err
	}
	if order.Maker != caller {
		return ErrPermissionDenied
	}
	if order.State != StateOpen {
		return ErrNotOpen
	}
	e.mutate(order, func(o *Order) { o.State = StateCancelled })
	e.deactivate(order.ID)

	refundedToken := big.NewInt(0)
	if !order.Direction.CurrencyIn() && positive(order.AmountInOffered) {
		refundedToken = cloneBigInt(order.AmountInOffered)
		if _, err := e.bank.Transfer(order.TokenIn, e.address, order.Maker, refundedToken); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}
	if positive(order.TotalCommitted) {
		if err := e.bank.TransferNative(e.address, order.Maker, order.TotalCommitted); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}
	e.emit(events.OrderCancelled{
		ID:             order.ID,
		Maker:          order.Maker,
		RefundedToken:  refundedToken,
		RefundedNative: cloneBigInt(order.TotalCommitted),
	})
	return nil
}
