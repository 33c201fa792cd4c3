package orderbook

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/events"
	"limitbook/core/types"
	"limitbook/native/fees"
)

// settlement describes one trade driven through the exchange. The input is
// already in custody.
type settlement struct {
	dir       Direction
	recipient common.Address
	tokenIn   common.Address
	tokenOut  common.Address
	amountIn  *big.Int
	minOut    *big.Int
	// tolerant selects the fee-on-transfer swap variants for token inputs.
	tolerant bool
}

func upstream(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstreamSwapFailed, err)
}

// Execute settles an open order. Anyone may call it; the caller earns the
// order's executor fee. The order is marked Filled before any funds move.
func (e *Engine) Execute(caller common.Address, id uint64) (res *Result, err error) {
	done, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer func() { err = done(err) }()

	if e.sink == nil {
		return nil, errNilSink
	}
	order, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if order.State != StateOpen {
		return nil, ErrNotOpen
	}
	e.mutate(order, func(o *Order) { o.State = StateFilled })
	e.deactivate(order.ID)

	res, err = e.settle(settlement{
		dir:       order.Direction,
		recipient: order.Maker,
		tokenIn:   order.TokenIn,
		tokenOut:  order.TokenOut,
		amountIn:  cloneBigInt(order.AmountInOffered),
		minOut:    cloneBigInt(order.AmountOutExpected),
		tolerant:  order.Deflationary,
	})
	if err != nil {
		return nil, err
	}
	if err := e.distribute(fees.DomainLimitOrder, res); err != nil {
		return nil, err
	}
	if err := e.bank.TransferNative(e.address, caller, order.ExecutorFee); err != nil {
		return nil, fmt.Errorf("%w: executor fee: %w", ErrTransferFailed, err)
	}
	e.emit(events.OrderExecuted{
		ID:          order.ID,
		Executor:    caller,
		AmountIn:    cloneBigInt(res.AmountIn),
		AmountOut:   cloneBigInt(res.AmountOut),
		Fee:         cloneBigInt(res.Fee),
		ExecutorFee: cloneBigInt(order.ExecutorFee),
	})
	e.logger.Debug("order executed",
		"id", order.ID,
		"direction", order.Direction.String(),
		"amountIn", res.AmountIn.String(),
		"amountOut", res.AmountOut.String(),
		"fee", res.Fee.String())
	return res, nil
}

// ExecuteMarket swaps immediately under the same fee policy without creating
// an order. Currency inputs are the attached value; token inputs are pulled
// and measured. Fee-tolerant variants are always used.
func (e *Engine) ExecuteMarket(call types.Call, dir Direction, tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int) (res *Result, err error) {
	done, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer func() { err = done(err) }()

	if e.sink == nil {
		return nil, errNilSink
	}
	if err := e.validateTerms(dir, tokenIn, tokenOut, amountIn, amountOut); err != nil {
		return nil, err
	}
	expected := big.NewInt(0)
	if dir.CurrencyIn() {
		expected = cloneBigInt(amountIn)
	}
	if call.AttachedValue().Cmp(expected) != 0 {
		return nil, ErrInvalidCommitment
	}
	if _, err := e.route(dir, tokenIn, tokenOut); err != nil {
		return nil, err
	}

	if err := e.pullCurrency(call); err != nil {
		return nil, err
	}
	input := cloneBigInt(amountIn)
	if !dir.CurrencyIn() {
		if input, err = e.pullToken(tokenIn, call.Sender, amountIn); err != nil {
			return nil, err
		}
	}
	res, err = e.settle(settlement{
		dir:       dir,
		recipient: call.Sender,
		tokenIn:   tokenIn,
		tokenOut:  tokenOut,
		amountIn:  input,
		minOut:    cloneBigInt(amountOut),
		tolerant:  true,
	})
	if err != nil {
		return nil, err
	}
	if err := e.distribute(fees.DomainMarketOrder, res); err != nil {
		return nil, err
	}
	e.emit(events.MarketExecuted{
		Trader:    call.Sender,
		Direction: dir.String(),
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  cloneBigInt(res.AmountIn),
		AmountOut: cloneBigInt(res.AmountOut),
		Fee:       cloneBigInt(res.Fee),
	})
	return res, nil
}

// settle drives the exchange for one trade and returns the realised amounts and
// the currency fee retained in custody.
func (e *Engine) settle(s settlement) (*Result, error) {
	switch s.dir {
	case CurrencyForToken:
		return e.settleCurrencyForToken(s)
	case TokenForCurrency:
		return e.settleTokenForCurrency(s)
	case TokenForToken:
		return e.settleTokenForToken(s)
	default:
		return nil, fmt.Errorf("%w: unknown direction %d", ErrInvalidOrder, s.dir)
	}
}

// The fee is cut from the escrowed currency before the swap. The output token
// may itself take a transfer fee, so the tolerant variant is always used and
// the output measured at the recipient.
func (e *Engine) settleCurrencyForToken(s settlement) (*Result, error) {
	fee := e.params.Fee.Apply(s.amountIn)
	swapIn := new(big.Int).Sub(s.amountIn, fee)
	path := []common.Address{e.bank.WrappedToken(), s.tokenOut}
	before := e.bank.BalanceOf(s.tokenOut, s.recipient)
	if _, _, err := e.exchange.SwapCurrencyForTokensFeeTolerant(types.NewCall(e.address, swapIn), s.minOut, path, s.recipient, e.now()); err != nil {
		return nil, upstream(err)
	}
	return &Result{
		AmountIn:  swapIn,
		AmountOut: new(big.Int).Sub(e.bank.BalanceOf(s.tokenOut, s.recipient), before),
		Gross:     cloneBigInt(s.amountIn),
		Fee:       fee,
	}, nil
}

// The whole input is sold into custody and the fee is taken from the measured
// currency proceeds before the maker is paid.
func (e *Engine) settleTokenForCurrency(s settlement) (*Result, error) {
	path := []common.Address{s.tokenIn, e.bank.WrappedToken()}
	proceeds, err := e.sellForCurrency(s.tokenIn, s.amountIn, s.minOut, path, s.tolerant)
	if err != nil {
		return nil, err
	}
	fee := e.params.Fee.Apply(proceeds)
	if err := e.bank.TransferNative(e.address, s.recipient, new(big.Int).Sub(proceeds, fee)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return &Result{AmountIn: cloneBigInt(s.amountIn), AmountOut: proceeds, Gross: cloneBigInt(proceeds), Fee: fee}, nil
}

// The input is split into a trade portion swapped to the maker and a fee
// portion sold for currency. When the fee portion would not buy any currency
// the whole input is traded.
func (e *Engine) settleTokenForToken(s settlement) (*Result, error) {
	feePath := []common.Address{s.tokenIn, e.bank.WrappedToken()}
	feeCut := e.params.Fee.Apply(s.amountIn)
	if feeCut.Sign() > 0 && e.sellable(s.tokenIn, feeCut, feePath, s.tolerant).Sign() == 0 {
		e.logger.Debug("fee portion too small to sell", "tokenIn", s.tokenIn.Hex(), "feeCut", feeCut.String())
		feeCut = big.NewInt(0)
	}
	gross := big.NewInt(0)
	if feeCut.Sign() > 0 {
		// Valued before the trade leg; the two legs use different pairs.
		gross = e.sellable(s.tokenIn, s.amountIn, feePath, s.tolerant)
	}
	trade := new(big.Int).Sub(s.amountIn, feeCut)
	if err := e.bank.Approve(s.tokenIn, e.address, e.exchange.Address(), trade); err != nil {
		return nil, err
	}
	path := []common.Address{s.tokenIn, s.tokenOut}
	before := e.bank.BalanceOf(s.tokenOut, s.recipient)
	swap := e.exchange.SwapTokensForTokens
	if s.tolerant {
		swap = e.exchange.SwapTokensForTokensFeeTolerant
	}
	if _, _, err := swap(e.address, trade, s.minOut, path, s.recipient, e.now()); err != nil {
		return nil, upstream(err)
	}
	res := &Result{
		AmountIn:  trade,
		AmountOut: new(big.Int).Sub(e.bank.BalanceOf(s.tokenOut, s.recipient), before),
		Gross:     gross,
		Fee:       big.NewInt(0),
	}
	if feeCut.Sign() > 0 {
		proceeds, err := e.sellForCurrency(s.tokenIn, feeCut, nil, feePath, s.tolerant)
		if err != nil {
			return nil, err
		}
		res.Fee = proceeds
	}
	return res, nil
}

// sellable quotes the currency that amount of token would fetch. Tolerant
// sales only deliver what survives the token's transfer fee, so that is what
// gets quoted. Unquotable amounts are worth zero.
func (e *Engine) sellable(token common.Address, amount *big.Int, path []common.Address, tolerant bool) *big.Int {
	delivered := cloneBigInt(amount)
	if tolerant {
		delivered.Sub(delivered, e.bank.TransferFee(token, amount))
	}
	if delivered.Sign() <= 0 {
		return big.NewInt(0)
	}
	quote, err := e.exchange.GetAmountsOut(delivered, path)
	if err != nil {
		return big.NewInt(0)
	}
	return quote[len(quote)-1]
}

// sellForCurrency swaps amount of token held in custody for currency kept in
// custody and returns the measured proceeds.
func (e *Engine) sellForCurrency(token common.Address, amount, minOut *big.Int, path []common.Address, tolerant bool) (*big.Int, error) {
	if err := e.bank.Approve(token, e.address, e.exchange.Address(), amount); err != nil {
		return nil, err
	}
	before := e.bank.NativeBalance(e.address)
	swap := e.exchange.SwapTokensForCurrency
	if tolerant {
		swap = e.exchange.SwapTokensForCurrencyFeeTolerant
	}
	if _, _, err := swap(e.address, amount, minOut, path, e.address, e.now()); err != nil {
		return nil, upstream(err)
	}
	return new(big.Int).Sub(e.bank.NativeBalance(e.address), before), nil
}

// distribute forwards the fee in res to the sink and the pool and fills in the
// burned and staked shares. A zero fee forwards nothing.
func (e *Engine) distribute(domain string, res *Result) error {
	res.Burned, res.Staked = big.NewInt(0), big.NewInt(0)
	if !positive(res.Fee) {
		return nil
	}
	split := fees.ApplySplit(res.Fee, e.params.Split)
	if split.Stake.Sign() > 0 && !e.poolAccepts() {
		split.Burn = new(big.Int).Add(split.Burn, split.Stake)
		split.Stake = big.NewInt(0)
	}
	if split.Burn.Sign() > 0 {
		if err := e.sink.Burn(types.NewCall(e.address, split.Burn)); err != nil {
			return fmt.Errorf("orderbook: burn: %w", err)
		}
	}
	if split.Stake.Sign() > 0 {
		if err := e.pool.Deposit(types.NewCall(e.address, split.Stake)); err != nil {
			return fmt.Errorf("orderbook: reward deposit: %w", err)
		}
	}
	res.Burned, res.Staked = split.Burn, split.Stake
	e.recordFees(domain, res.Gross, split)
	e.emit(events.FeeSplit{Fee: cloneBigInt(split.Fee), Burned: cloneBigInt(split.Burn), Staked: cloneBigInt(split.Stake)})
	return nil
}

// poolAccepts reports whether a deposit into the reward pool can succeed. Pools
// without stakers would reject it, so their share is burned instead.
func (e *Engine) poolAccepts() bool {
	if e.pool == nil {
		return false
	}
	if counter, ok := e.pool.(stakeCounter); ok {
		total := counter.TotalStaked()
		return total != nil && total.Sign() > 0
	}
	return true
}

// IsUpstream reports whether err came from the exchange rejecting a swap.
func IsUpstream(err error) bool { return errors.Is(err, ErrUpstreamSwapFailed) }
