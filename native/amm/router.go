package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/types"
)

func (e *Exchange) ensureDeadline(deadline int64) error {
	if deadline < e.nowFn() {
		return ErrExpired
	}
	return nil
}

func (e *Exchange) validatePath(path []common.Address) error {
	if len(path) < 2 {
		return ErrInvalidPath
	}
	for i := 0; i < len(path)-1; i++ {
		if path[i] == path[i+1] {
			return ErrInvalidPath
		}
		if _, err := e.lookup(path[i], path[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exchange) hopRecipient(path []common.Address, i int, to common.Address) common.Address {
	if i < len(path)-2 {
		next, _ := e.lookup(path[i+1], path[i+2])
		return next.Address
	}
	return to
}

func outputs(pair *Pair, input common.Address, amountOut *big.Int) (*big.Int, *big.Int) {
	if input == pair.Token0 {
		return big.NewInt(0), amountOut
	}
	return amountOut, big.NewInt(0)
}

// swapExact executes a path whose hop amounts were computed up front. The
// first pair must already hold amounts[0].
func (e *Exchange) swapExact(amounts []*big.Int, path []common.Address, to common.Address) error {
	for i := 0; i < len(path)-1; i++ {
		pair, err := e.lookup(path[i], path[i+1])
		if err != nil {
			return err
		}
		out0, out1 := outputs(pair, path[i], amounts[i+1])
		if err := e.swap(pair, out0, out1, e.hopRecipient(path, i, to)); err != nil {
			return err
		}
	}
	return nil
}

// swapMeasured executes a path deriving every hop from what the pair actually
// received, so fee-on-transfer tokens settle.
func (e *Exchange) swapMeasured(path []common.Address, to common.Address) error {
	for i := 0; i < len(path)-1; i++ {
		pair, err := e.lookup(path[i], path[i+1])
		if err != nil {
			return err
		}
		reserveIn, reserveOut := pair.reservesFor(path[i])
		amountIn := new(big.Int).Sub(e.bank.BalanceOf(path[i], pair.Address), reserveIn)
		amountOut, err := GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		out0, out1 := outputs(pair, path[i], amountOut)
		if err := e.swap(pair, out0, out1, e.hopRecipient(path, i, to)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exchange) pullTokens(sender common.Address, path []common.Address, amountIn *big.Int) error {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return ErrInsufficientInputAmount
	}
	first, err := e.lookup(path[0], path[1])
	if err != nil {
		return err
	}
	_, err = e.bank.TransferFrom(path[0], e.address, sender, first.Address, amountIn)
	return err
}

func (e *Exchange) pullCurrency(call types.Call, path []common.Address) (*big.Int, error) {
	amountIn := call.AttachedValue()
	if amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	first, err := e.lookup(path[0], path[1])
	if err != nil {
		return nil, err
	}
	if err := e.bank.TransferNative(call.Sender, e.address, amountIn); err != nil {
		return nil, err
	}
	if err := e.bank.Wrap(e.address, amountIn); err != nil {
		return nil, err
	}
	if _, err := e.bank.Transfer(e.bank.WrappedToken(), e.address, first.Address, amountIn); err != nil {
		return nil, err
	}
	return amountIn, nil
}

func (e *Exchange) payCurrency(to common.Address, amount *big.Int) error {
	if err := e.bank.Unwrap(e.address, amount); err != nil {
		return err
	}
	return e.bank.TransferNative(e.address, to, amount)
}

func (e *Exchange) expectOut(amounts []*big.Int, amountOutMin *big.Int) error {
	if amountOutMin != nil && amounts[len(amounts)-1].Cmp(amountOutMin) < 0 {
		return ErrInsufficientOutputAmount
	}
	return nil
}

func checkMin(received, amountOutMin *big.Int) error {
	if amountOutMin != nil && received.Cmp(amountOutMin) < 0 {
		return ErrInsufficientOutputAmount
	}
	return nil
}

// SwapTokensForTokens swaps an exact amount of path[0] for at least
// amountOutMin of the last token.
func (e *Exchange) SwapTokensForTokens(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (in, out *big.Int, err error) {
	mark := e.journal.Begin()
	defer func() { err = e.journal.End(mark, err) }()
	if err := e.ensureDeadline(deadline); err != nil {
		return nil, nil, err
	}
	if err := e.validatePath(path); err != nil {
		return nil, nil, err
	}
	amounts, err := e.GetAmountsOut(amountIn, path)
	if err != nil {
		return nil, nil, err
	}
	if err := e.expectOut(amounts, amountOutMin); err != nil {
		return nil, nil, err
	}
	if err := e.pullTokens(sender, path, amountIn); err != nil {
		return nil, nil, err
	}
	if err := e.swapExact(amounts, path, to); err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(amountIn), amounts[len(amounts)-1], nil
}

// SwapTokensForTokensFeeTolerant is SwapTokensForTokens for tokens that take a
// fee on transfer; the output is measured at the recipient.
func (e *Exchange) SwapTokensForTokensFeeTolerant(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (in, out *big.Int, err error) {
	mark := e.journal.Begin()
	defer func() { err = e.journal.End(mark, err) }()
	if err := e.ensureDeadline(deadline); err != nil {
		return nil, nil, err
	}
	if err := e.validatePath(path); err != nil {
		return nil, nil, err
	}
	last := path[len(path)-1]
	before := e.bank.BalanceOf(last, to)
	if err := e.pullTokens(sender, path, amountIn); err != nil {
		return nil, nil, err
	}
	if err := e.swapMeasured(path, to); err != nil {
		return nil, nil, err
	}
	received := new(big.Int).Sub(e.bank.BalanceOf(last, to), before)
	if err := checkMin(received, amountOutMin); err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(amountIn), received, nil
}

// SwapTokensForCurrency swaps an exact token amount for currency paid to `to`.
// The path must end in the wrapped-currency token.
func (e *Exchange) SwapTokensForCurrency(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (in, out *big.Int, err error) {
	mark := e.journal.Begin()
	defer func() { err = e.journal.End(mark, err) }()
	if err := e.ensureDeadline(deadline); err != nil {
		return nil, nil, err
	}
	if len(path) < 2 || path[len(path)-1] != e.bank.WrappedToken() {
		return nil, nil, ErrInvalidPath
	}
	if err := e.validatePath(path); err != nil {
		return nil, nil, err
	}
	amounts, err := e.GetAmountsOut(amountIn, path)
	if err != nil {
		return nil, nil, err
	}
	if err := e.expectOut(amounts, amountOutMin); err != nil {
		return nil, nil, err
	}
	if err := e.pullTokens(sender, path, amountIn); err != nil {
		return nil, nil, err
	}
	if err := e.swapExact(amounts, path, e.address); err != nil {
		return nil, nil, err
	}
	amountOut := amounts[len(amounts)-1]
	if err := e.payCurrency(to, amountOut); err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(amountIn), amountOut, nil
}

// SwapTokensForCurrencyFeeTolerant is SwapTokensForCurrency for fee-on-transfer
// input tokens.
func (e *Exchange) SwapTokensForCurrencyFeeTolerant(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (in, out *big.Int, err error) {
	mark := e.journal.Begin()
	defer func() { err = e.journal.End(mark, err) }()
	if err := e.ensureDeadline(deadline); err != nil {
		return nil, nil, err
	}
	wrapped := e.bank.WrappedToken()
	if len(path) < 2 || path[len(path)-1] != wrapped {
		return nil, nil, ErrInvalidPath
	}
	if err := e.validatePath(path); err != nil {
		return nil, nil, err
	}
	before := e.bank.BalanceOf(wrapped, e.address)
	if err := e.pullTokens(sender, path, amountIn); err != nil {
		return nil, nil, err
	}
	if err := e.swapMeasured(path, e.address); err != nil {
		return nil, nil, err
	}
	amountOut := new(big.Int).Sub(e.bank.BalanceOf(wrapped, e.address), before)
	if err := checkMin(amountOut, amountOutMin); err != nil {
		return nil, nil, err
	}
	if err := e.payCurrency(to, amountOut); err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(amountIn), amountOut, nil
}

// SwapCurrencyForTokens swaps the attached currency for at least amountOutMin
// tokens. The path must start with the wrapped-currency token.
func (e *Exchange) SwapCurrencyForTokens(call types.Call, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (in, out *big.Int, err error) {
	mark := e.journal.Begin()
	defer func() { err = e.journal.End(mark, err) }()
	if err := e.ensureDeadline(deadline); err != nil {
		return nil, nil, err
	}
	if len(path) < 2 || path[0] != e.bank.WrappedToken() {
		return nil, nil, ErrInvalidPath
	}
	if err := e.validatePath(path); err != nil {
		return nil, nil, err
	}
	amounts, err := e.GetAmountsOut(call.AttachedValue(), path)
	if err != nil {
		return nil, nil, err
	}
	if err := e.expectOut(amounts, amountOutMin); err != nil {
		return nil, nil, err
	}
	amountIn, err := e.pullCurrency(call, path)
	if err != nil {
		return nil, nil, err
	}
	if err := e.swapExact(amounts, path, to); err != nil {
		return nil, nil, err
	}
	return amountIn, amounts[len(amounts)-1], nil
}

// SwapCurrencyForTokensFeeTolerant is SwapCurrencyForTokens for fee-on-transfer
// output tokens; the output is measured at the recipient.
func (e *Exchange) SwapCurrencyForTokensFeeTolerant(call types.Call, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (in, out *big.Int, err error) {
	mark := e.journal.Begin()
	defer func() { err = e.journal.End(mark, err) }()
	if err := e.ensureDeadline(deadline); err != nil {
		return nil, nil, err
	}
	if len(path) < 2 || path[0] != e.bank.WrappedToken() {
		return nil, nil, ErrInvalidPath
	}
	if err := e.validatePath(path); err != nil {
		return nil, nil, err
	}
	last := path[len(path)-1]
	before := e.bank.BalanceOf(last, to)
	amountIn, err := e.pullCurrency(call, path)
	if err != nil {
		return nil, nil, err
	}
	if err := e.swapMeasured(path, to); err != nil {
		return nil, nil, err
	}
	received := new(big.Int).Sub(e.bank.BalanceOf(last, to), before)
	if err := checkMin(received, amountOutMin); err != nil {
		return nil, nil, err
	}
	return amountIn, received, nil
}
