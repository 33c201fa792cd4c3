package amm

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"limitbook/core/state"
	"limitbook/core/types"
)

// Bank is the custody surface the exchange settles against.
type Bank interface {
	WrappedToken() common.Address
	IsToken(addr common.Address) bool
	BalanceOf(token, holder common.Address) *big.Int
	NativeBalance(addr common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) (*big.Int, error)
	TransferFrom(token, spender, from, to common.Address, amount *big.Int) (*big.Int, error)
	TransferNative(from, to common.Address, amount *big.Int) error
	Wrap(addr common.Address, amount *big.Int) error
	Unwrap(addr common.Address, amount *big.Int) error
}

// Pair is a constant-product pool between two tokens. Token0 sorts before
// Token1.
type Pair struct {
	Address     common.Address
	Token0      common.Address
	Token1      common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
	shares      map[common.Address]*big.Int
}

func (p *Pair) clone() Pair {
	return Pair{
		Address:     p.Address,
		Token0:      p.Token0,
		Token1:      p.Token1,
		Reserve0:    new(big.Int).Set(p.Reserve0),
		Reserve1:    new(big.Int).Set(p.Reserve1),
		TotalSupply: new(big.Int).Set(p.TotalSupply),
	}
}

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// Exchange acts as pair factory and router. Token inputs are pulled with
// TransferFrom, so callers approve Address() first; currency inputs are taken
// from the call value.
type Exchange struct {
	bank    Bank
	journal *state.Journal
	address common.Address
	pairs   map[pairKey]*Pair
	byAddr  map[common.Address]*Pair
	nowFn   func() int64
}

// NewExchange constructs an exchange settling against bank.
func NewExchange(bank Bank, journal *state.Journal) *Exchange {
	return &Exchange{
		bank:    bank,
		journal: journal,
		address: types.ModuleAddress("amm"),
		pairs:   make(map[pairKey]*Pair),
		byAddr:  make(map[common.Address]*Pair),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the clock used for deadline checks.
func (e *Exchange) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Address returns the router account that must be approved for token inputs.
func (e *Exchange) Address() common.Address { return e.address }

func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return a, b
	}
	return b, a
}

// PairAddress derives the deterministic address of the tokenA/tokenB pair.
func (e *Exchange) PairAddress(tokenA, tokenB common.Address) common.Address {
	t0, t1 := sortTokens(tokenA, tokenB)
	return common.BytesToAddress(ethcrypto.Keccak256(e.address[:], t0[:], t1[:])[12:])
}

// CreatePair registers a new empty pool.
func (e *Exchange) CreatePair(tokenA, tokenB common.Address) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, ErrIdenticalTokens
	}
	for _, tok := range []common.Address{tokenA, tokenB} {
		if !e.bank.IsToken(tok) {
			return common.Address{}, fmt.Errorf("amm: unknown token %s", tok.Hex())
		}
	}
	t0, t1 := sortTokens(tokenA, tokenB)
	key := pairKey{t0, t1}
	if _, ok := e.pairs[key]; ok {
		return common.Address{}, ErrPairExists
	}
	pair := &Pair{
		Address:     e.PairAddress(t0, t1),
		Token0:      t0,
		Token1:      t1,
		Reserve0:    big.NewInt(0),
		Reserve1:    big.NewInt(0),
		TotalSupply: big.NewInt(0),
		shares:      make(map[common.Address]*big.Int),
	}
	e.pairs[key] = pair
	e.byAddr[pair.Address] = pair
	e.journal.Record(func() {
		delete(e.pairs, key)
		delete(e.byAddr, pair.Address)
	})
	return pair.Address, nil
}

// GetPair returns the pool address for the two tokens, if one exists.
func (e *Exchange) GetPair(tokenA, tokenB common.Address) (common.Address, bool) {
	t0, t1 := sortTokens(tokenA, tokenB)
	pair, ok := e.pairs[pairKey{t0, t1}]
	if !ok {
		return common.Address{}, false
	}
	return pair.Address, true
}

// Pair returns a copy of the pool at addr.
func (e *Exchange) Pair(addr common.Address) (Pair, bool) {
	pair, ok := e.byAddr[addr]
	if !ok {
		return Pair{}, false
	}
	return pair.clone(), true
}

// Reserves returns the reserves ordered as (tokenA, tokenB).
func (e *Exchange) Reserves(tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	pair, err := e.lookup(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	ra, rb := pair.reservesFor(tokenA)
	return new(big.Int).Set(ra), new(big.Int).Set(rb), nil
}

// LiquidityOf returns the pool shares held by provider.
func (e *Exchange) LiquidityOf(pairAddr, provider common.Address) *big.Int {
	pair, ok := e.byAddr[pairAddr]
	if !ok {
		return big.NewInt(0)
	}
	if v, ok := pair.shares[provider]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (e *Exchange) lookup(tokenA, tokenB common.Address) (*Pair, error) {
	t0, t1 := sortTokens(tokenA, tokenB)
	pair, ok := e.pairs[pairKey{t0, t1}]
	if !ok {
		return nil, ErrPairNotFound
	}
	return pair, nil
}

func (p *Pair) reservesFor(input common.Address) (*big.Int, *big.Int) {
	if input == p.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

// GetAmountsOut walks path and returns the output of every hop for amountIn.
func (e *Exchange) GetAmountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		pair, err := e.lookup(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := pair.reservesFor(path[i])
		out, err := GetAmountOut(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// Quote prices amountA of tokenA in tokenB at the current reserves.
func (e *Exchange) Quote(amountA *big.Int, tokenA, tokenB common.Address) (*big.Int, error) {
	ra, rb, err := e.Reserves(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	return Quote(amountA, ra, rb)
}

// AddLiquidity deposits up to the desired amounts from provider at the current
// ratio, creating the pool when missing, and returns the minted shares.
func (e *Exchange) AddLiquidity(provider, tokenA, tokenB common.Address, amountADesired, amountBDesired *big.Int) (liquidity *big.Int, err error) {
	mark := e.journal.Begin()
	defer func() { err = e.journal.End(mark, err) }()

	if amountADesired == nil || amountBDesired == nil || amountADesired.Sign() <= 0 || amountBDesired.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	pair, lookupErr := e.lookup(tokenA, tokenB)
	if lookupErr != nil {
		if _, err := e.CreatePair(tokenA, tokenB); err != nil {
			return nil, err
		}
		pair, _ = e.lookup(tokenA, tokenB)
	}
	amountA, amountB := new(big.Int).Set(amountADesired), new(big.Int).Set(amountBDesired)
	ra, rb := pair.reservesFor(tokenA)
	if ra.Sign() > 0 && rb.Sign() > 0 {
		bOptimal, _ := Quote(amountADesired, ra, rb)
		if bOptimal.Cmp(amountBDesired) <= 0 {
			amountB = bOptimal
		} else {
			aOptimal, _ := Quote(amountBDesired, rb, ra)
			amountA = aOptimal
		}
	}
	if _, err := e.bank.Transfer(tokenA, provider, pair.Address, amountA); err != nil {
		return nil, err
	}
	if _, err := e.bank.Transfer(tokenB, provider, pair.Address, amountB); err != nil {
		return nil, err
	}
	return e.mint(pair, provider)
}

func (e *Exchange) mint(pair *Pair, to common.Address) (*big.Int, error) {
	balance0 := e.bank.BalanceOf(pair.Token0, pair.Address)
	balance1 := e.bank.BalanceOf(pair.Token1, pair.Address)
	amount0 := new(big.Int).Sub(balance0, pair.Reserve0)
	amount1 := new(big.Int).Sub(balance1, pair.Reserve1)
	var liquidity *big.Int
	if pair.TotalSupply.Sign() == 0 {
		liquidity = new(big.Int).Sqrt(new(big.Int).Mul(amount0, amount1))
	} else {
		l0 := new(big.Int).Mul(amount0, pair.TotalSupply)
		l0.Div(l0, pair.Reserve0)
		l1 := new(big.Int).Mul(amount1, pair.TotalSupply)
		l1.Div(l1, pair.Reserve1)
		liquidity = minBig(l0, l1)
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	held := pair.shares[to]
	if held == nil {
		held = big.NewInt(0)
	}
	e.setShares(pair, to, new(big.Int).Add(held, liquidity), new(big.Int).Add(pair.TotalSupply, liquidity))
	e.setReserves(pair, balance0, balance1)
	return liquidity, nil
}

// swap sends the requested outputs to `to` and enforces the fee-adjusted
// constant product against the inputs the pool actually holds.
func (e *Exchange) swap(pair *Pair, amount0Out, amount1Out *big.Int, to common.Address) error {
	if amount0Out.Sign() <= 0 && amount1Out.Sign() <= 0 {
		return ErrInsufficientOutputAmount
	}
	if amount0Out.Cmp(pair.Reserve0) >= 0 || amount1Out.Cmp(pair.Reserve1) >= 0 {
		return ErrInsufficientLiquidity
	}
	if amount0Out.Sign() > 0 {
		if _, err := e.bank.Transfer(pair.Token0, pair.Address, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if _, err := e.bank.Transfer(pair.Token1, pair.Address, to, amount1Out); err != nil {
			return err
		}
	}
	balance0 := e.bank.BalanceOf(pair.Token0, pair.Address)
	balance1 := e.bank.BalanceOf(pair.Token1, pair.Address)
	amount0In := inputAmount(balance0, pair.Reserve0, amount0Out)
	amount1In := inputAmount(balance1, pair.Reserve1, amount1Out)
	if amount0In.Sign() <= 0 && amount1In.Sign() <= 0 {
		return ErrInsufficientInputAmount
	}
	adjusted0 := new(big.Int).Mul(balance0, feeDenominator)
	adjusted0.Sub(adjusted0, new(big.Int).Mul(amount0In, feeTaken))
	adjusted1 := new(big.Int).Mul(balance1, feeDenominator)
	adjusted1.Sub(adjusted1, new(big.Int).Mul(amount1In, feeTaken))
	k := new(big.Int).Mul(pair.Reserve0, pair.Reserve1)
	k.Mul(k, new(big.Int).Mul(feeDenominator, feeDenominator))
	if new(big.Int).Mul(adjusted0, adjusted1).Cmp(k) < 0 {
		return ErrInvariant
	}
	e.setReserves(pair, balance0, balance1)
	return nil
}

func inputAmount(balance, reserve, out *big.Int) *big.Int {
	remaining := new(big.Int).Sub(reserve, out)
	if balance.Cmp(remaining) <= 0 {
		return big.NewInt(0)
	}
	return remaining.Sub(balance, remaining)
}

func (e *Exchange) setReserves(pair *Pair, r0, r1 *big.Int) {
	prev0, prev1 := pair.Reserve0, pair.Reserve1
	pair.Reserve0, pair.Reserve1 = new(big.Int).Set(r0), new(big.Int).Set(r1)
	e.journal.Record(func() { pair.Reserve0, pair.Reserve1 = prev0, prev1 })
}

func (e *Exchange) setShares(pair *Pair, holder common.Address, shares, total *big.Int) {
	prevShares, had := pair.shares[holder]
	prevTotal := pair.TotalSupply
	pair.shares[holder] = shares
	pair.TotalSupply = total
	e.journal.Record(func() {
		pair.TotalSupply = prevTotal
		if had {
			pair.shares[holder] = prevShares
		} else {
			delete(pair.shares, holder)
		}
	})
}
