package orderbook

import (
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/events"
	"limitbook/core/state"
	"limitbook/core/types"
	nativecommon "limitbook/native/common"
	"limitbook/native/fees"
)

var errNilCollaborator = errors.New("orderbook engine: bank and exchange required")

// Bank is the custody surface the ledger settles against.
type Bank interface {
	WrappedToken() common.Address
	IsToken(addr common.Address) bool
	BalanceOf(token, holder common.Address) *big.Int
	NativeBalance(addr common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) (*big.Int, error)
	TransferFrom(token, spender, from, to common.Address, amount *big.Int) (*big.Int, error)
	TransferNative(from, to common.Address, amount *big.Int) error
	Approve(token, owner, spender common.Address, amount *big.Int) error
	// TransferFee is the part of amount a fee-on-transfer token destroys.
	TransferFee(token common.Address, amount *big.Int) *big.Int
}

// Exchange is the AMM router consulted for routes and swaps. Token inputs are
// pulled from the ledger with an allowance granted to Address().
type Exchange interface {
	Address() common.Address
	GetPair(tokenA, tokenB common.Address) (common.Address, bool)
	GetAmountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	SwapTokensForTokens(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, *big.Int, error)
	SwapTokensForTokensFeeTolerant(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, *big.Int, error)
	SwapTokensForCurrency(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, *big.Int, error)
	SwapTokensForCurrencyFeeTolerant(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, *big.Int, error)
	SwapCurrencyForTokens(call types.Call, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, *big.Int, error)
	SwapCurrencyForTokensFeeTolerant(call types.Call, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, *big.Int, error)
}

// FeeSink receives the burn share of every fee. Burn must not fail for a
// positive value.
type FeeSink interface {
	Address() common.Address
	Burn(call types.Call) error
}

// RewardPool receives the staker share of every fee.
type RewardPool interface {
	Address() common.Address
	Deposit(call types.Call) error
}

// stakeCounter is implemented by pools that can report whether anyone would
// receive a deposit.
type stakeCounter interface {
	TotalStaked() *big.Int
}

// Engine is the order ledger. It owns every order, the indices over them and
// the custody of escrowed funds, which the bank holds under Address().
//
// The engine is single-writer: callers serialise entry points, and re-entry
// from a collaborator is rejected.
type Engine struct {
	bank     Bank
	exchange Exchange
	sink     FeeSink
	pool     RewardPool
	journal  *state.Journal
	emitter  events.Emitter
	logger   *slog.Logger
	guard    nativecommon.ReentrancyGuard
	nowFn    func() int64
	address  common.Address

	params Params
	orders []*Order
	active activeSet

	// history holds the append-only id lists of makers and pairs.
	history map[common.Address][]uint64
	totals  map[string]fees.Totals

	dirty dirtySet

	// persisted counts the history entries already appended to storage.
	persisted map[common.Address]int
}

// NewEngine creates a ledger with the default fee and split fractions, owned by
// owner.
func NewEngine(bank Bank, exchange Exchange, journal *state.Journal, owner common.Address) *Engine {
	return &Engine{
		bank:      bank,
		exchange:  exchange,
		journal:   journal,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		nowFn:     func() int64 { return time.Now().Unix() },
		address:   types.ModuleAddress("orderbook"),
		params:    Params{Fee: fees.DefaultFee, Split: fees.DefaultSplit, Owner: owner},
		active:    newActiveSet(),
		history:   make(map[common.Address][]uint64),
		totals:    make(map[string]fees.Totals),
		dirty:     newDirtySet(),
		persisted: make(map[common.Address]int),
	}
}

// Address returns the custody account of the ledger.
func (e *Engine) Address() common.Address { return e.address }

// AttachFeeSink wires the burn sink without an ownership check. It is meant
// for assembly; SetFeeSink is the owner-gated variant.
func (e *Engine) AttachFeeSink(sink FeeSink) {
	e.sink = sink
	if sink != nil {
		e.params.FeeSink = sink.Address()
		e.dirty.params = true
	}
}

// AttachRewardPool wires the reward pool without an ownership check.
func (e *Engine) AttachRewardPool(pool RewardPool) {
	e.pool = pool
	if pool != nil {
		e.params.RewardPool = pool.Address()
		e.dirty.params = true
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// enter guards an entry point and opens its journal scope. The returned
// function closes both and must receive the call's final error.
func (e *Engine) enter() (func(error) error, error) {
	if e.bank == nil || e.exchange == nil {
		return nil, errNilCollaborator
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	mark := e.journal.Begin()
	return func(callErr error) error {
		defer release()
		return e.journal.End(mark, callErr)
	}, nil
}

func (e *Engine) load(id uint64) (*Order, error) {
	if id >= uint64(len(e.orders)) {
		return nil, ErrNotFound
	}
	return e.orders[id], nil
}

// mutate records the current order image before fn changes it.
func (e *Engine) mutate(order *Order, fn func(*Order)) {
	prev := order.Clone()
	fn(order)
	order.UpdatedAt = e.now()
	e.dirty.order(order.ID)
	e.journal.Record(func() { *order = *prev })
}

func (e *Engine) appendOrder(order *Order) {
	e.orders = append(e.orders, order)
	e.dirty.order(order.ID)
	e.dirty.seq = true
	e.journal.Record(func() { e.orders = e.orders[:len(e.orders)-1] })
}

func (e *Engine) appendHistory(addr common.Address, id uint64) {
	e.history[addr] = append(e.history[addr], id)
	e.dirty.address(addr)
	e.journal.Record(func() {
		list := e.history[addr]
		if len(list) <= 1 {
			delete(e.history, addr)
			return
		}
		e.history[addr] = list[:len(list)-1]
	})
}

func (e *Engine) activate(id uint64) {
	e.active.insert(id)
	e.dirty.active = true
	e.journal.Record(func() { e.active.undoInsert() })
}

func (e *Engine) deactivate(id uint64) {
	undo, ok := e.active.remove(id)
	if !ok {
		return
	}
	e.dirty.active = true
	e.journal.Record(undo)
}

func (e *Engine) recordFees(domain string, gross *big.Int, split fees.Split) {
	prev, had := e.totals[domain]
	base := prev
	if !had {
		base = fees.Totals{Domain: domain}
	}
	e.totals[domain] = base.Record(gross, split)
	e.journal.Record(func() {
		if had {
			e.totals[domain] = prev
		} else {
			delete(e.totals, domain)
		}
	})
}
