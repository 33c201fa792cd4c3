package incinerator

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/events"
	"limitbook/core/state"
	"limitbook/core/types"
)

// DefaultBurnInterval is the minimum time between two buy-and-burn rounds.
const DefaultBurnInterval = 24 * time.Hour

var (
	// ErrNothingToBurn is returned when Burn is called without value.
	ErrNothingToBurn = errors.New("incinerator: nothing to burn")

	errNilBank = errors.New("incinerator: bank not configured")
)

// Bank is the custody surface of the incinerator.
type Bank interface {
	WrappedToken() common.Address
	NativeBalance(addr common.Address) *big.Int
	BalanceOf(token, holder common.Address) *big.Int
	TransferNative(from, to common.Address, amount *big.Int) error
	Burn(token, from common.Address, amount *big.Int) error
}

// Exchange buys the protocol token with currency.
type Exchange interface {
	SwapCurrencyForTokens(call types.Call, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, *big.Int, error)
}

// Incinerator collects the burn share of fees and periodically converts the
// collected currency into the protocol token, which it destroys.
type Incinerator struct {
	bank     Bank
	exchange Exchange
	journal  *state.Journal
	emitter  events.Emitter
	logger   *slog.Logger
	nowFn    func() int64
	address  common.Address
	token    common.Address
	interval time.Duration
	lastBurn int64
	burned   *big.Int
}

// New returns an incinerator burning token.
func New(bank Bank, exchange Exchange, journal *state.Journal, token common.Address) *Incinerator {
	return &Incinerator{
		bank:     bank,
		exchange: exchange,
		journal:  journal,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		nowFn:    func() int64 { return time.Now().Unix() },
		address:  types.ModuleAddress("incinerator"),
		token:    token,
		interval: DefaultBurnInterval,
		burned:   big.NewInt(0),
	}
}

// Address returns the custody account of the incinerator.
func (i *Incinerator) Address() common.Address { return i.address }

// SetInterval overrides the burn interval. Non-positive values restore the
// default.
func (i *Incinerator) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBurnInterval
	}
	i.interval = interval
}

// SetNowFunc overrides the time source.
func (i *Incinerator) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	i.nowFn = now
}

// SetEmitter configures the event emitter.
func (i *Incinerator) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	i.emitter = emitter
}

// SetLogger replaces the logger.
func (i *Incinerator) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	i.logger = logger
}

// Seed opens the first burn interval at now, so nothing is bought until the
// interval has passed since deployment. An unseeded incinerator burns on its
// first call.
func (i *Incinerator) Seed(now int64) {
	prev := i.lastBurn
	i.lastBurn = now
	i.journal.Record(func() { i.lastBurn = prev })
}

// LastBurn returns the unix time of the last successful burn or of the seed,
// zero if neither happened.
func (i *Incinerator) LastBurn() int64 { return i.lastBurn }

// TotalBurned returns the protocol tokens destroyed so far.
func (i *Incinerator) TotalBurned() *big.Int { return new(big.Int).Set(i.burned) }

// Pending returns the currency waiting for the next round.
func (i *Incinerator) Pending() *big.Int { return i.bank.NativeBalance(i.address) }

// Burn accepts the attached currency and runs a buy-and-burn round when the
// interval has elapsed. A failed round keeps the currency for the next one.
func (i *Incinerator) Burn(call types.Call) (err error) {
	if i.bank == nil {
		return errNilBank
	}
	amount := call.AttachedValue()
	if amount.Sign() <= 0 {
		return ErrNothingToBurn
	}
	mark := i.journal.Begin()
	defer func() { err = i.journal.End(mark, err) }()

	if err := i.bank.TransferNative(call.Sender, i.address, amount); err != nil {
		return fmt.Errorf("incinerator: collect: %w", err)
	}
	i.emitter.Emit(events.ToBurn{Amount: amount})

	now := i.nowFn()
	if i.lastBurn != 0 && now-i.lastBurn < int64(i.interval/time.Second) {
		return nil
	}
	if i.exchange == nil {
		return nil
	}
	i.round(now)
	return nil
}

func (i *Incinerator) round(now int64) {
	balance := i.bank.NativeBalance(i.address)
	if err := i.buyAndBurn(now, balance); err != nil {
		i.logger.Warn("incinerator round failed", "currency", balance.String(), "error", err)
	}
}

func (i *Incinerator) buyAndBurn(now int64, balance *big.Int) (err error) {
	mark := i.journal.Begin()
	defer func() { err = i.journal.End(mark, err) }()

	path := []common.Address{i.bank.WrappedToken(), i.token}
	spent, _, err := i.exchange.SwapCurrencyForTokens(types.NewCall(i.address, balance), big.NewInt(0), path, i.address, now)
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}
	bought := i.bank.BalanceOf(i.token, i.address)
	if err := i.bank.Burn(i.token, i.address, bought); err != nil {
		return fmt.Errorf("burn: %w", err)
	}
	prevLast, prevBurned := i.lastBurn, i.burned
	i.lastBurn = now
	i.burned = new(big.Int).Add(i.burned, bought)
	i.journal.Record(func() { i.lastBurn, i.burned = prevLast, prevBurned })
	i.emitter.Emit(events.Burned{NativeIn: spent, TokensOut: bought})
	i.logger.Info("incinerator burned", "currency", spent.String(), "tokens", bought.String())
	return nil
}

// State is the persisted view of the incinerator.
type State struct {
	LastBurn uint64
	Burned   *big.Int
}

// Export returns the persisted view.
func (i *Incinerator) Export() State {
	return State{LastBurn: uint64(i.lastBurn), Burned: new(big.Int).Set(i.burned)}
}

// Import restores a persisted view.
func (i *Incinerator) Import(s State) {
	i.lastBurn = int64(s.LastBurn)
	i.burned = big.NewInt(0)
	if s.Burned != nil {
		i.burned.Set(s.Burned)
	}
}
