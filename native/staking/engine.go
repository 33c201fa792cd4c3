package staking

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/events"
	"limitbook/core/state"
	"limitbook/core/types"
	nativecommon "limitbook/native/common"
)

// DefaultLockPeriod is how long principal stays locked after a stake or payout.
const DefaultLockPeriod = 30 * 24 * time.Hour

// Scale is the fixed-point unit of the reward accumulator.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Bank is the custody surface of the pool.
type Bank interface {
	NativeBalance(addr common.Address) *big.Int
	BalanceOf(token, holder common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) (*big.Int, error)
	TransferFrom(token, spender, from, to common.Address, amount *big.Int) (*big.Int, error)
	TransferNative(from, to common.Address, amount *big.Int) error
}

// Stake is a staker's position. RewardDebt is the accumulator value the
// position was last settled at; Credited carries reward folded in by a top-up
// stake, in scaled units.
type Stake struct {
	Amount     *big.Int
	LockExpiry int64
	RewardDebt *big.Int
	Credited   *big.Int
}

// Clone returns a deep copy of the stake.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	return &Stake{
		Amount:     cloneBigInt(s.Amount),
		LockExpiry: s.LockExpiry,
		RewardDebt: cloneBigInt(s.RewardDebt),
		Credited:   cloneBigInt(s.Credited),
	}
}

// Engine is the reward accumulator pool: stakers lock the protocol token and
// share every currency deposit in proportion to their stake at deposit time.
// Every operation is O(1).
type Engine struct {
	bank       Bank
	journal    *state.Journal
	emitter    events.Emitter
	logger     *slog.Logger
	guard      nativecommon.ReentrancyGuard
	nowFn      func() int64
	address    common.Address
	token      common.Address
	lockPeriod time.Duration

	stakes         map[common.Address]*Stake
	totalStaked    *big.Int
	rewardPerStake *big.Int

	dirty dirtySet
}

// NewEngine creates a pool staking token.
func NewEngine(bank Bank, journal *state.Journal, token common.Address) *Engine {
	return &Engine{
		bank:           bank,
		journal:        journal,
		emitter:        events.NoopEmitter{},
		logger:         slog.Default(),
		nowFn:          func() int64 { return time.Now().Unix() },
		address:        types.ModuleAddress("staking"),
		token:          token,
		lockPeriod:     DefaultLockPeriod,
		stakes:         make(map[common.Address]*Stake),
		totalStaked:    big.NewInt(0),
		rewardPerStake: big.NewInt(0),
		dirty:          newDirtySet(),
	}
}

// Address returns the custody account of the pool.
func (e *Engine) Address() common.Address { return e.address }

// Token returns the staked token.
func (e *Engine) Token() common.Address { return e.token }

// LockPeriod returns the configured lock period.
func (e *Engine) LockPeriod() time.Duration { return e.lockPeriod }

// SetLockPeriod overrides the lock period. Non-positive values restore the
// default.
func (e *Engine) SetLockPeriod(period time.Duration) {
	if period <= 0 {
		period = DefaultLockPeriod
	}
	e.lockPeriod = period
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

func (e *Engine) enter() (func(error) error, error) {
	if e.bank == nil {
		return nil, errNilBank
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

func (e *Engine) lockUntil() int64 {
	return e.nowFn() + int64(e.lockPeriod/time.Second)
}

// pendingScaled is Credited + Amount × (RewardPerStake − RewardDebt).
func (e *Engine) pendingScaled(s *Stake) *big.Int {
	delta := new(big.Int).Sub(e.rewardPerStake, s.RewardDebt)
	pending := delta.Mul(delta, s.Amount)
	return pending.Add(pending, s.Credited)
}

func (e *Engine) putStake(addr common.Address, next *Stake) {
	prev, had := e.stakes[addr]
	e.stakes[addr] = next
	e.dirty.stake(addr)
	e.journal.Record(func() {
		if had {
			e.stakes[addr] = prev
		} else {
			delete(e.stakes, addr)
		}
	})
}

func (e *Engine) setGlobals(total, perStake *big.Int) {
	prevTotal, prevPerStake := e.totalStaked, e.rewardPerStake
	e.totalStaked, e.rewardPerStake = total, perStake
	e.dirty.globals = true
	e.journal.Record(func() { e.totalStaked, e.rewardPerStake = prevTotal, prevPerStake })
}

// Stake locks amount of the staked token for the caller, pulled with an
// allowance granted to Address(). Pending reward is kept, and the lock is
// renewed on every call.
func (e *Engine) Stake(call types.Call, amount *big.Int) (err error) {
	done, err := e.enter()
	if err != nil {
		return err
	}
	defer func() { err = done(err) }()

	if amount == nil || amount.Sign() <= 0 {
		return ErrNothingToStake
	}
	before := e.bank.BalanceOf(e.token, e.address)
	if _, err := e.bank.TransferFrom(e.token, e.address, call.Sender, e.address, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	received := new(big.Int).Sub(e.bank.BalanceOf(e.token, e.address), before)
	if received.Sign() <= 0 {
		return ErrNothingToStake
	}

	current := e.stakes[call.Sender]
	next := &Stake{Amount: big.NewInt(0), RewardDebt: cloneBigInt(e.rewardPerStake), Credited: big.NewInt(0)}
	if current != nil {
		next.Credited = e.pendingScaled(current)
		next.Amount = cloneBigInt(current.Amount)
	}
	next.Amount.Add(next.Amount, received)
	next.LockExpiry = e.lockUntil()
	e.putStake(call.Sender, next)
	e.setGlobals(new(big.Int).Add(e.totalStaked, received), e.rewardPerStake)

	e.emit(events.Staked{Staker: call.Sender, Amount: received, Total: cloneBigInt(next.Amount), LockExpiry: next.LockExpiry})
	return nil
}

// Deposit distributes the attached currency over the current stakers.
func (e *Engine) Deposit(call types.Call) (err error) {
	done, err := e.enter()
	if err != nil {
		return err
	}
	defer func() { err = done(err) }()

	amount := call.AttachedValue()
	if amount.Sign() <= 0 {
		return ErrNothingToDeposit
	}
	if e.totalStaked.Sign() <= 0 {
		return ErrNothingStaked
	}
	if err := e.bank.TransferNative(call.Sender, e.address, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	increment := new(big.Int).Mul(amount, Scale)
	increment.Quo(increment, e.totalStaked)
	next := new(big.Int).Add(e.rewardPerStake, increment)
	e.setGlobals(e.totalStaked, next)

	e.emit(events.RewardDeposited{Depositor: call.Sender, Amount: amount, RewardPerStake: cloneBigInt(next)})
	return nil
}

// Withdraw returns the caller's whole principal and pending reward once the
// lock has expired.
func (e *Engine) Withdraw(caller common.Address) (principal, reward *big.Int, err error) {
	done, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	defer func() { err = done(err) }()

	current := e.stakes[caller]
	if current == nil || current.Amount.Sign() <= 0 {
		return nil, nil, ErrNothingStaked
	}
	if e.nowFn() < current.LockExpiry {
		return nil, nil, ErrStakeLocked
	}
	principal = cloneBigInt(current.Amount)
	reward = new(big.Int).Quo(e.pendingScaled(current), Scale)

	e.putStake(caller, &Stake{Amount: big.NewInt(0), RewardDebt: big.NewInt(0), Credited: big.NewInt(0)})
	e.setGlobals(new(big.Int).Sub(e.totalStaked, principal), e.rewardPerStake)

	if _, err := e.bank.Transfer(e.token, e.address, caller, principal); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if reward.Sign() > 0 {
		if err := e.bank.TransferNative(e.address, caller, reward); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}
	e.emit(events.StakeWithdrawn{Staker: caller, Principal: principal, Reward: reward})
	return principal, reward, nil
}

// Payout pays the caller's pending reward, keeps the principal staked and
// renews the lock.
func (e *Engine) Payout(caller common.Address) (reward *big.Int, err error) {
	done, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer func() { err = done(err) }()

	current := e.stakes[caller]
	if current == nil {
		return nil, ErrNothingToPayOut
	}
	reward = new(big.Int).Quo(e.pendingScaled(current), Scale)
	if reward.Sign() <= 0 {
		return nil, ErrNothingToPayOut
	}
	next := current.Clone()
	next.RewardDebt = cloneBigInt(e.rewardPerStake)
	next.Credited = big.NewInt(0)
	next.LockExpiry = e.lockUntil()
	e.putStake(caller, next)

	if err := e.bank.TransferNative(e.address, caller, reward); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	e.emit(events.RewardPaidOut{Staker: caller, Reward: reward, LockExpiry: next.LockExpiry})
	return reward, nil
}

// StakeInfo is the public view of a position.
type StakeInfo struct {
	Amount     *big.Int
	LockExpiry int64
}

// GetStake returns the caller-visible position of addr.
func (e *Engine) GetStake(addr common.Address) StakeInfo {
	current := e.stakes[addr]
	if current == nil {
		return StakeInfo{Amount: big.NewInt(0)}
	}
	return StakeInfo{Amount: cloneBigInt(current.Amount), LockExpiry: current.LockExpiry}
}

// PendingReward returns the reward addr could claim now.
func (e *Engine) PendingReward(addr common.Address) *big.Int {
	current := e.stakes[addr]
	if current == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(e.pendingScaled(current), Scale)
}

// TotalStaked returns the sum of all staked amounts.
func (e *Engine) TotalStaked() *big.Int { return cloneBigInt(e.totalStaked) }

// RewardPerStake returns the scaled accumulator.
func (e *Engine) RewardPerStake() *big.Int { return cloneBigInt(e.rewardPerStake) }

// StakersCount returns how many addresses ever staked.
func (e *Engine) StakersCount() int { return len(e.stakes) }

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
