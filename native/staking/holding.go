package staking

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/events"
	"limitbook/core/types"
)

// Successor is the pool a HoldingPool hands its balance to.
type Successor interface {
	Address() common.Address
	Deposit(call types.Call) error
}

// HoldingPool collects fee deposits before the staking pool opens. Its owner
// moves the whole balance into the successor once; afterwards the pool is
// disabled and ownerless.
type HoldingPool struct {
	mu       sync.Mutex
	bank     Bank
	emitter  events.Emitter
	address  common.Address
	owner    common.Address
	disabled bool
}

// NewHoldingPool returns an enabled pool owned by owner.
func NewHoldingPool(bank Bank, owner common.Address) *HoldingPool {
	return &HoldingPool{
		bank:    bank,
		emitter: events.NoopEmitter{},
		address: types.ModuleAddress("staking/holding"),
		owner:   owner,
	}
}

// SetEmitter configures the event emitter.
func (p *HoldingPool) SetEmitter(emitter events.Emitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p.emitter = emitter
}

// Address returns the custody account of the pool.
func (p *HoldingPool) Address() common.Address { return p.address }

// Owner returns the current owner, zero once the balance was transferred.
func (p *HoldingPool) Owner() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

// Disabled reports whether the pool was retired.
func (p *HoldingPool) Disabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled
}

// Balance returns the currency held by the pool.
func (p *HoldingPool) Balance() *big.Int {
	return p.bank.NativeBalance(p.address)
}

// Deposit accepts the attached currency.
func (p *HoldingPool) Deposit(call types.Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disabled {
		return ErrPoolDisabled
	}
	amount := call.AttachedValue()
	if amount.Sign() <= 0 {
		return ErrNothingToDeposit
	}
	if err := p.bank.TransferNative(call.Sender, p.address, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// Transfer deposits the whole balance into successor and retires the pool.
func (p *HoldingPool) Transfer(caller common.Address, successor Successor) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.owner == (common.Address{}) || caller != p.owner {
		return nil, ErrNotOwner
	}
	if p.disabled {
		return nil, ErrPoolDisabled
	}
	amount := p.bank.NativeBalance(p.address)
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNothingToTransfer
	}
	if err := successor.Deposit(types.NewCall(p.address, amount)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	p.disabled = true
	p.owner = common.Address{}
	p.emitter.Emit(events.HoldingTransferred{Successor: successor.Address(), Amount: new(big.Int).Set(amount)})
	return amount, nil
}

// HoldingState is the persisted view of a holding pool.
type HoldingState struct {
	Owner    common.Address
	Disabled bool
}

// Export returns the persisted view.
func (p *HoldingPool) Export() HoldingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return HoldingState{Owner: p.owner, Disabled: p.disabled}
}

// Import restores a persisted view.
func (p *HoldingPool) Import(s HoldingState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owner = s.Owner
	p.disabled = s.Disabled
}
