package orderbook

import (
	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/events"
	"limitbook/native/fees"
)

func (e *Engine) onlyOwner(caller common.Address) error {
	if e.params.Owner == (common.Address{}) || caller != e.params.Owner {
		return ErrNotOwner
	}
	return nil
}

func (e *Engine) setParams(next Params) {
	prev := e.params
	e.params = next
	e.dirty.params = true
	e.journal.Record(func() { e.params = prev })
}

// SetFeeFraction changes the protocol fee.
func (e *Engine) SetFeeFraction(caller common.Address, mul, div uint64) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	fraction := fees.Fraction{Mul: mul, Div: div}
	if err := fraction.Validate(); err != nil {
		return err
	}
	next := e.params
	next.Fee = fraction
	e.setParams(next)
	e.emit(events.ParamsUpdated{Param: "fee", Value: fraction.String()})
	return nil
}

// SetSplitFraction changes the burn share of the fee.
func (e *Engine) SetSplitFraction(caller common.Address, mul, div uint64) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	fraction := fees.Fraction{Mul: mul, Div: div}
	if err := fraction.Validate(); err != nil {
		return err
	}
	next := e.params
	next.Split = fraction
	e.setParams(next)
	e.emit(events.ParamsUpdated{Param: "split", Value: fraction.String()})
	return nil
}

// SetRewardPool replaces the reward pool on behalf of the owner.
func (e *Engine) SetRewardPool(caller common.Address, pool RewardPool) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	if pool == nil {
		return ErrInvalidOrder
	}
	prev := e.pool
	e.pool = pool
	e.journal.Record(func() { e.pool = prev })
	next := e.params
	next.RewardPool = pool.Address()
	e.setParams(next)
	e.emit(events.ParamsUpdated{Param: "rewardPool", Value: pool.Address().Hex()})
	return nil
}

// SetFeeSink replaces the burn sink on behalf of the owner.
func (e *Engine) SetFeeSink(caller common.Address, sink FeeSink) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	if sink == nil {
		return ErrInvalidOrder
	}
	prev := e.sink
	e.sink = sink
	e.journal.Record(func() { e.sink = prev })
	next := e.params
	next.FeeSink = sink.Address()
	e.setParams(next)
	e.emit(events.ParamsUpdated{Param: "feeSink", Value: sink.Address().Hex()})
	return nil
}

// TransferOwnership hands the admin surface to newOwner. A zero address
// renounces it.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	if err := e.onlyOwner(caller); err != nil {
		return err
	}
	next := e.params
	next.Owner = newOwner
	e.setParams(next)
	e.emit(events.OwnershipTransferred{Component: "orderbook", Previous: caller, NewOwner: newOwner})
	return nil
}

// RenounceOwnership permanently disables the admin surface.
func (e *Engine) RenounceOwnership(caller common.Address) error {
	return e.TransferOwnership(caller, common.Address{})
}
