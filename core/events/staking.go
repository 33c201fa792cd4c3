package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/types"
)

const (
	// TypeStaked is emitted when tokens are added to a stake.
	TypeStaked = "staking.staked"
	// TypeRewardDeposited is emitted when currency is distributed to stakers.
	TypeRewardDeposited = "staking.deposited"
	// TypeStakeWithdrawn is emitted when principal and reward leave the pool.
	TypeStakeWithdrawn = "staking.withdrawn"
	// TypeRewardPaidOut is emitted when only the pending reward is claimed.
	TypeRewardPaidOut = "staking.paid_out"
	// TypeHoldingTransferred is emitted when a holding pool hands its balance
	// to its successor.
	TypeHoldingTransferred = "staking.holding_transferred"
)

// Staked captures a stake top-up.
type Staked struct {
	Staker     common.Address
	Amount     *big.Int
	Total      *big.Int
	LockExpiry int64
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	return &types.Event{
		Type: TypeStaked,
		Attributes: map[string]string{
			"staker":     formatAddress(e.Staker),
			"amount":     formatAmount(e.Amount),
			"total":      formatAmount(e.Total),
			"lockExpiry": strconv.FormatInt(e.LockExpiry, 10),
		},
	}
}

// RewardDeposited captures a distribution into the accumulator.
type RewardDeposited struct {
	Depositor      common.Address
	Amount         *big.Int
	RewardPerStake *big.Int
}

// EventType satisfies the Event interface.
func (RewardDeposited) EventType() string { return TypeRewardDeposited }

// Event converts the structured payload into a broadcastable event.
func (e RewardDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardDeposited,
		Attributes: map[string]string{
			"depositor":      formatAddress(e.Depositor),
			"amount":         formatAmount(e.Amount),
			"rewardPerStake": formatAmount(e.RewardPerStake),
		},
	}
}

// StakeWithdrawn captures a full exit from the pool.
type StakeWithdrawn struct {
	Staker    common.Address
	Principal *big.Int
	Reward    *big.Int
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeWithdrawn,
		Attributes: map[string]string{
			"staker":    formatAddress(e.Staker),
			"principal": formatAmount(e.Principal),
			"reward":    formatAmount(e.Reward),
		},
	}
}

// RewardPaidOut captures a reward-only claim.
type RewardPaidOut struct {
	Staker     common.Address
	Reward     *big.Int
	LockExpiry int64
}

// EventType satisfies the Event interface.
func (RewardPaidOut) EventType() string { return TypeRewardPaidOut }

// Event converts the structured payload into a broadcastable event.
func (e RewardPaidOut) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardPaidOut,
		Attributes: map[string]string{
			"staker":     formatAddress(e.Staker),
			"reward":     formatAmount(e.Reward),
			"lockExpiry": strconv.FormatInt(e.LockExpiry, 10),
		},
	}
}

// HoldingTransferred captures the migration of a holding pool balance.
type HoldingTransferred struct {
	Successor common.Address
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (HoldingTransferred) EventType() string { return TypeHoldingTransferred }

// Event converts the structured payload into a broadcastable event.
func (e HoldingTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeHoldingTransferred,
		Attributes: map[string]string{
			"successor": formatAddress(e.Successor),
			"amount":    formatAmount(e.Amount),
		},
	}
}
