package observability

import (
	"limitbook/core/events"
)

// EventMetrics is an events.Emitter that turns ledger and pool events into
// metrics.
type EventMetrics struct{}

// Emit implements events.Emitter.
func (EventMetrics) Emit(evt events.Event) {
	switch e := evt.(type) {
	case events.OrderPlaced:
		Ledger().RecordOrder("placed", e.Direction)
	case events.OrderUpdated:
		Ledger().RecordOrder("updated", "")
	case events.OrderCancelled:
		Ledger().RecordOrder("cancelled", "")
	case events.OrderExecuted:
		Ledger().RecordOrder("executed", "")
	case events.MarketExecuted:
		Ledger().RecordOrder("market", e.Direction)
	case events.FeeSplit:
		Ledger().RecordFee("burn", e.Burned)
		Ledger().RecordFee("stake", e.Staked)
	case events.Staked:
		Staking().RecordOperation("stake")
	case events.RewardDeposited:
		Staking().RecordOperation("deposit")
	case events.StakeWithdrawn:
		Staking().RecordOperation("withdraw")
		Staking().RecordRewardPaid(e.Reward)
	case events.RewardPaidOut:
		Staking().RecordOperation("payout")
		Staking().RecordRewardPaid(e.Reward)
	}
}
