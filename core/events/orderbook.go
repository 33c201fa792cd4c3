package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/core/types"
)

const (
	// TypeOrderPlaced is emitted once an order has been escrowed and indexed.
	TypeOrderPlaced = "orderbook.placed"
	// TypeOrderUpdated is emitted when the maker amends an open order.
	TypeOrderUpdated = "orderbook.updated"
	// TypeOrderCancelled is emitted when the maker withdraws an open order.
	TypeOrderCancelled = "orderbook.cancelled"
	// TypeOrderExecuted is emitted when an executor settles an order.
	TypeOrderExecuted = "orderbook.executed"
	// TypeMarketExecuted is emitted for immediate market swaps.
	TypeMarketExecuted = "orderbook.market"
	// TypeFeeSplit records how a realised fee was divided between the burn
	// sink and the reward pool.
	TypeFeeSplit = "orderbook.fee_split"
	// TypeParamsUpdated is emitted when an owner changes a ledger parameter.
	TypeParamsUpdated = "orderbook.params_updated"
	// TypeOwnershipTransferred is emitted when ledger ownership changes hands.
	TypeOwnershipTransferred = "orderbook.ownership_transferred"
)

// OrderPlaced captures a freshly escrowed order.
type OrderPlaced struct {
	ID           uint64
	Direction    string
	Maker        common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	AmountOut    *big.Int
	ExecutorFee  *big.Int
	Deflationary bool
}

// EventType satisfies the Event interface.
func (OrderPlaced) EventType() string { return TypeOrderPlaced }

// Event converts the structured payload into a broadcastable event.
func (e OrderPlaced) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderPlaced,
		Attributes: map[string]string{
			"id":           strconv.FormatUint(e.ID, 10),
			"direction":    e.Direction,
			"maker":        formatAddress(e.Maker),
			"tokenIn":      formatAddress(e.TokenIn),
			"tokenOut":     formatAddress(e.TokenOut),
			"amountIn":     formatAmount(e.AmountIn),
			"amountOut":    formatAmount(e.AmountOut),
			"executorFee":  formatAmount(e.ExecutorFee),
			"deflationary": strconv.FormatBool(e.Deflationary),
		},
	}
}

// OrderUpdated captures the amended terms of an order.
type OrderUpdated struct {
	ID             uint64
	Maker          common.Address
	AmountIn       *big.Int
	AmountOut      *big.Int
	ExecutorFee    *big.Int
	TotalCommitted *big.Int
	Deflationary   bool
}

// EventType satisfies the Event interface.
func (OrderUpdated) EventType() string { return TypeOrderUpdated }

// Event converts the structured payload into a broadcastable event.
func (e OrderUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderUpdated,
		Attributes: map[string]string{
			"id":             strconv.FormatUint(e.ID, 10),
			"maker":          formatAddress(e.Maker),
			"amountIn":       formatAmount(e.AmountIn),
			"amountOut":      formatAmount(e.AmountOut),
			"executorFee":    formatAmount(e.ExecutorFee),
			"totalCommitted": formatAmount(e.TotalCommitted),
			"deflationary":   strconv.FormatBool(e.Deflationary),
		},
	}
}

// OrderCancelled captures the refund issued for a cancelled order.
type OrderCancelled struct {
	ID             uint64
	Maker          common.Address
	RefundedToken  *big.Int
	RefundedNative *big.Int
}

// EventType satisfies the Event interface.
func (OrderCancelled) EventType() string { return TypeOrderCancelled }

// Event converts the structured payload into a broadcastable event.
func (e OrderCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderCancelled,
		Attributes: map[string]string{
			"id":             strconv.FormatUint(e.ID, 10),
			"maker":          formatAddress(e.Maker),
			"refundedToken":  formatAmount(e.RefundedToken),
			"refundedNative": formatAmount(e.RefundedNative),
		},
	}
}

// OrderExecuted captures the settlement of an order.
type OrderExecuted struct {
	ID          uint64
	Executor    common.Address
	AmountIn    *big.Int
	AmountOut   *big.Int
	Fee         *big.Int
	ExecutorFee *big.Int
}

// EventType satisfies the Event interface.
func (OrderExecuted) EventType() string { return TypeOrderExecuted }

// Event converts the structured payload into a broadcastable event.
func (e OrderExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderExecuted,
		Attributes: map[string]string{
			"id":          strconv.FormatUint(e.ID, 10),
			"executor":    formatAddress(e.Executor),
			"amountIn":    formatAmount(e.AmountIn),
			"amountOut":   formatAmount(e.AmountOut),
			"fee":         formatAmount(e.Fee),
			"executorFee": formatAmount(e.ExecutorFee),
		},
	}
}

// MarketExecuted captures an immediate swap routed through the ledger.
type MarketExecuted struct {
	Trader    common.Address
	Direction string
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
}

// EventType satisfies the Event interface.
func (MarketExecuted) EventType() string { return TypeMarketExecuted }

// Event converts the structured payload into a broadcastable event.
func (e MarketExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketExecuted,
		Attributes: map[string]string{
			"trader":    formatAddress(e.Trader),
			"direction": e.Direction,
			"tokenIn":   formatAddress(e.TokenIn),
			"tokenOut":  formatAddress(e.TokenOut),
			"amountIn":  formatAmount(e.AmountIn),
			"amountOut": formatAmount(e.AmountOut),
			"fee":       formatAmount(e.Fee),
		},
	}
}

// FeeSplit records the burn and stake shares of a realised fee.
type FeeSplit struct {
	Fee    *big.Int
	Burned *big.Int
	Staked *big.Int
}

// EventType satisfies the Event interface.
func (FeeSplit) EventType() string { return TypeFeeSplit }

// Event converts the structured payload into a broadcastable event.
func (e FeeSplit) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeSplit,
		Attributes: map[string]string{
			"fee":    formatAmount(e.Fee),
			"burned": formatAmount(e.Burned),
			"staked": formatAmount(e.Staked),
		},
	}
}

// ParamsUpdated records an owner parameter change.
type ParamsUpdated struct {
	Param string
	Value string
}

// EventType satisfies the Event interface.
func (ParamsUpdated) EventType() string { return TypeParamsUpdated }

// Event converts the structured payload into a broadcastable event.
func (e ParamsUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypeParamsUpdated,
		Attributes: map[string]string{"param": e.Param, "value": e.Value},
	}
}

// OwnershipTransferred records an ownership hand-over. A zero NewOwner means
// ownership was renounced.
type OwnershipTransferred struct {
	Component string
	Previous  common.Address
	NewOwner  common.Address
}

// EventType satisfies the Event interface.
func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

// Event converts the structured payload into a broadcastable event.
func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"component": e.Component,
			"previous":  formatAddress(e.Previous),
			"newOwner":  formatAddress(e.NewOwner),
		},
	}
}
