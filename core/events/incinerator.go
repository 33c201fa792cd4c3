package events

import (
	"math/big"

	"limitbook/core/types"
)

const (
	// TypeToBurn is emitted whenever currency is queued for burning.
	TypeToBurn = "incinerator.to_burn"
	// TypeBurned is emitted when queued currency was converted and destroyed.
	TypeBurned = "incinerator.burned"
)

// ToBurn captures currency handed to the incinerator.
type ToBurn struct {
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (ToBurn) EventType() string { return TypeToBurn }

// Event converts the structured payload into a broadcastable event.
func (e ToBurn) Event() *types.Event {
	return &types.Event{
		Type:       TypeToBurn,
		Attributes: map[string]string{"amount": formatAmount(e.Amount)},
	}
}

// Burned captures a completed buy-and-burn.
type Burned struct {
	NativeIn  *big.Int
	TokensOut *big.Int
}

// EventType satisfies the Event interface.
func (Burned) EventType() string { return TypeBurned }

// Event converts the structured payload into a broadcastable event.
func (e Burned) Event() *types.Event {
	return &types.Event{
		Type: TypeBurned,
		Attributes: map[string]string{
			"nativeIn":  formatAmount(e.NativeIn),
			"tokensOut": formatAmount(e.TokensOut),
		},
	}
}
