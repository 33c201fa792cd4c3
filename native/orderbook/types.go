package orderbook

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/native/fees"
)

// Direction selects which side of an order is the native currency.
type Direction uint8

const (
	TokenForToken Direction = iota
	CurrencyForToken
	TokenForCurrency
)

// Valid reports whether the direction value is within the supported range.
func (d Direction) Valid() bool {
	switch d {
	case TokenForToken, CurrencyForToken, TokenForCurrency:
		return true
	default:
		return false
	}
}

// CurrencyIn reports whether the maker escrows currency rather than tokens.
func (d Direction) CurrencyIn() bool { return d == CurrencyForToken }

func (d Direction) String() string {
	switch d {
	case TokenForToken:
		return "TokenForToken"
	case CurrencyForToken:
		return "CurrencyForToken"
	case TokenForCurrency:
		return "TokenForCurrency"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ParseDirection accepts the canonical names case-insensitively.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tokenfortoken", "token_for_token":
		return TokenForToken, nil
	case "currencyfortoken", "currency_for_token":
		return CurrencyForToken, nil
	case "tokenforcurrency", "token_for_currency":
		return TokenForCurrency, nil
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidOrder, raw)
	}
}

// State is the lifecycle state of an order. Only Open→Cancelled and
// Open→Filled transitions exist.
type State uint8

const (
	StateOpen State = iota
	StateCancelled
	StateFilled
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCancelled:
		return "cancelled"
	case StateFilled:
		return "filled"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Order is a maker's escrowed request. AmountInOffered is what the ledger
// actually received; AmountOutExpected is the maker's minimum and is never
// adjusted. TotalCommitted is the currency escrowed for the order: the
// executor fee, plus AmountInOffered when the input is currency.
type Order struct {
	ID                uint64
	Direction         Direction
	Maker             common.Address
	TokenIn           common.Address
	TokenOut          common.Address
	Pair              common.Address
	AmountInOffered   *big.Int
	AmountOutExpected *big.Int
	ExecutorFee       *big.Int
	TotalCommitted    *big.Int
	State             State
	Deflationary      bool
	CreatedAt         int64
	UpdatedAt         int64
}

// Clone returns a deep copy of the order so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.AmountInOffered = cloneBigInt(o.AmountInOffered)
	clone.AmountOutExpected = cloneBigInt(o.AmountOutExpected)
	clone.ExecutorFee = cloneBigInt(o.ExecutorFee)
	clone.TotalCommitted = cloneBigInt(o.TotalCommitted)
	return &clone
}

// Result reports the realised amounts of an execution. AmountIn is what was
// swapped for the trade, AmountOut what the trade leg produced.
type Result struct {
	AmountIn  *big.Int
	AmountOut *big.Int
	// Gross is the currency value the fee was assessed on.
	Gross     *big.Int
	Fee       *big.Int
	Burned    *big.Int
	Staked    *big.Int
}

// Params are the owner-controlled settings of the ledger.
type Params struct {
	Fee        fees.Fraction
	Split      fees.Fraction
	Owner      common.Address
	RewardPool common.Address
	FeeSink    common.Address
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func positive(v *big.Int) bool { return v != nil && v.Sign() > 0 }
