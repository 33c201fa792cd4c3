package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Call describes the invoking account of a state transition together with the
// native currency it attached. The callee collects the attached value itself
// once its validation has passed.
type Call struct {
	Sender common.Address
	Value  *big.Int
}

// NewCall builds a call carrying the supplied value. A nil value is treated as
// zero.
func NewCall(sender common.Address, value *big.Int) Call {
	return Call{Sender: sender, Value: value}
}

// AttachedValue returns a copy of the attached currency, never nil.
func (c Call) AttachedValue() *big.Int {
	if c.Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(c.Value)
}

// HasValue reports whether any currency was attached to the call.
func (c Call) HasValue() bool {
	return c.Value != nil && c.Value.Sign() != 0
}

// ModuleAddress derives the deterministic account that holds the funds of a
// named module.
func ModuleAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("module/" + name))[12:])
}
