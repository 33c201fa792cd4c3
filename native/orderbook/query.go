package orderbook

import (
	"github.com/ethereum/go-ethereum/common"

	"limitbook/native/fees"
)

// GetOrder returns a copy of the order with the supplied id.
func (e *Engine) GetOrder(id uint64) (*Order, error) {
	order, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// OrdersCount returns how many orders were ever placed.
func (e *Engine) OrdersCount() uint64 { return uint64(len(e.orders)) }

// ActiveOrdersCount returns the size of the open-order working set.
func (e *Engine) ActiveOrdersCount() int { return e.active.len() }

// ActiveOrderIDAt returns the id stored at index of the working set. Indices
// shift as orders close.
func (e *Engine) ActiveOrderIDAt(index int) (uint64, error) {
	if index < 0 || index >= e.active.len() {
		return 0, ErrIndexOutOfRange
	}
	return e.active.at(index), nil
}

// ActiveOrders returns copies of every open order in working-set order.
func (e *Engine) ActiveOrders() []*Order {
	out := make([]*Order, 0, e.active.len())
	for _, id := range e.active.snapshot() {
		out = append(out, e.orders[id].Clone())
	}
	return out
}

// OrdersCountForAddress returns the history length of a maker or pair address.
func (e *Engine) OrdersCountForAddress(addr common.Address) int {
	return len(e.history[addr])
}

// OrderIDForAddressAt returns the index-th order id recorded for addr.
func (e *Engine) OrderIDForAddressAt(addr common.Address, index int) (uint64, error) {
	list := e.history[addr]
	if index < 0 || index >= len(list) {
		return 0, ErrIndexOutOfRange
	}
	return list[index], nil
}

// OrdersForAddress returns the full history of addr.
func (e *Engine) OrdersForAddress(addr common.Address) []uint64 {
	return append([]uint64(nil), e.history[addr]...)
}

// Params returns the current ledger settings.
func (e *Engine) Params() Params { return e.params }

// FeeTotals returns the running fee totals for a domain.
func (e *Engine) FeeTotals(domain string) fees.Totals {
	domain = fees.NormalizeDomain(domain)
	totals, ok := e.totals[domain]
	if !ok {
		return fees.Totals{Domain: domain}
	}
	return totals.Clone()
}
