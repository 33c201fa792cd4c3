package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/native/fees"
	"limitbook/native/orderbook"
)

// StakeView is a staker's position together with the reward it could claim.
type StakeView struct {
	Address    common.Address
	Amount     *big.Int
	LockExpiry int64
	Pending    *big.Int
}

// PoolView summarises the staking pool.
type PoolView struct {
	Address        common.Address
	Token          common.Address
	TotalStaked    *big.Int
	RewardPerStake *big.Int
	Stakers        int
	Balance        *big.Int
	LockPeriod     int64
}

// LedgerView summarises the order ledger.
type LedgerView struct {
	Params       orderbook.Params
	Orders       uint64
	ActiveOrders int
	Fees         []fees.Totals
}

// Order returns a copy of an order.
func (n *Node) Order(id uint64) (*orderbook.Order, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.GetOrder(id)
}

// ActiveOrders returns copies of every open order in active-set order.
func (n *Node) ActiveOrders() []*orderbook.Order {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.ActiveOrders()
}

// OrdersForAddress resolves the history of a maker or trading pair.
func (n *Node) OrdersForAddress(addr common.Address) []*orderbook.Order {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	ids := n.ledger.OrdersForAddress(addr)
	out := make([]*orderbook.Order, 0, len(ids))
	for _, id := range ids {
		order, err := n.ledger.GetOrder(id)
		if err != nil {
			continue
		}
		out = append(out, order)
	}
	return out
}

// Ledger summarises the ledger settings and counters.
func (n *Node) Ledger() LedgerView {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return LedgerView{
		Params:       n.ledger.Params(),
		Orders:       n.ledger.OrdersCount(),
		ActiveOrders: n.ledger.ActiveOrdersCount(),
		Fees: []fees.Totals{
			n.ledger.FeeTotals(fees.DomainLimitOrder),
			n.ledger.FeeTotals(fees.DomainMarketOrder),
		},
	}
}

// StakeOf returns the position of addr.
func (n *Node) StakeOf(addr common.Address) StakeView {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	info := n.staking.GetStake(addr)
	return StakeView{
		Address:    addr,
		Amount:     info.Amount,
		LockExpiry: info.LockExpiry,
		Pending:    n.staking.PendingReward(addr),
	}
}

// Pool summarises the staking pool.
func (n *Node) Pool() PoolView {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return PoolView{
		Address:        n.staking.Address(),
		Token:          n.staking.Token(),
		TotalStaked:    n.staking.TotalStaked(),
		RewardPerStake: n.staking.RewardPerStake(),
		Stakers:        n.staking.StakersCount(),
		Balance:        n.bank.NativeBalance(n.staking.Address()),
		LockPeriod:     int64(n.staking.LockPeriod().Seconds()),
	}
}

// Balance returns holder's balance of token. A zero token selects the native
// currency.
func (n *Node) Balance(holder, token common.Address) *big.Int {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if token == (common.Address{}) {
		return n.bank.NativeBalance(holder)
	}
	return n.bank.BalanceOf(token, holder)
}

// Allowance returns the remaining allowance of spender over owner's token.
func (n *Node) Allowance(token, owner, spender common.Address) *big.Int {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.bank.Allowance(token, owner, spender)
}

// BurnStats reports the incinerator totals.
func (n *Node) BurnStats() (lastBurn int64, burned, pending *big.Int) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.incinerator.LastBurn(), n.incinerator.TotalBurned(), n.incinerator.Pending()
}
