package bank

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Snapshot is the RLP-friendly image of a Ledger. Entries are sorted so the
// encoding is deterministic.
type Snapshot struct {
	Native     []Holding
	Tokens     []TokenRecord
	Balances   []TokenHolding
	Allowances []Approval
}

// Holding is a currency balance.
type Holding struct {
	Account common.Address
	Amount  *big.Int
}

// TokenRecord is a registry entry.
type TokenRecord struct {
	Address common.Address
	Symbol  string
	FeeBps  uint32
	Supply  *big.Int
}

// TokenHolding is a token balance.
type TokenHolding struct {
	Token   common.Address
	Account common.Address
	Amount  *big.Int
}

// Approval is an outstanding allowance.
type Approval struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

// Export captures the current ledger contents.
func (l *Ledger) Export() Snapshot {
	var snap Snapshot
	for addr, bal := range l.native {
		if bal.IsZero() {
			continue
		}
		snap.Native = append(snap.Native, Holding{Account: addr, Amount: bal.ToBig()})
	}
	sort.Slice(snap.Native, func(i, j int) bool {
		return bytes.Compare(snap.Native[i].Account[:], snap.Native[j].Account[:]) < 0
	})
	for addr, tok := range l.tokens {
		snap.Tokens = append(snap.Tokens, TokenRecord{Address: addr, Symbol: tok.symbol, FeeBps: tok.feeBps, Supply: tok.supply.ToBig()})
		for holder, bal := range l.balances[addr] {
			if bal.IsZero() {
				continue
			}
			snap.Balances = append(snap.Balances, TokenHolding{Token: addr, Account: holder, Amount: bal.ToBig()})
		}
		for key, v := range l.allowances[addr] {
			if v.IsZero() {
				continue
			}
			snap.Allowances = append(snap.Allowances, Approval{Token: addr, Owner: key.owner, Spender: key.spender, Amount: v.ToBig()})
		}
	}
	sort.Slice(snap.Tokens, func(i, j int) bool {
		return bytes.Compare(snap.Tokens[i].Address[:], snap.Tokens[j].Address[:]) < 0
	})
	sort.Slice(snap.Balances, func(i, j int) bool {
		a, b := snap.Balances[i], snap.Balances[j]
		if c := bytes.Compare(a.Token[:], b.Token[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Account[:], b.Account[:]) < 0
	})
	sort.Slice(snap.Allowances, func(i, j int) bool {
		a, b := snap.Allowances[i], snap.Allowances[j]
		if c := bytes.Compare(a.Token[:], b.Token[:]); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Spender[:], b.Spender[:]) < 0
	})
	return snap
}

// Import replaces the ledger contents with snap. The wrapped token is kept
// registered even if the snapshot predates it.
func (l *Ledger) Import(snap Snapshot) error {
	native := make(map[common.Address]*uint256.Int, len(snap.Native))
	for _, h := range snap.Native {
		v, err := toUint(h.Amount)
		if err != nil {
			return err
		}
		native[h.Account] = v
	}
	tokens := make(map[common.Address]*tokenState, len(snap.Tokens)+1)
	tokens[l.wrapped] = &tokenState{symbol: "WNATIVE", supply: new(uint256.Int)}
	for _, rec := range snap.Tokens {
		supply, err := toUint(rec.Supply)
		if err != nil {
			return err
		}
		tokens[rec.Address] = &tokenState{symbol: rec.Symbol, feeBps: rec.FeeBps, supply: supply}
	}
	balances := make(map[common.Address]map[common.Address]*uint256.Int)
	for _, h := range snap.Balances {
		v, err := toUint(h.Amount)
		if err != nil {
			return err
		}
		if balances[h.Token] == nil {
			balances[h.Token] = make(map[common.Address]*uint256.Int)
		}
		balances[h.Token][h.Account] = v
	}
	allowances := make(map[common.Address]map[allowanceKey]*uint256.Int)
	for _, a := range snap.Allowances {
		v, err := toUint(a.Amount)
		if err != nil {
			return err
		}
		if allowances[a.Token] == nil {
			allowances[a.Token] = make(map[allowanceKey]*uint256.Int)
		}
		allowances[a.Token][allowanceKey{a.Owner, a.Spender}] = v
	}
	l.native, l.tokens, l.balances, l.allowances = native, tokens, balances, allowances
	return nil
}
