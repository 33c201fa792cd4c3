package amm

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// PairRecord is the persisted form of a Pair.
type PairRecord struct {
	Token0      common.Address
	Token1      common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
	Providers   []Share
}

// Share is a provider's stake in a pool.
type Share struct {
	Provider common.Address
	Amount   *big.Int
}

// Export returns every pool sorted by address.
func (e *Exchange) Export() []PairRecord {
	pairs := make([]*Pair, 0, len(e.byAddr))
	for _, p := range e.byAddr {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].Address[:], pairs[j].Address[:]) < 0 })
	out := make([]PairRecord, 0, len(pairs))
	for _, p := range pairs {
		rec := PairRecord{
			Token0:      p.Token0,
			Token1:      p.Token1,
			Reserve0:    new(big.Int).Set(p.Reserve0),
			Reserve1:    new(big.Int).Set(p.Reserve1),
			TotalSupply: new(big.Int).Set(p.TotalSupply),
		}
		for provider, amount := range p.shares {
			rec.Providers = append(rec.Providers, Share{Provider: provider, Amount: new(big.Int).Set(amount)})
		}
		sort.Slice(rec.Providers, func(i, j int) bool {
			return bytes.Compare(rec.Providers[i].Provider[:], rec.Providers[j].Provider[:]) < 0
		})
		out = append(out, rec)
	}
	return out
}

// Import replaces the pool registry with records.
func (e *Exchange) Import(records []PairRecord) {
	e.pairs = make(map[pairKey]*Pair, len(records))
	e.byAddr = make(map[common.Address]*Pair, len(records))
	for _, rec := range records {
		pair := &Pair{
			Address:     e.PairAddress(rec.Token0, rec.Token1),
			Token0:      rec.Token0,
			Token1:      rec.Token1,
			Reserve0:    nonNil(rec.Reserve0),
			Reserve1:    nonNil(rec.Reserve1),
			TotalSupply: nonNil(rec.TotalSupply),
			shares:      make(map[common.Address]*big.Int, len(rec.Providers)),
		}
		for _, share := range rec.Providers {
			pair.shares[share.Provider] = nonNil(share.Amount)
		}
		e.pairs[pairKey{rec.Token0, rec.Token1}] = pair
		e.byAddr[pair.Address] = pair
	}
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
