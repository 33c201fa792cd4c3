package orderbook

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the key-value functionality required to persist the
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	seqKey         = []byte("orderbook/seq")
	activeKey      = []byte("orderbook/active")
	paramsKey      = []byte("orderbook/params")
	orderKeyPrefix = "orderbook/order/"
	addressPrefix  = "orderbook/address/"
)

func orderKey(id uint64) []byte {
	return []byte(orderKeyPrefix + strconv.FormatUint(id, 10))
}

func addressKey(addr common.Address) []byte {
	return []byte(addressPrefix + addr.Hex())
}

func encodeID(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

type storedOrder struct {
	ID                uint64
	Direction         uint8
	Maker             common.Address
	TokenIn           common.Address
	TokenOut          common.Address
	Pair              common.Address
	AmountInOffered   *big.Int
	AmountOutExpected *big.Int
	ExecutorFee       *big.Int
	TotalCommitted    *big.Int
	State             uint8
	Deflationary      bool
	CreatedAt         uint64
	UpdatedAt         uint64
}

type storedParams struct {
	FeeMul     uint64
	FeeDiv     uint64
	SplitMul   uint64
	SplitDiv   uint64
	Owner      common.Address
	RewardPool common.Address
	FeeSink    common.Address
}

func toStored(o *Order) storedOrder {
	return storedOrder{
		ID:                o.ID,
		Direction:         uint8(o.Direction),
		Maker:             o.Maker,
		TokenIn:           o.TokenIn,
		TokenOut:          o.TokenOut,
		Pair:              o.Pair,
		AmountInOffered:   cloneBigInt(o.AmountInOffered),
		AmountOutExpected: cloneBigInt(o.AmountOutExpected),
		ExecutorFee:       cloneBigInt(o.ExecutorFee),
		TotalCommitted:    cloneBigInt(o.TotalCommitted),
		State:             uint8(o.State),
		Deflationary:      o.Deflationary,
		CreatedAt:         uint64(o.CreatedAt),
		UpdatedAt:         uint64(o.UpdatedAt),
	}
}

func (s storedOrder) order() *Order {
	return &Order{
		ID:                s.ID,
		Direction:         Direction(s.Direction),
		Maker:             s.Maker,
		TokenIn:           s.TokenIn,
		TokenOut:          s.TokenOut,
		Pair:              s.Pair,
		AmountInOffered:   cloneBigInt(s.AmountInOffered),
		AmountOutExpected: cloneBigInt(s.AmountOutExpected),
		ExecutorFee:       cloneBigInt(s.ExecutorFee),
		TotalCommitted:    cloneBigInt(s.TotalCommitted),
		State:             State(s.State),
		Deflationary:      s.Deflationary,
		CreatedAt:         int64(s.CreatedAt),
		UpdatedAt:         int64(s.UpdatedAt),
	}
}

// Load replaces the in-memory ledger with the persisted one. The returned
// params let the caller re-attach the sink and pool they name.
func (e *Engine) Load(store Storage) (Params, error) {
	var seq uint64
	if _, err := store.KVGet(seqKey, &seq); err != nil {
		return Params{}, fmt.Errorf("orderbook: load seq: %w", err)
	}
	orders := make([]*Order, 0, seq)
	for id := uint64(0); id < seq; id++ {
		var stored storedOrder
		ok, err := store.KVGet(orderKey(id), &stored)
		if err != nil {
			return Params{}, fmt.Errorf("orderbook: load order %d: %w", id, err)
		}
		if !ok {
			return Params{}, fmt.Errorf("orderbook: order %d missing", id)
		}
		orders = append(orders, stored.order())
	}
	history := make(map[common.Address][]uint64)
	for _, order := range orders {
		for _, addr := range []common.Address{order.Maker, order.Pair} {
			if _, seen := history[addr]; seen {
				continue
			}
			var raw [][]byte
			if err := store.KVGetList(addressKey(addr), &raw); err != nil {
				return Params{}, fmt.Errorf("orderbook: load history %s: %w", addr.Hex(), err)
			}
			ids := make([]uint64, 0, len(raw))
			for _, entry := range raw {
				if len(entry) != 8 {
					return Params{}, fmt.Errorf("orderbook: malformed history entry for %s", addr.Hex())
				}
				ids = append(ids, binary.BigEndian.Uint64(entry))
			}
			history[addr] = ids
		}
	}
	var active []uint64
	if _, err := store.KVGet(activeKey, &active); err != nil {
		return Params{}, fmt.Errorf("orderbook: load active set: %w", err)
	}
	params := e.params
	var stored storedParams
	ok, err := store.KVGet(paramsKey, &stored)
	if err != nil {
		return Params{}, fmt.Errorf("orderbook: load params: %w", err)
	}
	if ok {
		params.Fee.Mul, params.Fee.Div = stored.FeeMul, stored.FeeDiv
		params.Split.Mul, params.Split.Div = stored.SplitMul, stored.SplitDiv
		params.Owner = stored.Owner
		params.RewardPool = stored.RewardPool
		params.FeeSink = stored.FeeSink
	}
	e.orders = orders
	e.history = history
	e.active.reset(active)
	e.params = params
	e.dirty = newDirtySet()
	e.persisted = make(map[common.Address]int, len(history))
	for addr, ids := range history {
		e.persisted[addr] = len(ids)
	}
	return params, nil
}

// Flush writes every record changed since the last flush. It always writes the
// current in-memory value, so records touched by reverted calls are rewritten
// unchanged.
func (e *Engine) Flush(store Storage) error {
	if e.dirty.seq {
		if err := store.KVPut(seqKey, uint64(len(e.orders))); err != nil {
			return err
		}
	}
	for id := range e.dirty.orders {
		if id >= uint64(len(e.orders)) {
			continue
		}
		if err := store.KVPut(orderKey(id), toStored(e.orders[id])); err != nil {
			return err
		}
	}
	for addr := range e.dirty.addresses {
		ids := e.history[addr]
		for _, id := range ids[e.persisted[addr]:] {
			if err := store.KVAppend(addressKey(addr), encodeID(id)); err != nil {
				return err
			}
		}
		e.persisted[addr] = len(ids)
	}
	if e.dirty.active {
		if err := store.KVPut(activeKey, e.active.snapshot()); err != nil {
			return err
		}
	}
	if e.dirty.params {
		p := e.params
		if err := store.KVPut(paramsKey, storedParams{
			FeeMul: p.Fee.Mul, FeeDiv: p.Fee.Div,
			SplitMul: p.Split.Mul, SplitDiv: p.Split.Div,
			Owner: p.Owner, RewardPool: p.RewardPool, FeeSink: p.FeeSink,
		}); err != nil {
			return err
		}
	}
	e.dirty = newDirtySet()
	return nil
}
