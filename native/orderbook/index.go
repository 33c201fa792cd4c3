package orderbook

import "github.com/ethereum/go-ethereum/common"

// activeSet is the working set of open order ids: a dense slice plus an
// id→slot map. Removal moves the last id into the freed slot.
type activeSet struct {
	ids  []uint64
	slot map[uint64]int
}

func newActiveSet() activeSet {
	return activeSet{slot: make(map[uint64]int)}
}

func (s *activeSet) len() int { return len(s.ids) }

func (s *activeSet) at(i int) uint64 { return s.ids[i] }

func (s *activeSet) contains(id uint64) bool {
	_, ok := s.slot[id]
	return ok
}

func (s *activeSet) insert(id uint64) {
	if s.contains(id) {
		return
	}
	s.slot[id] = len(s.ids)
	s.ids = append(s.ids, id)
}

func (s *activeSet) undoInsert() {
	last := len(s.ids) - 1
	if last < 0 {
		return
	}
	delete(s.slot, s.ids[last])
	s.ids = s.ids[:last]
}

// remove drops id in O(1) and returns a closure restoring the exact previous
// layout.
func (s *activeSet) remove(id uint64) (func(), bool) {
	i, ok := s.slot[id]
	if !ok {
		return nil, false
	}
	last := len(s.ids) - 1
	moved := s.ids[last]
	s.ids[i] = moved
	s.slot[moved] = i
	s.ids = s.ids[:last]
	delete(s.slot, id)
	return func() {
		s.ids = append(s.ids, moved)
		s.slot[moved] = last
		s.ids[i] = id
		s.slot[id] = i
	}, true
}

func (s *activeSet) snapshot() []uint64 {
	return append([]uint64(nil), s.ids...)
}

func (s *activeSet) reset(ids []uint64) {
	s.ids = append([]uint64(nil), ids...)
	s.slot = make(map[uint64]int, len(ids))
	for i, id := range s.ids {
		s.slot[id] = i
	}
}

// dirtySet tracks the records that changed since the last flush.
type dirtySet struct {
	orders    map[uint64]struct{}
	addresses map[common.Address]struct{}
	active    bool
	seq       bool
	params    bool
}

func newDirtySet() dirtySet {
	return dirtySet{
		orders:    make(map[uint64]struct{}),
		addresses: make(map[common.Address]struct{}),
	}
}

func (d *dirtySet) order(id uint64) { d.orders[id] = struct{}{} }
func (d *dirtySet) address(addr common.Address) { d.addresses[addr] = struct{}{} }
