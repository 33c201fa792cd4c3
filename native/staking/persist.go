package staking

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the key-value functionality required to persist the pool.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	globalsKey     = []byte("staking/globals")
	stakersKey     = []byte("staking/stakers")
	stakeKeyPrefix = "staking/stake/"
)

func stakeKey(addr common.Address) []byte {
	return []byte(stakeKeyPrefix + addr.Hex())
}

type storedGlobals struct {
	TotalStaked    *big.Int
	RewardPerStake *big.Int
}

type storedStake struct {
	Amount     *big.Int
	LockExpiry uint64
	RewardDebt *big.Int
	Credited   *big.Int
}

type dirtySet struct {
	stakes  map[common.Address]struct{}
	globals bool
}

func newDirtySet() dirtySet {
	return dirtySet{stakes: make(map[common.Address]struct{})}
}

func (d *dirtySet) stake(addr common.Address) { d.stakes[addr] = struct{}{} }

// Load replaces the in-memory pool with the persisted one.
func (e *Engine) Load(store Storage) error {
	var globals storedGlobals
	ok, err := store.KVGet(globalsKey, &globals)
	if err != nil {
		return fmt.Errorf("staking: load globals: %w", err)
	}
	var stakers [][]byte
	if err := store.KVGetList(stakersKey, &stakers); err != nil {
		return fmt.Errorf("staking: load stakers: %w", err)
	}
	stakes := make(map[common.Address]*Stake, len(stakers))
	for _, raw := range stakers {
		if len(raw) != common.AddressLength {
			return fmt.Errorf("staking: malformed staker entry")
		}
		addr := common.BytesToAddress(raw)
		var stored storedStake
		found, err := store.KVGet(stakeKey(addr), &stored)
		if err != nil {
			return fmt.Errorf("staking: load stake %s: %w", addr.Hex(), err)
		}
		if !found {
			return fmt.Errorf("staking: stake %s missing", addr.Hex())
		}
		stakes[addr] = &Stake{
			Amount:     cloneBigInt(stored.Amount),
			LockExpiry: int64(stored.LockExpiry),
			RewardDebt: cloneBigInt(stored.RewardDebt),
			Credited:   cloneBigInt(stored.Credited),
		}
	}
	e.stakes = stakes
	e.totalStaked = big.NewInt(0)
	e.rewardPerStake = big.NewInt(0)
	if ok {
		e.totalStaked = cloneBigInt(globals.TotalStaked)
		e.rewardPerStake = cloneBigInt(globals.RewardPerStake)
	}
	e.dirty = newDirtySet()
	return nil
}

// Flush writes every position changed since the last flush.
func (e *Engine) Flush(store Storage) error {
	for addr := range e.dirty.stakes {
		current, ok := e.stakes[addr]
		if !ok {
			continue
		}
		if err := store.KVAppend(stakersKey, addr.Bytes()); err != nil {
			return err
		}
		if err := store.KVPut(stakeKey(addr), storedStake{
			Amount:     cloneBigInt(current.Amount),
			LockExpiry: uint64(current.LockExpiry),
			RewardDebt: cloneBigInt(current.RewardDebt),
			Credited:   cloneBigInt(current.Credited),
		}); err != nil {
			return err
		}
	}
	if e.dirty.globals {
		if err := store.KVPut(globalsKey, storedGlobals{
			TotalStaked:    cloneBigInt(e.totalStaked),
			RewardPerStake: cloneBigInt(e.rewardPerStake),
		}); err != nil {
			return err
		}
	}
	e.dirty = newDirtySet()
	return nil
}
