package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"limitbook/core/state"
)

var (
	wrapped = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	tokenA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	deflTok = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000001001")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000001002")
)

func newTestLedger(t *testing.T, journal *state.Journal) *Ledger {
	t.Helper()
	l := NewLedger(journal, wrapped)
	if err := l.RegisterToken(tokenA, "aaa", 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := l.RegisterToken(deflTok, "defl", 100); err != nil {
		t.Fatalf("register: %v", err)
	}
	return l
}

func TestTransferWithFeeDestroysDifference(t *testing.T) {
	l := newTestLedger(t, nil)
	if err := l.Mint(deflTok, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	received, err := l.Transfer(deflTok, alice, bob, big.NewInt(1000))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if received.Int64() != 990 {
		t.Fatalf("expected 990 received, got %s", received)
	}
	if l.BalanceOf(deflTok, bob).Int64() != 990 || l.BalanceOf(deflTok, alice).Sign() != 0 {
		t.Fatalf("unexpected balances")
	}
	tok, _ := l.Token(deflTok)
	if tok.Supply.Int64() != 990 || tok.Symbol != "DEFL" {
		t.Fatalf("unexpected token record: %+v", tok)
	}
	if fee := l.TransferFee(deflTok, big.NewInt(490)); fee.Int64() != 4 {
		t.Fatalf("expected fee 4, got %s", fee)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := newTestLedger(t, nil)
	_ = l.Mint(tokenA, alice, big.NewInt(500))
	if _, err := l.TransferFrom(tokenA, bob, alice, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := l.Approve(tokenA, alice, bob, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := l.TransferFrom(tokenA, bob, alice, bob, big.NewInt(200)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := l.Allowance(tokenA, alice, bob); got.Int64() != 100 {
		t.Fatalf("expected remaining allowance 100, got %s", got)
	}
	if _, err := l.Transfer(tokenA, alice, bob, big.NewInt(301)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected balance error, got %v", err)
	}
	if _, err := l.Transfer(common.Address{9}, alice, bob, big.NewInt(1)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
}

func TestWrapUnwrap(t *testing.T) {
	l := newTestLedger(t, nil)
	_ = l.MintNative(alice, big.NewInt(100))
	if err := l.Wrap(alice, big.NewInt(60)); err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if l.NativeBalance(alice).Int64() != 40 || l.BalanceOf(wrapped, alice).Int64() != 60 {
		t.Fatalf("unexpected balances after wrap")
	}
	if err := l.Unwrap(alice, big.NewInt(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := l.Unwrap(alice, big.NewInt(60)); err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if l.NativeBalance(alice).Int64() != 100 {
		t.Fatalf("expected full currency back")
	}
}

func TestOverflowRejected(t *testing.T) {
	l := newTestLedger(t, nil)
	maxAmount := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := l.MintNative(alice, maxAmount); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := l.MintNative(alice, big.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := l.MintNative(alice, new(big.Int).Lsh(big.NewInt(1), 256)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow for 2^256, got %v", err)
	}
	if err := l.MintNative(alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestJournalRevertsLedger(t *testing.T) {
	journal := state.NewJournal()
	l := newTestLedger(t, journal)
	mark := journal.Begin()
	_ = l.Mint(tokenA, alice, big.NewInt(10))
	_ = journal.End(mark, nil)

	mark = journal.Begin()
	if _, err := l.Transfer(tokenA, alice, bob, big.NewInt(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	_ = l.Approve(tokenA, alice, bob, big.NewInt(7))
	_ = l.MintNative(bob, big.NewInt(3))
	_ = journal.End(mark, errors.New("abort"))

	if l.BalanceOf(tokenA, alice).Int64() != 10 || l.BalanceOf(tokenA, bob).Sign() != 0 {
		t.Fatalf("token balances not reverted")
	}
	if l.Allowance(tokenA, alice, bob).Sign() != 0 || l.NativeBalance(bob).Sign() != 0 {
		t.Fatalf("allowance or currency not reverted")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := newTestLedger(t, nil)
	_ = l.Mint(deflTok, alice, big.NewInt(1000))
	_ = l.MintNative(bob, big.NewInt(77))
	_ = l.Approve(deflTok, alice, bob, big.NewInt(5))

	encoded, err := rlp.EncodeToBytes(l.Export())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var snap Snapshot
	if err := rlp.DecodeBytes(encoded, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	restored := NewLedger(nil, wrapped)
	if err := restored.Import(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if restored.BalanceOf(deflTok, alice).Int64() != 1000 || restored.NativeBalance(bob).Int64() != 77 {
		t.Fatalf("balances not restored")
	}
	if restored.Allowance(deflTok, alice, bob).Int64() != 5 {
		t.Fatalf("allowance not restored")
	}
	tok, ok := restored.Token(deflTok)
	if !ok || tok.FeeBps != 100 {
		t.Fatalf("token registry not restored: %+v", tok)
	}
	if !restored.IsToken(wrapped) {
		t.Fatalf("wrapped token must stay registered")
	}
}
