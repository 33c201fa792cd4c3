package keeper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"limitbook/core"
	"limitbook/core/types"
	"limitbook/native/fees"
	"limitbook/native/orderbook"
	"limitbook/storage"
)

var executor = common.HexToAddress("0x00000000000000000000000000000000000000c1")

type fakeNode struct {
	orders   []*orderbook.Order
	fillable map[uint64]bool
	// broken orders pass simulation but fail for real.
	broken    map[uint64]bool
	simulated []uint64
	executed  []uint64
	callers   []common.Address
}

func (f *fakeNode) ActiveOrders() []*orderbook.Order { return f.orders }

func (f *fakeNode) SimulateExecute(_ context.Context, caller common.Address, id uint64) (*orderbook.Result, error) {
	f.simulated = append(f.simulated, id)
	if !f.fillable[id] && !f.broken[id] {
		return nil, fmt.Errorf("%w: insufficient output", orderbook.ErrUpstreamSwapFailed)
	}
	return &orderbook.Result{AmountOut: big.NewInt(1), Fee: big.NewInt(0)}, nil
}

func (f *fakeNode) ExecuteOrder(_ context.Context, caller common.Address, id uint64) (*orderbook.Result, error) {
	f.callers = append(f.callers, caller)
	if f.broken[id] {
		return nil, orderbook.ErrTransferFailed
	}
	f.executed = append(f.executed, id)
	return &orderbook.Result{AmountOut: big.NewInt(1), Fee: big.NewInt(0)}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ordersWithIDs(ids ...uint64) []*orderbook.Order {
	out := make([]*orderbook.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, &orderbook.Order{ID: id})
	}
	return out
}

func TestNewRequiresExecutor(t *testing.T) {
	_, err := New(&fakeNode{}, Config{}, nil)
	require.Error(t, err)
	_, err = New(nil, Config{Address: executor}, nil)
	require.Error(t, err)
}

func TestSweepExecutesOnlyFillableOrders(t *testing.T) {
	node := &fakeNode{
		orders:   ordersWithIDs(1, 2, 3, 4),
		fillable: map[uint64]bool{2: true, 4: true},
		broken:   map[uint64]bool{3: true},
	}
	k, err := New(node, Config{Address: executor}, quietLogger())
	require.NoError(t, err)

	report := k.Sweep(context.Background())
	require.Equal(t, Report{Scanned: 4, Executed: 2, Skipped: 1, Failed: 1}, report)
	require.Equal(t, []uint64{1, 2, 3, 4}, node.simulated)
	require.Equal(t, []uint64{2, 4}, node.executed)
	for _, c := range node.callers {
		require.Equal(t, executor, c)
	}
}

func TestSweepStopsAtBatchLimit(t *testing.T) {
	node := &fakeNode{
		orders:   ordersWithIDs(1, 2, 3),
		fillable: map[uint64]bool{1: true, 2: true, 3: true},
	}
	k, err := New(node, Config{Address: executor, MaxBatch: 2}, quietLogger())
	require.NoError(t, err)

	report := k.Sweep(context.Background())
	require.Equal(t, 2, report.Executed)
	require.Equal(t, []uint64{1, 2}, node.executed)
}

func TestSweepHonoursCancelledContext(t *testing.T) {
	node := &fakeNode{orders: ordersWithIDs(1), fillable: map[uint64]bool{1: true}}
	k, err := New(node, Config{Address: executor}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, Report{}, k.Sweep(ctx))
	require.Empty(t, node.executed)
}

func TestSweepAgainstNode(t *testing.T) {
	var (
		owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		maker   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
		wrapped = common.HexToAddress("0x00000000000000000000000000000000000000ee")
		proto   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
		tokenA  = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
	)
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Owner:         owner,
		WrappedToken:  wrapped,
		ProtocolToken: proto,
		Fee:           fees.Fraction{Mul: 1, Div: 100},
		Split:         fees.DefaultSplit,
		Genesis: &core.Genesis{
			Tokens: []core.GenesisToken{{Address: tokenA, Symbol: "TKA"}, {Address: proto, Symbol: "PRT"}},
			Pools: []core.GenesisPool{
				{TokenA: tokenA, TokenB: wrapped, AmountA: big.NewInt(1_000_000), AmountB: big.NewInt(1_000_000)},
			},
			Balances: []core.GenesisBalance{{Holder: maker, Amount: big.NewInt(1_000_000)}},
		},
		Now: func() int64 { return 1_700_000_000 },
	})
	require.NoError(t, err)

	ctx := context.Background()
	fillable, err := node.PlaceOrder(ctx, types.NewCall(maker, big.NewInt(5_050)), orderbook.CurrencyForToken,
		wrapped, tokenA, big.NewInt(5_000), big.NewInt(1), big.NewInt(50))
	require.NoError(t, err)
	greedy, err := node.PlaceOrder(ctx, types.NewCall(maker, big.NewInt(5_050)), orderbook.CurrencyForToken,
		wrapped, tokenA, big.NewInt(5_000), big.NewInt(1_000_000), big.NewInt(50))
	require.NoError(t, err)

	k, err := New(node, Config{Address: executor}, quietLogger())
	require.NoError(t, err)
	report := k.Sweep(ctx)
	require.Equal(t, 1, report.Executed)
	require.Equal(t, 1, report.Skipped)

	filled, err := node.Order(fillable)
	require.NoError(t, err)
	require.Equal(t, orderbook.StateFilled, filled.State)
	open, err := node.Order(greedy)
	require.NoError(t, err)
	require.Equal(t, orderbook.StateOpen, open.State)
	require.Equal(t, "50", node.Balance(executor, common.Address{}).String())
}
