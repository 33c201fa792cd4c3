package orderbook

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"limitbook/core/events"
	"limitbook/core/state"
	"limitbook/core/types"
	"limitbook/native/amm"
	"limitbook/native/bank"
	"limitbook/native/fees"
	"limitbook/storage"
)

var (
	wrapped  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	tokenA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	deflTok  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	orphan   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	lp       = common.HexToAddress("0x0000000000000000000000000000000000002001")
	maker    = common.HexToAddress("0x0000000000000000000000000000000000003001")
	executor = common.HexToAddress("0x0000000000000000000000000000000000003002")
	owner    = common.HexToAddress("0x0000000000000000000000000000000000003003")
)

const testNow = int64(1_700_000_000)

type sinkStub struct {
	ledger *bank.Ledger
	addr   common.Address
	total  *big.Int
}

func (s *sinkStub) Address() common.Address { return s.addr }

func (s *sinkStub) Burn(call types.Call) error {
	if err := s.ledger.TransferNative(call.Sender, s.addr, call.AttachedValue()); err != nil {
		return err
	}
	s.total.Add(s.total, call.AttachedValue())
	return nil
}

type poolStub struct {
	ledger *bank.Ledger
	addr   common.Address
	staked *big.Int
	total  *big.Int
}

func (p *poolStub) Address() common.Address { return p.addr }

func (p *poolStub) TotalStaked() *big.Int { return p.staked }

func (p *poolStub) Deposit(call types.Call) error {
	if err := p.ledger.TransferNative(call.Sender, p.addr, call.AttachedValue()); err != nil {
		return err
	}
	p.total.Add(p.total, call.AttachedValue())
	return nil
}

type fixture struct {
	journal  *state.Journal
	ledger   *bank.Ledger
	exchange *amm.Exchange
	engine   *Engine
	sink     *sinkStub
	pool     *poolStub
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	journal := state.NewJournal()
	ledger := bank.NewLedger(journal, wrapped)
	require.NoError(t, ledger.RegisterToken(tokenA, "A", 0))
	require.NoError(t, ledger.RegisterToken(tokenB, "B", 0))
	require.NoError(t, ledger.RegisterToken(deflTok, "D", 100))
	require.NoError(t, ledger.RegisterToken(orphan, "O", 0))

	exchange := amm.NewExchange(ledger, journal)
	exchange.SetNowFunc(func() int64 { return testNow })
	require.NoError(t, ledger.MintNative(lp, big.NewInt(3_000_000)))
	require.NoError(t, ledger.Wrap(lp, big.NewInt(3_000_000)))
	for _, tok := range []common.Address{tokenA, tokenB, deflTok} {
		require.NoError(t, ledger.Mint(tok, lp, big.NewInt(10_000_000)))
		_, err := exchange.AddLiquidity(lp, tok, wrapped, big.NewInt(100_000), big.NewInt(1_000_000))
		require.NoError(t, err)
	}
	_, err := exchange.AddLiquidity(lp, tokenA, tokenB, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	engine := NewEngine(ledger, exchange, journal, owner)
	engine.SetNowFunc(func() int64 { return testNow })
	require.NoError(t, engine.SetFeeFraction(owner, 1, 100))
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	sink := &sinkStub{ledger: ledger, addr: common.HexToAddress("0x51"), total: big.NewInt(0)}
	pool := &poolStub{ledger: ledger, addr: common.HexToAddress("0x52"), staked: big.NewInt(1), total: big.NewInt(0)}
	engine.AttachFeeSink(sink)
	engine.AttachRewardPool(pool)

	require.NoError(t, ledger.MintNative(maker, big.NewInt(10_000_000)))
	for _, tok := range []common.Address{tokenA, tokenB, deflTok, orphan} {
		require.NoError(t, ledger.Mint(tok, maker, big.NewInt(1_000_000)))
		require.NoError(t, ledger.Approve(tok, maker, engine.Address(), big.NewInt(1_000_000)))
	}
	return &fixture{journal: journal, ledger: ledger, exchange: exchange, engine: engine, sink: sink, pool: pool, recorder: recorder}
}

func (f *fixture) quote(t *testing.T, amount int64, path ...common.Address) *big.Int {
	t.Helper()
	amounts, err := f.exchange.GetAmountsOut(big.NewInt(amount), path)
	require.NoError(t, err)
	return amounts[len(amounts)-1]
}

func (f *fixture) placeToken(t *testing.T, dir Direction, tokenIn, tokenOut common.Address, amountIn int64) uint64 {
	t.Helper()
	id, err := f.engine.Place(types.NewCall(maker, big.NewInt(5)), dir, tokenIn, tokenOut, big.NewInt(amountIn), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	return id
}

func TestPlaceRejectsInvalidOrders(t *testing.T) {
	f := newFixture(t)
	one, five := big.NewInt(1), big.NewInt(5)
	call := types.NewCall(maker, five)
	cases := []struct {
		name     string
		call     types.Call
		dir      Direction
		in, out  common.Address
		amountIn *big.Int
		fee      *big.Int
		want     error
	}{
		{"unknown direction", call, Direction(7), tokenA, tokenB, one, five, ErrInvalidOrder},
		{"same token", call, TokenForToken, tokenA, tokenA, one, five, ErrInvalidOrder},
		{"zero token", call, TokenForToken, common.Address{}, tokenA, one, five, ErrInvalidOrder},
		{"currency input not wrapped", call, CurrencyForToken, tokenA, tokenB, one, five, ErrInvalidOrder},
		{"currency output not wrapped", call, TokenForCurrency, tokenA, tokenB, one, five, ErrInvalidOrder},
		{"token order names wrapped", call, TokenForToken, tokenA, wrapped, one, five, ErrInvalidOrder},
		{"zero amount", call, TokenForToken, tokenA, tokenB, big.NewInt(0), five, ErrInvalidOrder},
		{"zero executor fee", types.NewCall(maker, nil), TokenForToken, tokenA, tokenB, one, big.NewInt(0), ErrInvalidOrder},
		{"wrong commitment", types.NewCall(maker, big.NewInt(4)), TokenForToken, tokenA, tokenB, one, five, ErrInvalidCommitment},
		{"currency commitment excludes input", call, CurrencyForToken, wrapped, tokenB, one, five, ErrInvalidCommitment},
		{"no fee leg", call, TokenForCurrency, orphan, wrapped, one, five, ErrNoRoute},
		{"no trading pair", call, TokenForToken, tokenB, deflTok, one, five, ErrNoRoute},
		{"no allowance", call, TokenForToken, tokenA, tokenB, big.NewInt(2_000_000), five, ErrTransferFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Place(tc.call, tc.dir, tc.in, tc.out, tc.amountIn, one, tc.fee)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Zero(t, f.engine.OrdersCount())
	require.Zero(t, f.engine.ActiveOrdersCount())
	require.Equal(t, int64(10_000_000), f.ledger.NativeBalance(maker).Int64())
	require.Equal(t, int64(1_000_000), f.ledger.BalanceOf(tokenA, maker).Int64())
	require.Empty(t, f.recorder.Events())
}

func TestPlaceEscrowsAndIndexes(t *testing.T) {
	f := newFixture(t)
	first := f.placeToken(t, TokenForToken, tokenA, tokenB, 1000)
	id, err := f.engine.Place(types.NewCall(maker, big.NewInt(1005)), CurrencyForToken, wrapped, tokenB, big.NewInt(1000), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)
	require.Equal(t, uint64(1), id)

	require.Equal(t, int64(1000), f.ledger.BalanceOf(tokenA, f.engine.Address()).Int64())
	require.Equal(t, int64(1010), f.ledger.NativeBalance(f.engine.Address()).Int64())

	order, err := f.engine.GetOrder(id)
	require.NoError(t, err)
	require.Equal(t, StateOpen, order.State)
	require.Equal(t, int64(1005), order.TotalCommitted.Int64())
	require.Equal(t, testNow, order.CreatedAt)
	require.False(t, order.Deflationary)

	require.Equal(t, []uint64{0, 1}, f.engine.OrdersForAddress(maker))
	pairAB, _ := f.exchange.GetPair(tokenA, tokenB)
	require.Equal(t, []uint64{0}, f.engine.OrdersForAddress(pairAB))
	idx, err := f.engine.OrderIDForAddressAt(maker, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)
	_, err = f.engine.OrderIDForAddressAt(maker, 2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	require.Equal(t, 2, f.engine.ActiveOrdersCount())
	require.Len(t, f.recorder.OfType(events.TypeOrderPlaced), 2)

	_, err = f.engine.GetOrder(9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeflationaryCustodyTracksReceivedAmounts(t *testing.T) {
	f := newFixture(t)
	id := f.placeToken(t, TokenForCurrency, deflTok, wrapped, 1000)
	order, err := f.engine.GetOrder(id)
	require.NoError(t, err)
	require.Equal(t, int64(990), order.AmountInOffered.Int64())
	require.True(t, order.Deflationary)

	updated, err := f.engine.Update(types.NewCall(maker, nil), id, big.NewInt(2000), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, int64(1990), updated.AmountInOffered.Int64())

	before := f.ledger.BalanceOf(deflTok, maker)
	updated, err = f.engine.Update(types.NewCall(maker, nil), id, big.NewInt(1500), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, int64(1500), updated.AmountInOffered.Int64())
	received := new(big.Int).Sub(f.ledger.BalanceOf(deflTok, maker), before)
	require.Equal(t, int64(486), received.Int64())
	require.Equal(t, int64(1500), f.ledger.BalanceOf(deflTok, f.engine.Address()).Int64())
}

func TestUpdateCommitmentRules(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.Place(types.NewCall(maker, big.NewInt(1005)), CurrencyForToken, wrapped, tokenB, big.NewInt(1000), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)

	_, err = f.engine.Update(types.NewCall(executor, nil), id, big.NewInt(1000), big.NewInt(1), big.NewInt(5))
	require.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.engine.Update(types.NewCall(maker, nil), 42, big.NewInt(1000), big.NewInt(1), big.NewInt(5))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.Update(types.NewCall(maker, big.NewInt(100)), id, big.NewInt(1200), big.NewInt(1), big.NewInt(5))
	require.ErrorIs(t, err, ErrCommitmentMismatch)
	_, err = f.engine.Update(types.NewCall(maker, big.NewInt(1)), id, big.NewInt(900), big.NewInt(1), big.NewInt(5))
	require.ErrorIs(t, err, ErrCommitmentMismatch)
	_, err = f.engine.Update(types.NewCall(maker, nil), id, big.NewInt(0), big.NewInt(1), big.NewInt(5))
	require.ErrorIs(t, err, ErrInvalidOrder)

	updated, err := f.engine.Update(types.NewCall(maker, big.NewInt(203)), id, big.NewInt(1200), big.NewInt(7), big.NewInt(8))
	require.NoError(t, err)
	require.Equal(t, int64(1208), updated.TotalCommitted.Int64())
	require.Equal(t, int64(1208), f.ledger.NativeBalance(f.engine.Address()).Int64())

	balance := f.ledger.NativeBalance(maker)
	updated, err = f.engine.Update(types.NewCall(maker, nil), id, big.NewInt(600), big.NewInt(7), big.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, int64(602), updated.TotalCommitted.Int64())
	refund := new(big.Int).Sub(f.ledger.NativeBalance(maker), balance)
	require.Equal(t, int64(606), refund.Int64())

	require.NoError(t, f.engine.Cancel(maker, id))
	_, err = f.engine.Update(types.NewCall(maker, nil), id, big.NewInt(600), big.NewInt(7), big.NewInt(2))
	require.ErrorIs(t, err, ErrNotOpen)
	require.Len(t, f.recorder.OfType(events.TypeOrderUpdated), 2)
}

func TestCancelRefundsEverything(t *testing.T) {
	f := newFixture(t)
	id := f.placeToken(t, TokenForToken, tokenA, tokenB, 1000)

	require.ErrorIs(t, f.engine.Cancel(executor, id), ErrPermissionDenied)
	require.ErrorIs(t, f.engine.Cancel(maker, 3), ErrNotFound)
	require.NoError(t, f.engine.Cancel(maker, id))
	require.ErrorIs(t, f.engine.Cancel(maker, id), ErrNotOpen)

	require.Equal(t, int64(1_000_000), f.ledger.BalanceOf(tokenA, maker).Int64())
	require.Equal(t, int64(10_000_000), f.ledger.NativeBalance(maker).Int64())
	require.Zero(t, f.engine.ActiveOrdersCount())
	require.Equal(t, []uint64{0}, f.engine.OrdersForAddress(maker))
	order, _ := f.engine.GetOrder(id)
	require.Equal(t, StateCancelled, order.State)

	_, err := f.engine.Execute(executor, id)
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestExecuteCurrencyForTokenCutsFeeBeforeSwap(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.Place(types.NewCall(maker, big.NewInt(1005)), CurrencyForToken, wrapped, tokenB, big.NewInt(1000), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	expected := f.quote(t, 990, wrapped, tokenB)
	before := f.ledger.BalanceOf(tokenB, maker)

	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, int64(990), res.AmountIn.Int64())
	require.Equal(t, int64(10), res.Fee.Int64())
	require.Equal(t, int64(6), res.Burned.Int64())
	require.Equal(t, int64(4), res.Staked.Int64())
	require.Equal(t, expected.String(), res.AmountOut.String())
	require.Equal(t, expected.String(), new(big.Int).Sub(f.ledger.BalanceOf(tokenB, maker), before).String())

	require.Equal(t, int64(6), f.sink.total.Int64())
	require.Equal(t, int64(4), f.pool.total.Int64())
	require.Equal(t, int64(5), f.ledger.NativeBalance(executor).Int64())
	require.Zero(t, f.ledger.NativeBalance(f.engine.Address()).Sign())

	order, _ := f.engine.GetOrder(id)
	require.Equal(t, StateFilled, order.State)
	require.Zero(t, f.engine.ActiveOrdersCount())
	totals := f.engine.FeeTotals(fees.DomainLimitOrder)
	require.Equal(t, uint64(1), totals.Count)
	require.Equal(t, int64(10), totals.Fee.Int64())
	require.Len(t, f.recorder.OfType(events.TypeFeeSplit), 1)
	require.Len(t, f.recorder.OfType(events.TypeOrderExecuted), 1)
}

func TestExecuteTokenForCurrencyTakesFeeFromProceeds(t *testing.T) {
	f := newFixture(t)
	id := f.placeToken(t, TokenForCurrency, tokenA, wrapped, 1000)
	proceeds := f.quote(t, 1000, tokenA, wrapped)
	fee := new(big.Int).Quo(proceeds, big.NewInt(100))
	burn := new(big.Int).Quo(new(big.Int).Mul(fee, big.NewInt(6)), big.NewInt(10))
	before := f.ledger.NativeBalance(maker)

	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, proceeds.String(), res.AmountOut.String())
	require.Equal(t, fee.String(), res.Fee.String())
	require.Equal(t, burn.String(), res.Burned.String())
	require.Equal(t, new(big.Int).Sub(fee, burn).String(), res.Staked.String())

	paid := new(big.Int).Sub(f.ledger.NativeBalance(maker), before)
	require.Equal(t, new(big.Int).Sub(proceeds, fee).String(), paid.String())
	require.Zero(t, f.ledger.BalanceOf(tokenA, f.engine.Address()).Sign())
	require.Zero(t, f.ledger.NativeBalance(f.engine.Address()).Sign())
}

func TestExecuteTokenForTokenSplitsInput(t *testing.T) {
	f := newFixture(t)
	id := f.placeToken(t, TokenForToken, tokenA, tokenB, 1000)
	expected := f.quote(t, 990, tokenA, tokenB)
	feeProceeds := f.quote(t, 10, tokenA, wrapped)
	require.Positive(t, feeProceeds.Sign())
	before := f.ledger.BalanceOf(tokenB, maker)

	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, int64(990), res.AmountIn.Int64())
	require.Equal(t, expected.String(), res.AmountOut.String())
	require.Equal(t, feeProceeds.String(), res.Fee.String())
	require.Equal(t, expected.String(), new(big.Int).Sub(f.ledger.BalanceOf(tokenB, maker), before).String())
	require.Equal(t, new(big.Int).Add(f.sink.total, f.pool.total).String(), feeProceeds.String())
	require.Zero(t, f.ledger.BalanceOf(tokenA, f.engine.Address()).Sign())
}

func TestExecuteTokenForTokenTradesDustFeeWhole(t *testing.T) {
	f := newFixture(t)
	id := f.placeToken(t, TokenForToken, tokenA, tokenB, 50)
	// 50/100 truncates to a zero fee cut.
	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, int64(50), res.AmountIn.Int64())
	require.Zero(t, res.Fee.Sign())
	require.Zero(t, f.sink.total.Sign())
	require.Empty(t, f.recorder.OfType(events.TypeFeeSplit))
}

func TestExecuteDeflationaryTokenForTokenTradesTaxedDustFeeWhole(t *testing.T) {
	f := newFixture(t)
	taxed := common.HexToAddress("0x00000000000000000000000000000000000000d2")
	require.NoError(t, f.ledger.RegisterToken(taxed, "T", 100))
	require.NoError(t, f.ledger.MintNative(lp, big.NewInt(1000)))
	require.NoError(t, f.ledger.Wrap(lp, big.NewInt(1000)))
	require.NoError(t, f.ledger.Mint(taxed, lp, big.NewInt(2_000_000)))
	_, err := f.exchange.AddLiquidity(lp, taxed, wrapped, big.NewInt(1_000_000), big.NewInt(1000))
	require.NoError(t, err)
	_, err = f.exchange.AddLiquidity(lp, taxed, tokenB, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Mint(taxed, maker, big.NewInt(200_000)))
	require.NoError(t, f.ledger.Approve(taxed, maker, f.engine.Address(), big.NewInt(200_000)))

	id := f.placeToken(t, TokenForToken, taxed, tokenB, 100_404)
	order, err := f.engine.GetOrder(id)
	require.NoError(t, err)
	require.True(t, order.Deflationary)
	require.Equal(t, int64(99_400), order.AmountInOffered.Int64())
	// The 994 fee cut quotes one unit of currency, but only 985 of it would
	// reach the pair and that buys nothing.
	require.Equal(t, int64(1), f.quote(t, 994, taxed, wrapped).Int64())
	require.Zero(t, f.quote(t, 985, taxed, wrapped).Sign())
	before := f.ledger.BalanceOf(tokenB, maker)

	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, int64(99_400), res.AmountIn.Int64())
	require.Zero(t, res.Fee.Sign())
	require.Positive(t, res.AmountOut.Sign())
	require.Equal(t, res.AmountOut.String(), new(big.Int).Sub(f.ledger.BalanceOf(tokenB, maker), before).String())
	require.Zero(t, f.ledger.BalanceOf(taxed, f.engine.Address()).Sign())
	require.Empty(t, f.recorder.OfType(events.TypeFeeSplit))
	filled, _ := f.engine.GetOrder(id)
	require.Equal(t, StateFilled, filled.State)
}

func TestFeeTotalsRecordCurrencyGross(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.Place(types.NewCall(maker, big.NewInt(1005)), CurrencyForToken, wrapped, tokenB, big.NewInt(1000), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, int64(1000), res.Gross.Int64())
	sum := new(big.Int).Set(res.Gross)

	id = f.placeToken(t, TokenForCurrency, tokenA, wrapped, 1000)
	proceeds := f.quote(t, 1000, tokenA, wrapped)
	res, err = f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, proceeds.String(), res.Gross.String())
	sum.Add(sum, res.Gross)

	id = f.placeToken(t, TokenForToken, tokenA, tokenB, 1000)
	value := f.quote(t, 1000, tokenA, wrapped)
	res, err = f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, value.String(), res.Gross.String())
	require.NotEqual(t, res.AmountOut.String(), res.Gross.String())
	sum.Add(sum, res.Gross)

	totals := f.engine.FeeTotals(fees.DomainLimitOrder)
	require.Equal(t, uint64(3), totals.Count)
	require.Equal(t, sum.String(), totals.Gross.String())
}

func TestExecuteDeflationaryOrderUsesMeasuredAmounts(t *testing.T) {
	f := newFixture(t)
	id := f.placeToken(t, TokenForCurrency, deflTok, wrapped, 1000)
	// 990 in custody, 1% of it is lost again on the way into the pair.
	proceeds := f.quote(t, 981, deflTok, wrapped)

	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, int64(990), res.AmountIn.Int64())
	require.Equal(t, proceeds.String(), res.AmountOut.String())
	require.Zero(t, f.ledger.BalanceOf(deflTok, f.engine.Address()).Sign())
}

func TestUpstreamFailureRevertsExecution(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.Place(types.NewCall(maker, big.NewInt(5)), TokenForToken, tokenA, tokenB, big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(5))
	require.NoError(t, err)
	reserveA, reserveB, err := f.exchange.Reserves(tokenA, tokenB)
	require.NoError(t, err)
	f.recorder.Reset()

	_, err = f.engine.Execute(executor, id)
	require.ErrorIs(t, err, ErrUpstreamSwapFailed)
	require.ErrorIs(t, err, amm.ErrInsufficientOutputAmount)
	require.True(t, IsUpstream(err))

	order, _ := f.engine.GetOrder(id)
	require.Equal(t, StateOpen, order.State)
	require.Equal(t, 1, f.engine.ActiveOrdersCount())
	require.Equal(t, int64(1000), f.ledger.BalanceOf(tokenA, f.engine.Address()).Int64())
	require.Equal(t, int64(5), f.ledger.NativeBalance(f.engine.Address()).Int64())
	require.Zero(t, f.ledger.Allowance(tokenA, f.engine.Address(), f.exchange.Address()).Sign())
	afterA, afterB, _ := f.exchange.Reserves(tokenA, tokenB)
	require.Equal(t, reserveA.String(), afterA.String())
	require.Equal(t, reserveB.String(), afterB.String())
	require.Zero(t, f.ledger.NativeBalance(executor).Sign())
	require.Zero(t, f.engine.FeeTotals(fees.DomainLimitOrder).Count)
}

func TestEmptyRewardPoolShareIsBurned(t *testing.T) {
	f := newFixture(t)
	f.pool.staked = big.NewInt(0)
	id, err := f.engine.Place(types.NewCall(maker, big.NewInt(1005)), CurrencyForToken, wrapped, tokenB, big.NewInt(1000), big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	res, err := f.engine.Execute(executor, id)
	require.NoError(t, err)
	require.Equal(t, int64(10), res.Burned.Int64())
	require.Zero(t, res.Staked.Sign())
	require.Equal(t, int64(10), f.sink.total.Int64())
	require.Zero(t, f.pool.total.Sign())
}

func TestExecuteMarket(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ExecuteMarket(types.NewCall(maker, big.NewInt(999)), CurrencyForToken, wrapped, tokenB, big.NewInt(1000), big.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidCommitment)
	_, err = f.engine.ExecuteMarket(types.NewCall(maker, big.NewInt(1)), TokenForToken, tokenA, tokenB, big.NewInt(1000), big.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidCommitment)

	expected := f.quote(t, 990, wrapped, tokenB)
	res, err := f.engine.ExecuteMarket(types.NewCall(maker, big.NewInt(1000)), CurrencyForToken, wrapped, tokenB, big.NewInt(1000), big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, expected.String(), res.AmountOut.String())
	require.Equal(t, int64(10), res.Fee.Int64())
	require.Zero(t, f.engine.OrdersCount())
	require.Equal(t, uint64(1), f.engine.FeeTotals("MARKET").Count)
	require.Len(t, f.recorder.OfType(events.TypeMarketExecuted), 1)

	res, err = f.engine.ExecuteMarket(types.NewCall(maker, nil), TokenForCurrency, deflTok, wrapped, big.NewInt(1000), big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, int64(990), res.AmountIn.Int64())
}

func TestActiveSetReusesFreedSlot(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.placeToken(t, TokenForToken, tokenA, tokenB, 100)
	}
	require.NoError(t, f.engine.Cancel(maker, 0))
	require.Equal(t, 2, f.engine.ActiveOrdersCount())
	id, err := f.engine.ActiveOrderIDAt(0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)
	id, err = f.engine.ActiveOrderIDAt(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	_, err = f.engine.ActiveOrderIDAt(2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	open := f.engine.ActiveOrders()
	require.Len(t, open, 2)
	require.Equal(t, uint64(2), open[0].ID)
}

func activeIDs(t *testing.T, e *Engine) []uint64 {
	t.Helper()
	count := e.ActiveOrdersCount()
	ids := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		id, err := e.ActiveOrderIDAt(i)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := e.ActiveOrderIDAt(count)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	return ids
}

func TestActiveSetTracksAnyRemovalOrder(t *testing.T) {
	const placed = 6
	cases := []struct {
		name  string
		order []uint64
	}{
		{"oldest first", []uint64{0, 1, 2, 3, 4, 5}},
		{"newest first", []uint64{5, 4, 3, 2, 1, 0}},
		{"middle out", []uint64{2, 3, 1, 4, 0, 5}},
		{"interleaved", []uint64{5, 0, 3, 1, 4, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			remaining := make(map[uint64]bool, placed)
			for i := 0; i < placed; i++ {
				remaining[f.placeToken(t, TokenForToken, tokenA, tokenB, 100)] = true
			}
			for step, id := range tc.order {
				// Alternate between the two ways an order leaves the set.
				if step%2 == 0 {
					_, err := f.engine.Execute(executor, id)
					require.NoError(t, err)
				} else {
					require.NoError(t, f.engine.Cancel(maker, id))
				}
				delete(remaining, id)

				want := make([]uint64, 0, len(remaining))
				for left := range remaining {
					want = append(want, left)
				}
				require.ElementsMatch(t, want, activeIDs(t, f.engine), "after removing %d", id)
				open := f.engine.ActiveOrders()
				require.Len(t, open, len(want))
				for _, o := range open {
					require.Equal(t, StateOpen, o.State)
					require.True(t, remaining[o.ID])
				}
			}
			require.Zero(t, f.engine.ActiveOrdersCount())
		})
	}
}

func TestAdministration(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.SetFeeFraction(maker, 1, 50), ErrNotOwner)
	require.ErrorIs(t, f.engine.SetFeeFraction(owner, 1, 0), ErrInvalidFraction)
	require.ErrorIs(t, f.engine.SetSplitFraction(owner, 11, 10), ErrInvalidFraction)
	require.NoError(t, f.engine.SetFeeFraction(owner, 2, 100))
	require.NoError(t, f.engine.SetSplitFraction(owner, 1, 2))
	params := f.engine.Params()
	require.Equal(t, fees.Fraction{Mul: 2, Div: 100}, params.Fee)
	require.Equal(t, fees.Fraction{Mul: 1, Div: 2}, params.Split)

	replacement := &sinkStub{ledger: f.ledger, addr: common.HexToAddress("0x61"), total: big.NewInt(0)}
	require.ErrorIs(t, f.engine.SetFeeSink(maker, replacement), ErrNotOwner)
	require.NoError(t, f.engine.SetFeeSink(owner, replacement))
	require.Equal(t, replacement.addr, f.engine.Params().FeeSink)

	require.NoError(t, f.engine.TransferOwnership(owner, maker))
	require.ErrorIs(t, f.engine.SetFeeFraction(owner, 1, 100), ErrNotOwner)
	require.NoError(t, f.engine.RenounceOwnership(maker))
	require.ErrorIs(t, f.engine.SetFeeFraction(maker, 1, 100), ErrNotOwner)
	require.ErrorIs(t, f.engine.TransferOwnership(common.Address{}, maker), ErrNotOwner)
	require.Len(t, f.recorder.OfType(events.TypeOwnershipTransferred), 2)
}

func requireSameOrder(t *testing.T, want, got *Order) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Direction, got.Direction)
	require.Equal(t, want.Maker, got.Maker)
	require.Equal(t, want.Pair, got.Pair)
	require.Equal(t, want.AmountInOffered.String(), got.AmountInOffered.String())
	require.Equal(t, want.AmountOutExpected.String(), got.AmountOutExpected.String())
	require.Equal(t, want.TotalCommitted.String(), got.TotalCommitted.String())
	require.Equal(t, want.State, got.State)
	require.Equal(t, want.Deflationary, got.Deflationary)
	require.Equal(t, want.CreatedAt, got.CreatedAt)
}

func TestFlushAndLoad(t *testing.T) {
	f := newFixture(t)
	kv := storage.NewKV(storage.NewMemDB())
	f.placeToken(t, TokenForToken, tokenA, tokenB, 1000)
	f.placeToken(t, TokenForCurrency, deflTok, wrapped, 1000)
	f.placeToken(t, TokenForToken, tokenA, tokenB, 2000)
	require.NoError(t, f.engine.Cancel(maker, 0))
	_, err := f.engine.Execute(executor, 1)
	require.NoError(t, err)
	require.NoError(t, f.engine.Flush(kv))

	restored := NewEngine(f.ledger, f.exchange, f.journal, common.Address{})
	params, err := restored.Load(kv)
	require.NoError(t, err)
	require.Equal(t, owner, params.Owner)
	require.Equal(t, fees.Fraction{Mul: 1, Div: 100}, params.Fee)
	require.Equal(t, f.sink.addr, params.FeeSink)
	require.Equal(t, f.engine.OrdersCount(), restored.OrdersCount())
	for id := uint64(0); id < f.engine.OrdersCount(); id++ {
		want, _ := f.engine.GetOrder(id)
		got, err := restored.GetOrder(id)
		require.NoError(t, err)
		requireSameOrder(t, want, got)
	}
	require.Equal(t, []uint64{0, 1, 2}, restored.OrdersForAddress(maker))
	id, err := restored.ActiveOrderIDAt(0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)

	f.placeToken(t, TokenForToken, tokenA, tokenB, 10)
	require.NoError(t, f.engine.Flush(kv))
	again := NewEngine(f.ledger, f.exchange, f.journal, common.Address{})
	_, err = again.Load(kv)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3}, again.OrdersForAddress(maker))
	pairAB, _ := f.exchange.GetPair(tokenA, tokenB)
	require.Equal(t, []uint64{0, 2, 3}, again.OrdersForAddress(pairAB))
	require.Equal(t, 2, again.ActiveOrdersCount())
}
