package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"limitbook/core/events"
	"limitbook/core/state"
	"limitbook/core/types"
	"limitbook/native/amm"
	"limitbook/native/bank"
	nativecommon "limitbook/native/common"
	"limitbook/native/fees"
	"limitbook/native/incinerator"
	"limitbook/native/orderbook"
	"limitbook/native/staking"
	"limitbook/observability"
	telemetry "limitbook/observability/otel"
	"limitbook/storage"
)

// Module names checked against the pause view.
const (
	ModuleOrderbook = "orderbook"
	ModuleStaking   = "staking"
)

var errSimulation = errors.New("node: simulation reverted")

var (
	bankKey        = []byte("node/bank")
	ammKey         = []byte("node/amm")
	incineratorKey = []byte("node/incinerator")
	holdingKey     = []byte("node/holding")
	genesisKey     = []byte("node/genesis")
)

// Options configure a Node.
type Options struct {
	Owner         common.Address
	WrappedToken  common.Address
	ProtocolToken common.Address
	Fee           fees.Fraction
	Split         fees.Fraction
	LockPeriod    time.Duration
	BurnInterval  time.Duration
	// HoldingPool routes the staker share into an interim pool owned by Owner
	// until it is migrated into the staking pool.
	HoldingPool bool
	Genesis     *Genesis
	Pauses      nativecommon.PauseView
	Emitter     events.Emitter
	Logger      *slog.Logger
	Now         func() int64
}

// Node is the central controller, wiring all components together. Every entry
// point runs under stateMu inside one journal scope, so a call either commits
// across every module or leaves no trace.
type Node struct {
	stateMu sync.Mutex

	db      storage.Database
	kv      *storage.KV
	logger  *slog.Logger
	tracer  trace.Tracer
	pauses  nativecommon.PauseView
	nowFn   func() int64
	journal *state.Journal

	bank        *bank.Ledger
	exchange    *amm.Exchange
	ledger      *orderbook.Engine
	staking     *staking.Engine
	holding     *staking.HoldingPool
	incinerator *incinerator.Incinerator

	// pending buffers the events of the running call. They are forwarded to
	// downstream only once the call commits.
	pending    events.Recorder
	downstream events.Emitter
}

// NewNode assembles the modules and restores their persisted state from db.
// A fresh database is seeded from opts.Genesis.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if err := opts.Fee.Validate(); err != nil {
		return nil, fmt.Errorf("node: fee: %w", err)
	}
	if err := opts.Split.Validate(); err != nil {
		return nil, fmt.Errorf("node: split: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().Unix() }
	}
	n := &Node{
		db:      db,
		kv:      storage.NewKV(db),
		logger:  logger,
		tracer:  telemetry.Tracer(),
		pauses:  opts.Pauses,
		nowFn:   nowFn,
		journal: state.NewJournal(),
	}
	n.downstream = events.MultiEmitter{observability.EventMetrics{}, opts.Emitter}

	n.bank = bank.NewLedger(n.journal, opts.WrappedToken)
	n.exchange = amm.NewExchange(n.bank, n.journal)
	n.exchange.SetNowFunc(nowFn)

	n.incinerator = incinerator.New(n.bank, n.exchange, n.journal, opts.ProtocolToken)
	n.incinerator.SetNowFunc(nowFn)
	n.incinerator.SetEmitter(&n.pending)
	n.incinerator.SetLogger(logger.With("module", "incinerator"))
	if opts.BurnInterval > 0 {
		n.incinerator.SetInterval(opts.BurnInterval)
	}

	n.staking = staking.NewEngine(n.bank, n.journal, opts.ProtocolToken)
	n.staking.SetNowFunc(nowFn)
	n.staking.SetEmitter(&n.pending)
	n.staking.SetLogger(logger.With("module", "staking"))
	if opts.LockPeriod > 0 {
		n.staking.SetLockPeriod(opts.LockPeriod)
	}

	n.ledger = orderbook.NewEngine(n.bank, n.exchange, n.journal, opts.Owner)
	n.ledger.SetNowFunc(nowFn)
	n.ledger.SetEmitter(&n.pending)
	n.ledger.SetLogger(logger.With("module", "orderbook"))
	n.ledger.AttachFeeSink(n.incinerator)

	if opts.HoldingPool {
		n.holding = staking.NewHoldingPool(n.bank, opts.Owner)
		n.holding.SetEmitter(&n.pending)
		n.ledger.AttachRewardPool(n.holding)
	} else {
		n.ledger.AttachRewardPool(n.staking)
	}

	seeded, err := n.db.Has(genesisKey)
	if err != nil {
		return nil, fmt.Errorf("node: probe genesis: %w", err)
	}
	if seeded {
		if err := n.load(); err != nil {
			return nil, err
		}
	} else {
		if err := n.ledger.SetFeeFraction(opts.Owner, opts.Fee.Mul, opts.Fee.Div); err != nil {
			return nil, fmt.Errorf("node: fee: %w", err)
		}
		if err := n.ledger.SetSplitFraction(opts.Owner, opts.Split.Mul, opts.Split.Div); err != nil {
			return nil, fmt.Errorf("node: split: %w", err)
		}
		n.incinerator.Seed(nowFn())
		if opts.Genesis != nil {
			if err := n.applyGenesis(*opts.Genesis); err != nil {
				return nil, err
			}
		}
		n.pending.Reset()
		if err := n.flushLocked(); err != nil {
			return nil, err
		}
		if err := n.db.Put(genesisKey, []byte{1}); err != nil {
			return nil, fmt.Errorf("node: mark genesis: %w", err)
		}
	}
	n.refreshGauges()
	return n, nil
}

func (n *Node) load() error {
	var snap bank.Snapshot
	if _, err := n.kv.KVGet(bankKey, &snap); err != nil {
		return fmt.Errorf("node: load bank: %w", err)
	}
	if err := n.bank.Import(snap); err != nil {
		return fmt.Errorf("node: import bank: %w", err)
	}
	var pairs []amm.PairRecord
	if _, err := n.kv.KVGet(ammKey, &pairs); err != nil {
		return fmt.Errorf("node: load exchange: %w", err)
	}
	n.exchange.Import(pairs)
	var burnState incinerator.State
	if _, err := n.kv.KVGet(incineratorKey, &burnState); err != nil {
		return fmt.Errorf("node: load incinerator: %w", err)
	}
	n.incinerator.Import(burnState)
	if n.holding != nil {
		var holdingState staking.HoldingState
		ok, err := n.kv.KVGet(holdingKey, &holdingState)
		if err != nil {
			return fmt.Errorf("node: load holding pool: %w", err)
		}
		if ok {
			n.holding.Import(holdingState)
		}
	}
	if err := n.staking.Load(n.kv); err != nil {
		return err
	}
	params, err := n.ledger.Load(n.kv)
	if err != nil {
		return err
	}
	switch {
	case params.RewardPool == n.staking.Address():
		n.ledger.AttachRewardPool(n.staking)
	case n.holding != nil && params.RewardPool == n.holding.Address():
		n.ledger.AttachRewardPool(n.holding)
	default:
		n.logger.Warn("persisted reward pool unknown, keeping configured pool",
			"pool", params.RewardPool.Hex())
		if n.holding != nil {
			n.ledger.AttachRewardPool(n.holding)
		} else {
			n.ledger.AttachRewardPool(n.staking)
		}
	}
	if params.FeeSink != n.incinerator.Address() {
		n.logger.Warn("persisted fee sink unknown, using incinerator", "sink", params.FeeSink.Hex())
		n.ledger.AttachFeeSink(n.incinerator)
	}
	return nil
}

// Flush persists every module. It is safe to call at any time.
func (n *Node) Flush() error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.flushLocked()
}

func (n *Node) flushLocked() error {
	if err := n.kv.KVPut(bankKey, n.bank.Export()); err != nil {
		return fmt.Errorf("node: flush bank: %w", err)
	}
	if err := n.kv.KVPut(ammKey, n.exchange.Export()); err != nil {
		return fmt.Errorf("node: flush exchange: %w", err)
	}
	if err := n.kv.KVPut(incineratorKey, n.incinerator.Export()); err != nil {
		return fmt.Errorf("node: flush incinerator: %w", err)
	}
	if n.holding != nil {
		if err := n.kv.KVPut(holdingKey, n.holding.Export()); err != nil {
			return fmt.Errorf("node: flush holding pool: %w", err)
		}
	}
	if err := n.staking.Flush(n.kv); err != nil {
		return err
	}
	return n.ledger.Flush(n.kv)
}

// Close flushes and releases the database.
func (n *Node) Close() error {
	err := n.Flush()
	n.db.Close()
	return err
}

// run executes fn as one atomic call. Events emitted by the modules are
// forwarded only when fn succeeds.
func (n *Node) run(ctx context.Context, module, op string, fn func() error) error {
	_, span := n.tracer.Start(ctx, "node."+op, trace.WithAttributes(attribute.String("module", module)))
	defer span.End()

	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	defer n.pending.Reset()

	if err := nativecommon.Guard(n.pauses, module); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	mark := n.journal.Begin()
	err := n.journal.End(mark, fn())
	if err != nil {
		if orderbook.IsUpstream(err) {
			observability.Ledger().RecordUpstreamFailure(op)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Debug("call reverted", "op", op, "error", err)
		return err
	}
	for _, evt := range n.pending.Events() {
		n.downstream.Emit(evt)
	}
	n.refreshGauges()
	return nil
}

func (n *Node) refreshGauges() {
	observability.Ledger().SetActive(n.ledger.ActiveOrdersCount())
	observability.Staking().SetTotalStaked(n.staking.TotalStaked())
}

// Now returns the node clock in unix seconds.
func (n *Node) Now() int64 { return n.nowFn() }

// Addresses of the module accounts.
func (n *Node) LedgerAddress() common.Address      { return n.ledger.Address() }
func (n *Node) StakingAddress() common.Address     { return n.staking.Address() }
func (n *Node) IncineratorAddress() common.Address { return n.incinerator.Address() }
func (n *Node) WrappedToken() common.Address       { return n.bank.WrappedToken() }
func (n *Node) ProtocolToken() common.Address      { return n.staking.Token() }

// HoldingAddress returns the holding pool account, if one is configured.
func (n *Node) HoldingAddress() (common.Address, bool) {
	if n.holding == nil {
		return common.Address{}, false
	}
	return n.holding.Address(), true
}

// PlaceOrder escrows a new limit order for call.Sender.
func (n *Node) PlaceOrder(ctx context.Context, call types.Call, dir orderbook.Direction, tokenIn, tokenOut common.Address, amountIn, amountOut, executorFee *big.Int) (uint64, error) {
	var id uint64
	err := n.run(ctx, ModuleOrderbook, "place_order", func() error {
		var err error
		id, err = n.ledger.Place(call, dir, tokenIn, tokenOut, amountIn, amountOut, executorFee)
		return err
	})
	return id, err
}

// UpdateOrder changes the terms of an open order.
func (n *Node) UpdateOrder(ctx context.Context, call types.Call, id uint64, amountIn, amountOut, executorFee *big.Int) (*orderbook.Order, error) {
	var updated *orderbook.Order
	err := n.run(ctx, ModuleOrderbook, "update_order", func() error {
		var err error
		updated, err = n.ledger.Update(call, id, amountIn, amountOut, executorFee)
		return err
	})
	return updated, err
}

// CancelOrder refunds and closes an open order.
func (n *Node) CancelOrder(ctx context.Context, caller common.Address, id uint64) error {
	return n.run(ctx, ModuleOrderbook, "cancel_order", func() error {
		return n.ledger.Cancel(caller, id)
	})
}

// ExecuteOrder settles an open order on behalf of caller.
func (n *Node) ExecuteOrder(ctx context.Context, caller common.Address, id uint64) (*orderbook.Result, error) {
	var res *orderbook.Result
	err := n.run(ctx, ModuleOrderbook, "execute_order", func() error {
		var err error
		res, err = n.ledger.Execute(caller, id)
		return err
	})
	return res, err
}

// SimulateExecute runs an execution and reverts it, reporting what it would
// have produced.
func (n *Node) SimulateExecute(ctx context.Context, caller common.Address, id uint64) (*orderbook.Result, error) {
	var res *orderbook.Result
	err := n.run(ctx, ModuleOrderbook, "simulate_execute", func() error {
		var err error
		res, err = n.ledger.Execute(caller, id)
		if err != nil {
			return err
		}
		return errSimulation
	})
	if errors.Is(err, errSimulation) {
		return res, nil
	}
	return nil, err
}

// ExecuteMarket trades immediately through the fee path.
func (n *Node) ExecuteMarket(ctx context.Context, call types.Call, dir orderbook.Direction, tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int) (*orderbook.Result, error) {
	var res *orderbook.Result
	err := n.run(ctx, ModuleOrderbook, "execute_market", func() error {
		var err error
		res, err = n.ledger.ExecuteMarket(call, dir, tokenIn, tokenOut, amountIn, amountOut)
		return err
	})
	return res, err
}

// Approve sets the allowance of spender over owner's token balance.
func (n *Node) Approve(ctx context.Context, owner, token, spender common.Address, amount *big.Int) error {
	return n.run(ctx, "", "approve", func() error {
		return n.bank.Approve(token, owner, spender, amount)
	})
}

// Stake locks protocol tokens of call.Sender in the staking pool.
func (n *Node) Stake(ctx context.Context, call types.Call, amount *big.Int) error {
	return n.run(ctx, ModuleStaking, "stake", func() error {
		return n.staking.Stake(call, amount)
	})
}

// DepositRewards distributes call.Value to the current stakers.
func (n *Node) DepositRewards(ctx context.Context, call types.Call) error {
	return n.run(ctx, ModuleStaking, "deposit", func() error {
		return n.staking.Deposit(call)
	})
}

// Withdraw returns the caller's principal and pending reward.
func (n *Node) Withdraw(ctx context.Context, caller common.Address) (*big.Int, *big.Int, error) {
	var principal, reward *big.Int
	err := n.run(ctx, ModuleStaking, "withdraw", func() error {
		var err error
		principal, reward, err = n.staking.Withdraw(caller)
		return err
	})
	return principal, reward, err
}

// Payout pays the caller's pending reward.
func (n *Node) Payout(ctx context.Context, caller common.Address) (*big.Int, error) {
	var reward *big.Int
	err := n.run(ctx, ModuleStaking, "payout", func() error {
		var err error
		reward, err = n.staking.Payout(caller)
		return err
	})
	return reward, err
}

// SetFeeFraction updates the ledger fee.
func (n *Node) SetFeeFraction(ctx context.Context, caller common.Address, mul, div uint64) error {
	return n.run(ctx, ModuleOrderbook, "set_fee", func() error {
		return n.ledger.SetFeeFraction(caller, mul, div)
	})
}

// SetSplitFraction updates the burn share of the fee.
func (n *Node) SetSplitFraction(ctx context.Context, caller common.Address, mul, div uint64) error {
	return n.run(ctx, ModuleOrderbook, "set_split", func() error {
		return n.ledger.SetSplitFraction(caller, mul, div)
	})
}

// MigrateRewardPool moves the holding pool balance into the staking pool and
// points the ledger at it. Without a holding pool it only repoints the ledger.
func (n *Node) MigrateRewardPool(ctx context.Context, caller common.Address) (*big.Int, error) {
	moved := big.NewInt(0)
	err := n.run(ctx, ModuleOrderbook, "migrate_reward_pool", func() error {
		if err := n.ledger.SetRewardPool(caller, n.staking); err != nil {
			return err
		}
		// The holding pool retires itself only on success, so it goes last.
		if n.holding == nil || n.holding.Disabled() {
			return nil
		}
		amount, err := n.holding.Transfer(caller, n.staking)
		if errors.Is(err, staking.ErrNothingToTransfer) {
			return nil
		}
		if err != nil {
			return err
		}
		moved = amount
		return nil
	})
	return moved, err
}

// TransferOwnership hands ledger administration to newOwner.
func (n *Node) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return n.run(ctx, ModuleOrderbook, "transfer_ownership", func() error {
		return n.ledger.TransferOwnership(caller, newOwner)
	})
}

// RenounceOwnership freezes ledger administration.
func (n *Node) RenounceOwnership(ctx context.Context, caller common.Address) error {
	return n.run(ctx, ModuleOrderbook, "renounce_ownership", func() error {
		return n.ledger.RenounceOwnership(caller)
	})
}
