// Package keeper executes limit orders whose terms the exchange can currently
// satisfy. Every candidate is first simulated so that orders which would
// revert do not cost a journaled call.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/native/orderbook"
)

// Node is the ledger surface the keeper drives.
type Node interface {
	ActiveOrders() []*orderbook.Order
	SimulateExecute(ctx context.Context, caller common.Address, id uint64) (*orderbook.Result, error)
	ExecuteOrder(ctx context.Context, caller common.Address, id uint64) (*orderbook.Result, error)
}

// Config tunes the sweep.
type Config struct {
	Address  common.Address
	Interval time.Duration
	MaxBatch int
}

// Report summarises one sweep.
type Report struct {
	Scanned  int
	Executed int
	Skipped  int
	Failed   int
}

// Keeper periodically sweeps the active order set.
type Keeper struct {
	node   Node
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and builds a keeper.
func New(node Node, cfg Config, logger *slog.Logger) (*Keeper, error) {
	if node == nil {
		return nil, errors.New("keeper: node required")
	}
	if cfg.Address == (common.Address{}) {
		return nil, errors.New("keeper: executor address required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{node: node, cfg: cfg, logger: logger.With("component", "keeper")}, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()
	k.logger.Info("keeper started", "executor", k.cfg.Address.Hex(), "interval", k.cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := k.Sweep(ctx)
			if report.Executed > 0 || report.Failed > 0 {
				k.logger.Info("keeper sweep",
					"scanned", report.Scanned,
					"executed", report.Executed,
					"skipped", report.Skipped,
					"failed", report.Failed)
			}
		}
	}
}

// Sweep executes up to MaxBatch orders whose simulation succeeds.
func (k *Keeper) Sweep(ctx context.Context) Report {
	var report Report
	for _, order := range k.node.ActiveOrders() {
		if ctx.Err() != nil || report.Executed >= k.cfg.MaxBatch {
			break
		}
		report.Scanned++
		if _, err := k.node.SimulateExecute(ctx, k.cfg.Address, order.ID); err != nil {
			report.Skipped++
			if !expected(err) {
				k.logger.Warn("simulation failed", "order", order.ID, "error", err)
			}
			continue
		}
		res, err := k.node.ExecuteOrder(ctx, k.cfg.Address, order.ID)
		if err != nil {
			report.Failed++
			k.logger.Warn("execution failed", "order", order.ID, "error", err)
			continue
		}
		report.Executed++
		k.logger.Debug("order executed", "order", order.ID, "amount_out", res.AmountOut.String(), "fee", res.Fee.String())
	}
	return report
}

// expected reports errors that only mean the order is not fillable yet.
func expected(err error) bool {
	return errors.Is(err, orderbook.ErrUpstreamSwapFailed) || errors.Is(err, orderbook.ErrNotOpen)
}
