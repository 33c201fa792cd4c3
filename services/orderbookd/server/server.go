package server

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"limitbook/core"
	"limitbook/core/types"
	"limitbook/native/orderbook"
	"limitbook/services/orderbookd/history"
)

// Node is the ledger surface served over HTTP.
type Node interface {
	PlaceOrder(ctx context.Context, call types.Call, dir orderbook.Direction, tokenIn, tokenOut common.Address, amountIn, amountOut, executorFee *big.Int) (uint64, error)
	UpdateOrder(ctx context.Context, call types.Call, id uint64, amountIn, amountOut, executorFee *big.Int) (*orderbook.Order, error)
	CancelOrder(ctx context.Context, caller common.Address, id uint64) error
	ExecuteOrder(ctx context.Context, caller common.Address, id uint64) (*orderbook.Result, error)
	ExecuteMarket(ctx context.Context, call types.Call, dir orderbook.Direction, tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int) (*orderbook.Result, error)
	Approve(ctx context.Context, owner, token, spender common.Address, amount *big.Int) error
	Stake(ctx context.Context, call types.Call, amount *big.Int) error
	DepositRewards(ctx context.Context, call types.Call) error
	Withdraw(ctx context.Context, caller common.Address) (*big.Int, *big.Int, error)
	Payout(ctx context.Context, caller common.Address) (*big.Int, error)
	SetFeeFraction(ctx context.Context, caller common.Address, mul, div uint64) error
	SetSplitFraction(ctx context.Context, caller common.Address, mul, div uint64) error
	MigrateRewardPool(ctx context.Context, caller common.Address) (*big.Int, error)
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
	RenounceOwnership(ctx context.Context, caller common.Address) error

	Order(id uint64) (*orderbook.Order, error)
	ActiveOrders() []*orderbook.Order
	OrdersForAddress(addr common.Address) []*orderbook.Order
	Ledger() core.LedgerView
	StakeOf(addr common.Address) core.StakeView
	Pool() core.PoolView
	Balance(holder, token common.Address) *big.Int
	Allowance(token, owner, spender common.Address) *big.Int
	BurnStats() (int64, *big.Int, *big.Int)
	WrappedToken() common.Address
}

// EventLog serves committed events.
type EventLog interface {
	List(ctx context.Context, filter history.Filter) ([]history.Record, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	RateLimit     RateLimit
}

// Server hosts the order ledger API.
type Server struct {
	cfg     Config
	node    Node
	events  EventLog
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	router  http.Handler
}

// New constructs the server and its router.
func New(cfg Config, node Node, eventLog EventLog, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("node required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7081"
	}
	srv := &Server{
		cfg:     cfg,
		node:    node,
		events:  eventLog,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(instrument(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Use(s.limiter.Middleware)

		api.Post("/orders", s.handlePlaceOrder)
		api.Get("/orders/active", s.handleActiveOrders)
		api.Get("/orders/{id}", s.handleGetOrder)
		api.Patch("/orders/{id}", s.handleUpdateOrder)
		api.Delete("/orders/{id}", s.handleCancelOrder)
		api.Post("/orders/{id}/execute", s.handleExecuteOrder)
		api.Get("/addresses/{addr}/orders", s.handleAddressOrders)
		api.Post("/market", s.handleMarket)
		api.Get("/ledger", s.handleLedger)

		api.Post("/approvals", s.handleApprove)
		api.Get("/balances/{addr}", s.handleBalance)

		api.Get("/staking", s.handlePool)
		api.Get("/staking/{addr}", s.handleStakeOf)
		api.Post("/staking/stake", s.handleStake)
		api.Post("/staking/deposit", s.handleDeposit)
		api.Post("/staking/withdraw", s.handleWithdraw)
		api.Post("/staking/payout", s.handlePayout)

		api.Get("/events", s.handleEvents)

		api.Group(func(admin chi.Router) {
			admin.Use(RequireAdmin)
			admin.Put("/admin/fee", s.handleSetFee)
			admin.Put("/admin/split", s.handleSetSplit)
			admin.Put("/admin/reward-pool", s.handleMigrateRewardPool)
			admin.Put("/admin/owner", s.handleTransferOwnership)
			admin.Post("/admin/renounce", s.handleRenounce)
		})
	})
	return otelhttp.NewHandler(r, "orderbookd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
