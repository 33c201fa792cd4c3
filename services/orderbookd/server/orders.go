package server

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"limitbook/core/types"
	"limitbook/native/orderbook"
)

type placeOrderRequest struct {
	Direction   string `json:"direction"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
	ExecutorFee string `json:"executor_fee"`
	// Value is the attached currency. It defaults to the order's commitment.
	Value string `json:"value"`
}

type updateOrderRequest struct {
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
	ExecutorFee string `json:"executor_fee"`
	// Value defaults to the growth of the commitment, if any.
	Value string `json:"value"`
}

type marketRequest struct {
	Direction string `json:"direction"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Value     string `json:"value"`
}

// sides resolves the token pair of a request. The currency side may be left
// empty and then names the wrapped token.
func (s *Server) sides(dir orderbook.Direction, rawIn, rawOut string) (common.Address, common.Address, error) {
	defIn, defOut := common.Address{}, common.Address{}
	switch dir {
	case orderbook.CurrencyForToken:
		defIn = s.node.WrappedToken()
	case orderbook.TokenForCurrency:
		defOut = s.node.WrappedToken()
	}
	var (
		tokenIn, tokenOut common.Address
		err               error
	)
	if defIn != (common.Address{}) {
		tokenIn, err = parseOptionalAddress("token_in", rawIn, defIn)
	} else {
		tokenIn, err = parseAddress("token_in", rawIn)
	}
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if defOut != (common.Address{}) {
		tokenOut, err = parseOptionalAddress("token_out", rawOut, defOut)
	} else {
		tokenOut, err = parseAddress("token_out", rawOut)
	}
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return tokenIn, tokenOut, nil
}

func commitment(dir orderbook.Direction, amountIn, executorFee *big.Int) *big.Int {
	total := new(big.Int).Set(executorFee)
	if dir.CurrencyIn() {
		total.Add(total, amountIn)
	}
	return total
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	dir, err := orderbook.ParseDirection(req.Direction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tokenIn, tokenOut, err := s.sides(dir, req.TokenIn, req.TokenOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountOut, err := parseAmount("amount_out", req.AmountOut, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	executorFee, err := parseAmount("executor_fee", req.ExecutorFee, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("value", req.Value, commitment(dir, amountIn, executorFee))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.node.PlaceOrder(r.Context(), types.NewCall(caller(r), value), dir, tokenIn, tokenOut, amountIn, amountOut, executorFee)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	order, err := s.node.Order(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderJSON(order))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	order, err := s.node.Order(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(order))
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	current, err := s.node.Order(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn, current.AmountInOffered)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountOut, err := parseAmount("amount_out", req.AmountOut, current.AmountOutExpected)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	executorFee, err := parseAmount("executor_fee", req.ExecutorFee, current.ExecutorFee)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	growth := new(big.Int).Sub(commitment(current.Direction, amountIn, executorFee), current.TotalCommitted)
	if growth.Sign() < 0 {
		growth.SetInt64(0)
	}
	value, err := parseAmount("value", req.Value, growth)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.node.UpdateOrder(r.Context(), types.NewCall(caller(r), value), id, amountIn, amountOut, executorFee)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderJSON(updated))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.CancelOrder(r.Context(), caller(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.node.ExecuteOrder(r.Context(), caller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultJSON(res))
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toOrderList(s.node.ActiveOrders()))
}

func (s *Server) handleAddressOrders(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(s.node.OrdersForAddress(addr)))
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	dir, err := orderbook.ParseDirection(req.Direction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tokenIn, tokenOut, err := s.sides(dir, req.TokenIn, req.TokenOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountOut, err := parseAmount("amount_out", req.AmountOut, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("value", req.Value, commitment(dir, amountIn, big.NewInt(0)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.node.ExecuteMarket(r.Context(), types.NewCall(caller(r), value), dir, tokenIn, tokenOut, amountIn, amountOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultJSON(res))
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	lastBurn, burned, pending := s.node.BurnStats()
	writeJSON(w, http.StatusOK, toLedgerJSON(s.node.Ledger(), lastBurn, burned, pending))
}
