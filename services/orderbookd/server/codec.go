package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"limitbook/core"
	"limitbook/native/fees"
	"limitbook/native/orderbook"
)

const maxBodyBytes = 1 << 20

type orderJSON struct {
	ID                uint64 `json:"id"`
	Direction         string `json:"direction"`
	Maker             string `json:"maker"`
	TokenIn           string `json:"token_in"`
	TokenOut          string `json:"token_out"`
	Pair              string `json:"pair"`
	AmountInOffered   string `json:"amount_in_offered"`
	AmountOutExpected string `json:"amount_out_expected"`
	ExecutorFee       string `json:"executor_fee"`
	TotalCommitted    string `json:"total_committed"`
	State             string `json:"state"`
	Deflationary      bool   `json:"deflationary"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

func toOrderJSON(o *orderbook.Order) orderJSON {
	return orderJSON{
		ID:                o.ID,
		Direction:         o.Direction.String(),
		Maker:             o.Maker.Hex(),
		TokenIn:           o.TokenIn.Hex(),
		TokenOut:          o.TokenOut.Hex(),
		Pair:              o.Pair.Hex(),
		AmountInOffered:   amountString(o.AmountInOffered),
		AmountOutExpected: amountString(o.AmountOutExpected),
		ExecutorFee:       amountString(o.ExecutorFee),
		TotalCommitted:    amountString(o.TotalCommitted),
		State:             o.State.String(),
		Deflationary:      o.Deflationary,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrderList(orders []*orderbook.Order) []orderJSON {
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderJSON(o))
	}
	return out
}

type resultJSON struct {
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Gross     string `json:"gross"`
	Fee       string `json:"fee"`
	Burned    string `json:"burned"`
	Staked    string `json:"staked"`
}

func toResultJSON(res *orderbook.Result) resultJSON {
	if res == nil {
		return resultJSON{}
	}
	return resultJSON{
		AmountIn:  amountString(res.AmountIn),
		AmountOut: amountString(res.AmountOut),
		Gross:     amountString(res.Gross),
		Fee:       amountString(res.Fee),
		Burned:    amountString(res.Burned),
		Staked:    amountString(res.Staked),
	}
}

type paramsJSON struct {
	Fee        string `json:"fee"`
	Split      string `json:"split"`
	Owner      string `json:"owner"`
	RewardPool string `json:"reward_pool"`
	FeeSink    string `json:"fee_sink"`
}

type feeTotalsJSON struct {
	Domain string `json:"domain"`
	Count  uint64 `json:"count"`
	Gross  string `json:"gross"`
	Fee    string `json:"fee"`
	Burned string `json:"burned"`
	Staked string `json:"staked"`
}

type ledgerJSON struct {
	Params       paramsJSON      `json:"params"`
	Orders       uint64          `json:"orders"`
	ActiveOrders int             `json:"active_orders"`
	Fees         []feeTotalsJSON `json:"fees"`
	LastBurn     int64           `json:"last_burn"`
	TotalBurned  string          `json:"total_burned"`
	PendingBurn  string          `json:"pending_burn"`
}

func toLedgerJSON(view core.LedgerView, lastBurn int64, burned, pending *big.Int) ledgerJSON {
	out := ledgerJSON{
		Params: paramsJSON{
			Fee:        view.Params.Fee.String(),
			Split:      view.Params.Split.String(),
			Owner:      view.Params.Owner.Hex(),
			RewardPool: view.Params.RewardPool.Hex(),
			FeeSink:    view.Params.FeeSink.Hex(),
		},
		Orders:       view.Orders,
		ActiveOrders: view.ActiveOrders,
		LastBurn:     lastBurn,
		TotalBurned:  amountString(burned),
		PendingBurn:  amountString(pending),
	}
	for _, t := range view.Fees {
		out.Fees = append(out.Fees, toFeeTotalsJSON(t))
	}
	return out
}

func toFeeTotalsJSON(t fees.Totals) feeTotalsJSON {
	return feeTotalsJSON{
		Domain: t.Domain,
		Count:  t.Count,
		Gross:  amountString(t.Gross),
		Fee:    amountString(t.Fee),
		Burned: amountString(t.Burned),
		Staked: amountString(t.Staked),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", errBadRequest, err)
	}
	return nil
}

// parseAmount parses a non-negative decimal string. Empty input yields def.
func parseAmount(field, raw string, def *big.Int) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if def == nil {
			return nil, fmt.Errorf("%w: %s required", errBadRequest, field)
		}
		return new(big.Int).Set(def), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", errBadRequest, field, raw)
	}
	return amount, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: invalid %s %q", errBadRequest, field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// parseOptionalAddress returns def for empty input.
func parseOptionalAddress(field, raw string, def common.Address) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return parseAddress(field, raw)
}

func orderIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid order id %q", errBadRequest, raw)
	}
	return id, nil
}

func caller(r *http.Request) common.Address {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return common.Address{}
	}
	return principal.Caller
}
