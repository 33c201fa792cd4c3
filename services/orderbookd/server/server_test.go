package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"limitbook/core"
	"limitbook/core/events"
	"limitbook/native/fees"
	"limitbook/services/orderbookd/history"
	"limitbook/storage"
)

const testSecret = "test-secret"

var (
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	makerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	executorAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	wrappedAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	protocolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	tokenAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
)

type harness struct {
	node    *core.Node
	history *history.Store
	handler http.Handler
}

func newHarness(t *testing.T, limit RateLimit) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s", filepath.Join(t.TempDir(), "history.sqlite"))
	store, err := history.Open(history.DriverSQLite, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Owner:         ownerAddr,
		WrappedToken:  wrappedAddr,
		ProtocolToken: protocolAddr,
		Fee:           fees.Fraction{Mul: 1, Div: 100},
		Split:         fees.DefaultSplit,
		Genesis: &core.Genesis{
			Tokens: []core.GenesisToken{{Address: tokenAddr, Symbol: "TKA"}, {Address: protocolAddr, Symbol: "PRT"}},
			Pools: []core.GenesisPool{
				{TokenA: tokenAddr, TokenB: wrappedAddr, AmountA: big.NewInt(1_000_000), AmountB: big.NewInt(1_000_000)},
			},
			Balances: []core.GenesisBalance{
				{Holder: makerAddr, Amount: big.NewInt(10_000_000)},
				{Holder: makerAddr, Token: tokenAddr, Amount: big.NewInt(1_000_000)},
			},
		},
		Emitter: store,
		Now:     func() int64 { return 1_700_000_000 },
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, logger)
	require.NoError(t, err)
	srv, err := New(Config{RateLimit: limit}, node, store, auth, logger)
	require.NoError(t, err)
	return &harness{node: node, history: store, handler: srv.Handler()}
}

func token(t *testing.T, subject common.Address, admin bool) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   subject.Hex(),
		"admin": admin,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *harness) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t, RateLimit{})
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newHarness(t, RateLimit{})
	rec := h.do(t, http.MethodGet, "/v1/orders/active", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/orders/active", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, RateLimit{})
	maker := token(t, makerAddr, false)

	rec := h.do(t, http.MethodPost, "/v1/approvals", maker, map[string]string{
		"token":   tokenAddr.Hex(),
		"spender": h.node.LedgerAddress().Hex(),
		"amount":  "10000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/v1/orders", maker, map[string]string{
		"direction":    "token_for_currency",
		"token_in":     tokenAddr.Hex(),
		"amount_in":    "10000",
		"amount_out":   "1",
		"executor_fee": "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orderJSON
	decode(t, rec, &placed)
	require.Equal(t, "open", placed.State)
	require.Equal(t, wrappedAddr.Hex(), placed.TokenOut)
	require.Equal(t, "100", placed.TotalCommitted)

	rec = h.do(t, http.MethodGet, "/v1/addresses/"+makerAddr.Hex()+"/orders", maker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var owned []orderJSON
	decode(t, rec, &owned)
	require.Len(t, owned, 1)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/v1/orders/%d/execute", placed.ID), token(t, executorAddr, false), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res resultJSON
	decode(t, rec, &res)
	require.Equal(t, "10000", res.AmountIn)
	require.NotEqual(t, "0", res.Fee)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/v1/orders/%d", placed.ID), maker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var filled orderJSON
	decode(t, rec, &filled)
	require.Equal(t, "filled", filled.State)

	rec = h.do(t, http.MethodGet, "/v1/balances/"+executorAddr.Hex(), maker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal balanceJSON
	decode(t, rec, &bal)
	require.Equal(t, "100", bal.Balance)

	rec = h.do(t, http.MethodGet, "/v1/ledger", maker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger ledgerJSON
	decode(t, rec, &ledger)
	require.Equal(t, 0, ledger.ActiveOrders)
	require.Len(t, ledger.Fees, 2)
	require.EqualValues(t, 1, ledger.Fees[0].Count)

	rec = h.do(t, http.MethodGet, "/v1/events?type="+events.TypeOrderPlaced, maker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var placedEvents []eventJSON
	decode(t, rec, &placedEvents)
	require.Len(t, placedEvents, 1)
}

func TestCancelByStrangerIsForbidden(t *testing.T) {
	h := newHarness(t, RateLimit{})
	maker := token(t, makerAddr, false)
	rec := h.do(t, http.MethodPost, "/v1/orders", maker, map[string]string{
		"direction":    "currency_for_token",
		"token_out":    tokenAddr.Hex(),
		"amount_in":    "5000",
		"amount_out":   "1",
		"executor_fee": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orderJSON
	decode(t, rec, &placed)
	require.Equal(t, "5010", placed.TotalCommitted)

	path := fmt.Sprintf("/v1/orders/%d", placed.ID)
	rec = h.do(t, http.MethodDelete, path, token(t, executorAddr, false), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodDelete, path, maker, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, path, maker, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateDefaultsValueToCommitmentGrowth(t *testing.T) {
	h := newHarness(t, RateLimit{})
	maker := token(t, makerAddr, false)
	rec := h.do(t, http.MethodPost, "/v1/orders", maker, map[string]string{
		"direction":    "currency_for_token",
		"token_out":    tokenAddr.Hex(),
		"amount_in":    "5000",
		"amount_out":   "1",
		"executor_fee": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orderJSON
	decode(t, rec, &placed)

	rec = h.do(t, http.MethodPatch, fmt.Sprintf("/v1/orders/%d", placed.ID), maker, map[string]string{
		"amount_in": "6000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated orderJSON
	decode(t, rec, &updated)
	require.Equal(t, "6010", updated.TotalCommitted)
	require.Equal(t, "10", updated.ExecutorFee)
}

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t, RateLimit{})
	maker := token(t, makerAddr, false)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"unknown order", http.MethodGet, "/v1/orders/42", nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/v1/orders/abc", nil, http.StatusBadRequest},
		{"bad direction", http.MethodPost, "/v1/orders", map[string]string{"direction": "sideways"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/staking/stake", map[string]string{"amount": "1", "extra": "x"}, http.StatusBadRequest},
		{"nothing staked", http.MethodPost, "/v1/staking/withdraw", nil, http.StatusBadRequest},
		{"bad address", http.MethodGet, "/v1/staking/nope", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, tc.method, tc.path, maker, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			var body errorResponse
			decode(t, rec, &body)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, RateLimit{})
	body := map[string]uint64{"mul": 2, "div": 100}

	rec := h.do(t, http.MethodPut, "/v1/admin/fee", token(t, ownerAddr, false), body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPut, "/v1/admin/fee", token(t, makerAddr, true), body)
	require.Equal(t, http.StatusForbidden, rec.Code, "admin claim alone must not bypass ownership")

	admin := token(t, ownerAddr, true)
	rec = h.do(t, http.MethodPut, "/v1/admin/fee", admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ledger ledgerJSON
	decode(t, rec, &ledger)
	require.Equal(t, fees.Fraction{Mul: 2, Div: 100}.String(), ledger.Params.Fee)

	rec = h.do(t, http.MethodPut, "/v1/admin/split", admin, map[string]uint64{"mul": 1, "div": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/v1/admin/owner", admin, map[string]string{"new_owner": makerAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &ledger)
	require.Equal(t, makerAddr.Hex(), ledger.Params.Owner)

	rec = h.do(t, http.MethodPost, "/v1/admin/renounce", admin, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	h := newHarness(t, RateLimit{RequestsPerSecond: 0.001, Burst: 1})
	maker := token(t, makerAddr, false)

	rec := h.do(t, http.MethodGet, "/v1/orders/active", maker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/v1/orders/active", maker, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other callers keep their own bucket.
	rec = h.do(t, http.MethodGet, "/v1/orders/active", token(t, executorAddr, false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDisabledAuthTrustsCallerHeader(t *testing.T) {
	h := newHarness(t, RateLimit{})
	auth, err := NewAuthenticator(AuthConfig{Disabled: true}, nil)
	require.NoError(t, err)
	srv, err := New(Config{}, h.node, nil, auth, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/staking/"+makerAddr.Hex(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	req.Header.Set("X-Caller", makerAddr.Hex())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyRejectsForeignSignatures(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "limitbook"}, nil)
	require.NoError(t, err)

	claims := jwt.MapClaims{"sub": makerAddr.Hex(), "iss": "limitbook", "exp": time.Now().Add(time.Minute).Unix()}
	good, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	principal, err := auth.Verify(good)
	require.NoError(t, err)
	require.Equal(t, makerAddr, principal.Caller)
	require.False(t, principal.Admin)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = auth.Verify(forged)
	require.Error(t, err)

	claims["iss"] = "someone-else"
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.Verify(wrongIssuer)
	require.Error(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": makerAddr.Hex(), "iss": "limitbook"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.Verify(noExpiry)
	require.Error(t, err)
}

func TestParseBearerToken(t *testing.T) {
	require.Equal(t, "abc", parseBearerToken("Bearer abc"))
	require.Equal(t, "abc", parseBearerToken("bearer  abc "))
	require.Empty(t, parseBearerToken("Basic abc"))
	require.Empty(t, parseBearerToken("abc"))
}

func TestMarketOrderChargesProtocolFee(t *testing.T) {
	h := newHarness(t, RateLimit{})
	maker := token(t, makerAddr, false)

	rec := h.do(t, http.MethodPost, "/v1/market", maker, map[string]string{
		"direction":  "currency_for_token",
		"token_out":  tokenAddr.Hex(),
		"amount_in":  "1000",
		"amount_out": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res resultJSON
	decode(t, rec, &res)
	require.Equal(t, "10", res.Fee)
	require.NotEqual(t, "0", res.AmountOut)

	rec = h.do(t, http.MethodPost, "/v1/market", maker, map[string]string{
		"direction":  "currency_for_token",
		"token_out":  tokenAddr.Hex(),
		"amount_in":  "1000",
		"amount_out": "1",
		"value":      "999",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
