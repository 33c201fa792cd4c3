package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"limitbook/native/amm"
	"limitbook/native/bank"
	nativecommon "limitbook/native/common"
	"limitbook/native/fees"
	"limitbook/native/orderbook"
	"limitbook/native/staking"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps module errors onto HTTP statuses. Upstream swap failures are
// checked before validation errors because they wrap the exchange's reason.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, orderbook.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orderbook.ErrUpstreamSwapFailed):
		return http.StatusBadGateway
	case errors.Is(err, orderbook.ErrPermissionDenied),
		errors.Is(err, orderbook.ErrNotOwner),
		errors.Is(err, staking.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, staking.ErrStakeLocked),
		errors.Is(err, orderbook.ErrNotOpen),
		errors.Is(err, staking.ErrPoolDisabled):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, nativecommon.ErrReentrantCall):
		return http.StatusServiceUnavailable
	case errors.Is(err, orderbook.ErrInvalidOrder),
		errors.Is(err, orderbook.ErrInvalidCommitment),
		errors.Is(err, orderbook.ErrCommitmentMismatch),
		errors.Is(err, orderbook.ErrNoRoute),
		errors.Is(err, orderbook.ErrTransferFailed),
		errors.Is(err, orderbook.ErrIndexOutOfRange),
		errors.Is(err, fees.ErrInvalidFraction),
		errors.Is(err, staking.ErrNothingToStake),
		errors.Is(err, staking.ErrTransferFailed),
		errors.Is(err, staking.ErrNothingStaked),
		errors.Is(err, staking.ErrNothingToDeposit),
		errors.Is(err, staking.ErrNothingToPayOut),
		errors.Is(err, staking.ErrNothingToTransfer),
		errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientAllowance),
		errors.Is(err, bank.ErrUnknownToken),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrOverflow),
		errors.Is(err, amm.ErrPairNotFound),
		errors.Is(err, amm.ErrInvalidPath),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "error", err, "requestid", RequestIDFromContext(r.Context()))
	}
	writeError(w, status, err.Error())
}
