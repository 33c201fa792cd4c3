package server

import (
	"fmt"
	"net/http"
	"strconv"

	"limitbook/services/orderbookd/history"
)

type fractionRequest struct {
	Mul uint64 `json:"mul"`
	Div uint64 `json:"div"`
}

type ownerRequest struct {
	NewOwner string `json:"new_owner"`
}

type migrationJSON struct {
	RewardPool string `json:"reward_pool"`
	Moved      string `json:"moved"`
}

type eventJSON struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"created_at"`
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req fractionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.SetFeeFraction(r.Context(), caller(r), req.Mul, req.Div); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleLedger(w, r)
}

func (s *Server) handleSetSplit(w http.ResponseWriter, r *http.Request) {
	var req fractionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.SetSplitFraction(r.Context(), caller(r), req.Mul, req.Div); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleLedger(w, r)
}

// handleMigrateRewardPool points fee rewards at the staking pool and moves
// whatever the holding pool has collected.
func (s *Server) handleMigrateRewardPool(w http.ResponseWriter, r *http.Request) {
	moved, err := s.node.MigrateRewardPool(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, migrationJSON{
		RewardPool: s.node.Ledger().Params.RewardPool.Hex(),
		Moved:      amountString(moved),
	})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	newOwner, err := parseAddress("new_owner", req.NewOwner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.TransferOwnership(r.Context(), caller(r), newOwner); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleLedger(w, r)
}

func (s *Server) handleRenounce(w http.ResponseWriter, r *http.Request) {
	if err := s.node.RenounceOwnership(r.Context(), caller(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleLedger(w, r)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "event history disabled")
		return
	}
	query := r.URL.Query()
	filter := history.Filter{Type: query.Get("type")}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: invalid after %q", errBadRequest, raw))
			return
		}
		filter.After = after
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.fail(w, r, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw))
			return
		}
		filter.Limit = limit
	}
	records, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]eventJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, eventJSON{
			ID:         rec.ID.String(),
			Seq:        rec.Seq,
			Type:       rec.Type,
			Attributes: rec.Decoded(),
			CreatedAt:  rec.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
