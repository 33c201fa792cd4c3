package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"limitbook/core"
	"limitbook/core/types"
)

type approveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Balance string `json:"balance"`
	// Allowance is only reported when a spender is queried.
	Allowance string `json:"allowance,omitempty"`
}

type stakeRequest struct {
	Amount string `json:"amount"`
}

type depositRequest struct {
	Value string `json:"value"`
}

type stakeJSON struct {
	Address    string `json:"address"`
	Amount     string `json:"amount"`
	LockExpiry int64  `json:"lock_expiry"`
	Pending    string `json:"pending"`
}

type poolJSON struct {
	Address        string `json:"address"`
	Token          string `json:"token"`
	TotalStaked    string `json:"total_staked"`
	RewardPerStake string `json:"reward_per_stake"`
	Stakers        int    `json:"stakers"`
	Balance        string `json:"balance"`
	LockPeriod     int64  `json:"lock_period"`
}

type withdrawJSON struct {
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
}

func toStakeJSON(v core.StakeView) stakeJSON {
	return stakeJSON{
		Address:    v.Address.Hex(),
		Amount:     amountString(v.Amount),
		LockExpiry: v.LockExpiry,
		Pending:    amountString(v.Pending),
	}
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner := caller(r)
	if err := s.node.Approve(r.Context(), owner, token, spender, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{
		Address:   owner.Hex(),
		Token:     token.Hex(),
		Balance:   amountString(s.node.Balance(owner, token)),
		Allowance: amountString(s.node.Allowance(token, owner, spender)),
	})
}

// handleBalance reports the native balance unless a token is given.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	token, err := parseOptionalAddress("token", query.Get("token"), common.Address{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := balanceJSON{
		Address: holder.Hex(),
		Balance: amountString(s.node.Balance(holder, token)),
	}
	if token != (common.Address{}) {
		out.Token = token.Hex()
		if raw := query.Get("spender"); raw != "" {
			spender, err := parseAddress("spender", raw)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			out.Allowance = amountString(s.node.Allowance(token, holder, spender))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	view := s.node.Pool()
	writeJSON(w, http.StatusOK, poolJSON{
		Address:        view.Address.Hex(),
		Token:          view.Token.Hex(),
		TotalStaked:    amountString(view.TotalStaked),
		RewardPerStake: amountString(view.RewardPerStake),
		Stakers:        view.Stakers,
		Balance:        amountString(view.Balance),
		LockPeriod:     view.LockPeriod,
	})
}

func (s *Server) handleStakeOf(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStakeJSON(s.node.StakeOf(addr)))
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	staker := caller(r)
	if err := s.node.Stake(r.Context(), types.NewCall(staker, nil), amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStakeJSON(s.node.StakeOf(staker)))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("value", req.Value, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.node.DepositRewards(r.Context(), types.NewCall(caller(r), value)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handlePool(w, r)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	principal, reward, err := s.node.Withdraw(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawJSON{Principal: amountString(principal), Reward: amountString(reward)})
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	reward, err := s.node.Payout(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawJSON{Principal: "0", Reward: amountString(reward)})
}
