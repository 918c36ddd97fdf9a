// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/ledger"
)

// StakeService defines the stake lifecycle operations the handlers depend on.
type StakeService interface {
	CreateStake(ctx context.Context, caller string, entity ledger.EntityID, amount *uint256.Int) (ledger.StakeID, error)
	CloseStake(ctx context.Context, caller string, id ledger.StakeID) error
	WithdrawStake(ctx context.Context, caller string, id ledger.StakeID) error
	Stake(ctx context.Context, id ledger.StakeID) (ledger.Stake, error)
	Claim(ctx context.Context, caller string, id ledger.StakeID) (*uint256.Int, error)
	ClaimableAmount(ctx context.Context, id ledger.StakeID) (*uint256.Int, error)
	ClaimHistory(ctx context.Context, id ledger.StakeID) map[ledger.EpochID]ledger.StakeEpochClaim
}

// StakesHandler handles stake lifecycle requests.
type StakesHandler struct {
	deps   StakeService
	replay Replay
}

// NewStakesHandler creates a new stake lifecycle handler.
func NewStakesHandler(deps StakeService, replay Replay) *StakesHandler {
	return &StakesHandler{deps: deps, replay: replay}
}

type createStakeRequest struct {
	RequestID string `json:"request_id"`
	Caller    string `json:"caller"`
	EntityID  uint64 `json:"entity_id"`
	Amount    string `json:"amount"`
}

type createStakeResponse struct {
	RequestID string `json:"request_id"`
	StakeID   uint64 `json:"stake_id"`
	Duplicate bool   `json:"duplicate"`
}

type stakeResponse struct {
	ID         uint64 `json:"id"`
	Staker     string `json:"staker"`
	EntityID   uint64 `json:"entity_id"`
	Amount     string `json:"amount"`
	StartClock uint64 `json:"start_clock"`
	EndClock   uint64 `json:"end_clock,omitempty"`
	Withdrawn  bool   `json:"withdrawn"`
	Claimable  string `json:"claimable,omitempty"`
}

// HandleCreate handles POST /stakes requests.
func (h *StakesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_stake"
	var req createStakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Caller) == "" || req.EntityID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ctx := r.Context()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if h.replay.SeenAndRecord(ctx, req.RequestID) {
		writeJSON(w, http.StatusOK, createStakeResponse{RequestID: req.RequestID, Duplicate: true})
		return
	}

	id, err := h.deps.CreateStake(ctx, req.Caller, ledger.EntityID(req.EntityID), amount)
	if err != nil {
		h.replay.Unrecord(ctx, req.RequestID)
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, createStakeResponse{RequestID: req.RequestID, StakeID: uint64(id)})
}

// HandleGet handles GET /stakes/{id} requests.
func (h *StakesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stake"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	st, err := h.deps.Stake(r.Context(), ledger.StakeID(id))
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	out := stakeResponse{
		ID:         uint64(st.ID),
		Staker:     st.Staker,
		EntityID:   uint64(st.Entity),
		Amount:     st.Amount.Dec(),
		StartClock: st.StartClock,
		EndClock:   st.EndClock,
		Withdrawn:  st.Withdrawn,
	}
	if claimable, err := h.deps.ClaimableAmount(r.Context(), st.ID); err == nil {
		out.Claimable = claimable.Dec()
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleClose handles POST /stakes/{id}/close requests.
func (h *StakesHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	const op = "api.close_stake"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.CloseStake(r.Context(), req.Caller, ledger.StakeID(id)); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// HandleWithdraw handles POST /stakes/{id}/withdraw requests.
func (h *StakesHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	const op = "api.withdraw_stake"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.WithdrawStake(r.Context(), req.Caller, ledger.StakeID(id)); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

type claimRequest struct {
	RequestID string `json:"request_id"`
	Caller    string `json:"caller"`
}

type claimResponse struct {
	RequestID string `json:"request_id"`
	Claimed   string `json:"claimed"`
	Duplicate bool   `json:"duplicate"`
}

// HandleClaim handles POST /stakes/{id}/claim requests.
func (h *StakesHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	const op = "api.claim"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ctx := r.Context()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if h.replay.SeenAndRecord(ctx, req.RequestID) {
		writeJSON(w, http.StatusOK, claimResponse{RequestID: req.RequestID, Duplicate: true})
		return
	}

	total, err := h.deps.Claim(ctx, req.Caller, ledger.StakeID(id))
	if err != nil {
		h.replay.Unrecord(ctx, req.RequestID)
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{RequestID: req.RequestID, Claimed: total.Dec()})
}

type claimHistoryRow struct {
	EpochID     uint64 `json:"epoch_id"`
	StakeAmount string `json:"stake_amount"`
	Reward      string `json:"reward"`
	Claimed     string `json:"claimed"`
}

// HandleHistory handles GET /stakes/{id}/history requests.
func (h *StakesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.claim_history"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if _, err := h.deps.Stake(r.Context(), ledger.StakeID(id)); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	history := h.deps.ClaimHistory(r.Context(), ledger.StakeID(id))
	rows := make([]claimHistoryRow, 0, len(history))
	for eid, rec := range history {
		rows = append(rows, claimHistoryRow{
			EpochID:     uint64(eid),
			StakeAmount: rec.StakeAmount.Dec(),
			Reward:      rec.Reward.Dec(),
			Claimed:     rec.Claimed.Dec(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].EpochID < rows[j].EpochID })
	writeJSON(w, http.StatusOK, rows)
}
