// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/rating"
)

// AdminService defines the parameter administration operations.
type AdminService interface {
	Params(ctx context.Context) ledger.Params
	SetParams(ctx context.Context, caller string, p ledger.Params) error
}

// AdminHandler handles ledger parameter administration.
type AdminHandler struct {
	deps AdminService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminService) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type paramsPayload struct {
	EpochLength             uint64 `json:"epoch_length"`
	PeriodLength            uint64 `json:"period_length"`
	EpochReward             string `json:"epoch_reward"`
	MinStake                string `json:"min_stake"`
	MinRegistrationStake    string `json:"min_registration_stake"`
	SubEligibilityThreshold string `json:"sub_eligibility_threshold"`
	EligibilityThreshold    string `json:"eligibility_threshold"`
	MinBackersBps           uint64 `json:"min_backers_bps"`
	WithdrawalDelay         uint64 `json:"withdrawal_delay"`
	ClaimDelay              uint64 `json:"claim_delay"`
	TopK                    int    `json:"top_k"`
	MaxEntities             int    `json:"max_entities"`
	StakeWeightBps          uint64 `json:"stake_weight_bps"`
	PerformanceWeightBps    uint64 `json:"performance_weight_bps"`
}

func paramsJSON(p ledger.Params) paramsPayload {
	return paramsPayload{
		EpochLength:             p.EpochLength,
		PeriodLength:            p.PeriodLength,
		EpochReward:             p.EpochReward.Dec(),
		MinStake:                p.MinStake.Dec(),
		MinRegistrationStake:    p.MinRegistrationStake.Dec(),
		SubEligibilityThreshold: p.SubEligibilityThreshold.Dec(),
		EligibilityThreshold:    p.EligibilityThreshold.Dec(),
		MinBackersBps:           p.MinBackersBps,
		WithdrawalDelay:         p.WithdrawalDelay,
		ClaimDelay:              p.ClaimDelay,
		TopK:                    p.TopK,
		MaxEntities:             p.MaxEntities,
		StakeWeightBps:          p.RatingWeights.StakeBps,
		PerformanceWeightBps:    p.RatingWeights.PerformanceBps,
	}
}

// HandleGetParams handles GET /admin/params requests.
func (h *AdminHandler) HandleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, paramsJSON(h.deps.Params(r.Context())))
}

type setParamsRequest struct {
	Caller string        `json:"caller"`
	Params paramsPayload `json:"params"`
}

// HandleSetParams handles PUT /admin/params requests.
func (h *AdminHandler) HandleSetParams(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_params"
	var req setParamsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	pp := req.Params
	p := ledger.Params{
		EpochLength:     pp.EpochLength,
		PeriodLength:    pp.PeriodLength,
		MinBackersBps:   pp.MinBackersBps,
		WithdrawalDelay: pp.WithdrawalDelay,
		ClaimDelay:      pp.ClaimDelay,
		TopK:            pp.TopK,
		MaxEntities:     pp.MaxEntities,
		RatingWeights: rating.Weights{
			StakeBps:       pp.StakeWeightBps,
			PerformanceBps: pp.PerformanceWeightBps,
		},
	}
	var err error
	if p.EpochReward, err = parseAmount("epoch_reward", pp.EpochReward); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if p.MinStake, err = parseAmount("min_stake", pp.MinStake); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if p.MinRegistrationStake, err = parseAmount("min_registration_stake", pp.MinRegistrationStake); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if p.SubEligibilityThreshold, err = parseAmount("sub_eligibility_threshold", pp.SubEligibilityThreshold); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if p.EligibilityThreshold, err = parseAmount("eligibility_threshold", pp.EligibilityThreshold); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if err := h.deps.SetParams(r.Context(), req.Caller, p); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, paramsJSON(h.deps.Params(r.Context())))
}
