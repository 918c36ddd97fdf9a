// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/okian/tally/internal/domain/ledger"
)

// EpochService defines the epoch and clock operations the handlers depend on.
type EpochService interface {
	AdvanceClock(ctx context.Context, to uint64) error
	CreateEpochs(ctx context.Context)
	Clock(ctx context.Context) uint64
	LastEpochID(ctx context.Context) ledger.EpochID
	Epoch(ctx context.Context, id ledger.EpochID) (ledger.Epoch, error)
	CurrentEpoch(ctx context.Context) ledger.Epoch
	SubmitPerformance(ctx context.Context, caller string, id ledger.EpochID, ratings []ledger.PerformanceRating) error
}

// EpochsHandler handles epoch and clock requests.
type EpochsHandler struct {
	deps EpochService
}

// NewEpochsHandler creates a new epoch handler.
func NewEpochsHandler(deps EpochService) *EpochsHandler {
	return &EpochsHandler{deps: deps}
}

type advanceRequest struct {
	Clock uint64 `json:"clock"`
}

type advanceResponse struct {
	Clock     uint64 `json:"clock"`
	LastEpoch uint64 `json:"last_epoch"`
}

// HandleAdvance handles POST /epochs/advance requests. A body-less request
// (or an omitted clock) triggers epoch catch-up without moving the clock.
func (h *EpochsHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	const op = "api.advance_clock"
	var req advanceRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ctx := r.Context()
	if req.Clock == 0 {
		h.deps.CreateEpochs(ctx)
	} else if err := h.deps.AdvanceClock(ctx, req.Clock); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{
		Clock:     h.deps.Clock(ctx),
		LastEpoch: uint64(h.deps.LastEpochID(ctx)),
	})
}

type epochEntityRow struct {
	EntityID      uint64 `json:"entity_id"`
	StakeAmount   string `json:"stake_amount"`
	Included      bool   `json:"included"`
	BackersBps    uint64 `json:"backers_bps"`
	Performance   string `json:"performance,omitempty"`
	StakeScore    string `json:"stake_score,omitempty"`
	OwnerReward   string `json:"owner_reward,omitempty"`
	BackersReward string `json:"backers_reward,omitempty"`
}

type epochResponse struct {
	ID        uint64           `json:"id"`
	Start     uint64           `json:"start"`
	End       uint64           `json:"end"`
	Reward    string           `json:"reward"`
	Finalized bool             `json:"finalized"`
	TopK      []uint64         `json:"top_k"`
	Entities  []epochEntityRow `json:"entities"`
}

func epochJSON(ep ledger.Epoch) epochResponse {
	out := epochResponse{
		ID:        uint64(ep.ID),
		Start:     ep.Start,
		End:       ep.End,
		Reward:    ep.Reward.Dec(),
		Finalized: ep.Finalized,
		TopK:      make([]uint64, len(ep.TopK)),
		Entities:  make([]epochEntityRow, 0, len(ep.Entities)),
	}
	for i, id := range ep.TopK {
		out.TopK[i] = uint64(id)
	}
	for id, ee := range ep.Entities {
		row := epochEntityRow{
			EntityID:    uint64(id),
			StakeAmount: ee.StakeAmount.Dec(),
			Included:    ee.Included,
			BackersBps:  ee.BackersBps,
		}
		if ee.Performance != nil {
			row.Performance = ee.Performance.Dec()
		}
		if ee.StakeScore != nil {
			row.StakeScore = ee.StakeScore.Dec()
		}
		if ee.OwnerReward != nil {
			row.OwnerReward = ee.OwnerReward.Dec()
		}
		if ee.BackersReward != nil {
			row.BackersReward = ee.BackersReward.Dec()
		}
		out.Entities = append(out.Entities, row)
	}
	sort.Slice(out.Entities, func(i, j int) bool {
		return out.Entities[i].EntityID < out.Entities[j].EntityID
	})
	return out
}

// HandleGet handles GET /epochs/{id} requests.
func (h *EpochsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_epoch"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ep, err := h.deps.Epoch(r.Context(), ledger.EpochID(id))
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, epochJSON(ep))
}

// HandleCurrent handles GET /epochs/current requests.
func (h *EpochsHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, epochJSON(h.deps.CurrentEpoch(r.Context())))
}

type ratingRow struct {
	EntityID uint64 `json:"entity_id"`
	Rating   string `json:"rating"`
}

type ratingsRequest struct {
	Caller  string      `json:"caller"`
	Ratings []ratingRow `json:"ratings"`
}

// HandleRatings handles POST /epochs/{id}/ratings requests.
func (h *EpochsHandler) HandleRatings(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_ratings"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req ratingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ratings := make([]ledger.PerformanceRating, len(req.Ratings))
	for i, row := range req.Ratings {
		rating, err := parseAmount("rating", row.Rating)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		ratings[i] = ledger.PerformanceRating{Entity: ledger.EntityID(row.EntityID), Rating: rating}
	}
	if err := h.deps.SubmitPerformance(r.Context(), req.Caller, ledger.EpochID(id), ratings); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	ep, err := h.deps.Epoch(r.Context(), ledger.EpochID(id))
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, epochJSON(ep))
}
