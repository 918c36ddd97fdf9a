// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/domain/ledger"
)

// EntityService defines the registry operations the handlers depend on.
type EntityService interface {
	RegisterEntity(ctx context.Context, reg ledger.Registration, initialStake *uint256.Int) (ledger.EntityID, error)
	UpdateEntity(ctx context.Context, caller string, id ledger.EntityID, upd ledger.EntityUpdate) error
	DeregisterEntity(ctx context.Context, caller string, id ledger.EntityID) error
	SetVerified(ctx context.Context, caller string, id ledger.EntityID, verified bool) error
	Entity(ctx context.Context, id ledger.EntityID) (ledger.Entity, error)
	EntityByAddress(ctx context.Context, addr string) (ledger.Entity, error)
	Rank(ctx context.Context, entity ledger.EntityID) (Entry, error)
}

// EntitiesHandler handles entity registry requests.
type EntitiesHandler struct {
	deps   EntityService
	replay Replay
}

// NewEntitiesHandler creates a new entity registry handler.
func NewEntitiesHandler(deps EntityService, replay Replay) *EntitiesHandler {
	return &EntitiesHandler{deps: deps, replay: replay}
}

type registerRequest struct {
	RequestID    string `json:"request_id"`
	Address      string `json:"address"`
	Owner        string `json:"owner"`
	Payout       string `json:"payout"`
	Name         string `json:"name"`
	Metadata     string `json:"metadata"`
	BackersBps   uint64 `json:"backers_bps"`
	InitialStake string `json:"initial_stake"`
}

type registerResponse struct {
	RequestID string `json:"request_id"`
	EntityID  uint64 `json:"entity_id"`
	Duplicate bool   `json:"duplicate"`
}

type entityResponse struct {
	ID           uint64 `json:"id"`
	Address      string `json:"address"`
	Owner        string `json:"owner"`
	Payout       string `json:"payout,omitempty"`
	Name         string `json:"name,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
	Verified     bool   `json:"verified"`
	BackersBps   uint64 `json:"backers_bps"`
	Stake        string `json:"stake"`
	Status       string `json:"status"`
	RegisteredAt uint64 `json:"registered_at"`
	Rank         int    `json:"rank,omitempty"`
}

func (h *EntitiesHandler) entityJSON(ctx context.Context, e ledger.Entity) entityResponse {
	out := entityResponse{
		ID:           uint64(e.ID),
		Address:      e.Address,
		Owner:        e.Owner,
		Payout:       e.Payout,
		Name:         e.Name,
		Metadata:     e.Metadata,
		Verified:     e.Verified,
		BackersBps:   e.BackersBps,
		Stake:        e.StakeAmount.Dec(),
		Status:       e.Status.String(),
		RegisteredAt: e.RegisteredAt,
	}
	if entry, err := h.deps.Rank(ctx, e.ID); err == nil {
		out.Rank = entry.Rank
	}
	return out
}

// HandleRegister handles POST /entities requests.
func (h *EntitiesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_entity"
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Owner) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	stake, err := parseAmount("initial_stake", req.InitialStake)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ctx := r.Context()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if h.replay.SeenAndRecord(ctx, req.RequestID) {
		writeJSON(w, http.StatusOK, registerResponse{RequestID: req.RequestID, Duplicate: true})
		return
	}

	id, err := h.deps.RegisterEntity(ctx, ledger.Registration{
		Address:    req.Address,
		Owner:      req.Owner,
		Payout:     req.Payout,
		Name:       req.Name,
		Metadata:   req.Metadata,
		BackersBps: req.BackersBps,
	}, stake)
	if err != nil {
		h.replay.Unrecord(ctx, req.RequestID)
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{RequestID: req.RequestID, EntityID: uint64(id)})
}

// HandleGet handles GET /entities/{id} requests.
func (h *EntitiesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entity"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	e, err := h.deps.Entity(r.Context(), ledger.EntityID(id))
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.entityJSON(r.Context(), e))
}

// HandleResolve handles GET /entities?address=... requests.
func (h *EntitiesHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve_entity"
	addr := strings.TrimSpace(r.URL.Query().Get("address"))
	if addr == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	e, err := h.deps.EntityByAddress(r.Context(), addr)
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.entityJSON(r.Context(), e))
}

type updateEntityRequest struct {
	Caller     string  `json:"caller"`
	Owner      *string `json:"owner"`
	Payout     *string `json:"payout"`
	Name       *string `json:"name"`
	Metadata   *string `json:"metadata"`
	BackersBps *uint64 `json:"backers_bps"`
}

// HandleUpdate handles PATCH /entities/{id} requests.
func (h *EntitiesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_entity"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req updateEntityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	err = h.deps.UpdateEntity(r.Context(), req.Caller, ledger.EntityID(id), ledger.EntityUpdate{
		Owner:      req.Owner,
		Payout:     req.Payout,
		Name:       req.Name,
		Metadata:   req.Metadata,
		BackersBps: req.BackersBps,
	})
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	e, err := h.deps.Entity(r.Context(), ledger.EntityID(id))
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.entityJSON(r.Context(), e))
}

type callerRequest struct {
	Caller string `json:"caller"`
}

// HandleDeregister handles DELETE /entities/{id} requests.
func (h *EntitiesHandler) HandleDeregister(w http.ResponseWriter, r *http.Request) {
	const op = "api.deregister_entity"
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
	if err := h.deps.DeregisterEntity(r.Context(), req.Caller, ledger.EntityID(id)); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

type verifyRequest struct {
	Caller   string `json:"caller"`
	Verified bool   `json:"verified"`
}

// HandleVerify handles POST /entities/{id}/verify requests.
func (h *EntitiesHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	const op = "api.verify_entity"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.SetVerified(r.Context(), req.Caller, ledger.EntityID(id), req.Verified); err != nil {
		writeLedgerError(w, op, err)
		return
	}
	e, err := h.deps.Entity(r.Context(), ledger.EntityID(id))
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.entityJSON(r.Context(), e))
}
