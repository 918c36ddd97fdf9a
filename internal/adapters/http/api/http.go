// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/ledger"
)

// Replay provides request-id replay protection for submission endpoints.
type Replay interface {
	// SeenAndRecord atomically checks if a request id was seen and records
	// it if not. Returns true if the id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes a request id from the seen list, allowing a retry
	// after a rejected operation.
	Unrecord(ctx context.Context, id string)
}

// Dependencies bundles everything the HTTP handlers need. Using an interface
// bundle keeps the handler layer loosely coupled to implementations in other
// packages; *service.Service satisfies it.
type Dependencies interface {
	Replay
	EntityService
	StakeService
	EpochService
	AdminService
	LeaderboardService
}

// Entry mirrors the read shape returned by rank index queries.
type Entry = repository.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	entitiesHandler    *EntitiesHandler
	stakesHandler      *StakesHandler
	epochsHandler      *EpochsHandler
	adminHandler       *AdminHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		entitiesHandler:    NewEntitiesHandler(deps, deps),
		stakesHandler:      NewStakesHandler(deps, deps),
		epochsHandler:      NewEpochsHandler(deps),
		adminHandler:       NewAdminHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))

	mux.HandleFunc("POST /entities", MetricsMiddleware(s.entitiesHandler.HandleRegister, "entities"))
	mux.HandleFunc("GET /entities", MetricsMiddleware(s.entitiesHandler.HandleResolve, "entities"))
	mux.HandleFunc("GET /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleGet, "entities"))
	mux.HandleFunc("PATCH /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleUpdate, "entities"))
	mux.HandleFunc("DELETE /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleDeregister, "entities"))
	mux.HandleFunc("POST /entities/{id}/verify", MetricsMiddleware(s.entitiesHandler.HandleVerify, "entities"))

	mux.HandleFunc("POST /stakes", MetricsMiddleware(s.stakesHandler.HandleCreate, "stakes"))
	mux.HandleFunc("GET /stakes/{id}", MetricsMiddleware(s.stakesHandler.HandleGet, "stakes"))
	mux.HandleFunc("POST /stakes/{id}/close", MetricsMiddleware(s.stakesHandler.HandleClose, "stakes"))
	mux.HandleFunc("POST /stakes/{id}/withdraw", MetricsMiddleware(s.stakesHandler.HandleWithdraw, "stakes"))
	mux.HandleFunc("POST /stakes/{id}/claim", MetricsMiddleware(s.stakesHandler.HandleClaim, "stakes"))
	mux.HandleFunc("GET /stakes/{id}/history", MetricsMiddleware(s.stakesHandler.HandleHistory, "stakes"))

	mux.HandleFunc("POST /epochs/advance", MetricsMiddleware(s.epochsHandler.HandleAdvance, "epochs"))
	mux.HandleFunc("GET /epochs/current", MetricsMiddleware(s.epochsHandler.HandleCurrent, "epochs"))
	mux.HandleFunc("GET /epochs/{id}", MetricsMiddleware(s.epochsHandler.HandleGet, "epochs"))
	mux.HandleFunc("POST /epochs/{id}/ratings", MetricsMiddleware(s.epochsHandler.HandleRatings, "epochs"))

	mux.HandleFunc("GET /admin/params", MetricsMiddleware(s.adminHandler.HandleGetParams, "admin"))
	mux.HandleFunc("PUT /admin/params", MetricsMiddleware(s.adminHandler.HandleSetParams, "admin"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeLedgerError translates ledger sentinels to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound) || errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, ledger.ErrNotOwner) || errors.Is(err, ledger.ErrNotMaintainer):
		writeError(w, http.StatusForbidden, "forbidden", Wrap(op, err))
	case errors.Is(err, ledger.ErrInvalidAmount) || errors.Is(err, ledger.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, ledger.ErrNothingToClaim):
		writeError(w, http.StatusConflict, "nothing_to_claim", Wrap(op, err))
	case errors.Is(err, ledger.ErrInvalidStatus),
		errors.Is(err, ledger.ErrEpochNotEnded),
		errors.Is(err, ledger.ErrEpochAlreadyScored),
		errors.Is(err, ledger.ErrInvalidCandidateSet),
		errors.Is(err, ledger.ErrAlreadyWithdrawn),
		errors.Is(err, ledger.ErrNotClosed),
		errors.Is(err, ledger.ErrWithdrawalTooEarly),
		errors.Is(err, ledger.ErrTooManyEntities),
		errors.Is(err, ledger.ErrClockRegression):
		writeError(w, http.StatusConflict, "conflict", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// decodeJSON reads a request body into v, enforcing a sane size cap.
func decodeJSON(r *http.Request, v any) error {
	const maxBody = 1 << 20
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind("api.decode", ErrBadRequest, err)
	}
	return nil
}

// pathID parses the {id} path segment as an unsigned handle.
func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, NewKind("api.path_id", ErrBadRequest)
	}
	return id, nil
}

// parseAmount parses a decimal base-unit amount from a request field.
func parseAmount(field, raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, WrapKind("api.amount."+field, ErrBadRequest, err)
	}
	return v, nil
}
