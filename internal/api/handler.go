// Package api exposes the ledger over HTTP for the upstream chat
// collaborator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/chipledger/internal/domain"
	"github.com/punchamoorthee/chipledger/internal/ledger"
	"github.com/punchamoorthee/chipledger/internal/store"
)

type Handler struct {
	service *ledger.Service
	store   store.Store
	timeout time.Duration
}

// NewHandler creates the HTTP handler set. timeout bounds each command's
// store round-trips; a stalled store surfaces as unavailable instead of
// hanging the webhook worker.
func NewHandler(svc *ledger.Service, st store.Store, timeout time.Duration) *Handler {
	return &Handler{service: svc, store: st, timeout: timeout}
}

// Register attaches the API routes to the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/commands", h.ExecuteCommand).Methods("POST")
	r.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
}

// ExecuteCommand accepts the structured command envelope and returns the
// structured result. HTTP codes mirror the result so callers can branch on
// status alone.
func (h *Handler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var cmd domain.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if !cmd.Kind.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown command kind")
		return
	}
	if cmd.RequestID == "" {
		respondError(w, http.StatusBadRequest, "Missing request_id")
		return
	}
	if cmd.ActorID == "" {
		respondError(w, http.StatusBadRequest, "Missing actor_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res := h.service.Execute(ctx, cmd)
	respondJSON(w, statusCode(res), res)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	balance, err := h.store.GetBalance(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "Account not found")
			return
		}
		respondError(w, http.StatusServiceUnavailable, "Store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, domain.Account{UserID: id, Balance: balance})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusCode(res domain.Result) int {
	switch res.Status {
	case domain.StatusOK:
		return http.StatusOK
	case domain.StatusUnavailable:
		return http.StatusServiceUnavailable
	}

	switch res.Reason {
	case domain.ReasonForbidden:
		return http.StatusForbidden
	case domain.ReasonDuplicateRequest, domain.ReasonAlreadyExists:
		return http.StatusConflict
	case domain.ReasonNotFound, domain.ReasonPayerNotFound, domain.ReasonRecipientNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
