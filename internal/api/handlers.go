// Package api exposes the send-configuration operations over HTTP and
// maps the store's error taxonomy onto status codes.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/usrflo/mailtrain/internal/auth"
	"github.com/usrflo/mailtrain/internal/interop"
	"github.com/usrflo/mailtrain/internal/pkg/logger"
	"github.com/usrflo/mailtrain/internal/qb"
	"github.com/usrflo/mailtrain/internal/sendconf"
	"github.com/usrflo/mailtrain/internal/shares"
)

// Handlers contains the HTTP handlers for send configurations.
type Handlers struct {
	store       *sendconf.Store
	gate        *shares.Gate
	db          *sql.DB
	authManager *auth.Manager
	devMode     bool
}

// NewHandlers creates a Handlers instance. With devMode set, requests
// without a session run under the administrative context; never enable it
// outside local development.
func NewHandlers(store *sendconf.Store, gate *shares.Gate, db *sql.DB, authManager *auth.Manager, devMode bool) *Handlers {
	return &Handlers{store: store, gate: gate, db: db, authManager: authManager, devMode: devMode}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) caller(r *http.Request) (auth.Context, error) {
	if h.authManager != nil {
		if c, err := h.authManager.FromRequest(r); err == nil {
			return c, nil
		}
	}
	if h.devMode {
		return auth.AdminContext(), nil
	}
	return auth.Context{}, auth.ErrUnauthenticated
}

// HandleList returns a page of visible send configurations.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	params := qb.Params{
		Limit:   atoiDefault(q.Get("limit"), 50),
		Offset:  atoiDefault(q.Get("offset"), 0),
		OrderBy: q.Get("order_by"),
		SortDir: q.Get("sort"),
	}

	page, err := h.store.ListPaged(r.Context(), caller, params)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// HandleGet returns one send configuration. Query flags withPermissions
// and withPrivateData default to true, matching the store signature.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	withPermissions := boolDefault(r.URL.Query().Get("withPermissions"), true)
	withPrivateData := boolDefault(r.URL.Query().Get("withPrivateData"), true)

	entity, err := h.store.GetByID(r.Context(), caller, id, withPermissions, withPrivateData)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// HandleCreate inserts a new send configuration and returns its id.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var entity sendconf.SendConfiguration
	if err := json.NewDecoder(r.Body).Decode(&entity); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.store.Create(r.Context(), caller, &entity)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// HandleUpdate overwrites a send configuration, gated by the originalHash
// consistency check.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var entity sendconf.SendConfiguration
	if err := json.NewDecoder(r.Body).Decode(&entity); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entity.ID = id
	if entity.OriginalHash == "" {
		respondError(w, http.StatusBadRequest, "originalHash is required")
		return
	}

	if err := h.store.UpdateWithConsistencyCheck(r.Context(), caller, &entity); err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleRemove deletes a send configuration.
func (h *Handlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.store.Remove(r.Context(), caller, id); err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleGetSystem resolves the system default configuration through the
// administrative bypass at public privacy level.
func (h *Handlers) HandleGetSystem(w http.ResponseWriter, r *http.Request) {
	entity, err := h.store.GetSystemSendConfiguration(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// HandleDenyOperation revokes one operation on a configuration for all
// users until the next permission rebuild. Admin only.
func (h *Handlers) HandleDenyOperation(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !caller.Admin {
		respondError(w, http.StatusForbidden, "permission denied")
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	operation := chi.URLParam(r, "operation")

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	defer tx.Rollback()
	if err := h.gate.DenyPermission(r.Context(), tx, shares.EntitySendConfiguration, id, operation); err != nil {
		h.respondStoreError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.gate.InvalidateCache(r.Context(), shares.EntitySendConfiguration, id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "denied"})
}

func (h *Handlers) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interop.ErrChanged):
		respondError(w, http.StatusConflict, "entity changed, reload and retry")
	case errors.Is(err, interop.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, interop.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, interop.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func boolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
