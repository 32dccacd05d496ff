package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/suyashwaghule/joitex-IVM/internal/network/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

var poolTypes = map[string]bool{"": true, "public": true, "private": true, "management": true}

// PoolHandler handles IP pool endpoints
type PoolHandler struct {
	engine *service.AddressAllocationEngine
	logger *logger.Logger
}

// NewPoolHandler creates a new pool handler
func NewPoolHandler(engine *service.AddressAllocationEngine, log *logger.Logger) *PoolHandler {
	return &PoolHandler{engine: engine, logger: log}
}

// List lists pools with their utilization
func (h *PoolHandler) List(w http.ResponseWriter, r *http.Request) {
	poolType := r.URL.Query().Get("type")
	if !poolTypes[poolType] {
		httputil.Error(w, errors.Validation(map[string]string{"type": "must be one of: public, private, management"}))
		return
	}

	pools, err := h.engine.ListPools(r.Context(), poolType)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pools)
}

// Get gets a pool
func (h *PoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	pool, err := h.engine.GetPool(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pool)
}

// Create creates a pool
func (h *PoolHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreatePoolInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	pool, err := h.engine.CreatePool(r.Context(), input, actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, pool)
}

// Update patches a pool
func (h *PoolHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input service.UpdatePoolInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	pool, err := h.engine.UpdatePool(r.Context(), chi.URLParam(r, "id"), input, actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pool)
}

// Delete deletes an empty pool
func (h *PoolHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeletePool(r.Context(), chi.URLParam(r, "id"), actor.FromContext(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Stats returns usage across every pool
func (h *PoolHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
