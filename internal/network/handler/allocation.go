package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/suyashwaghule/joitex-IVM/internal/network/repository"
	"github.com/suyashwaghule/joitex-IVM/internal/network/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

// AllocationHandler handles address allocation endpoints
type AllocationHandler struct {
	engine *service.AddressAllocationEngine
	logger *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(engine *service.AddressAllocationEngine, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{engine: engine, logger: log}
}

// List lists the latest allocations
func (h *AllocationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 500 {
		limit = repository.DefaultAllocationLimit
	}

	allocs, err := h.engine.ListAllocations(r.Context(), repository.AllocationFilter{
		PoolID:   q.Get("pool_id"),
		Customer: q.Get("customer"),
		Limit:    limit,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, allocs)
}

// Get gets an allocation
func (h *AllocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.engine.GetAllocation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alloc)
}

// Allocate assigns an address
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var input service.AllocateInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	alloc, err := h.engine.Allocate(r.Context(), input, actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, alloc)
}

// Release returns an address to its pool
func (h *AllocationHandler) Release(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Release(r.Context(), chi.URLParam(r, "id"), actor.FromContext(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "allocation released"})
}
