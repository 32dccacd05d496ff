package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

// ItemHandler handles item endpoints
type ItemHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(svc *service.InventoryService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		service: svc,
		logger:  log,
	}
}

// List lists inventory items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 20, 100)
	q := r.URL.Query()

	status := q.Get("status")
	if status != "" {
		var ok bool
		if status, ok = repository.ParseStatus(status); !ok {
			httputil.Error(w, errors.Validation(map[string]string{"status": "must be one of: in_stock, low_stock, out_of_stock"}))
			return
		}
	}

	items, total, err := h.service.ListItems(r.Context(), repository.ItemFilter{
		Category: q.Get("category"),
		Status:   status,
		Search:   q.Get("search"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(page, perPage, total))
}

// Get gets an item by ID
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Create creates a new item
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateItemInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), input, actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Update updates an item. Quantity cannot be changed here.
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateItemInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Ledger reconciles an item against its stock transactions
func (h *ItemHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Ledger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
