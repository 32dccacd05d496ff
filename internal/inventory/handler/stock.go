package handler

import (
	"net/http"
	"strconv"

	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

// StockHandler handles direct stock movements and the transactions feed
type StockHandler struct {
	engine    *service.StockAllocationEngine
	inventory *service.InventoryService
	logger    *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(engine *service.StockAllocationEngine, inventory *service.InventoryService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		engine:    engine,
		inventory: inventory,
		logger:    log,
	}
}

// Transactions returns the latest stock transactions
func (h *StockHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = repository.DefaultTransactionLimit
	}

	txs, err := h.inventory.ListTransactions(r.Context(), r.URL.Query().Get("item_id"), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, txs)
}

// Receive books incoming stock
func (h *StockHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var input service.ReceiveInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.engine.Receive(r.Context(), input, actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Issue hands stock directly to an engineer
func (h *StockHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var input service.IssueInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&input); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.engine.Issue(r.Context(), input, actor.FromContext(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
