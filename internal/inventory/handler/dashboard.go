package handler

import (
	"net/http"

	"github.com/suyashwaghule/joitex-IVM/internal/inventory/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(svc *service.InventoryService, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: svc,
		logger:  log,
	}
}

// GetStats returns dashboard statistics
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Engineers returns the engineer roster
func (h *DashboardHandler) Engineers(w http.ResponseWriter, r *http.Request) {
	engineers, err := h.service.Engineers(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, engineers)
}
