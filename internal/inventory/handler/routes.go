package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/permissions"
)

// Handlers groups the inventory service handlers for routing
type Handlers struct {
	Items     *ItemHandler
	Requests  *RequestHandler
	Stock     *StockHandler
	Dashboard *DashboardHandler
}

// Register mounts the inventory API on r. Authentication must already be
// applied; each route checks its own permission.
func (h *Handlers) Register(r chi.Router) {
	read := httputil.RequirePermission(permissions.InventoryRead)
	write := httputil.RequirePermission(permissions.InventoryWrite)
	request := httputil.RequirePermission(permissions.InventoryRequest)
	approve := httputil.RequirePermission(permissions.InventoryApprove)

	r.With(read).Get("/stats", h.Dashboard.GetStats)
	r.With(read).Get("/engineers", h.Dashboard.Engineers)

	r.Route("/items", func(r chi.Router) {
		r.With(read).Get("/", h.Items.List)
		r.With(write).Post("/", h.Items.Create)
		r.With(read).Get("/{id}", h.Items.Get)
		r.With(write).Put("/{id}", h.Items.Update)
		r.With(read).Get("/{id}/ledger", h.Items.Ledger)
	})

	r.Route("/requests", func(r chi.Router) {
		r.With(read).Get("/", h.Requests.List)
		r.With(request).Post("/", h.Requests.Create)
		r.With(request).Get("/mine", h.Requests.Mine)
		r.With(request).Post("/validate", h.Requests.Validate)
		r.With(read).Get("/{id}", h.Requests.Get)
		r.With(approve).Post("/{id}/approve", h.Requests.Approve)
		r.With(approve).Post("/{id}/reject", h.Requests.Reject)
	})

	r.With(read).Get("/transactions", h.Stock.Transactions)
	r.With(write).Post("/receive", h.Stock.Receive)
	r.With(write).Post("/issue", h.Stock.Issue)
}
