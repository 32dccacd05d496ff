package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/permissions"
)

// Handlers groups the network service handlers for routing
type Handlers struct {
	Pools       *PoolHandler
	Allocations *AllocationHandler
}

// Register mounts the network API on r. Authentication must already be applied.
func (h *Handlers) Register(r chi.Router) {
	read := httputil.RequirePermission(permissions.NetworkRead)
	allocate := httputil.RequirePermission(permissions.NetworkAllocate)
	manage := httputil.RequirePermission(permissions.NetworkManage)

	r.With(read).Get("/stats", h.Pools.Stats)

	r.Route("/ipam", func(r chi.Router) {
		r.Route("/pools", func(r chi.Router) {
			r.With(read).Get("/", h.Pools.List)
			r.With(manage).Post("/", h.Pools.Create)
			r.With(read).Get("/{id}", h.Pools.Get)
			r.With(manage).Put("/{id}", h.Pools.Update)
			r.With(manage).Delete("/{id}", h.Pools.Delete)
		})

		r.Route("/allocations", func(r chi.Router) {
			r.With(read).Get("/", h.Allocations.List)
			r.With(allocate).Post("/", h.Allocations.Allocate)
			r.With(read).Get("/{id}", h.Allocations.Get)
			r.With(allocate).Delete("/{id}", h.Allocations.Release)
		})
	})
}
