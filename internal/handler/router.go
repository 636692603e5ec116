package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/ramblersclub/membership-system/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the membership
// service.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/admin/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/members", h.ListMembers)
			r.Post("/members", h.CreateMember)
			r.Get("/members/{id}", h.GetMember)
			r.Put("/members/{id}", h.UpdateMember)
			r.Delete("/members/{id}", h.DeleteMember)

			r.Post("/members/bulk-load", h.BulkLoad)
			r.Get("/bulk-load/{batchID}/audits", h.GetBatchAudits)

			r.Post("/mail/sync", h.SyncMailList)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
