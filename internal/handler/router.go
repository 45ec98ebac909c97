package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/cusip-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса проверки кодов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/codes", func(r chi.Router) {
		r.Use(h.session.Middleware)

		r.Post("/verify", h.VerifyCode)
		r.Post("/verify/batch", h.VerifyBatch)

		r.Get("/history", h.GetHistory)
		r.Delete("/history", h.ClearHistory)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
