package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes mounts the public routes on r. admin wraps the operator-only endpoints;
// nil leaves them unprotected.
func RegisterRoutes(h *Handler, r *mux.Router, admin func(http.Handler) http.Handler) {
	if admin == nil {
		admin = func(next http.Handler) http.Handler { return next }
	}
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/quote-cards/{id:[0-9]+}.png", h.QuoteCard).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/api/social-autopost/run", admin(http.HandlerFunc(h.RunAutopost))).Methods(http.MethodPost)
}
