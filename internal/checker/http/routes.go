package checkerhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const bundleRequestsPerMinute = 10

// MountRoutes registers the check endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(bundleRequestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/api/checks", func(r chi.Router) {
		r.Post("/", h.handleCheck)
		r.Post("/csv", h.handleCSV)
		r.With(limiter).Post("/bundle", h.handleBundle)
	})
}
