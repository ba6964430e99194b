package certupload

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Routes returns a chi router mounting the upload endpoint at POST /crypto,
// with the standard request-id/real-ip/recoverer/timeout middleware stack.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Post("/crypto", h.ServeHTTP)
	r.Get("/crypto", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "form not served by this handler", http.StatusNotImplemented)
	})

	return r
}
