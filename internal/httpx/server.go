package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"stripe-checkout/internal/views"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Registrar mounts a group of routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter returns the base router: request ids, access logs, panic
// recovery, a request timeout that also bounds gateway calls, health check
// and static assets.
func NewRouter(registrars ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(middleware.RequestLogger(&slogFormatter{logger: slog.Default()}), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/checkout", http.StatusFound)
	})
	r.Handle("/static/*", http.StripPrefix("/static/", views.Static()))

	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}
