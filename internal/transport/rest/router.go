package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/herverfred/mission-center/internal/metrics"
)

type RouterDeps struct {
	Handler *Handler
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", d.Handler.Login)
		r.Post("/games/launch", d.Handler.Launch)
		r.Post("/games/play", d.Handler.Play)

		r.Get("/games", d.Handler.Games)
		r.Get("/users/{userID}/missions", d.Handler.MissionProgress)
		r.Get("/users/{userID}/rewards", d.Handler.Rewards)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
