package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/dispatch"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/hub"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/ws"
)

func SetupRoutes(h *hub.Hub, d *dispatch.Dispatcher, log *zap.Logger, originPatterns []string) http.Handler {
	log = log.Named("http")
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/games", CreateGame(h, log))
	r.Get("/games", ListGames(h))
	r.Get("/games/{id}", GetGame(h))
	r.Get("/healthz", Healthz(h, h.ServerID()))
	r.Get("/ws", ws.Handler(d, log, originPatterns))
	return r
}
