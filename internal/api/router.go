package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dom/live-auction-server/internal/api/handlers"
	"github.com/dom/live-auction-server/internal/api/middleware"
	"github.com/dom/live-auction-server/internal/broadcast"
	"github.com/dom/live-auction-server/internal/config"
	"github.com/dom/live-auction-server/internal/coordinator"
	"github.com/dom/live-auction-server/internal/service"
)

func NewRouter(services *service.Services, coord *coordinator.Coordinator, hub *broadcast.Hub, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	authHandler := handlers.NewAuthHandler(services.Auth)
	auctionHandler := handlers.NewAuctionHandler(coord, services.Video, cfg)
	wsHandler := handlers.NewWebSocketHandler(hub, coord, services.Auth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(services.Auth))
				r.Get("/me", authHandler.Me)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/auctions", func(r chi.Router) {
			r.Get("/", auctionHandler.List)
			r.Get("/{id}", auctionHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(services.Auth))
				r.Post("/", auctionHandler.Create)
				r.Post("/{id}/start", auctionHandler.Start)
				r.Post("/{id}/extend", auctionHandler.Extend)
				r.Post("/{id}/video-token", auctionHandler.VideoToken)
			})
		})

		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
