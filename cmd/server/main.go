package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dom/live-auction-server/internal/api"
	"github.com/dom/live-auction-server/internal/arbiter"
	"github.com/dom/live-auction-server/internal/broadcast"
	"github.com/dom/live-auction-server/internal/config"
	"github.com/dom/live-auction-server/internal/coordinator"
	"github.com/dom/live-auction-server/internal/repository/postgres"
	"github.com/dom/live-auction-server/internal/service"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	repos := postgres.NewRepositories(db)

	arb, err := arbiter.NewRedis(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("failed to configure arbiter")
	}
	if err := arb.Ping(context.Background()); err != nil {
		log.WithError(err).Fatal("arbiter is unreachable")
	}

	hub := broadcast.NewHub()
	coord := coordinator.New(repos.User, repos.Auction, arb, hub)

	// Re-hydrate live auctions before accepting traffic.
	if err := coord.Recover(context.Background()); err != nil {
		log.WithError(err).Fatal("failed to recover live auctions")
	}

	services := service.NewServices(repos, cfg)
	router := api.NewRouter(services, coord, hub, cfg)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	// Websocket connections are hijacked out of the server's tracking;
	// draining the hub is what closes them.
	hub.Stop()
	coord.Close()
	log.Info("server stopped")
}
