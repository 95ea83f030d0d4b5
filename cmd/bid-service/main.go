package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/bus"
	"github.com/aaronwang/live-auction/internal/cache"
	"github.com/aaronwang/live-auction/internal/config"
	"github.com/aaronwang/live-auction/internal/database"
	"github.com/aaronwang/live-auction/internal/handlers"
	"github.com/aaronwang/live-auction/internal/service"
	"github.com/aaronwang/live-auction/internal/worker"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "bid-service").Logger()
	log.Info().Msg("starting bid service")

	cfg, err := config.LoadBidService()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	bidCache, err := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		cfg.DuplicateWindow, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer bidCache.Close()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	db, err := database.NewPostgresClient(cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.InitSchema(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	natsConn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer natsConn.Close()
	log.Info().Str("url", cfg.NatsURL).Msg("connected to NATS")

	publisher, err := bus.NewPublisher(ctx, natsConn, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("failed to create publisher")
	}

	accessSet := worker.NewAccessSet()

	// No auction lifecycle collaborator is wired here; admission is gated
	// by the cached highest bid alone.
	bidding := service.NewBiddingService(bidCache, publisher, db, accessSet, nil,
		cfg.RecentBidsLimit, log)

	resyncer := worker.NewResyncer(bidCache, db, accessSet, cfg.ResyncInterval,
		cfg.RecentBidsLimit, log)
	if err := resyncer.WarmHighestBids(ctx); err != nil {
		log.Error().Err(err).Msg("highest bid warm failed, continuing with cold cache")
	}
	if err := resyncer.WarmRecentBids(ctx, 24*time.Hour); err != nil {
		log.Error().Err(err).Msg("recent bids warm failed, continuing with cold cache")
	}
	cancel()
	resyncer.Start()

	persister := worker.NewPersister(bidCache, db, cfg.BatchInterval, cfg.BatchSize, log)
	persister.Start()

	handler := handlers.NewHandler(bidding, log)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("bid service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	resyncer.Stop()
	persister.Stop()

	// Final drain so bids accepted moments before shutdown are not left
	// waiting a full interval in the queue.
	if err := persister.RunOnce(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final persistence drain failed, batch remains queued")
	}

	log.Info().Msg("stopped")
}
