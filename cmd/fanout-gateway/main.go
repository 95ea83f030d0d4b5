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
	"github.com/aaronwang/live-auction/internal/config"
	"github.com/aaronwang/live-auction/internal/websocket"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "fanout-gateway").Logger()
	log.Info().Msg("starting fan-out gateway")

	cfg, err := config.LoadFanoutGateway()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	natsConn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer natsConn.Close()
	log.Info().Str("url", cfg.NatsURL).Msg("connected to NATS")

	hub := websocket.NewHub(log)
	relay := websocket.NewRelay(hub, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	consumer, err := bus.NewConsumer(ctx, natsConn, cfg.ConsumerName, log)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create consumer")
	}

	if err := consumer.Start(relay.HandleBidUpdated); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}
	defer consumer.Stop()

	metricsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.MetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-metricsDone:
				return
			case <-ticker.C:
				total, perAuction := hub.Snapshot()
				log.Info().
					Int("total_connections", total).
					Interface("auctions", perAuction).
					Msg("connection metrics")
			}
		}
	}()

	handler := websocket.NewHandler(hub, log)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("fan-out gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	close(metricsDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}
