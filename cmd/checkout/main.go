package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/checkout-backend/internal/config"
	"github.com/vasiliy-maslov/checkout-backend/internal/db"
	"github.com/vasiliy-maslov/checkout-backend/internal/events"
	"github.com/vasiliy-maslov/checkout-backend/internal/handler"
	"github.com/vasiliy-maslov/checkout-backend/internal/order"
	"github.com/vasiliy-maslov/checkout-backend/internal/payment"
	"github.com/vasiliy-maslov/checkout-backend/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "checkout-backend").Logger()

	log.Info().Msg("Checkout backend starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbConn, err := db.New(ctx, cfg.Postgres)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	gateway, err := payment.NewClient(cfg.Gateway)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure payment gateway")
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafka(cfg.Kafka)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher enabled")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	repo := order.NewRepository(dbConn.Pool)
	svc := order.NewService(repo, gateway, publisher)
	h := handler.NewOrderHandler(svc)
	router := transport.NewRouter(h, cfg.Admin.Token, cfg.CORS)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
