package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub008/internal/auth"
	"github.com/riffluv/ito-sub008/internal/command"
	"github.com/riffluv/ito-sub008/internal/dbconfig"
	"github.com/riffluv/ito-sub008/internal/gateway"
	"github.com/riffluv/ito-sub008/internal/roomlock"
	"github.com/riffluv/ito-sub008/internal/store"
	"github.com/riffluv/ito-sub008/internal/syncpatch"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Warn().Err(err).Msg("config file not loaded, using defaults")
		cfg = &Config{}
	}

	secret := os.Getenv("AUTH_SECRET")
	if secret == "" {
		log.Warn().Msg("AUTH_SECRET not set, using dev secret")
		secret = "dev-secret"
	}

	// Database configuration
	dbCfg := dbconfig.NewConfigFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Connect(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	repo := store.NewRepository(pool)

	transport := cfg.transportConfig()
	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", transport.URL).
		Str("port", cfg.port()).
		Msg("starting room server")

	publisher, err := syncpatch.NewJetStreamPublisher(transport)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sync publisher")
	}
	defer publisher.Close()

	subscriber, err := syncpatch.NewSubscriber(transport)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sync subscriber")
	}
	defer subscriber.Close()

	clock := clockwork.NewRealClock()
	locker := roomlock.NewLocker(repo, clock, cfg.lockConfig())
	verifier := auth.NewHMACVerifier([]byte(secret))

	commandService := command.NewService(repo, locker, publisher, repo, verifier, clock, cfg.commandConfig())
	gatewayService := gateway.NewService(commandService, repo, subscriber, gateway.DefaultConnectionConfig())

	router := mux.NewRouter()
	gatewayService.RegisterRoutes(router)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.port()),
		Handler:      c.Handler(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start gateway service (sync-channel bridge and websocket fan-out)
	if err := gatewayService.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway service")
	}

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	gatewayService.Stop()
	cancel()

	log.Info().Msg("room server shutdown complete")
}
