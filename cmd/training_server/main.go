package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/bossrl/internal/config"
	"github.com/mitchelldurbincs/bossrl/internal/policy"
	"github.com/mitchelldurbincs/bossrl/internal/server"
	"github.com/mitchelldurbincs/bossrl/internal/training"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to config file")
	host := flag.String("host", "", "The server host (empty to use config default)")
	port := flag.Int("port", -1, "The server port (-1 to use config default)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	rolloutHorizon := flag.Int("rollout-horizon", -1, "Transitions per training update (-1 to use config default)")
	checkpointInterval := flag.Int("checkpoint-interval", -1, "Episodes between checkpoints, 0 disables (-1 to use config default)")
	flag.Parse()

	// Initialize configuration
	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}

	cfg := config.Get()

	// Use config defaults if not overridden by flags
	if *host == "" {
		*host = cfg.Server.Host
	}
	if *port == -1 {
		*port = cfg.Server.Port
	}
	if *logLevel == "" {
		*logLevel = cfg.Server.LogLevel
	}
	if *rolloutHorizon == -1 {
		*rolloutHorizon = cfg.Training.RolloutHorizon
	}
	if *checkpointInterval == -1 {
		*checkpointInterval = cfg.Training.CheckpointInterval
	}

	// Setup logging
	setupLogging(*logLevel)

	log.Info().
		Str("host", *host).
		Int("port", *port).
		Int("rollout_horizon", *rolloutHorizon).
		Int("checkpoint_interval", *checkpointInterval).
		Str("models_dir", cfg.Training.ModelsDir).
		Msg("Starting boss training server")

	engine := policy.NewEngine(policy.Config{
		ModelsDir:    cfg.Training.ModelsDir,
		Gamma:        cfg.Training.Gamma,
		LearningRate: cfg.Training.LearningRate,
		Seed:         uint64(cfg.Training.Seed),
	})

	orch, err := training.NewOrchestrator(engine, *rolloutHorizon, *checkpointInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid training configuration")
	}

	srv := server.New(fmt.Sprintf("%s:%d", *host, *port), orch)

	// Log config file changes; a live session keeps the horizon it was
	// created with, new values apply from the next restart.
	config.WatchConfig(func() {
		log.Info().Str("file", config.ConfigFilePath()).Msg("Configuration file changed")
	})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		if err := orch.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("Final checkpoint failed")
		}
		srv.Stop()
	}

	log.Info().Msg("Server shutdown complete")
}

func setupLogging(level string) {
	// Parse log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Check if we're in production
	if os.Getenv("APP_ENV") == "production" {
		// JSON output for production
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
