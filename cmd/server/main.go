package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jraydirect/wagerloop-odds-engine/internal/cache"
	"github.com/jraydirect/wagerloop-odds-engine/internal/config"
	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/normalize"
	"github.com/jraydirect/wagerloop-odds-engine/internal/orchestrator"
	"github.com/jraydirect/wagerloop-odds-engine/internal/provider"
	"github.com/jraydirect/wagerloop-odds-engine/internal/publish"
	"github.com/jraydirect/wagerloop-odds-engine/internal/server"
	"github.com/jraydirect/wagerloop-odds-engine/internal/store"
)

func main() {
	configPath := os.Getenv("ODDS_ENGINE_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("starting odds engine")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	chains := buildChains(cfg, logger, m)
	if len(chains) == 0 {
		log.Fatal().Msg("no providers enabled")
	}

	normalizer := normalize.New(logger, m)
	orch := orchestrator.New(chains, normalizer, logger)

	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer client.Close()
		cacheStore = cache.NewRedisStore(client)
		logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("using redis cache backend")
	default:
		cacheStore = cache.NewMemoryStore()
	}

	aggregator := cache.NewAggregator(cacheStore, orch, cfg.Cache.TTL, m, logger)

	if cfg.Kafka.Enabled {
		publisher := publish.NewQuotePublisher(publish.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		defer publisher.Close()
		aggregator.SetPublisher(publisher)
	}

	if cfg.Postgres.Enabled {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open postgres")
		}
		defer db.Close()
		aggregator.SetSnapshotter(store.NewSnapshotStore(db, logger))
	}

	srv := server.New(aggregator, cfg.Priority.For, registry, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("shutdown complete")
}

// buildChains assembles one fallback chain per enabled provider. The Odds API
// gets its per-event endpoint backed by the sport-wide list; the others are
// single-endpoint chains.
func buildChains(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) []orchestrator.Chain {
	var chains []orchestrator.Chain
	timeout := cfg.Fetch.Timeout

	if cfg.Providers.TheOddsAPI.Enabled {
		oddsAPICfg := provider.TheOddsAPIConfig{
			BaseURL:   cfg.Providers.TheOddsAPI.BaseURL,
			APIKey:    cfg.Providers.TheOddsAPI.APIKey,
			Regions:   cfg.Providers.TheOddsAPI.Regions,
			Markets:   cfg.Providers.TheOddsAPI.Markets,
			Timeout:   timeout,
			RateLimit: rate.Limit(cfg.Providers.TheOddsAPI.RateLimit),
		}
		chains = append(chains, orchestrator.Chain{
			Provider: provider.ProviderTheOddsAPI,
			Adapters: []provider.Adapter{
				provider.NewTheOddsAPIEventAdapter(oddsAPICfg, logger, m),
				provider.NewTheOddsAPIBulkAdapter(oddsAPICfg, logger, m),
			},
		})
	}

	if cfg.Providers.Sportsline.Enabled {
		chains = append(chains, orchestrator.Chain{
			Provider: provider.ProviderSportsline,
			Adapters: []provider.Adapter{
				provider.NewSportslineAdapter(provider.SportslineConfig{
					BaseURL:   cfg.Providers.Sportsline.BaseURL,
					APIKey:    cfg.Providers.Sportsline.APIKey,
					Timeout:   timeout,
					RateLimit: rate.Limit(cfg.Providers.Sportsline.RateLimit),
				}, logger, m),
			},
		})
	}

	if cfg.Providers.ESPN.Enabled {
		chains = append(chains, orchestrator.Chain{
			Provider: provider.ProviderESPN,
			Adapters: []provider.Adapter{
				provider.NewESPNAdapter(provider.ESPNConfig{
					BaseURL:    cfg.Providers.ESPN.BaseURL,
					SportPaths: cfg.Providers.ESPN.SportPaths,
					Timeout:    timeout,
					RateLimit:  rate.Limit(cfg.Providers.ESPN.RateLimit),
				}, logger, m),
			},
		})
	}

	return chains
}

// setupLogger configures the logger based on config
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return log.Logger.With().Str("service", "odds-engine").Logger()
}
