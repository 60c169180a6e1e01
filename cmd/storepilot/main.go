package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mossline/storepilot/internal/action"
	"github.com/mossline/storepilot/internal/api"
	"github.com/mossline/storepilot/internal/chat"
	"github.com/mossline/storepilot/internal/config"
	"github.com/mossline/storepilot/internal/docsgen"
	"github.com/mossline/storepilot/internal/provider"
	"github.com/mossline/storepilot/internal/shopify"
	pgstore "github.com/mossline/storepilot/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Storepilot...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/storepilot.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Initialize PostgreSQL store
	var store *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			dir := cfg.Database.Postgres.MigrationsDir
			if dir == "" {
				dir = "migrations"
			}
			if mErr := ps.Migrate(context.Background(), dir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
		}
	}

	// Redis backs the document generation cache
	var cache *redis.Client
	if cfg.Database.Redis.URL != "" {
		opts, rErr := redis.ParseURL(cfg.Database.Redis.URL)
		if rErr != nil {
			logger.Warn("invalid redis url, running without cache", zap.Error(rErr))
		} else {
			cache = redis.NewClient(opts)
			if pingErr := cache.Ping(context.Background()).Err(); pingErr != nil {
				logger.Warn("Redis unavailable, running without cache", zap.Error(pingErr))
				cache = nil
			}
		}
	}

	// Assemble action dependencies
	var docs action.DocsGenerator
	deps := action.Deps{
		Commerce: func(cred action.Credential) action.Commerce {
			return shopify.NewClient(cred.ExternalID, cred.AccessToken, logger)
		},
		Logger: logger,
	}
	if store != nil {
		deps.Credentials = store
		deps.Archive = store
	}
	if cfg.Docsgen.Endpoint != "" {
		docs = docsgen.NewClient(cfg.Docsgen.Endpoint, cache, logger)
		deps.Docs = docs
	}

	registry := action.NewRegistry(logger)
	if err := action.RegisterBuiltins(registry, deps); err != nil {
		logger.Fatal("failed to register actions", zap.Error(err))
	}

	engine := chat.NewEngine(router, registry, cfg.Chat.MaxAutoSteps, logger)

	// Build HTTP handler
	handler := api.NewHandler(engine, store, docs, cfg.Chat.Model, cfg.Chat.HistoryLimit, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Storepilot listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Storepilot...")
	srv.Shutdown(context.Background())
	if cache != nil {
		cache.Close()
	}
	if store != nil {
		store.Close()
	}
}
