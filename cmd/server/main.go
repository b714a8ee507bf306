package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/ai"
	"github.com/kumii/tender-finder/internal/ai/gemini"
	"github.com/kumii/tender-finder/internal/api"
	"github.com/kumii/tender-finder/internal/config"
	"github.com/kumii/tender-finder/internal/db"
	"github.com/kumii/tender-finder/internal/logger"
	"github.com/kumii/tender-finder/internal/match"
	"github.com/kumii/tender-finder/internal/ocds"
	"github.com/kumii/tender-finder/internal/profile"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, zlog); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}

	upstream := ocds.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout.Std(), zlog)
	profiles := profile.NewClient(cfg.Profile.URL, cfg.Profile.Timeout.Std(), zlog)

	// The AI overlay is optional: without a key the matched view stays
	// deterministic-only.
	var analyzer ai.Analyzer
	if cfg.AI.APIKey != "" {
		generator, err := gemini.NewGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			zlog.Warn("ai generator unavailable, continuing without overlay", zap.Error(err))
		} else {
			analyzer = gemini.NewAnalyzer(generator, cfg.AI.MaxRecords, cfg.AI.CallDelay.Std(), zlog)
			zlog.Info("ai overlay enabled", zap.String("model", generator.Model()))
		}
	} else {
		zlog.Info("GEMINI_API_KEY not set, ai overlay disabled")
	}

	cache := match.NewSessionCache(cfg.Cache.TTL.Std(), zlog)
	loader := match.NewLoader(upstream, cfg.Loader.BatchSize, cfg.Loader.BatchDelay.Std(), zlog)
	matcher := match.NewService(cache, loader, analyzer, zlog)

	store := db.NewStore(pool)
	srv := api.NewServer(store, matcher, upstream, profiles, zlog)

	zlog.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := srv.Echo.Start(":" + cfg.Server.Port); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
