package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cropyield/config"
	"cropyield/db"
	qhttp "cropyield/http"
	"cropyield/logging"
	"cropyield/ml"
	"cropyield/monitoring"
	"cropyield/pipeline"
)

func main() {
	// Look for config in root even if run from cmd/
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join("..", "config.yaml")
	}

	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped", zap.Error(err))
	}
	logger.Info("Exiting")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// 2. Initialize database
	var store qhttp.PredictionStore
	if cfg.Database.Path != "" {
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create database dir: %w", err)
			}
		}
		s, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()
		store = s
		logger.Info("Database initialized", zap.String("path", cfg.Database.Path))
	}

	// 3. Load the model up front; the form cannot work without it.
	predictor, err := ml.NewCropPredictor(cfg.ML.ModelType, cfg.ML.ModelPath, cfg.ML.CacheSize, logger)
	if err != nil {
		return err
	}
	if _, err := predictor.LoadModel(); err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	hub := monitoring.NewWebSocketHub(cfg.Http.AllowedOrigins, logger)
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, qhttp.Dependencies{
		Predictor: predictor,
		Store:     store,
		Hub:       hub,
		Metrics:   monitoring.NewMetricsCollector(),
		Cleaner:   pipeline.NewDataCleaner(logger),
		Logger:    logger,
	})

	// 4. Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(ctx) })
	if cfg.ML.WatchModel {
		g.Go(func() error { return predictor.Watch(ctx) })
	}
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		return server.Stop()
	})
	return g.Wait()
}
