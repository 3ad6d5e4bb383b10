package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"healthrisk/config"
	"healthrisk/db"
	"healthrisk/logging"
	"healthrisk/metrics"
	"healthrisk/training"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	modelDir := flag.String("model_dir", "", "artifact directory (overrides training.artifact_dir)")
	seed := flag.Int64("seed", 0, "split and model seed (overrides training.seed)")
	testRatio := flag.Float64("test_ratio", 0, "held-out fraction (overrides training.test_ratio)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.Database.Path = *dbPath
		case "model_dir":
			cfg.Training.ArtifactDir = *modelDir
		case "seed":
			cfg.Training.Seed = *seed
		case "test_ratio":
			cfg.Training.TestRatio = *testRatio
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("training failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database opened", zap.String("path", cfg.Database.Path))

	recorder := metrics.New()
	trainer, err := training.NewTrainer(cfg, logger, recorder)
	if err != nil {
		return err
	}

	report, runErr := trainer.Run(ctx, store)
	if report != nil {
		if err := store.SaveTrainingLog(ctx, report.TrainingLogs()); err != nil {
			logger.Warn("failed to record training log", zap.Error(err))
		}
		if err := report.Save(cfg.Training.ReportPath); err != nil {
			logger.Warn("failed to save evaluation report", zap.Error(err))
		}
		if err := report.WriteText(os.Stdout); err != nil {
			logger.Warn("failed to print evaluation report", zap.Error(err))
		}
		if errs := report.CandidateErrors(); errs != nil {
			logger.Warn("some candidates failed", zap.Errors("errors", multierr.Errors(errs)))
		}
	}
	if err := recorder.WriteTextfile(cfg.Training.MetricsPath); err != nil {
		logger.Warn("failed to export metrics", zap.Error(err))
	}
	return runErr
}

// loadConfig falls back to the defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && path == "config.yaml" {
		return config.Default(), nil
	}
	return cfg, err
}
