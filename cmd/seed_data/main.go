package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"healthrisk/config"
	"healthrisk/db"
	"healthrisk/logging"
	"healthrisk/synth"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	patients := flag.Int("patients", 0, "patients to generate (overrides seed.patients)")
	visits := flag.Int("visits", 0, "visits per patient (overrides seed.visits_per_patient)")
	seed := flag.Uint64("seed", 0, "generator seed (overrides seed.seed)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) && *configPath == "config.yaml" {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.Database.Path = *dbPath
		case "patients":
			cfg.Seed.Patients = *patients
		case "visits":
			cfg.Seed.VisitsPerPatient = *visits
		case "seed":
			cfg.Seed.Seed = *seed
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

	if err := seedDatabase(ctx, cfg, logger); err != nil {
		logger.Error("seeding failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func seedDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	generator, err := synth.NewGenerator(cfg.Seed.Seed, cfg.Seed.VisitsPerPatient, time.Now())
	if err != nil {
		return err
	}

	started := time.Now()
	for inserted := 0; inserted < cfg.Seed.Patients; {
		batch := min(cfg.Seed.BatchSize, cfg.Seed.Patients-inserted)
		if err := store.InsertPatientRecords(ctx, generator.Batch(batch)); err != nil {
			return err
		}
		inserted += batch
		logger.Info("inserted patients",
			zap.Int("inserted", inserted),
			zap.Int("total", cfg.Seed.Patients))
	}

	counts, err := store.TableCounts(ctx)
	if err != nil {
		return err
	}
	fields := []zap.Field{zap.Duration("duration", time.Since(started))}
	for table, count := range counts {
		fields = append(fields, zap.Int(table, count))
	}
	logger.Info("data generation complete", fields...)
	return nil
}
