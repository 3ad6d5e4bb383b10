package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"healthrisk/config"
	"healthrisk/db"
	"healthrisk/ml"
	"healthrisk/synth"
	"healthrisk/training"
)

func seededConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "healthcare.db")
	cfg.Training.ArtifactDir = filepath.Join(dir, "models")
	cfg.Training.ReportPath = filepath.Join(dir, "models", "evaluation_report.json")
	cfg.Training.MetricsPath = filepath.Join(dir, "models", "training.prom")
	cfg.Models.RandomForest.NEstimators = 5
	cfg.Models.RandomForest.MaxDepth = 4
	cfg.Models.GradientBoosting.NEstimators = 10
	cfg.Models.XGBoost.NEstimators = 10
	cfg.Models.XGBoost.MaxDepth = 3

	ctx := context.Background()
	store, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()
	generator, err := synth.NewGenerator(11, 3, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.InsertPatientRecords(ctx, generator.Batch(30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestRunTrainsAndRecordsTheRun(t *testing.T) {
	ctx := context.Background()
	cfg := seededConfig(t)

	if err := run(ctx, cfg, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, file := range []string{training.HeartArtifact, training.DiabetesArtifact} {
		if _, err := ml.LoadArtifact(filepath.Join(cfg.Training.ArtifactDir, file)); err != nil {
			t.Fatalf("%s: unexpected error: %v", file, err)
		}
	}
	for _, path := range []string{cfg.Training.ReportPath, cfg.Training.MetricsPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	store, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()
	logs, err := store.LoadTrainingLog(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 8 {
		t.Fatalf("expected 8 training log rows, got %d", len(logs))
	}
	selected := 0
	for _, entry := range logs {
		if entry.Selected {
			selected++
		}
		if entry.DataPoints != 90 {
			t.Fatalf("expected 90 data points, got %d", entry.DataPoints)
		}
	}
	if selected != 2 {
		t.Fatalf("expected one selected model per task, got %d", selected)
	}
}

func TestRunWithEmptyDatabaseWritesNoArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "healthcare.db")
	cfg.Training.ArtifactDir = filepath.Join(dir, "models")
	cfg.Training.ReportPath = filepath.Join(dir, "models", "evaluation_report.json")
	cfg.Training.MetricsPath = ""

	if err := run(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected an error for an empty database")
	}
	if _, err := os.Stat(filepath.Join(cfg.Training.ArtifactDir, training.HeartArtifact)); !os.IsNotExist(err) {
		t.Fatalf("expected no heart artifact, got %v", err)
	}
}
