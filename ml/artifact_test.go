package ml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func trainedArtifacts(t *testing.T) []*Artifact {
	t.Helper()
	features, targets := syntheticSet(120, 9)
	artifacts := make([]*Artifact, 0, 4)
	for _, model := range candidates() {
		if err := model.Fit(features, targets); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		artifact, err := NewArtifact("heart", model)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts
}

func TestArtifactRoundTripKeepsPredictions(t *testing.T) {
	dir := t.TempDir()
	probe, _ := syntheticSet(5, 10)

	for _, artifact := range trainedArtifacts(t) {
		t.Run(artifact.ModelName, func(t *testing.T) {
			path := filepath.Join(dir, artifact.Kind+".json")
			if err := artifact.Save(path); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			loaded, err := LoadArtifact(path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if loaded.Kind != artifact.Kind || loaded.Target != "heart" || loaded.ModelName != artifact.ModelName {
				t.Fatalf("metadata not preserved: %+v", loaded)
			}
			for _, row := range probe {
				want, err := artifact.Predict(row)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				got, err := loaded.Predict(row)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != want {
					t.Fatalf("prediction changed after reload: %v vs %v", got, want)
				}
			}
		})
	}
}

func TestArtifactSaveLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	artifact := trainedArtifacts(t)[3]
	path := filepath.Join(dir, "heart_risk_model.json")
	for i := 0; i < 2; i++ {
		if err := artifact.Save(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact, found %d entries", len(entries))
	}
}

func TestArtifactPredictChecksWidth(t *testing.T) {
	artifact := trainedArtifacts(t)[3]
	if _, err := artifact.Predict([]float64{1, 2}); !errors.Is(err, ErrFeatureCount) {
		t.Fatalf("expected ErrFeatureCount, got %v", err)
	}
}

func TestLoadArtifactRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage.json":   "not json",
		"unknown.json":   `{"kind":"svm","features":["age","systolic","diastolic","heart_rate","glucose_level","bmi","hemoglobin","cholesterol"],"model":{}}`,
		"untrained.json": `{"kind":"linear_regression","features":["age","systolic","diastolic","heart_rate","glucose_level","bmi","hemoglobin","cholesterol"],"model":{}}`,
		"narrow.json":    `{"kind":"linear_regression","features":["age"],"model":{"intercept":1,"coefficients":[1]}}`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := LoadArtifact(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadArtifact(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadModelChecksKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := trainedArtifacts(t)[3].Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadModel(KindLinearRegression, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadModel(KindXGBoost, path); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestRegistryCachesAndInvalidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heart_risk_model.json")
	artifacts := trainedArtifacts(t)
	if err := artifacts[3].Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry, err := NewRegistry(2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := registry.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := registry.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatal("expected cached artifact on second load")
	}

	registry.Invalidate(path)
	if registry.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", registry.Len())
	}
	third, err := registry.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third == first {
		t.Fatal("expected a fresh artifact after invalidation")
	}

	if _, err := registry.Predict(path, make([]float64, FeatureCount)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistryWatchEvictsRewrittenArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diabetes_risk_model.json")
	artifacts := trainedArtifacts(t)
	if err := artifacts[3].Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry, err := NewRegistry(4, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := registry.Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- registry.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// wait until the watcher has registered the directory
	deadline := time.Now().Add(5 * time.Second)
	for {
		registry.mu.Lock()
		watching := len(registry.dirs) > 0
		registry.mu.Unlock()
		if watching {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := artifacts[0].Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for registry.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("artifact was not evicted after rewrite")
		}
		time.Sleep(10 * time.Millisecond)
	}

	reloaded, err := registry.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloaded.Kind != artifacts[0].Kind {
		t.Fatalf("expected %s after rewrite, got %s", artifacts[0].Kind, reloaded.Kind)
	}
}
