// Package training fits every configured candidate per risk target, keeps
// the best by held-out R² and persists it as an artifact.
package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"healthrisk/config"
	"healthrisk/metrics"
	"healthrisk/ml"
)

// Task names used in reports and the training log.
const (
	TaskHeart    = "Heart Disease"
	TaskDiabetes = "Diabetes"
)

// Artifact file names inside the artifact directory.
const (
	HeartArtifact    = "heart_risk_model.json"
	DiabetesArtifact = "diabetes_risk_model.json"
)

var (
	ErrNoObservations = errors.New("no usable observations")
	ErrNoCandidate    = errors.New("every candidate failed")
	ErrCandidatePanic = errors.New("candidate panicked")
)

// ObservationSource supplies the joined rows a run trains on.
type ObservationSource interface {
	LoadObservations(ctx context.Context) ([]ml.RawObservation, error)
}

type target struct {
	task   string
	label  string
	file   string
	labels func(*ml.FeatureTable) []float64
}

var targets = []target{
	{TaskHeart, "heart_disease_risk", HeartArtifact, func(t *ml.FeatureTable) []float64 { return t.HeartRisk }},
	{TaskDiabetes, "diabetes_risk", DiabetesArtifact, func(t *ml.FeatureTable) []float64 { return t.DiabetesRisk }},
}

// Trainer runs one evaluation pass per target and persists the winners.
type Trainer struct {
	// Candidates are evaluated in order; on equal R² the earlier one wins.
	Candidates []Candidate

	seed        int64
	testRatio   float64
	artifactDir string
	logger      *zap.Logger
	metrics     *metrics.Recorder
	now         func() time.Time
	save        func(*ml.Artifact, string) error
}

func NewTrainer(cfg *config.Config, logger *zap.Logger, recorder *metrics.Recorder) (*Trainer, error) {
	candidates, err := CandidatesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.New()
	}
	return &Trainer{
		Candidates:  candidates,
		seed:        cfg.Training.Seed,
		testRatio:   cfg.Training.TestRatio,
		artifactDir: cfg.Training.ArtifactDir,
		logger:      logger,
		metrics:     recorder,
		now:         time.Now,
		save:        (*ml.Artifact).Save,
	}, nil
}

// ArtifactPath returns where the artifact for a task is written.
func (t *Trainer) ArtifactPath(file string) string {
	return filepath.Join(t.artifactDir, file)
}

// Run loads observations, trains both targets and writes their artifacts.
// Artifacts are only written once every target has a selected model, and a
// failed write restores the files already replaced, so a failed run leaves
// the previous artifacts in place.
func (t *Trainer) Run(ctx context.Context, source ObservationSource) (*Report, error) {
	started := t.now()
	report, err := t.run(ctx, source, started)
	finished := t.now()
	if report != nil {
		report.FinishedAt = finished
		report.Sort()
	}
	t.metrics.ObserveRun(finished.Sub(started), err == nil, finished)
	if err != nil {
		t.logger.Error("training run failed", zap.Error(err))
		return report, err
	}
	t.logger.Info("training run complete",
		zap.String("run_id", report.RunID),
		zap.Duration("duration", finished.Sub(started)))
	return report, nil
}

func (t *Trainer) run(ctx context.Context, source ObservationSource, started time.Time) (*Report, error) {
	if len(t.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates configured", ErrNoCandidate)
	}

	rows, err := source.LoadObservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	table, drops := ml.BuildFeatures(rows)
	t.metrics.ObserveRows(drops)
	t.logger.Info("observations prepared",
		zap.Int("loaded", drops.Total),
		zap.Int("kept", drops.Kept),
		zap.Int("malformed_blood_pressure", drops.MalformedBloodPressure),
		zap.Int("missing_values", drops.MissingValues))
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: %d rows loaded, none usable", ErrNoObservations, drops.Total)
	}

	split, err := ml.TrainTestSplit(table.Len(), t.testRatio, t.seed)
	if errors.Is(err, ml.ErrInsufficientRows) {
		return nil, fmt.Errorf("%w: %d usable rows: %v", ErrNoObservations, table.Len(), err)
	}
	if err != nil {
		return nil, err
	}
	t.metrics.ObservePartition(len(split.Train), len(split.Test))

	report := &Report{
		RunID:        uuid.NewString(),
		StartedAt:    started,
		Seed:         t.seed,
		TestRatio:    t.testRatio,
		Observations: drops,
		TrainRows:    len(split.Train),
		TestRows:     len(split.Test),
	}

	artifacts := make([]*ml.Artifact, 0, len(targets))
	for _, target := range targets {
		artifact, err := t.trainTarget(ctx, report, target, table, split)
		if err != nil {
			return report, err
		}
		artifact.RunID = report.RunID
		artifact.TrainedAt = started
		artifacts = append(artifacts, artifact)
	}

	paths := make([]string, len(artifacts))
	for i := range artifacts {
		paths[i] = t.ArtifactPath(targets[i].file)
	}
	if err := t.saveArtifacts(artifacts, paths); err != nil {
		return report, err
	}

	for i, artifact := range artifacts {
		path := paths[i]
		report.Selected = append(report.Selected, Selection{
			Task:     targets[i].task,
			Model:    artifact.ModelName,
			Kind:     artifact.Kind,
			R2:       artifact.R2,
			RMSE:     artifact.RMSE,
			Artifact: path,
		})
		t.logger.Info("artifact written",
			zap.String("task", targets[i].task),
			zap.String("model", artifact.ModelName),
			zap.Float64("r2", artifact.R2),
			zap.String("path", path))
	}
	return report, nil
}

// saveArtifacts writes every artifact or none. When a write fails, the files
// already replaced by this call are put back as they were.
func (t *Trainer) saveArtifacts(artifacts []*ml.Artifact, paths []string) error {
	previous := make([][]byte, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			previous[i] = data
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("read previous %s artifact: %w", targets[i].task, err)
		}
	}

	for i, artifact := range artifacts {
		if err := t.save(artifact, paths[i]); err != nil {
			err = fmt.Errorf("save %s artifact: %w", targets[i].task, err)
			for j := 0; j < i; j++ {
				err = multierr.Append(err, restoreArtifact(paths[j], previous[j]))
			}
			return err
		}
	}
	return nil
}

// restoreArtifact puts back the previous content of path, or removes path
// when there was none.
func restoreArtifact(path string, previous []byte) error {
	if previous == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return os.WriteFile(path, previous, 0o644)
}

// trainTarget evaluates every candidate once and wraps the best in an
// artifact. Results are appended to the report as they are produced.
func (t *Trainer) trainTarget(ctx context.Context, report *Report, target target, table *ml.FeatureTable, split ml.Split) (*ml.Artifact, error) {
	labels := target.labels(table)
	trainX, trainY := ml.Rows(table.Features, labels, split.Train)
	testX, testY := ml.Rows(table.Features, labels, split.Test)

	best := -1
	var bestModel ml.Regressor
	for _, candidate := range t.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, model := t.evaluate(target.task, candidate, trainX, trainY, testX, testY)
		report.Results = append(report.Results, result)
		if result.Failed() {
			continue
		}
		if bestModel == nil || result.R2 > report.Results[best].R2 {
			best, bestModel = len(report.Results)-1, model
		}
	}
	if bestModel == nil {
		return nil, fmt.Errorf("%s: %w", target.task, ErrNoCandidate)
	}

	chosen := &report.Results[best]
	chosen.Selected = true
	artifact, err := ml.NewArtifact(target.label, bestModel)
	if err != nil {
		return nil, fmt.Errorf("encode %s model: %w", target.task, err)
	}
	artifact.R2, artifact.RMSE = chosen.R2, chosen.RMSE
	artifact.TrainRows = len(trainY)
	t.logger.Info("model selected",
		zap.String("task", target.task),
		zap.String("model", chosen.Model),
		zap.Float64("r2", chosen.R2),
		zap.Float64("rmse", chosen.RMSE))
	return artifact, nil
}

func (t *Trainer) evaluate(task string, candidate Candidate, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) (Result, ml.Regressor) {
	started := time.Now()
	model, r2, rmse, err := fitAndScore(candidate, trainX, trainY, testX, testY)
	result := Result{
		Task:       task,
		Model:      candidate.Kind,
		Kind:       candidate.Kind,
		FitSeconds: time.Since(started).Seconds(),
	}
	if model != nil {
		result.Model = model.Name()
	}

	if err != nil {
		result.Error, result.err = err.Error(), err
		t.metrics.CandidateFailed(task, result.Model)
		t.logger.Warn("candidate failed",
			zap.String("task", task),
			zap.String("model", result.Model),
			zap.Error(err))
		return result, nil
	}

	result.R2, result.RMSE = r2, rmse
	t.metrics.ObserveCandidate(task, result.Model, r2, rmse)
	t.logger.Info("candidate evaluated",
		zap.String("task", task),
		zap.String("model", result.Model),
		zap.Float64("r2", r2),
		zap.Float64("rmse", rmse),
		zap.Float64("fit_seconds", result.FitSeconds))
	return result, model
}

// fitAndScore trains a new model and scores it on the test partition. A
// panicking candidate is reported as an error.
func fitAndScore(candidate Candidate, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) (model ml.Regressor, r2, rmse float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCandidatePanic, r)
		}
	}()

	model = candidate.New()
	if err := model.Fit(trainX, trainY); err != nil {
		return model, 0, 0, fmt.Errorf("fit: %w", err)
	}
	r2, rmse, err = ml.Evaluate(model, testX, testY)
	if err != nil {
		return model, 0, 0, fmt.Errorf("evaluate: %w", err)
	}
	return model, r2, rmse, nil
}
