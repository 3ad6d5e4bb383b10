package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

// Candidate names accepted in training.candidates.
const (
	CandidateRandomForest     = "random_forest"
	CandidateGradientBoosting = "gradient_boosting"
	CandidateXGBoost          = "xgboost"
	CandidateLinearRegression = "linear_regression"
)

var knownCandidates = map[string]bool{
	CandidateRandomForest:     true,
	CandidateGradientBoosting: true,
	CandidateXGBoost:          true,
	CandidateLinearRegression: true,
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Training TrainingConfig `yaml:"training"`
	Models   ModelsConfig   `yaml:"models"`
	Seed     SeedConfig     `yaml:"seed"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`        // empty disables the rotating file sink
	MaxSizeMB  int    `yaml:"max_size_mb"` // lumberjack rotation threshold
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

type TrainingConfig struct {
	Seed        int64    `yaml:"seed"`
	TestRatio   float64  `yaml:"test_ratio"`
	ArtifactDir string   `yaml:"artifact_dir"`
	ReportPath  string   `yaml:"report_path"`
	MetricsPath string   `yaml:"metrics_path"`
	Candidates  []string `yaml:"candidates"`
}

type ModelsConfig struct {
	RandomForest     ForestConfig   `yaml:"random_forest"`
	GradientBoosting BoostingConfig `yaml:"gradient_boosting"`
	XGBoost          XGBoostConfig  `yaml:"xgboost"`
}

type ForestConfig struct {
	NEstimators    int `yaml:"n_estimators"`
	MaxDepth       int `yaml:"max_depth"` // 0 means unlimited
	MinSamplesLeaf int `yaml:"min_samples_leaf"`
	MaxFeatures    int `yaml:"max_features"` // 0 means all features
}

type BoostingConfig struct {
	NEstimators    int     `yaml:"n_estimators"`
	LearningRate   float64 `yaml:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf"`
}

type XGBoostConfig struct {
	NEstimators    int     `yaml:"n_estimators"`
	LearningRate   float64 `yaml:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth"`
	Lambda         float64 `yaml:"lambda"`
	Gamma          float64 `yaml:"gamma"`
	MinChildWeight float64 `yaml:"min_child_weight"`
}

type SeedConfig struct {
	Patients         int    `yaml:"patients"`
	VisitsPerPatient int    `yaml:"visits_per_patient"`
	Seed             uint64 `yaml:"seed"` // 0 picks a random seed
	BatchSize        int    `yaml:"batch_size"`
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "healthcare.db"},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/healthrisk.log",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Console:    true,
		},
		Training: TrainingConfig{
			Seed:        42,
			TestRatio:   0.2,
			ArtifactDir: "models",
			ReportPath:  "models/evaluation_report.json",
			MetricsPath: "models/training.prom",
			Candidates: []string{
				CandidateRandomForest,
				CandidateGradientBoosting,
				CandidateXGBoost,
				CandidateLinearRegression,
			},
		},
		Models: ModelsConfig{
			RandomForest: ForestConfig{
				NEstimators:    100,
				MaxDepth:       12,
				MinSamplesLeaf: 1,
			},
			GradientBoosting: BoostingConfig{
				NEstimators:    100,
				LearningRate:   0.1,
				MaxDepth:       3,
				MinSamplesLeaf: 1,
			},
			XGBoost: XGBoostConfig{
				NEstimators:    100,
				LearningRate:   0.3,
				MaxDepth:       6,
				Lambda:         1,
				MinChildWeight: 1,
			},
		},
		Seed: SeedConfig{
			Patients:         10000,
			VisitsPerPatient: 5,
			BatchSize:        100,
		},
	}
}

// Load decodes the YAML file at path over Default and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	// an empty file decodes to io.EOF and leaves the defaults in place
	if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	t := c.Training
	if t.TestRatio <= 0 || t.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0, 1), got %v", t.TestRatio)
	}
	if t.ArtifactDir == "" {
		return errors.New("training.artifact_dir is required")
	}
	if len(t.Candidates) == 0 {
		return errors.New("training.candidates must name at least one model")
	}
	for _, name := range t.Candidates {
		if !knownCandidates[name] {
			return fmt.Errorf("unknown candidate %q", name)
		}
	}

	m := c.Models
	if m.RandomForest.NEstimators <= 0 || m.GradientBoosting.NEstimators <= 0 || m.XGBoost.NEstimators <= 0 {
		return errors.New("models: n_estimators must be positive")
	}
	if m.RandomForest.MaxDepth < 0 || m.GradientBoosting.MaxDepth < 0 || m.XGBoost.MaxDepth < 0 {
		return errors.New("models: max_depth must not be negative")
	}
	if m.GradientBoosting.LearningRate <= 0 || m.XGBoost.LearningRate <= 0 {
		return errors.New("models: learning_rate must be positive")
	}
	if m.XGBoost.Lambda < 0 || m.XGBoost.Gamma < 0 || m.XGBoost.MinChildWeight < 0 {
		return errors.New("models.xgboost: lambda, gamma and min_child_weight must not be negative")
	}

	if c.Seed.Patients < 0 || c.Seed.VisitsPerPatient < 0 {
		return errors.New("seed: counts must not be negative")
	}
	if c.Seed.BatchSize <= 0 {
		return errors.New("seed.batch_size must be positive")
	}
	return nil
}
