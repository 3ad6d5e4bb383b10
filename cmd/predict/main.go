package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"healthrisk/config"
	"healthrisk/db"
	"healthrisk/logging"
	"healthrisk/ml"
	"healthrisk/training"
)

type options struct {
	patientID int64
	save      bool
	stream    bool
	raw       ml.RawObservation
}

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	modelDir := flag.String("model_dir", "", "artifact directory (overrides training.artifact_dir)")
	patientID := flag.Int64("patient", 0, "score the latest vitals of this patient")
	save := flag.Bool("save", false, "store the predicted scores as a new RiskScores row (requires -patient)")
	stream := flag.Bool("stdin", false, "score comma-separated feature rows read from stdin")
	observation := observationFlags(flag.CommandLine)
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
		case "model_dir":
			cfg.Training.ArtifactDir = *modelDir
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if *save && *patientID == 0 {
		log.Fatal("-save requires -patient")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		patientID: *patientID,
		save:      *save,
		stream:    *stream,
		raw:       observation(),
	}
	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("prediction failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// observationFlags registers one flag per feature on fs. The returned
// function builds an observation from the flags actually given after
// parsing; omitted features stay nil and are reported as missing.
func observationFlags(fs *flag.FlagSet) func() ml.RawObservation {
	bloodPressure := fs.String("blood_pressure", "", "blood pressure as systolic/diastolic")
	values := map[string]*float64{
		"age":         fs.Float64("age", 0, "age in years"),
		"heart_rate":  fs.Float64("heart_rate", 0, "heart rate"),
		"glucose":     fs.Float64("glucose", 0, "glucose level"),
		"bmi":         fs.Float64("bmi", 0, "body mass index"),
		"hemoglobin":  fs.Float64("hemoglobin", 0, "hemoglobin"),
		"cholesterol": fs.Float64("cholesterol", 0, "cholesterol"),
	}

	return func() ml.RawObservation {
		set := make(map[string]*float64, len(values))
		fs.Visit(func(f *flag.Flag) {
			if value, ok := values[f.Name]; ok {
				set[f.Name] = value
			}
		})
		return ml.RawObservation{
			Age:           set["age"],
			BloodPressure: *bloodPressure,
			HeartRate:     set["heart_rate"],
			GlucoseLevel:  set["glucose"],
			BMI:           set["bmi"],
			Hemoglobin:    set["hemoglobin"],
			Cholesterol:   set["cholesterol"],
		}
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) error {
	registry, err := ml.NewRegistry(2, logger)
	if err != nil {
		return err
	}
	s := scorer{
		registry: registry,
		heart:    filepath.Join(cfg.Training.ArtifactDir, training.HeartArtifact),
		diabetes: filepath.Join(cfg.Training.ArtifactDir, training.DiabetesArtifact),
	}

	if opts.stream {
		go func() {
			if err := registry.Watch(ctx); err != nil {
				logger.Warn("artifact watch stopped", zap.Error(err))
			}
		}()
		return s.stream(ctx, os.Stdin, os.Stdout)
	}

	if opts.patientID == 0 {
		features, err := ml.FeatureRow(opts.raw)
		if err != nil {
			return err
		}
		score, err := s.score(features)
		if err != nil {
			return err
		}
		printScore(os.Stdout, score)
		return nil
	}

	store, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	observation, err := store.LatestObservation(ctx, opts.patientID)
	if err != nil {
		return err
	}
	features, err := ml.FeatureRow(observation)
	if err != nil {
		return fmt.Errorf("patient %d: %w", opts.patientID, err)
	}
	score, err := s.score(features)
	if err != nil {
		return err
	}
	printScore(os.Stdout, score)

	if opts.save {
		score.ScoreDate = time.Now()
		if err := store.SaveRiskScore(ctx, opts.patientID, score); err != nil {
			return err
		}
		logger.Info("risk score saved",
			zap.Int64("patient_id", opts.patientID),
			zap.Float64("heart_disease_risk", score.HeartDiseaseRisk),
			zap.Float64("diabetes_risk", score.DiabetesRisk))
	}
	return nil
}

type scorer struct {
	registry *ml.Registry
	heart    string
	diabetes string
}

func (s scorer) score(features []float64) (db.RiskScore, error) {
	heart, err := s.registry.Predict(s.heart, features)
	if err != nil {
		return db.RiskScore{}, err
	}
	diabetes, err := s.registry.Predict(s.diabetes, features)
	if err != nil {
		return db.RiskScore{}, err
	}
	return db.RiskScore{HeartDiseaseRisk: heart, DiabetesRisk: diabetes}, nil
}

// stream scores one comma-separated feature row per input line until EOF.
// Artifacts rewritten by a concurrent training run are picked up on the
// next line.
func (s scorer) stream(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		features, err := parseFeatures(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		score, err := s.score(features)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		printScore(out, score)
	}
	return scanner.Err()
}

func parseFeatures(text string) ([]float64, error) {
	fields := strings.Split(text, ",")
	if len(fields) != ml.FeatureCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ml.ErrFeatureCount, len(fields), ml.FeatureCount)
	}
	features := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ml.FeatureNames()[i], err)
		}
		features[i] = value
	}
	return features, nil
}

func printScore(w io.Writer, score db.RiskScore) {
	fmt.Fprintf(w, "heart_disease_risk=%.4f diabetes_risk=%.4f\n", score.HeartDiseaseRisk, score.DiabetesRisk)
}
