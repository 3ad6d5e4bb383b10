package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact is a persisted, selected model together with what it was
// selected on. Predict takes the FeatureNames column order.
type Artifact struct {
	Kind      string          `json:"kind"`
	Target    string          `json:"target"`
	ModelName string          `json:"model_name"`
	Features  []string        `json:"features"`
	R2        float64         `json:"r2"`
	RMSE      float64         `json:"rmse"`
	RunID     string          `json:"run_id"`
	TrainedAt time.Time       `json:"trained_at"`
	TrainRows int             `json:"train_rows"`
	Model     json.RawMessage `json:"model"`

	regressor Regressor
}

// NewArtifact wraps a trained model for persistence.
func NewArtifact(target string, model Regressor) (*Artifact, error) {
	payload, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Kind:      model.Kind(),
		Target:    target,
		ModelName: model.Name(),
		Features:  FeatureNames(),
		Model:     payload,
		regressor: model,
	}, nil
}

func (a *Artifact) Regressor() Regressor {
	return a.regressor
}

// Predict scores one feature vector in FeatureNames order. The output is not
// clamped to [0, 1].
func (a *Artifact) Predict(features []float64) (float64, error) {
	if a.regressor == nil {
		return 0, ErrNotTrained
	}
	if len(features) != len(a.Features) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), len(a.Features))
	}
	return a.regressor.Predict(features)
}

// Save writes the artifact to a temporary file next to path and renames it
// into place, so readers never observe a partial file.
func (a *Artifact) Save(path string) error {
	if a.regressor == nil || len(a.Model) == 0 {
		return ErrNotTrained
	}
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadArtifact reads and decodes an artifact written by Save.
func LoadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if len(artifact.Model) == 0 {
		return nil, fmt.Errorf("artifact %s: %w", path, ErrNotTrained)
	}
	if len(artifact.Features) != FeatureCount {
		return nil, fmt.Errorf("artifact %s: %w: %d features", path, ErrFeatureCount, len(artifact.Features))
	}

	model, err := NewRegressor(artifact.Kind)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(artifact.Model, model); err != nil {
		return nil, fmt.Errorf("decode %s model in %s: %w", artifact.Kind, path, err)
	}
	if _, err := model.Predict(make([]float64, FeatureCount)); errors.Is(err, ErrNotTrained) {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	artifact.regressor = model
	return &artifact, nil
}
