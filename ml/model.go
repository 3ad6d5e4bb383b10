package ml

import (
	"errors"
	"fmt"
	"math"
)

// Model kinds as stored in artifacts and named in configuration.
const (
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
	KindXGBoost          = "xgboost"
	KindLinearRegression = "linear_regression"
)

var (
	ErrNotTrained   = errors.New("model not trained")
	ErrUnknownModel = errors.New("unsupported model type")
	ErrFeatureCount = errors.New("unexpected feature count")
)

// Regressor is a trainable model mapping a feature vector to one real number.
type Regressor interface {
	Kind() string
	Name() string
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
}

// NewRegressor returns an untrained regressor of the given kind with zero
// hyper-parameters, ready to be filled from an artifact.
func NewRegressor(kind string) (Regressor, error) {
	switch kind {
	case KindRandomForest:
		return &RandomForest{}, nil
	case KindGradientBoosting:
		return &GradientBoosting{}, nil
	case KindXGBoost:
		return &XGBoost{}, nil
	case KindLinearRegression:
		return &LinearRegression{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, kind)
	}
}

func validateTrainingSet(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature rows are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d: %w: got %d, want %d", i, ErrFeatureCount, len(row), width)
		}
		for j, value := range row {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return fmt.Errorf("row %d feature %d is not finite", i, j)
			}
		}
		if math.IsNaN(targets[i]) || math.IsInf(targets[i], 0) {
			return fmt.Errorf("row %d target is not finite", i)
		}
	}
	return nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
