package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// RSquared is the coefficient of determination of predicted against actual.
// A constant actual series scores 1 when matched exactly and 0 otherwise.
func RSquared(actual, predicted []float64) (float64, error) {
	if err := checkPairs(actual, predicted); err != nil {
		return 0, err
	}
	avg := stat.Mean(actual, nil)
	var total, residual float64
	for i, y := range actual {
		total += (y - avg) * (y - avg)
		residual += (y - predicted[i]) * (y - predicted[i])
	}
	if total == 0 {
		if residual == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - residual/total, nil
}

// RMSE is the root of the mean squared prediction error.
func RMSE(actual, predicted []float64) (float64, error) {
	if err := checkPairs(actual, predicted); err != nil {
		return 0, err
	}
	var sum float64
	for i, y := range actual {
		diff := y - predicted[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(actual))), nil
}

func checkPairs(actual, predicted []float64) error {
	if len(actual) == 0 {
		return errors.New("no values to score")
	}
	if len(actual) != len(predicted) {
		return errors.New("actual and predicted size mismatch")
	}
	return nil
}

// Evaluate predicts every row with model and scores the result.
func Evaluate(model Regressor, features [][]float64, targets []float64) (r2, rmse float64, err error) {
	predictions := make([]float64, len(features))
	for i, row := range features {
		value, err := model.Predict(row)
		if err != nil {
			return 0, 0, err
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, 0, errors.New("model produced a non-finite prediction")
		}
		predictions[i] = value
	}
	if r2, err = RSquared(targets, predictions); err != nil {
		return 0, 0, err
	}
	if rmse, err = RMSE(targets, predictions); err != nil {
		return 0, 0, err
	}
	return r2, rmse, nil
}
