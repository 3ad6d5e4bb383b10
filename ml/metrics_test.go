package ml

import (
	"math"
	"testing"
)

func TestRSquared(t *testing.T) {
	tests := []struct {
		name      string
		actual    []float64
		predicted []float64
		want      float64
	}{
		{"perfect", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"mean predictor", []float64{1, 2, 3}, []float64{2, 2, 2}, 0},
		{"worse than mean", []float64{1, 2, 3}, []float64{3, 2, 1}, -3},
		{"constant matched", []float64{4, 4}, []float64{4, 4}, 1},
		{"constant missed", []float64{4, 4}, []float64{3, 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSquared(tt.actual, tt.predicted)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("RSquared() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRMSE(t *testing.T) {
	got, err := RMSE([]float64{0, 0, 0, 0}, []float64{1, -1, 1, -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if _, err := RMSE(nil, nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := RMSE([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for mismatched input")
	}
}

type constantModel struct{ value float64 }

func (m constantModel) Kind() string { return "constant" }
func (m constantModel) Name() string { return "Constant" }
func (m constantModel) Fit(_ [][]float64, _ []float64) error { return nil }
func (m constantModel) Predict(_ []float64) (float64, error) { return m.value, nil }

func TestEvaluateRejectsNonFinitePredictions(t *testing.T) {
	features := [][]float64{{1}, {2}}
	targets := []float64{1, 2}
	if _, _, err := Evaluate(constantModel{value: math.Inf(1)}, features, targets); err == nil {
		t.Fatal("expected error for infinite prediction")
	}
	r2, rmse, err := Evaluate(constantModel{value: 1.5}, features, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r2 != 0 || rmse != 0.5 {
		t.Fatalf("expected R² 0 and RMSE 0.5, got %v and %v", r2, rmse)
	}
}
