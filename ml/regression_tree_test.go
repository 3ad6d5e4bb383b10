package ml

import (
	"math"
	"testing"
)

func TestRegressionTreeFitPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	targets := []float64{1, 1, 5, 5}

	tree := NewRegressionTree(TreeParams{MaxDepth: 2})
	if err := tree.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	low, err := tree.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := tree.Predict([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low != 1 || high != 5 {
		t.Fatalf("expected 1 and 5, got %v and %v", low, high)
	}
}

func TestRegressionTreeConstantTargetIsSingleLeaf(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	tree := NewRegressionTree(TreeParams{})
	if err := tree.Fit(features, []float64{0.3, 0.3, 0.3, 0.3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Nodes) != 1 || !tree.Nodes[0].IsLeaf {
		t.Fatalf("expected a single leaf, got %d nodes", len(tree.Nodes))
	}
	value, err := tree.Predict([]float64{10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(value-0.3) > 1e-12 {
		t.Fatalf("expected 0.3, got %v", value)
	}
}

func TestRegressionTreeRespectsMaxDepth(t *testing.T) {
	features := make([][]float64, 64)
	targets := make([]float64, 64)
	for i := range features {
		features[i] = []float64{float64(i)}
		targets[i] = float64(i * i)
	}
	tree := NewRegressionTree(TreeParams{MaxDepth: 3})
	if err := tree.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if depth := tree.Depth(); depth != 3 {
		t.Fatalf("expected depth 3, got %d", depth)
	}
}

func TestRegressionTreeMinSamplesLeaf(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {100}}
	targets := []float64{1, 1, 1, 1, 1, 50}
	tree := NewRegressionTree(TreeParams{MinSamplesLeaf: 2})
	if err := tree.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := tree.Predict([]float64{100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the outlier cannot sit in a leaf of its own
	if value == 50 {
		t.Fatal("expected the outlier leaf to hold at least two rows")
	}
}

func TestRegressionTreeErrors(t *testing.T) {
	tree := NewRegressionTree(TreeParams{})
	if _, err := tree.Predict([]float64{1}); err != ErrNotTrained {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := tree.Fit(nil, nil); err == nil {
		t.Fatal("expected error for empty training set")
	}
	if err := tree.Fit([][]float64{{1}, {2}}, []float64{1}); err == nil {
		t.Fatal("expected error for size mismatch")
	}
	if err := tree.Fit([][]float64{{1}, {math.NaN()}}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for NaN feature")
	}
}
