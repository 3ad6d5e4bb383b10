package ml

import (
	"math"
	"math/rand"
	"testing"
)

// syntheticSet builds rows in feature order with a smooth nonlinear target.
func syntheticSet(n int, seed int64) ([][]float64, []float64) {
	rnd := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := range features {
		row := make([]float64, FeatureCount)
		row[FeatureAge] = 20 + 65*rnd.Float64()
		row[FeatureSystolic] = 100 + 60*rnd.Float64()
		row[FeatureDiastolic] = 60 + 40*rnd.Float64()
		row[FeatureHeartRate] = 60 + 40*rnd.Float64()
		row[FeatureGlucose] = 70 + 130*rnd.Float64()
		row[FeatureBMI] = 18 + 17*rnd.Float64()
		row[FeatureHemoglobin] = 10 + 7*rnd.Float64()
		row[FeatureCholesterol] = 150 + 130*rnd.Float64()
		features[i] = row
		targets[i] = 0.01*row[FeatureAge] + 0.002*row[FeatureSystolic] + 0.1*math.Sin(row[FeatureBMI]/3)
	}
	return features, targets
}

func candidates() []Regressor {
	return []Regressor{
		NewRandomForest(15, TreeParams{MaxDepth: 8, MinSamplesLeaf: 1}, 42),
		NewGradientBoosting(60, 0.1, 3, 1),
		NewXGBoost(40, 0.3, 4, 1, 0, 1),
		NewLinearRegression(),
	}
}

func TestCandidatesLearnSignal(t *testing.T) {
	trainX, trainY := syntheticSet(300, 1)
	testX, testY := syntheticSet(80, 2)

	for _, model := range candidates() {
		t.Run(model.Name(), func(t *testing.T) {
			if err := model.Fit(trainX, trainY); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			r2, rmse, err := Evaluate(model, testX, testY)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r2 < 0.6 {
				t.Fatalf("expected R² >= 0.6, got %.4f", r2)
			}
			if rmse <= 0 || math.IsNaN(rmse) {
				t.Fatalf("unexpected RMSE %v", rmse)
			}
		})
	}
}

func TestCandidatesAreDeterministic(t *testing.T) {
	trainX, trainY := syntheticSet(150, 3)
	probe := trainX[7]

	first := candidates()
	second := candidates()
	for i := range first {
		if err := first[i].Fit(trainX, trainY); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := second[i].Fit(trainX, trainY); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a, err := first[i].Predict(probe)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := second[i].Predict(probe)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a != b {
			t.Fatalf("%s: predictions differ between identical fits: %v vs %v", first[i].Name(), a, b)
		}
	}
}

func TestLinearRegressionRecoversCoefficients(t *testing.T) {
	features, _ := syntheticSet(100, 5)
	targets := make([]float64, len(features))
	for i, row := range features {
		targets[i] = 0.5 + 0.01*row[FeatureAge] - 0.003*row[FeatureGlucose]
	}

	model := NewLinearRegression()
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(model.Intercept-0.5) > 1e-6 {
		t.Fatalf("expected intercept 0.5, got %v", model.Intercept)
	}
	if math.Abs(model.Coefficients[FeatureAge]-0.01) > 1e-8 {
		t.Fatalf("expected age coefficient 0.01, got %v", model.Coefficients[FeatureAge])
	}
	if math.Abs(model.Coefficients[FeatureGlucose]+0.003) > 1e-8 {
		t.Fatalf("expected glucose coefficient -0.003, got %v", model.Coefficients[FeatureGlucose])
	}
}

func TestLinearRegressionCollinearFeatures(t *testing.T) {
	features := [][]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}}
	targets := []float64{3, 5, 7, 9}

	model := NewLinearRegression()
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := model.Predict([]float64{5, 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(value-11) > 1e-8 {
		t.Fatalf("expected 11, got %v", value)
	}
	if _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected feature count error")
	}
}

func TestXGBoostRegularisationShrinksLeaves(t *testing.T) {
	features := [][]float64{{0}, {1}}
	targets := []float64{0, 1}

	plain := NewXGBoost(1, 1, 1, 0, 0, 0)
	if err := plain.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shrunk := NewXGBoost(1, 1, 1, 1, 0, 0)
	if err := shrunk.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := plain.Predict([]float64{1})
	b, _ := shrunk.Predict([]float64{1})
	if math.Abs(a-1) > 1e-12 {
		t.Fatalf("unregularised leaf should fit exactly, got %v", a)
	}
	// base 0.5, residual 0.5, leaf weight 0.5/(1+1)
	if math.Abs(b-0.75) > 1e-12 {
		t.Fatalf("expected 0.75, got %v", b)
	}
}

func TestXGBoostGammaPreventsSplits(t *testing.T) {
	features := [][]float64{{0}, {1}}
	targets := []float64{0, 1}
	model := NewXGBoost(1, 1, 3, 0, 10, 0)
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Trees[0].Nodes) != 1 {
		t.Fatalf("expected a stump leaf, got %d nodes", len(model.Trees[0].Nodes))
	}
}

func TestUntrainedModelsRefusePredict(t *testing.T) {
	for _, model := range candidates() {
		if _, err := model.Predict(make([]float64, FeatureCount)); err != ErrNotTrained {
			t.Fatalf("%s: expected ErrNotTrained, got %v", model.Name(), err)
		}
	}
}

func TestNewRegressor(t *testing.T) {
	for _, kind := range []string{KindRandomForest, KindGradientBoosting, KindXGBoost, KindLinearRegression} {
		model, err := NewRegressor(kind)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if model.Kind() != kind {
			t.Fatalf("expected %s, got %s", kind, model.Kind())
		}
	}
	if _, err := NewRegressor("svm"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
