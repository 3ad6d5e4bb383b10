package ml

import (
	"errors"
)

// boostedTrees is the additive model shared by both boosting regressors:
// prediction = Base + LearningRate * sum(tree outputs).
type boostedTrees struct {
	NEstimators  int              `json:"n_estimators"`
	LearningRate float64          `json:"learning_rate"`
	Params       TreeParams       `json:"params"`
	Base         float64          `json:"base"`
	Trees        []RegressionTree `json:"trees"`
}

// fit runs stage-wise boosting on squared error: each round grows a tree on
// the gradient of the current residuals.
func (m *boostedTrees) fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}
	if m.NEstimators <= 0 {
		return errors.New("boosting: n_estimators must be positive")
	}
	if m.LearningRate <= 0 {
		return errors.New("boosting: learning_rate must be positive")
	}

	n := len(targets)
	m.Base = mean(targets)
	current := make([]float64, n)
	grad := make([]float64, n)
	hess := make([]float64, n)
	indices := make([]int, n)
	for i := range current {
		current[i] = m.Base
		hess[i] = 1
		indices[i] = i
	}

	trees := make([]RegressionTree, m.NEstimators)
	for round := range trees {
		for i, y := range targets {
			grad[i] = current[i] - y
		}
		trees[round].Params = m.Params
		if err := trees[round].grow(features, grad, hess, indices, nil); err != nil {
			return err
		}
		for i, row := range features {
			step, err := trees[round].Predict(row)
			if err != nil {
				return err
			}
			current[i] += m.LearningRate * step
		}
	}
	m.Trees = trees
	return nil
}

func (m *boostedTrees) predict(features []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, ErrNotTrained
	}
	value := m.Base
	for i := range m.Trees {
		step, err := m.Trees[i].Predict(features)
		if err != nil {
			return 0, err
		}
		value += m.LearningRate * step
	}
	return value, nil
}

// GradientBoosting is first-order boosting: unregularised variance-reduction
// trees on residuals, shallow by default.
type GradientBoosting struct {
	boostedTrees
}

func NewGradientBoosting(nEstimators int, learningRate float64, maxDepth, minSamplesLeaf int) *GradientBoosting {
	return &GradientBoosting{boostedTrees{
		NEstimators:  nEstimators,
		LearningRate: learningRate,
		Params:       TreeParams{MaxDepth: maxDepth, MinSamplesLeaf: minSamplesLeaf},
	}}
}

func (m *GradientBoosting) Kind() string { return KindGradientBoosting }
func (m *GradientBoosting) Name() string { return "GradientBoostingRegressor" }

func (m *GradientBoosting) Fit(features [][]float64, targets []float64) error {
	m.Params.Lambda, m.Params.Gamma, m.Params.MinChildWeight = 0, 0, 0
	return m.fit(features, targets)
}

func (m *GradientBoosting) Predict(features []float64) (float64, error) {
	return m.predict(features)
}

// XGBoost is second-order boosting with L2-regularised leaf weights, a
// minimum split gain and a minimum hessian per child.
type XGBoost struct {
	boostedTrees
}

func NewXGBoost(nEstimators int, learningRate float64, maxDepth int, lambda, gamma, minChildWeight float64) *XGBoost {
	return &XGBoost{boostedTrees{
		NEstimators:  nEstimators,
		LearningRate: learningRate,
		Params: TreeParams{
			MaxDepth:       maxDepth,
			Lambda:         lambda,
			Gamma:          gamma,
			MinChildWeight: minChildWeight,
		},
	}}
}

func (m *XGBoost) Kind() string { return KindXGBoost }
func (m *XGBoost) Name() string { return "XGBRegressor" }

func (m *XGBoost) Fit(features [][]float64, targets []float64) error {
	return m.fit(features, targets)
}

func (m *XGBoost) Predict(features []float64) (float64, error) {
	return m.predict(features)
}
