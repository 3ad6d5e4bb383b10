package ml

import (
	"errors"
	"math/rand"
)

// RandomForest averages regression trees grown on bootstrap samples.
type RandomForest struct {
	NEstimators int              `json:"n_estimators"`
	Params      TreeParams       `json:"params"`
	Seed        int64            `json:"seed"`
	Trees       []RegressionTree `json:"trees"`
}

func NewRandomForest(nEstimators int, params TreeParams, seed int64) *RandomForest {
	return &RandomForest{NEstimators: nEstimators, Params: params, Seed: seed}
}

func (f *RandomForest) Kind() string { return KindRandomForest }
func (f *RandomForest) Name() string { return "RandomForestRegressor" }

func (f *RandomForest) Fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}
	if f.NEstimators <= 0 {
		return errors.New("random forest: n_estimators must be positive")
	}

	n := len(targets)
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i, y := range targets {
		grad[i] = -y
		hess[i] = 1
	}

	rnd := rand.New(rand.NewSource(f.Seed))
	trees := make([]RegressionTree, f.NEstimators)
	sample := make([]int, n)
	for t := range trees {
		for i := range sample {
			sample[i] = rnd.Intn(n)
		}
		treeRand := rand.New(rand.NewSource(rnd.Int63()))
		trees[t].Params = f.Params
		if err := trees[t].grow(features, grad, hess, sample, treeRand); err != nil {
			return err
		}
	}
	f.Trees = trees
	return nil
}

func (f *RandomForest) Predict(features []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, ErrNotTrained
	}
	var sum float64
	for i := range f.Trees {
		value, err := f.Trees[i].Predict(features)
		if err != nil {
			return 0, err
		}
		sum += value
	}
	return sum / float64(len(f.Trees)), nil
}
