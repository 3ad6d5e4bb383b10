package training

import (
	"fmt"

	"healthrisk/config"
	"healthrisk/ml"
)

// Candidate builds a fresh, untrained model. Each target gets its own
// instance so no fitted state leaks between targets.
type Candidate struct {
	Kind string
	New  func() ml.Regressor
}

// CandidatesFromConfig returns the configured candidates in configuration
// order, which is also the tie-break order during selection.
func CandidatesFromConfig(cfg *config.Config) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(cfg.Training.Candidates))
	for _, name := range cfg.Training.Candidates {
		candidate, err := newCandidate(name, cfg.Models, cfg.Training.Seed)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func newCandidate(name string, models config.ModelsConfig, seed int64) (Candidate, error) {
	switch name {
	case config.CandidateRandomForest:
		rf := models.RandomForest
		return Candidate{Kind: ml.KindRandomForest, New: func() ml.Regressor {
			return ml.NewRandomForest(rf.NEstimators, ml.TreeParams{
				MaxDepth:       rf.MaxDepth,
				MinSamplesLeaf: rf.MinSamplesLeaf,
				MaxFeatures:    rf.MaxFeatures,
			}, seed)
		}}, nil
	case config.CandidateGradientBoosting:
		gb := models.GradientBoosting
		return Candidate{Kind: ml.KindGradientBoosting, New: func() ml.Regressor {
			return ml.NewGradientBoosting(gb.NEstimators, gb.LearningRate, gb.MaxDepth, gb.MinSamplesLeaf)
		}}, nil
	case config.CandidateXGBoost:
		xgb := models.XGBoost
		return Candidate{Kind: ml.KindXGBoost, New: func() ml.Regressor {
			return ml.NewXGBoost(xgb.NEstimators, xgb.LearningRate, xgb.MaxDepth, xgb.Lambda, xgb.Gamma, xgb.MinChildWeight)
		}}, nil
	case config.CandidateLinearRegression:
		return Candidate{Kind: ml.KindLinearRegression, New: func() ml.Regressor {
			return ml.NewLinearRegression()
		}}, nil
	default:
		return Candidate{}, fmt.Errorf("%w: %q", ml.ErrUnknownModel, name)
	}
}
