package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	ErrInsufficientRows = errors.New("not enough rows for a train/test split")
	ErrInvalidTestRatio = errors.New("test ratio must be in (0, 1)")
)

// Split holds row indices into a FeatureTable.
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles n row indices with a seeded source and puts the
// first ceil(n*testRatio) of them in the test partition.
func TrainTestSplit(n int, testRatio float64, seed int64) (Split, error) {
	if math.IsNaN(testRatio) || testRatio <= 0 || testRatio >= 1 {
		return Split{}, fmt.Errorf("%w: got %v", ErrInvalidTestRatio, testRatio)
	}
	nTest := int(math.Ceil(float64(n)*testRatio - 1e-9))
	nTrain := n - nTest
	if nTest <= 0 || nTrain <= 0 {
		return Split{}, ErrInsufficientRows
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)
	return Split{
		Train: indices[nTest:],
		Test:  indices[:nTest],
	}, nil
}

// Rows gathers features and labels for a set of indices.
func Rows(features [][]float64, labels []float64, indices []int) ([][]float64, []float64) {
	x := make([][]float64, len(indices))
	y := make([]float64, len(indices))
	for i, idx := range indices {
		x[i] = features[idx]
		y[i] = labels[idx]
	}
	return x, y
}
