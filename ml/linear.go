package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// rankTolerance is relative to the largest singular value.
const rankTolerance = 1e-12

// LinearRegression is ordinary least squares with an intercept. The
// minimum-norm SVD solution keeps collinear features from failing the fit.
type LinearRegression struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

func (m *LinearRegression) Kind() string { return KindLinearRegression }
func (m *LinearRegression) Name() string { return "LinearRegression" }

func (m *LinearRegression) Fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}

	rows, width := len(features), len(features[0])
	design := mat.NewDense(rows, width+1, nil)
	for i, row := range features {
		design.Set(i, 0, 1)
		for j, value := range row {
			design.Set(i, j+1, value)
		}
	}
	target := mat.NewVecDense(rows, append([]float64(nil), targets...))

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDThin); !ok {
		return errors.New("linear regression: SVD factorization failed")
	}
	rank := svd.Rank(rankTolerance)
	if rank == 0 {
		return errors.New("linear regression: design matrix has rank zero")
	}

	var beta mat.VecDense
	svd.SolveVecTo(&beta, target, rank)

	m.Intercept = beta.AtVec(0)
	m.Coefficients = make([]float64, width)
	for j := range m.Coefficients {
		m.Coefficients[j] = beta.AtVec(j + 1)
	}
	return nil
}

func (m *LinearRegression) Predict(features []float64) (float64, error) {
	if m.Coefficients == nil {
		return 0, ErrNotTrained
	}
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), len(m.Coefficients))
	}
	value := m.Intercept
	for j, coefficient := range m.Coefficients {
		value += coefficient * features[j]
	}
	return value, nil
}
