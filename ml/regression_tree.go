package ml

import (
	"errors"
	"math/rand"
	"sort"
)

// minSplitGain keeps float noise from producing splits on constant targets.
const minSplitGain = 1e-12

// TreeParams controls tree growth. Lambda, Gamma and MinChildWeight are the
// second-order regularisation terms; with all three at zero a tree is a plain
// variance-reduction CART.
type TreeParams struct {
	MaxDepth       int     `json:"max_depth"` // 0 means unlimited
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	MaxFeatures    int     `json:"max_features"` // 0 means all features
	Lambda         float64 `json:"lambda"`
	Gamma          float64 `json:"gamma"`
	MinChildWeight float64 `json:"min_child_weight"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// RegressionTree is a binary tree grown on per-row gradient statistics.
// Fit grows it on squared error, so leaves hold the mean target.
type RegressionTree struct {
	Params TreeParams `json:"params"`
	Nodes  []TreeNode `json:"nodes"`
}

func NewRegressionTree(params TreeParams) *RegressionTree {
	return &RegressionTree{Params: params}
}

func (t *RegressionTree) Fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}
	grad := make([]float64, len(targets))
	hess := make([]float64, len(targets))
	indices := make([]int, len(targets))
	for i, y := range targets {
		grad[i] = -y
		hess[i] = 1
		indices[i] = i
	}
	return t.grow(features, grad, hess, indices, nil)
}

func (t *RegressionTree) Predict(features []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, ErrNotTrained
	}
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, ErrFeatureCount
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (t *RegressionTree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left, right := walk(node.LeftChild), walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

// grow rebuilds the tree from the rows named by indices. Duplicated indices
// (bootstrap samples) count once per occurrence. rng is only consulted when
// MaxFeatures restricts the features tried per node.
func (t *RegressionTree) grow(features [][]float64, grad, hess []float64, indices []int, rng *rand.Rand) error {
	if len(indices) == 0 {
		return errors.New("no rows to grow a tree on")
	}
	b := &treeBuilder{
		params:   t.Params,
		features: features,
		grad:     grad,
		hess:     hess,
		rng:      rng,
		width:    len(features[indices[0]]),
	}
	if b.params.MinSamplesLeaf <= 0 {
		b.params.MinSamplesLeaf = 1
	}
	b.build(indices, 0)
	t.Nodes = b.nodes
	return nil
}

type treeBuilder struct {
	params   TreeParams
	features [][]float64
	grad     []float64
	hess     []float64
	rng      *rand.Rand
	width    int
	nodes    []TreeNode
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) build(indices []int, depth int) int {
	gradSum, hessSum := b.sums(indices)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      -gradSum / (hessSum + b.params.Lambda),
		IsLeaf:     true,
	})

	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return idx
	}
	if len(indices) < 2*b.params.MinSamplesLeaf {
		return idx
	}

	best, ok := b.findBestSplit(indices, gradSum, hessSum)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if b.features[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	node := &b.nodes[idx]
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return idx
}

func (b *treeBuilder) sums(indices []int) (gradSum, hessSum float64) {
	for _, i := range indices {
		gradSum += b.grad[i]
		hessSum += b.hess[i]
	}
	return gradSum, hessSum
}

func (b *treeBuilder) candidateFeatures() []int {
	if b.params.MaxFeatures <= 0 || b.params.MaxFeatures >= b.width || b.rng == nil {
		all := make([]int, b.width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.width)[:b.params.MaxFeatures]
}

func (b *treeBuilder) findBestSplit(indices []int, gradSum, hessSum float64) (splitCandidate, bool) {
	lambda := b.params.Lambda
	parentScore := gradSum * gradSum / (hessSum + lambda)
	best := splitCandidate{feature: -1, gain: minSplitGain}
	minLeaf := b.params.MinSamplesLeaf

	sorted := make([]int, len(indices))
	for _, feature := range b.candidateFeatures() {
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return b.features[sorted[i]][feature] < b.features[sorted[j]][feature]
		})

		var leftGrad, leftHess float64
		for pos := 0; pos < len(sorted)-1; pos++ {
			row := sorted[pos]
			leftGrad += b.grad[row]
			leftHess += b.hess[row]

			current := b.features[row][feature]
			next := b.features[sorted[pos+1]][feature]
			if current == next {
				continue
			}
			leftCount := pos + 1
			if leftCount < minLeaf || len(sorted)-leftCount < minLeaf {
				continue
			}
			rightGrad := gradSum - leftGrad
			rightHess := hessSum - leftHess
			if leftHess < b.params.MinChildWeight || rightHess < b.params.MinChildWeight {
				continue
			}

			gain := 0.5*(leftGrad*leftGrad/(leftHess+lambda)+rightGrad*rightGrad/(rightHess+lambda)-parentScore) - b.params.Gamma
			if gain > best.gain {
				best = splitCandidate{
					feature:   feature,
					threshold: (current + next) / 2,
					gain:      gain,
				}
			}
		}
	}
	return best, best.feature >= 0
}
