package train

import (
	"math/rand"
	"sort"
)

// DecisionTree is a CART-style tree used as the building block of the
// random forest baselines. Classification splits on gini impurity,
// regression on variance reduction. For classification, y holds class
// indexes (as float64); leaves keep the class distribution.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 => consider every feature
	Regression      bool
	NumClasses      int
	Seed            int64
	Root            *TreeNode
}

// TreeNode is one node of a fitted tree. Exported for gob serialization.
type TreeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Value     float64   // regression prediction
	Probas    []float64 // classification distribution
}

// Fit grows the tree on X and y.
func (t *DecisionTree) Fit(X [][]float64, y []float64) {
	if t.MaxDepth <= 0 {
		t.MaxDepth = 10
	}
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(t.Seed))
	t.Root = t.buildNode(X, y, idx, 0, rng)
}

// Predict returns the mean (regression) or argmax class index
// (classification) per row.
func (t *DecisionTree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		node := t.walk(row)
		if t.Regression {
			out[i] = node.Value
		} else {
			out[i] = float64(argmax(node.Probas))
		}
	}
	return out
}

// PredictProba returns per-class distributions (classification only).
func (t *DecisionTree) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = t.walk(row).Probas
	}
	return out
}

func (t *DecisionTree) walk(row []float64) *TreeNode {
	node := t.Root
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

func (t *DecisionTree) buildNode(X [][]float64, y []float64, idx []int, depth int, rng *rand.Rand) *TreeNode {
	node := t.leafFor(y, idx)
	if depth >= t.MaxDepth || len(idx) < t.MinSamplesSplit || t.isPure(y, idx) {
		return node
	}

	feature, threshold, ok := t.bestSplit(X, y, idx, rng)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < t.MinSamplesLeaf || len(right) < t.MinSamplesLeaf {
		return node
	}

	node.Leaf = false
	node.Feature = feature
	node.Threshold = threshold
	node.Left = t.buildNode(X, y, left, depth+1, rng)
	node.Right = t.buildNode(X, y, right, depth+1, rng)
	return node
}

func (t *DecisionTree) leafFor(y []float64, idx []int) *TreeNode {
	node := &TreeNode{Leaf: true}
	if t.Regression {
		sum := 0.0
		for _, i := range idx {
			sum += y[i]
		}
		if len(idx) > 0 {
			node.Value = sum / float64(len(idx))
		}
		return node
	}
	counts := make([]float64, t.NumClasses)
	for _, i := range idx {
		counts[int(y[i])]++
	}
	total := float64(len(idx))
	if total > 0 {
		for j := range counts {
			counts[j] /= total
		}
	}
	node.Probas = counts
	return node
}

func (t *DecisionTree) isPure(y []float64, idx []int) bool {
	if len(idx) < 2 {
		return true
	}
	first := y[idx[0]]
	for _, i := range idx[1:] {
		if y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit scans candidate features sorted by value, tracking prefix
// statistics so each feature costs O(n log n).
func (t *DecisionTree) bestSplit(X [][]float64, y []float64, idx []int, rng *rand.Rand) (int, float64, bool) {
	p := len(X[idx[0]])
	features := make([]int, p)
	for j := range features {
		features[j] = j
	}
	if t.MaxFeatures > 0 && t.MaxFeatures < p {
		rng.Shuffle(p, func(i, j int) {
			features[i], features[j] = features[j], features[i]
		})
		features = features[:t.MaxFeatures]
		sort.Ints(features)
	}

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	pairs := make([]splitPair, len(idx))

	for _, feature := range features {
		for k, i := range idx {
			pairs[k] = splitPair{X[i][feature], y[i]}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].v < pairs[b].v })

		var gain, threshold float64
		var ok bool
		if t.Regression {
			gain, threshold, ok = t.scanRegression(pairs)
		} else {
			gain, threshold, ok = t.scanClassification(pairs)
		}
		if ok && gain > bestGain {
			bestGain = gain
			bestFeature = feature
			bestThreshold = threshold
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

type splitPair struct {
	v float64
	y float64
}

func (t *DecisionTree) scanClassification(pairs []splitPair) (float64, float64, bool) {
	n := len(pairs)
	total := make([]float64, t.NumClasses)
	for _, p := range pairs {
		total[int(p.y)]++
	}
	parent := gini(total, float64(n))

	left := make([]float64, t.NumClasses)
	bestGain, bestThreshold := 0.0, 0.0
	found := false
	for k := 0; k < n-1; k++ {
		left[int(pairs[k].y)]++
		if pairs[k].v == pairs[k+1].v {
			continue
		}
		nLeft := float64(k + 1)
		nRight := float64(n - k - 1)
		if int(nLeft) < t.MinSamplesLeaf || int(nRight) < t.MinSamplesLeaf {
			continue
		}
		right := make([]float64, t.NumClasses)
		for j := range right {
			right[j] = total[j] - left[j]
		}
		weighted := (nLeft*gini(left, nLeft) + nRight*gini(right, nRight)) / float64(n)
		if gain := parent - weighted; gain > bestGain {
			bestGain = gain
			bestThreshold = (pairs[k].v + pairs[k+1].v) / 2
			found = true
		}
	}
	return bestGain, bestThreshold, found
}

func (t *DecisionTree) scanRegression(pairs []splitPair) (float64, float64, bool) {
	n := len(pairs)
	var sum, sumSq float64
	for _, p := range pairs {
		sum += p.y
		sumSq += p.y * p.y
	}
	parentSSE := sumSq - sum*sum/float64(n)

	var leftSum, leftSumSq float64
	bestGain, bestThreshold := 0.0, 0.0
	found := false
	for k := 0; k < n-1; k++ {
		leftSum += pairs[k].y
		leftSumSq += pairs[k].y * pairs[k].y
		if pairs[k].v == pairs[k+1].v {
			continue
		}
		nLeft := float64(k + 1)
		nRight := float64(n - k - 1)
		if int(nLeft) < t.MinSamplesLeaf || int(nRight) < t.MinSamplesLeaf {
			continue
		}
		rightSum := sum - leftSum
		rightSumSq := sumSq - leftSumSq
		leftSSE := leftSumSq - leftSum*leftSum/nLeft
		rightSSE := rightSumSq - rightSum*rightSum/nRight
		if gain := parentSSE - leftSSE - rightSSE; gain > bestGain {
			bestGain = gain
			bestThreshold = (pairs[k].v + pairs[k+1].v) / 2
			found = true
		}
	}
	return bestGain, bestThreshold, found
}

func gini(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}
