package train

import (
	"math"
	"math/rand"
	"sync"
)

// RandomForest bags seeded CART trees with bootstrap sampling and feature
// subsampling. Each tree derives its own seed from the forest seed, so a
// fixed seed always grows an identical forest regardless of the parallel
// fit order.
type RandomForest struct {
	NumTrees       int
	MaxDepth       int
	MinSamplesLeaf int
	Regression     bool
	NumClasses     int
	Seed           int64
	Trees          []*DecisionTree
}

const defaultForestSize = 100

// NewRandomForest returns an untrained forest with default shape.
func NewRandomForest(regression bool, numClasses int, seed int64) *RandomForest {
	return &RandomForest{
		NumTrees:       defaultForestSize,
		MaxDepth:       10,
		MinSamplesLeaf: 1,
		Regression:     regression,
		NumClasses:     numClasses,
		Seed:           seed,
	}
}

// Fit grows the trees, in parallel.
func (f *RandomForest) Fit(X [][]float64, y []float64) {
	if len(X) == 0 {
		return
	}
	p := len(X[0])
	maxFeatures := int(math.Sqrt(float64(p)))
	if f.Regression {
		maxFeatures = p / 3
	}
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	f.Trees = make([]*DecisionTree, f.NumTrees)
	var wg sync.WaitGroup
	for t := 0; t < f.NumTrees; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			treeSeed := f.Seed + int64(t)*7919
			rng := rand.New(rand.NewSource(treeSeed))

			sampleX := make([][]float64, len(X))
			sampleY := make([]float64, len(y))
			for i := range sampleX {
				pick := rng.Intn(len(X))
				sampleX[i] = X[pick]
				sampleY[i] = y[pick]
			}

			tree := &DecisionTree{
				MaxDepth:       f.MaxDepth,
				MinSamplesLeaf: f.MinSamplesLeaf,
				MaxFeatures:    maxFeatures,
				Regression:     f.Regression,
				NumClasses:     f.NumClasses,
				Seed:           treeSeed,
			}
			tree.Fit(sampleX, sampleY)
			f.Trees[t] = tree
		}(t)
	}
	wg.Wait()
}

// Predict averages tree outputs: mean for regression, argmax of the
// averaged class distribution for classification.
func (f *RandomForest) Predict(X [][]float64) []float64 {
	if f.Regression {
		out := make([]float64, len(X))
		for _, tree := range f.Trees {
			for i, v := range tree.Predict(X) {
				out[i] += v
			}
		}
		for i := range out {
			out[i] /= float64(len(f.Trees))
		}
		return out
	}

	probs := f.PredictProba(X)
	out := make([]float64, len(X))
	for i, row := range probs {
		out[i] = float64(argmax(row))
	}
	return out
}

// PredictProba averages per-tree class distributions.
func (f *RandomForest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range out {
		out[i] = make([]float64, f.NumClasses)
	}
	for _, tree := range f.Trees {
		for i, dist := range tree.PredictProba(X) {
			for j, p := range dist {
				out[i][j] += p
			}
		}
	}
	for i := range out {
		for j := range out[i] {
			out[i][j] /= float64(len(f.Trees))
		}
	}
	return out
}
