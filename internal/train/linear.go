package train

import "math"

// Baseline linear models trained by full-batch gradient descent, in the
// manner of the mini-batch SGD models this package is derived from. Weights
// start at zero so a fixed dataset always trains to the same coefficients.

const (
	defaultLearningRate = 0.1
	defaultEpochs       = 500
)

// LinearRegression is the least-squares baseline.
type LinearRegression struct {
	Weights      []float64
	Bias         float64
	LearningRate float64
	Epochs       int
}

// NewLinearRegression returns a model with the default schedule.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{LearningRate: defaultLearningRate, Epochs: defaultEpochs}
}

// Fit trains on X (rows of standardized features) against y.
func (m *LinearRegression) Fit(X [][]float64, y []float64) {
	if len(X) == 0 {
		return
	}
	p := len(X[0])
	m.Weights = make([]float64, p)
	m.Bias = 0
	n := float64(len(X))

	for epoch := 0; epoch < m.Epochs; epoch++ {
		gradW := make([]float64, p)
		gradB := 0.0
		for i, row := range X {
			pred := m.Bias
			for j, v := range row {
				pred += m.Weights[j] * v
			}
			d := pred - y[i]
			for j, v := range row {
				gradW[j] += d * v
			}
			gradB += d
		}
		for j := range m.Weights {
			m.Weights[j] -= m.LearningRate * gradW[j] / n
		}
		m.Bias -= m.LearningRate * gradB / n
	}
}

// Predict returns point predictions for rows in X.
func (m *LinearRegression) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		pred := m.Bias
		for j, v := range row {
			pred += m.Weights[j] * v
		}
		out[i] = pred
	}
	return out
}

// LogisticRegression is a binary classifier with a sigmoid link; multiclass
// problems wrap it one-vs-rest (see OneVsRest).
type LogisticRegression struct {
	Weights      []float64
	Bias         float64
	LearningRate float64
	Epochs       int
}

// NewLogisticRegression returns a model with the default schedule.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{LearningRate: defaultLearningRate, Epochs: defaultEpochs}
}

// Fit trains on X against binary targets y (0 or 1).
func (m *LogisticRegression) Fit(X [][]float64, y []float64) {
	if len(X) == 0 {
		return
	}
	p := len(X[0])
	m.Weights = make([]float64, p)
	m.Bias = 0
	n := float64(len(X))

	for epoch := 0; epoch < m.Epochs; epoch++ {
		gradW := make([]float64, p)
		gradB := 0.0
		for i, row := range X {
			prob := sigmoid(m.score(row))
			d := prob - y[i]
			for j, v := range row {
				gradW[j] += d * v
			}
			gradB += d
		}
		for j := range m.Weights {
			m.Weights[j] -= m.LearningRate * gradW[j] / n
		}
		m.Bias -= m.LearningRate * gradB / n
	}
}

// PredictProba returns the positive-class probability per row.
func (m *LogisticRegression) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = sigmoid(m.score(row))
	}
	return out
}

func (m *LogisticRegression) score(row []float64) float64 {
	s := m.Bias
	for j, v := range row {
		s += m.Weights[j] * v
	}
	return s
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// OneVsRest lifts the binary logistic model to k classes by training one
// model per class and normalizing the per-class scores.
type OneVsRest struct {
	Models     []*LogisticRegression
	NumClasses int
}

// NewOneVsRest returns an untrained k-class wrapper.
func NewOneVsRest(numClasses int) *OneVsRest {
	return &OneVsRest{NumClasses: numClasses}
}

// Fit trains one binary model per class index.
func (o *OneVsRest) Fit(X [][]float64, y []int) {
	o.Models = make([]*LogisticRegression, o.NumClasses)
	for class := 0; class < o.NumClasses; class++ {
		binary := make([]float64, len(y))
		for i, label := range y {
			if label == class {
				binary[i] = 1
			}
		}
		model := NewLogisticRegression()
		model.Fit(X, binary)
		o.Models[class] = model
	}
}

// PredictProba returns normalized per-class probabilities.
func (o *OneVsRest) PredictProba(X [][]float64) [][]float64 {
	scores := make([][]float64, len(X))
	for i := range scores {
		scores[i] = make([]float64, o.NumClasses)
	}
	for class, model := range o.Models {
		probs := model.PredictProba(X)
		for i, p := range probs {
			scores[i][class] = p
		}
	}
	for i := range scores {
		total := 0.0
		for _, s := range scores[i] {
			total += s
		}
		if total > 0 {
			for j := range scores[i] {
				scores[i][j] /= total
			}
		}
	}
	return scores
}

// Predict returns the argmax class per row.
func (o *OneVsRest) Predict(X [][]float64) []int {
	probs := o.PredictProba(X)
	out := make([]int, len(X))
	for i, row := range probs {
		out[i] = argmax(row)
	}
	return out
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
