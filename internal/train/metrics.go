package train

import (
	"math"
	"sort"
)

// Accuracy is the fraction of matching labels.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// PrecisionRecallF1 computes binary metrics for the given positive class.
func PrecisionRecallF1(yTrue, yPred []int, positive int) (prec, rec, f1 float64) {
	tp, fp, fn := 0, 0, 0
	for i := range yTrue {
		switch {
		case yPred[i] == positive && yTrue[i] == positive:
			tp++
		case yPred[i] == positive && yTrue[i] != positive:
			fp++
		case yPred[i] != positive && yTrue[i] == positive:
			fn++
		}
	}
	if tp+fp > 0 {
		prec = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		rec = float64(tp) / float64(tp+fn)
	}
	if prec+rec > 0 {
		f1 = 2 * prec * rec / (prec + rec)
	}
	return
}

// MacroPrecisionRecallF1 averages per-class binary metrics over numClasses
// classes with equal weight.
func MacroPrecisionRecallF1(yTrue, yPred []int, numClasses int) (prec, rec, f1 float64) {
	if numClasses == 0 {
		return
	}
	for class := 0; class < numClasses; class++ {
		p, r, f := PrecisionRecallF1(yTrue, yPred, class)
		prec += p
		rec += r
		f1 += f
	}
	n := float64(numClasses)
	return prec / n, rec / n, f1 / n
}

// ROCAUC computes the area under the ROC curve from positive-class scores
// using the rank statistic, with the midrank correction for tied scores.
func ROCAUC(yTrue []int, scores []float64) float64 {
	type pair struct {
		score float64
		label int
	}
	pairs := make([]pair, len(yTrue))
	for i := range yTrue {
		pairs[i] = pair{scores[i], yTrue[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	ranks := make([]float64, len(pairs))
	for i := 0; i < len(pairs); {
		j := i
		for j < len(pairs) && pairs[j].score == pairs[i].score {
			j++
		}
		mid := float64(i+j+1) / 2 // average of 1-based ranks i+1..j
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		i = j
	}

	var rankSum float64
	nPos, nNeg := 0, 0
	for i, p := range pairs {
		if p.label == 1 {
			rankSum += ranks[i]
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0
	}
	return (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg))
}

// R2 is the coefficient of determination.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))

	ssTot, ssRes := 0.0, 0.0
	for i := range yTrue {
		d := yTrue[i] - mean
		ssTot += d * d
		r := yTrue[i] - yPred[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	s := 0.0
	for i := range yTrue {
		s += math.Abs(yPred[i] - yTrue[i])
	}
	return s / float64(len(yTrue))
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	s := 0.0
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(yTrue)))
}
