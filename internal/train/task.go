package train

import (
	"math"

	"datalab/internal/dataset"
)

// TaskType is the inferred modeling problem kind.
type TaskType string

const (
	TaskClassification TaskType = "classification"
	TaskRegression     TaskType = "regression"
)

// classificationDistinctMax is the distinct-value cutoff below which a
// whole-number numeric target is treated as class labels.
const classificationDistinctMax = 20

// InferTaskType decides classification vs regression from the target
// column's value distribution, restricted to the given row indexes.
func InferTaskType(col *dataset.Column, rows []int) TaskType {
	if col.Type == dataset.TypeCategorical || col.Type == dataset.TypeText {
		return TaskClassification
	}
	if col.Type == dataset.TypeDatetime {
		return TaskRegression
	}

	distinct := make(map[float64]struct{})
	whole := true
	for _, i := range rows {
		v := col.Floats[i]
		if col.Missing[i] || math.IsNaN(v) {
			continue
		}
		distinct[v] = struct{}{}
		if v != math.Trunc(v) {
			whole = false
		}
	}
	if whole && len(distinct) > 0 && len(distinct) <= classificationDistinctMax {
		return TaskClassification
	}
	return TaskRegression
}
