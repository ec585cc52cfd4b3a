package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"datalab/internal/dataset"
)

// ErrNoUsableFeatures is returned when no feature columns survive filtering.
var ErrNoUsableFeatures = errors.New("no usable feature columns")

// DefaultCardinalityCap bounds one-hot encoding width; categorical columns
// with more distinct values are dropped from the feature set with a warning.
const DefaultCardinalityCap = 50

// Options tunes spec construction.
type Options struct {
	CardinalityCap int
	// Overrides forces a column into the numeric or categorical partition
	// regardless of its inferred type.
	Overrides map[string]dataset.Type
}

// Spec is the deterministic transformation plan for one modeling run:
// median imputation + standardization for numeric features, most-frequent
// imputation + one-hot encoding for low-cardinality categorical features.
// Identical schema + target always produce an identical Spec.
type Spec struct {
	Target         string   `json:"target"`
	Numeric        []string `json:"numeric"`
	Categorical    []string `json:"categorical"`
	Dropped        []string `json:"dropped,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	CardinalityCap int      `json:"cardinality_cap"`
}

// Build partitions feature columns by semantic type, in schema order.
func Build(ds *dataset.Dataset, target string, opts Options) (*Spec, error) {
	cap := opts.CardinalityCap
	if cap <= 0 {
		cap = DefaultCardinalityCap
	}
	spec := &Spec{Target: target, CardinalityCap: cap}

	for i := range ds.Columns {
		col := &ds.Columns[i]
		if col.Name == target {
			continue
		}
		colType := col.Type
		if override, ok := opts.Overrides[col.Name]; ok {
			colType = override
		}
		switch colType {
		case dataset.TypeNumeric:
			spec.Numeric = append(spec.Numeric, col.Name)
		case dataset.TypeCategorical:
			if distinct := col.Distinct(); distinct > cap {
				spec.Dropped = append(spec.Dropped, col.Name)
				spec.Warnings = append(spec.Warnings, fmt.Sprintf(
					"dropped %q: %d distinct values exceed the cardinality cap of %d",
					col.Name, distinct, cap))
				continue
			}
			spec.Categorical = append(spec.Categorical, col.Name)
		default:
			spec.Dropped = append(spec.Dropped, col.Name)
			spec.Warnings = append(spec.Warnings, fmt.Sprintf(
				"dropped %q: %s columns are not used as features", col.Name, colType))
		}
	}

	if len(spec.Numeric)+len(spec.Categorical) == 0 {
		return nil, fmt.Errorf("%w for target %q", ErrNoUsableFeatures, target)
	}
	return spec, nil
}

// Fitted holds the imputation, encoding and scaling parameters learned from
// training rows only. All fields are exported so a fitted pipeline can be
// gob-serialized as a session artifact.
type Fitted struct {
	Spec       *Spec
	Medians    map[string]float64
	Means      map[string]float64
	Stds       map[string]float64
	Modes      map[string]string
	Categories map[string][]string

	names []string
}

// Fit learns transformation parameters from the given row indexes.
func Fit(ds *dataset.Dataset, spec *Spec, rows []int) (*Fitted, error) {
	f := &Fitted{
		Spec:       spec,
		Medians:    make(map[string]float64),
		Means:      make(map[string]float64),
		Stds:       make(map[string]float64),
		Modes:      make(map[string]string),
		Categories: make(map[string][]string),
	}

	for _, name := range spec.Numeric {
		col, _, ok := ds.Column(name)
		if !ok {
			return nil, fmt.Errorf("numeric feature %q not in dataset", name)
		}
		var present []float64
		for _, i := range rows {
			if v := floatAt(col, i); !col.Missing[i] && !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		median := median(present)
		f.Medians[name] = median

		// Mean/std are computed on the imputed training values, matching
		// what Transform will feed the estimator.
		sum := 0.0
		for _, i := range rows {
			sum += imputed(col, i, median)
		}
		mean := sum / float64(len(rows))
		variance := 0.0
		for _, i := range rows {
			d := imputed(col, i, median) - mean
			variance += d * d
		}
		variance /= float64(len(rows))
		std := math.Sqrt(variance)
		if std == 0 {
			std = 1
		}
		f.Means[name] = mean
		f.Stds[name] = std
	}

	for _, name := range spec.Categorical {
		col, _, ok := ds.Column(name)
		if !ok {
			return nil, fmt.Errorf("categorical feature %q not in dataset", name)
		}
		counts := make(map[string]int)
		for _, i := range rows {
			if !col.Missing[i] {
				counts[col.Values[i]]++
			}
		}
		mode := ""
		for v, c := range counts {
			if c > counts[mode] || (c == counts[mode] && (mode == "" || v < mode)) {
				mode = v
			}
		}
		f.Modes[name] = mode

		categories := make([]string, 0, len(counts))
		for v := range counts {
			categories = append(categories, v)
		}
		sort.Strings(categories)
		f.Categories[name] = categories
	}

	f.names = buildFeatureNames(f)
	return f, nil
}

// Transform produces the feature matrix for the given row indexes. Unknown
// categories encode to an all-zero block; the fit is never updated.
func (f *Fitted) Transform(ds *dataset.Dataset, rows []int) [][]float64 {
	out := make([][]float64, len(rows))
	for r, i := range rows {
		row := make([]float64, 0, len(f.FeatureNames()))
		for _, name := range f.Spec.Numeric {
			col, _, _ := ds.Column(name)
			v := imputed(col, i, f.Medians[name])
			row = append(row, (v-f.Means[name])/f.Stds[name])
		}
		for _, name := range f.Spec.Categorical {
			col, _, _ := ds.Column(name)
			value := col.Values[i]
			if col.Missing[i] {
				value = f.Modes[name]
			}
			for _, category := range f.Categories[name] {
				if value == category {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
		out[r] = row
	}
	return out
}

// FeatureNames returns the transformed feature names in output order.
func (f *Fitted) FeatureNames() []string {
	if f.names == nil {
		f.names = buildFeatureNames(f)
	}
	return f.names
}

func buildFeatureNames(f *Fitted) []string {
	var names []string
	names = append(names, f.Spec.Numeric...)
	for _, name := range f.Spec.Categorical {
		for _, category := range f.Categories[name] {
			names = append(names, name+"="+category)
		}
	}
	return names
}

func imputed(col *dataset.Column, i int, median float64) float64 {
	v := floatAt(col, i)
	if col.Missing[i] || math.IsNaN(v) {
		return median
	}
	return v
}

// floatAt reads the parsed numeric value. Columns without parsed floats,
// such as a categorical column forced into the numeric partition, read as
// all-missing.
func floatAt(col *dataset.Column, i int) float64 {
	if i >= len(col.Floats) {
		return math.NaN()
	}
	return col.Floats[i]
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
