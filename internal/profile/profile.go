package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"datalab/internal/dataset"
)

var (
	// ErrInsufficientData is returned for empty datasets, or for correlation
	// when fewer than two numeric columns exist.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrTargetMissing is returned when a named target is not in the schema.
	ErrTargetMissing = errors.New("target column not in schema")
	// ErrTargetNotNumeric is returned when the correlation target is not numeric.
	ErrTargetNotNumeric = errors.New("target column is not numeric")
)

const (
	maxSampleRows     = 10
	topCategoryCount  = 5
	corrMinAbs        = 0.3
	nearConstantRatio = 0.01
	nearUniqueRatio   = 0.95
)

// CategoryCount is one categorical value with its occurrence count.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnStats carries per-column descriptive statistics for the overview.
type ColumnStats struct {
	Name     string       `json:"name"`
	Type     dataset.Type `json:"type"`
	Count    int          `json:"count"`
	Missing  int          `json:"missing"`
	Distinct int          `json:"distinct"`

	// Numeric columns only.
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mean float64 `json:"mean,omitempty"`
	Std  float64 `json:"std,omitempty"`

	// Categorical columns only.
	TopCategories []CategoryCount `json:"top_categories,omitempty"`
}

// OverviewReport is an immutable snapshot of schema, stats and a row sample.
type OverviewReport struct {
	Path     string        `json:"path"`
	Format   string        `json:"format"`
	FileSize string        `json:"file_size"`
	Rows     int           `json:"rows"`
	Columns  int           `json:"columns"`
	Stats    []ColumnStats `json:"stats"`
	Sample   [][]string    `json:"sample"`
}

// ColumnQuality carries missingness and cardinality flags for one column.
type ColumnQuality struct {
	Name         string  `json:"name"`
	MissingRatio float64 `json:"missing_ratio"`
	Distinct     int     `json:"distinct"`
	NearConstant bool    `json:"near_constant"`
	NearUnique   bool    `json:"near_unique"`
}

// QualityReport is derived from a loaded dataset plus its overview stats.
type QualityReport struct {
	Path          string          `json:"path"`
	Rows          int             `json:"rows"`
	DuplicateRows int             `json:"duplicate_rows"`
	Columns       []ColumnQuality `json:"columns"`
}

// CorrelationEntry is one (feature, other-or-target, coefficient) triple.
type CorrelationEntry struct {
	Feature     string  `json:"feature"`
	Other       string  `json:"other"`
	Coefficient float64 `json:"coefficient"`
}

// CorrelationReport ranks Pearson correlations between numeric columns.
type CorrelationReport struct {
	Path    string             `json:"path"`
	Target  string             `json:"target,omitempty"`
	Entries []CorrelationEntry `json:"entries"`
}

// Overview profiles schema, per-column stats and a bounded row sample.
func Overview(ds *dataset.Dataset, sampleRows int) (*OverviewReport, error) {
	if ds.Rows == 0 {
		return nil, fmt.Errorf("%w: dataset has zero rows", ErrInsufficientData)
	}
	if sampleRows <= 0 || sampleRows > maxSampleRows {
		sampleRows = maxSampleRows
	}

	report := &OverviewReport{
		Path:     ds.Path,
		Format:   string(ds.Format),
		FileSize: dataset.HumanSize(ds.FileSize),
		Rows:     ds.Rows,
		Columns:  len(ds.Columns),
	}
	for i := range ds.Columns {
		report.Stats = append(report.Stats, columnStats(&ds.Columns[i]))
	}

	n := sampleRows
	if n > ds.Rows {
		n = ds.Rows
	}
	for i := 0; i < n; i++ {
		row := make([]string, len(ds.Columns))
		for j := range ds.Columns {
			row[j] = ds.Columns[j].Values[i]
		}
		report.Sample = append(report.Sample, row)
	}
	return report, nil
}

// Quality reports missingness ratios, duplicate rows and cardinality flags.
func Quality(ds *dataset.Dataset) (*QualityReport, error) {
	if ds.Rows == 0 {
		return nil, fmt.Errorf("%w: dataset has zero rows", ErrInsufficientData)
	}
	report := &QualityReport{Path: ds.Path, Rows: ds.Rows}

	for i := range ds.Columns {
		col := &ds.Columns[i]
		distinct := col.Distinct()
		ratio := float64(distinct) / float64(ds.Rows)
		report.Columns = append(report.Columns, ColumnQuality{
			Name:         col.Name,
			MissingRatio: float64(col.MissingCount()) / float64(ds.Rows),
			Distinct:     distinct,
			NearConstant: ratio < nearConstantRatio,
			NearUnique:   ratio > nearUniqueRatio,
		})
	}

	seen := make(map[string]struct{}, ds.Rows)
	for i := 0; i < ds.Rows; i++ {
		var b strings.Builder
		for j := range ds.Columns {
			b.WriteString(ds.Columns[j].Values[i])
			b.WriteByte(0x1f)
		}
		key := b.String()
		if _, dup := seen[key]; dup {
			report.DuplicateRows++
		} else {
			seen[key] = struct{}{}
		}
	}
	return report, nil
}

// Correlation ranks Pearson correlations among numeric columns. With a
// target, every other numeric column is ranked by |r| against it; without
// one, all pairs at or above the minimum threshold are reported. Ranking is
// stable: ties keep the original schema order.
func Correlation(ds *dataset.Dataset, target string) (*CorrelationReport, error) {
	if ds.Rows == 0 {
		return nil, fmt.Errorf("%w: dataset has zero rows", ErrInsufficientData)
	}
	numeric := ds.NumericColumns()
	if len(numeric) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 numeric columns, have %d",
			ErrInsufficientData, len(numeric))
	}

	report := &CorrelationReport{Path: ds.Path, Target: target}

	if target != "" {
		targetCol, targetIdx, ok := ds.Column(target)
		if !ok {
			return nil, fmt.Errorf("%w: %q; available columns: %s",
				ErrTargetMissing, target, strings.Join(ds.ColumnNames(), ", "))
		}
		if targetCol.Type != dataset.TypeNumeric {
			return nil, fmt.Errorf("%w: %q has type %s", ErrTargetNotNumeric, target, targetCol.Type)
		}
		for _, idx := range numeric {
			if idx == targetIdx {
				continue
			}
			r, ok := pearson(&ds.Columns[idx], targetCol)
			if !ok {
				continue
			}
			report.Entries = append(report.Entries, CorrelationEntry{
				Feature:     ds.Columns[idx].Name,
				Other:       target,
				Coefficient: r,
			})
		}
	} else {
		for a := 0; a < len(numeric); a++ {
			for b := a + 1; b < len(numeric); b++ {
				r, ok := pearson(&ds.Columns[numeric[a]], &ds.Columns[numeric[b]])
				if !ok || math.Abs(r) < corrMinAbs {
					continue
				}
				report.Entries = append(report.Entries, CorrelationEntry{
					Feature:     ds.Columns[numeric[a]].Name,
					Other:       ds.Columns[numeric[b]].Name,
					Coefficient: r,
				})
			}
		}
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		return math.Abs(report.Entries[i].Coefficient) > math.Abs(report.Entries[j].Coefficient)
	})
	return report, nil
}

func columnStats(col *dataset.Column) ColumnStats {
	stats := ColumnStats{
		Name:     col.Name,
		Type:     col.Type,
		Count:    len(col.Values) - col.MissingCount(),
		Missing:  col.MissingCount(),
		Distinct: col.Distinct(),
	}

	if col.Type == dataset.TypeNumeric {
		values := col.NonMissing()
		if len(values) > 0 {
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)
			stats.Min = sorted[0]
			stats.Max = sorted[len(sorted)-1]
			stats.Mean = stat.Mean(values, nil)
			if len(values) > 1 {
				stats.Std = stat.StdDev(values, nil)
			}
		}
		return stats
	}

	if col.Type == dataset.TypeCategorical {
		counts := make(map[string]int)
		for i, v := range col.Values {
			if !col.Missing[i] {
				counts[v]++
			}
		}
		top := make([]CategoryCount, 0, len(counts))
		for v, c := range counts {
			top = append(top, CategoryCount{Value: v, Count: c})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].Count != top[j].Count {
				return top[i].Count > top[j].Count
			}
			return top[i].Value < top[j].Value
		})
		if len(top) > topCategoryCount {
			top = top[:topCategoryCount]
		}
		stats.TopCategories = top
	}
	return stats
}

// pearson computes the correlation over pairwise-complete observations.
func pearson(a, b *dataset.Column) (float64, bool) {
	var xs, ys []float64
	for i := range a.Floats {
		if a.Missing[i] || b.Missing[i] || math.IsNaN(a.Floats[i]) || math.IsNaN(b.Floats[i]) {
			continue
		}
		xs = append(xs, a.Floats[i])
		ys = append(ys, b.Floats[i])
	}
	if len(xs) < 2 {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	return r, true
}
