package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Inference constants. A column is numeric (or datetime) when at least
// numericVoteRatio of the sampled non-missing cells parse as such.
const (
	inferSampleSize  = 1000
	numericVoteRatio = 0.95
	textMinLength    = 20.0
	textMinValues    = 20
)

var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

func isMissing(cell string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

func parseDatetime(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// build assembles a Dataset from raw cells, inferring a semantic type per
// column by majority vote over a sample of its non-missing values.
func build(headers []string, rows [][]string) *Dataset {
	ds := &Dataset{Rows: len(rows)}
	ds.Columns = make([]Column, len(headers))

	for j, name := range headers {
		col := Column{
			Name:    strings.TrimSpace(name),
			Values:  make([]string, len(rows)),
			Missing: make([]bool, len(rows)),
		}
		for i, row := range rows {
			cell := strings.TrimSpace(row[j])
			col.Missing[i] = isMissing(cell)
			if !col.Missing[i] {
				col.Values[i] = cell
			}
		}
		col.Type = inferType(&col)
		fillFloats(&col)
		ds.Columns[j] = col
	}
	return ds
}

func inferType(col *Column) Type {
	var sample []string
	for i, v := range col.Values {
		if col.Missing[i] {
			continue
		}
		sample = append(sample, v)
		if len(sample) >= inferSampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return TypeCategorical
	}

	numeric, datetime := 0, 0
	totalLen := 0
	distinct := make(map[string]struct{}, len(sample))
	for _, v := range sample {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numeric++
		} else if _, ok := parseDatetime(v); ok {
			datetime++
		}
		totalLen += len(v)
		distinct[v] = struct{}{}
	}

	threshold := numericVoteRatio * float64(len(sample))
	if float64(numeric) >= threshold {
		return TypeNumeric
	}
	if float64(datetime) >= threshold {
		return TypeDatetime
	}
	// Free-form text: every sampled value unique and long on average.
	if len(sample) >= textMinValues &&
		len(distinct) == len(sample) &&
		float64(totalLen)/float64(len(sample)) > textMinLength {
		return TypeText
	}
	return TypeCategorical
}

// fillFloats parses numeric and datetime columns into Floats; datetime
// values become epoch seconds so a datetime target can still be regressed.
func fillFloats(col *Column) {
	if col.Type != TypeNumeric && col.Type != TypeDatetime {
		return
	}
	col.Floats = make([]float64, len(col.Values))
	for i, v := range col.Values {
		col.Floats[i] = math.NaN()
		if col.Missing[i] {
			continue
		}
		if col.Type == TypeNumeric {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				col.Floats[i] = f
			}
			continue
		}
		if t, ok := parseDatetime(v); ok {
			col.Floats[i] = float64(t.Unix())
		}
	}
}
