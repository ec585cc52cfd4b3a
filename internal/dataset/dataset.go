package dataset

import (
	"fmt"
	"math"
)

// Type is the inferred semantic type of a column. Downstream components
// branch on this, never on the source file format.
type Type string

const (
	TypeNumeric     Type = "numeric"
	TypeCategorical Type = "categorical"
	TypeDatetime    Type = "datetime"
	TypeText        Type = "text"
)

// Format identifies the source file format of a dataset.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatJSON    Format = "json"
	FormatNDJSON  Format = "ndjson"
	FormatParquet Format = "parquet"
	FormatExcel   Format = "excel"
)

// Column holds one column of a loaded dataset. Values keeps the raw cell
// text; Floats carries parsed values for numeric and datetime columns
// (datetime as epoch seconds), NaN where a cell is missing or unparseable.
type Column struct {
	Name    string
	Type    Type
	Values  []string
	Missing []bool
	Floats  []float64
}

// Dataset is the in-memory tabular structure produced by the loader.
// It is rebuilt from disk on every tool call; nothing caches it.
type Dataset struct {
	Path     string // workspace-relative
	Format   Format
	FileSize int64
	Columns  []Column
	Rows     int
}

// Column returns the column with the given name and its schema index.
func (d *Dataset) Column(name string) (*Column, int, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], i, true
		}
	}
	return nil, -1, false
}

// ColumnNames returns the schema-ordered column names.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// NumericColumns returns schema-ordered indexes of numeric columns.
func (d *Dataset) NumericColumns() []int {
	var idx []int
	for i, c := range d.Columns {
		if c.Type == TypeNumeric {
			idx = append(idx, i)
		}
	}
	return idx
}

// NonMissing returns the parsed float values of the column's present cells.
func (c *Column) NonMissing() []float64 {
	var out []float64
	for i, v := range c.Floats {
		if !c.Missing[i] && !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Distinct counts distinct non-missing values.
func (c *Column) Distinct() int {
	seen := make(map[string]struct{})
	for i, v := range c.Values {
		if c.Missing[i] {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

// MissingCount counts missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.Missing {
		if m {
			n++
		}
	}
	return n
}

// HumanSize renders a byte count compactly for reports.
func HumanSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	idx := 0
	v := float64(n)
	for v >= 1024 && idx < len(units)-1 {
		v /= 1024
		idx++
	}
	if idx == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", v, units[idx])
}
