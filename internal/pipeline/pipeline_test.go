package pipeline

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"datalab/internal/dataset"
)

func buildTestDataset() *dataset.Dataset {
	age := dataset.Column{
		Name:    "age",
		Type:    dataset.TypeNumeric,
		Values:  []string{"10", "20", "", "40"},
		Missing: []bool{false, false, true, false},
		Floats:  []float64{10, 20, math.NaN(), 40},
	}
	city := dataset.Column{
		Name:    "city",
		Type:    dataset.TypeCategorical,
		Values:  []string{"paris", "lyon", "paris", ""},
		Missing: []bool{false, false, false, true},
	}
	target := dataset.Column{
		Name:    "label",
		Type:    dataset.TypeCategorical,
		Values:  []string{"a", "b", "a", "b"},
		Missing: []bool{false, false, false, false},
	}
	return &dataset.Dataset{
		Path:    "test.csv",
		Columns: []dataset.Column{age, city, target},
		Rows:    4,
	}
}

func TestBuildPartitions(t *testing.T) {
	ds := buildTestDataset()
	spec, err := Build(ds, "label", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(spec.Numeric, []string{"age"}) {
		t.Errorf("numeric = %v, want [age]", spec.Numeric)
	}
	if !reflect.DeepEqual(spec.Categorical, []string{"city"}) {
		t.Errorf("categorical = %v, want [city]", spec.Categorical)
	}
	if len(spec.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", spec.Warnings)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	ds := buildTestDataset()
	first, err := Build(ds, "label", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build(ds, "label", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two builds differ:\n%+v\n%+v", first, second)
	}
}

func TestBuildDropsHighCardinality(t *testing.T) {
	n := 60
	id := dataset.Column{
		Name:    "id",
		Type:    dataset.TypeCategorical,
		Values:  make([]string, n),
		Missing: make([]bool, n),
	}
	x := dataset.Column{
		Name:    "x",
		Type:    dataset.TypeNumeric,
		Values:  make([]string, n),
		Missing: make([]bool, n),
		Floats:  make([]float64, n),
	}
	y := dataset.Column{
		Name:    "y",
		Type:    dataset.TypeNumeric,
		Values:  make([]string, n),
		Missing: make([]bool, n),
		Floats:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		id.Values[i] = fmt.Sprintf("user-%d", i)
		x.Floats[i] = float64(i)
		y.Floats[i] = float64(i * 2)
	}
	ds := &dataset.Dataset{Columns: []dataset.Column{id, x, y}, Rows: n}

	spec, err := Build(ds, "y", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(spec.Dropped, []string{"id"}) {
		t.Errorf("dropped = %v, want [id]", spec.Dropped)
	}
	if len(spec.Warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", spec.Warnings)
	}
	if !reflect.DeepEqual(spec.Numeric, []string{"x"}) {
		t.Errorf("numeric = %v, want [x]", spec.Numeric)
	}
}

func TestBuildNoUsableFeatures(t *testing.T) {
	only := dataset.Column{
		Name:    "label",
		Type:    dataset.TypeNumeric,
		Values:  []string{"1", "2"},
		Missing: []bool{false, false},
		Floats:  []float64{1, 2},
	}
	ds := &dataset.Dataset{Columns: []dataset.Column{only}, Rows: 2}
	if _, err := Build(ds, "label", Options{}); !errors.Is(err, ErrNoUsableFeatures) {
		t.Errorf("Build: got %v, want ErrNoUsableFeatures", err)
	}
}

func TestBuildOverride(t *testing.T) {
	ds := buildTestDataset()
	spec, err := Build(ds, "label", Options{
		Overrides: map[string]dataset.Type{"age": dataset.TypeCategorical},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(spec.Categorical, []string{"age", "city"}) {
		t.Errorf("categorical = %v, want [age city]", spec.Categorical)
	}
}

func TestFitTransform(t *testing.T) {
	ds := buildTestDataset()
	spec, err := Build(ds, "label", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	train := []int{0, 1, 3}
	fitted, err := Fit(ds, spec, train)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	// Median of {10, 20, 40} is 20; the missing city cell imputes to the
	// most frequent training value "paris".
	if fitted.Medians["age"] != 20 {
		t.Errorf("median = %v, want 20", fitted.Medians["age"])
	}
	if fitted.Modes["city"] != "paris" {
		t.Errorf("mode = %q, want paris", fitted.Modes["city"])
	}
	if !reflect.DeepEqual(fitted.Categories["city"], []string{"lyon", "paris"}) {
		t.Errorf("categories = %v, want [lyon paris]", fitted.Categories["city"])
	}

	wantNames := []string{"age", "city=lyon", "city=paris"}
	if !reflect.DeepEqual(fitted.FeatureNames(), wantNames) {
		t.Errorf("feature names = %v, want %v", fitted.FeatureNames(), wantNames)
	}

	matrix := fitted.Transform(ds, []int{0, 1, 2, 3})
	if len(matrix) != 4 || len(matrix[0]) != 3 {
		t.Fatalf("matrix shape = %dx%d, want 4x3", len(matrix), len(matrix[0]))
	}
	// Row 2: age missing -> median 20; one-hot paris.
	if matrix[2][1] != 0 || matrix[2][2] != 1 {
		t.Errorf("row 2 encoding = %v, want city=paris", matrix[2])
	}
	// Row 3: city missing -> mode paris.
	if matrix[3][2] != 1 {
		t.Errorf("row 3 encoding = %v, want city=paris via mode", matrix[3])
	}

	// Standardization over the imputed training values keeps mean zero.
	sum := 0.0
	for _, r := range train {
		sum += matrix[r][0]
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("standardized training mean = %v, want 0", sum/3)
	}
}

func TestFitNumericOverrideOnCategoricalColumn(t *testing.T) {
	// A categorical column forced into the numeric partition has no parsed
	// floats; every cell imputes to the (empty) median instead of panicking.
	ds := buildTestDataset()
	spec, err := Build(ds, "label", Options{
		Overrides: map[string]dataset.Type{"city": dataset.TypeNumeric},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(spec.Numeric, []string{"age", "city"}) {
		t.Fatalf("numeric = %v, want [age city]", spec.Numeric)
	}

	fitted, err := Fit(ds, spec, []int{0, 1, 3})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	matrix := fitted.Transform(ds, []int{0, 1, 2, 3})
	for r, row := range matrix {
		if row[1] != 0 {
			t.Errorf("row %d city = %v, want 0 (all values imputed)", r, row[1])
		}
	}
}

func TestTransformUnknownCategoryEncodesZero(t *testing.T) {
	ds := buildTestDataset()
	spec, err := Build(ds, "label", Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Fit only on rows where city is paris or missing.
	fitted, err := Fit(ds, spec, []int{0, 2, 3})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	matrix := fitted.Transform(ds, []int{1}) // city=lyon, unseen during fit
	for i, v := range matrix[0][1:] {
		if v != 0 {
			t.Errorf("one-hot slot %d = %v, want 0 for unknown category", i, v)
		}
	}
}
