package train

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"datalab/internal/dataset"
	"datalab/internal/pipeline"
)

var (
	// ErrTargetMissing is returned when the requested target column does not
	// exist in the dataset schema.
	ErrTargetMissing = errors.New("target column not found")
	// ErrInsufficientRows is returned when too few labeled rows remain to
	// split into train and test partitions.
	ErrInsufficientRows = errors.New("not enough rows with a target value")
	// ErrTargetNotNumeric is returned when regression is forced on a target
	// column that carries no numeric values.
	ErrTargetNotNumeric = errors.New("target column is not numeric")
	// ErrInvalidTaskType is returned for a task override outside the known set.
	ErrInvalidTaskType = errors.New("invalid problem type")
)

// minTrainingRows is the smallest labeled-row count worth modeling.
const minTrainingRows = 10

const (
	defaultTestSize = 0.2
	minTestSize     = 0.05
	maxTestSize     = 0.4
)

// Options tunes one modeling run. Zero values fall back to defaults, so
// Options{} runs the standard workflow.
type Options struct {
	TestSize       float64 // fraction of rows held out, default 0.2
	Seed           int64   // default 42
	MaxRows        int     // row cap before training, default 20000
	CardinalityCap int     // one-hot width cap, default pipeline.DefaultCardinalityCap
	// TaskOverride forces classification or regression instead of inferring
	// the task from the target column.
	TaskOverride TaskType
}

func (o Options) withDefaults() Options {
	if o.TestSize == 0 {
		o.TestSize = defaultTestSize
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	if o.MaxRows == 0 {
		o.MaxRows = 20000
	}
	return o
}

// Metric is one named score on the held-out partition.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ModelRun is one trained baseline with its test metrics.
type ModelRun struct {
	Name    string   `json:"name"`
	Metrics []Metric `json:"metrics"`
}

// Metric returns the named score, or NaN if the model was not scored on it.
func (m ModelRun) Metric(name string) float64 {
	for _, metric := range m.Metrics {
		if metric.Name == name {
			return metric.Value
		}
	}
	return math.NaN()
}

// Result is the full outcome of one automated modeling run. Pipeline and
// the fitted models are kept so a session can persist them as artifacts.
type Result struct {
	Target    string   `json:"target"`
	Task      TaskType `json:"task"`
	Seed      int64    `json:"seed"`
	RowsUsed  int      `json:"rows_used"`
	TrainRows int      `json:"train_rows"`
	TestRows  int      `json:"test_rows"`
	Classes   []string `json:"classes,omitempty"`

	Spec     *pipeline.Spec   `json:"pipeline"`
	Pipeline *pipeline.Fitted `json:"-"`
	Features []string         `json:"features"`

	Models   []ModelRun `json:"models"`
	Best     string     `json:"best_model"`
	Warnings []string   `json:"warnings,omitempty"`

	Linear   *LinearRegression   `json:"-"`
	Logistic *LogisticRegression `json:"-"`
	OVR      *OneVsRest          `json:"-"`
	Forest   *RandomForest       `json:"-"`
}

// Run executes the automated modeling workflow: infer the task, build and
// fit the preprocessing pipeline on training rows only, train the linear
// and random-forest baselines, and score them on the held-out partition.
// A fixed dataset, target and options always produce identical results.
func Run(ds *dataset.Dataset, target string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	switch opts.TaskOverride {
	case "", TaskClassification, TaskRegression:
	default:
		return nil, fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidTaskType, opts.TaskOverride, TaskClassification, TaskRegression)
	}

	col, _, ok := ds.Column(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q (columns: %s)",
			ErrTargetMissing, target, strings.Join(ds.ColumnNames(), ", "))
	}

	res := &Result{Target: target, Seed: opts.Seed}

	if opts.TestSize < minTestSize || opts.TestSize > maxTestSize {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"test_size %g outside [%g, %g], using %g",
			opts.TestSize, minTestSize, maxTestSize, defaultTestSize))
		opts.TestSize = defaultTestSize
	}

	// Rows without a target value cannot supervise anything.
	var rows []int
	for i := 0; i < ds.Rows; i++ {
		if col.Missing[i] {
			continue
		}
		if col.Type != dataset.TypeCategorical && col.Type != dataset.TypeText && math.IsNaN(col.Floats[i]) {
			continue
		}
		rows = append(rows, i)
	}
	if dropped := ds.Rows - len(rows); dropped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"dropped %d rows with a missing target value", dropped))
	}
	if len(rows) < minTrainingRows {
		return nil, fmt.Errorf("%w: have %d, need at least %d",
			ErrInsufficientRows, len(rows), minTrainingRows)
	}

	if len(rows) > opts.MaxRows {
		rows = downsample(rows, opts.MaxRows, opts.Seed)
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"downsampled to %d rows (seed %d)", opts.MaxRows, opts.Seed))
	}
	res.RowsUsed = len(rows)

	res.Task = opts.TaskOverride
	if res.Task == "" {
		res.Task = InferTaskType(col, rows)
	}
	// Regression needs numeric target values; loader-built categorical and
	// text columns carry none.
	if res.Task == TaskRegression && (col.Type == dataset.TypeCategorical || col.Type == dataset.TypeText) {
		return nil, fmt.Errorf("%w: cannot regress on %s column %q",
			ErrTargetNotNumeric, col.Type, target)
	}

	spec, err := pipeline.Build(ds, target, pipeline.Options{CardinalityCap: opts.CardinalityCap})
	if err != nil {
		return nil, err
	}
	res.Spec = spec
	res.Warnings = append(res.Warnings, spec.Warnings...)

	var trainRows, testRows []int
	if res.Task == TaskClassification {
		labels := make([]string, len(rows))
		for k, i := range rows {
			labels[k] = col.Values[i]
		}
		trainRows, testRows = stratifiedSplit(rows, labels, opts.TestSize, opts.Seed)
	} else {
		trainRows, testRows = splitIndexes(rows, opts.TestSize, opts.Seed)
	}
	res.TrainRows = len(trainRows)
	res.TestRows = len(testRows)

	fitted, err := pipeline.Fit(ds, spec, trainRows)
	if err != nil {
		return nil, err
	}
	res.Pipeline = fitted
	res.Features = fitted.FeatureNames()

	XTrain := fitted.Transform(ds, trainRows)
	XTest := fitted.Transform(ds, testRows)

	if res.Task == TaskClassification {
		res.trainClassifiers(col, trainRows, testRows, XTrain, XTest, opts)
	} else {
		res.trainRegressors(col, trainRows, testRows, XTrain, XTest, opts)
	}
	return res, nil
}

func (r *Result) trainClassifiers(col *dataset.Column, trainRows, testRows []int, XTrain, XTest [][]float64, opts Options) {
	classes := encodeClasses(col, trainRows, testRows)
	r.Classes = classes
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	yTrain := make([]int, len(trainRows))
	for k, i := range trainRows {
		yTrain[k] = index[col.Values[i]]
	}
	yTest := make([]int, len(testRows))
	for k, i := range testRows {
		yTest[k] = index[col.Values[i]]
	}

	binary := len(classes) == 2

	var linearPred []int
	var linearScores []float64
	if binary {
		model := NewLogisticRegression()
		model.Fit(XTrain, toBinary(yTrain))
		r.Logistic = model
		linearScores = model.PredictProba(XTest)
		linearPred = make([]int, len(linearScores))
		for i, p := range linearScores {
			if p >= 0.5 {
				linearPred[i] = 1
			}
		}
	} else {
		model := NewOneVsRest(len(classes))
		model.Fit(XTrain, yTrain)
		r.OVR = model
		linearPred = model.Predict(XTest)
	}
	r.Models = append(r.Models, classificationRun("logistic_regression", yTest, linearPred, linearScores, len(classes)))

	forest := NewRandomForest(false, len(classes), opts.Seed)
	yTrainF := make([]float64, len(yTrain))
	for i, v := range yTrain {
		yTrainF[i] = float64(v)
	}
	forest.Fit(XTrain, yTrainF)
	r.Forest = forest

	forestPred := make([]int, len(XTest))
	var forestScores []float64
	probs := forest.PredictProba(XTest)
	for i, dist := range probs {
		forestPred[i] = argmax(dist)
	}
	if binary {
		forestScores = make([]float64, len(probs))
		for i, dist := range probs {
			forestScores[i] = dist[1]
		}
	}
	r.Models = append(r.Models, classificationRun("random_forest", yTest, forestPred, forestScores, len(classes)))

	r.Best = bestBy(r.Models, "f1")
}

func (r *Result) trainRegressors(col *dataset.Column, trainRows, testRows []int, XTrain, XTest [][]float64, opts Options) {
	yTrain := make([]float64, len(trainRows))
	for k, i := range trainRows {
		yTrain[k] = col.Floats[i]
	}
	yTest := make([]float64, len(testRows))
	for k, i := range testRows {
		yTest[k] = col.Floats[i]
	}

	linear := NewLinearRegression()
	linear.Fit(XTrain, yTrain)
	r.Linear = linear
	r.Models = append(r.Models, regressionRun("linear_regression", yTest, linear.Predict(XTest)))

	forest := NewRandomForest(true, 0, opts.Seed)
	forest.Fit(XTrain, yTrain)
	r.Forest = forest
	r.Models = append(r.Models, regressionRun("random_forest", yTest, forest.Predict(XTest)))

	r.Best = bestBy(r.Models, "r2")
}

// encodeClasses returns the sorted distinct target labels across both
// partitions, so the class index mapping is stable for a given dataset.
func encodeClasses(col *dataset.Column, trainRows, testRows []int) []string {
	seen := make(map[string]struct{})
	for _, i := range trainRows {
		seen[col.Values[i]] = struct{}{}
	}
	for _, i := range testRows {
		seen[col.Values[i]] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}

func toBinary(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out
}

func classificationRun(name string, yTrue, yPred []int, scores []float64, numClasses int) ModelRun {
	run := ModelRun{Name: name}
	run.Metrics = append(run.Metrics, Metric{"accuracy", Accuracy(yTrue, yPred)})

	var prec, rec, f1 float64
	if numClasses == 2 {
		prec, rec, f1 = PrecisionRecallF1(yTrue, yPred, 1)
	} else {
		prec, rec, f1 = MacroPrecisionRecallF1(yTrue, yPred, numClasses)
	}
	run.Metrics = append(run.Metrics,
		Metric{"precision", prec},
		Metric{"recall", rec},
		Metric{"f1", f1})

	if numClasses == 2 && scores != nil {
		run.Metrics = append(run.Metrics, Metric{"roc_auc", ROCAUC(yTrue, scores)})
	}
	return run
}

func regressionRun(name string, yTrue, yPred []float64) ModelRun {
	return ModelRun{
		Name: name,
		Metrics: []Metric{
			{"r2", R2(yTrue, yPred)},
			{"mae", MAE(yTrue, yPred)},
			{"rmse", RMSE(yTrue, yPred)},
		},
	}
}

// bestBy picks the model with the highest value for the given metric,
// keeping the earlier model on ties.
func bestBy(models []ModelRun, metric string) string {
	best := ""
	bestValue := math.Inf(-1)
	for _, m := range models {
		if v := m.Metric(metric); !math.IsNaN(v) && v > bestValue {
			best = m.Name
			bestValue = v
		}
	}
	return best
}
