// Package regressor defines the ML model interface consumed by the
// prediction pipeline and an inverse-RMSE-weighted ensemble over it. Model
// library choice is a deliberately open implementation detail — the two concrete
// implementations here (GradientStump, LinearRidge) are idiomatic
// from-scratch stand-ins for a gradient-boosted tree and a
// random-forest/ridge regressor, chosen because no such training library
// appears anywhere in the retrieved example corpus (see DESIGN.md).
package regressor

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Metrics reports a model's training/evaluation outcome.
type Metrics struct {
	RMSE         float64   `json:"rmse"`
	MAE          float64   `json:"mae"`
	TrainRMSE    float64   `json:"train_rmse"`
	SampleCount  int       `json:"sample_count"`
	TrainCount   int       `json:"train_count"`
	TestCount    int       `json:"test_count"`
	TrainedAt    time.Time `json:"trained_at"`
	Accepted     bool      `json:"accepted"`
	NaNFillValues []float64 `json:"nan_fill_values,omitempty"`
}

// acceptanceThreshold is the maximum RMSE (°F) for a retrained model to be
// saved and used.
const acceptanceThreshold = 5.0

// Regressor is the abstract interface the prediction pipeline depends on.
// Predict does not check the feature vector's length: LinearRidge skips
// coefficients past the end of a short row and ignores extra features, and
// GradientStump treats a feature index past the end of the row as missing.
type Regressor interface {
	Name() string
	IsAvailable() bool
	Load(path string) error
	Save(path string) error
	Train(xTrain, yTrain, xTest, yTest [][]float64) (Metrics, error)
	Predict(features []float64) (float64, error)
}

// ChronologicalSplit splits parallel X/y slices chronologically (no
// shuffling) 80/20 so evaluation respects time order.
func ChronologicalSplit(x [][]float64, y []float64) (xTrain, xTest [][]float64, yTrain, yTest []float64) {
	n := len(x)
	splitAt := int(float64(n) * 0.8)
	return x[:splitAt], x[splitAt:], y[:splitAt], y[splitAt:]
}

func computeMetrics(yTrue, yPred, yTrainTrue, yTrainPred []float64, sampleCount int) Metrics {
	rmse := rootMeanSquaredError(yTrue, yPred)
	return Metrics{
		RMSE:        rmse,
		MAE:         meanAbsoluteError(yTrue, yPred),
		TrainRMSE:   rootMeanSquaredError(yTrainTrue, yTrainPred),
		SampleCount: sampleCount,
		TrainCount:  len(yTrainTrue),
		TestCount:   len(yTrue),
		TrainedAt:   time.Now().UTC(),
		Accepted:    rmse <= acceptanceThreshold,
	}
}

func rootMeanSquaredError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var sumSq float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(yTrue)))
}

func meanAbsoluteError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(yTrue))
}

// medianFillValues computes, per feature column, the median over non-NaN
// training entries — the imputation fill persisted by NaN-intolerant
// regressors.
func medianFillValues(x [][]float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	numFeatures := len(x[0])
	fills := make([]float64, numFeatures)
	for col := 0; col < numFeatures; col++ {
		var vals []float64
		for _, row := range x {
			if col < len(row) && !math.IsNaN(row[col]) {
				vals = append(vals, row[col])
			}
		}
		fills[col] = median(vals)
	}
	return fills
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func imputeRow(row, fill []float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		if math.IsNaN(v) && i < len(fill) {
			out[i] = fill[i]
		} else {
			out[i] = v
		}
	}
	return out
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path) // write to temp path, then atomic rename
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SaveMetrics persists a trained model's evaluation metrics to its
// metadata sidecar file, atomically.
func SaveMetrics(path string, m Metrics) error {
	return writeJSONFile(path, m)
}

// LoadMetricsFile reads a model's metadata sidecar file, used at startup
// to decide whether a saved model artefact is accepted and to recover the
// RMSE the ensemble weights it against.
func LoadMetricsFile(path string) (Metrics, error) {
	var m Metrics
	err := readJSONFile(path, &m)
	return m, err
}
