package regressor

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// stump is one boosting round's decision rule: split feature FeatureIndex
// at Threshold, predicting LeftValue/RightValue on either side and
// NaNValue when the feature itself is missing for a given row.
type stump struct {
	FeatureIndex int     `json:"feature_index"`
	Threshold    float64 `json:"threshold"`
	LeftValue    float64 `json:"left_value"`
	RightValue   float64 `json:"right_value"`
	NaNValue     float64 `json:"nan_value"`
}

// GradientStump is a small from-scratch gradient-boosted-stump ensemble,
// tolerant of NaN feature values at both train and predict time. It stands
// in for a gradient-boosted tree regressor; no such training library
// appears in the retrieved example corpus (see DESIGN.md).
type GradientStump struct {
	NumStumps    int     `json:"num_stumps"`
	LearningRate float64 `json:"learning_rate"`
	BaseValue    float64 `json:"base_value"`
	Stumps       []stump `json:"stumps"`
}

// NewGradientStump builds an untrained ensemble with the given round count
// and shrinkage rate.
func NewGradientStump(numStumps int, learningRate float64) *GradientStump {
	return &GradientStump{NumStumps: numStumps, LearningRate: learningRate}
}

func (g *GradientStump) Name() string { return "gradient_stump" }

func (g *GradientStump) IsAvailable() bool { return len(g.Stumps) > 0 }

func (g *GradientStump) Load(path string) error {
	return readJSONFile(path, g)
}

func (g *GradientStump) Save(path string) error {
	return writeJSONFile(path, g)
}

func (g *GradientStump) Train(xTrain, yTrain, xTest, yTest [][]float64) (Metrics, error) {
	if len(xTrain) == 0 {
		return Metrics{}, fmt.Errorf("regressor: gradient_stump: empty training set")
	}
	if g.NumStumps <= 0 {
		g.NumStumps = 50
	}
	if g.LearningRate <= 0 {
		g.LearningRate = 0.1
	}

	g.BaseValue = stat.Mean(yTrain, nil)
	residual := make([]float64, len(yTrain))
	for i, y := range yTrain {
		residual[i] = y - g.BaseValue
	}

	g.Stumps = g.Stumps[:0]
	numFeatures := len(xTrain[0])
	for round := 0; round < g.NumStumps; round++ {
		best, ok := bestStump(xTrain, residual, numFeatures)
		if !ok {
			break
		}
		g.Stumps = append(g.Stumps, best)
		for i, row := range xTrain {
			residual[i] -= g.LearningRate * stumpValue(best, row)
		}
	}

	yTrainPred := make([]float64, len(xTrain))
	for i, row := range xTrain {
		p, _ := g.Predict(row)
		yTrainPred[i] = p
	}
	yTestPred := make([]float64, len(xTest))
	for i, row := range xTest {
		p, _ := g.Predict(row)
		yTestPred[i] = p
	}
	return computeMetrics(yTest, yTestPred, yTrain, yTrainPred, len(xTrain)+len(xTest)), nil
}

func (g *GradientStump) Predict(features []float64) (float64, error) {
	if len(g.Stumps) == 0 {
		return 0, fmt.Errorf("regressor: gradient_stump: no trained stumps, call Train or Load first")
	}
	out := g.BaseValue
	for _, s := range g.Stumps {
		out += g.LearningRate * stumpValue(s, features)
	}
	return out, nil
}

func stumpValue(s stump, row []float64) float64 {
	if s.FeatureIndex >= len(row) {
		return s.NaNValue
	}
	v := row[s.FeatureIndex]
	switch {
	case math.IsNaN(v):
		return s.NaNValue
	case v < s.Threshold:
		return s.LeftValue
	default:
		return s.RightValue
	}
}

// bestStump searches every feature column and a handful of candidate
// thresholds (midpoints between the column's sorted unique values, see
// candidateThresholds) for the split minimizing
// residual sum of squares, ignoring rows where that feature is NaN.
func bestStump(x [][]float64, residual []float64, numFeatures int) (stump, bool) {
	var best stump
	bestSSE := math.Inf(1)
	found := false

	for col := 0; col < numFeatures; col++ {
		var present []float64
		for _, row := range x {
			if col < len(row) && !math.IsNaN(row[col]) {
				present = append(present, row[col])
			}
		}
		if len(present) < 2 {
			continue
		}
		thresholds := candidateThresholds(present)

		for _, threshold := range thresholds {
			var leftSum, rightSum, nanSum float64
			var leftN, rightN, nanN int
			for i, row := range x {
				if col >= len(row) || math.IsNaN(row[col]) {
					nanSum += residual[i]
					nanN++
					continue
				}
				if row[col] < threshold {
					leftSum += residual[i]
					leftN++
				} else {
					rightSum += residual[i]
					rightN++
				}
			}
			if leftN == 0 || rightN == 0 {
				continue
			}
			leftMean := leftSum / float64(leftN)
			rightMean := rightSum / float64(rightN)
			nanMean := 0.0
			if nanN > 0 {
				nanMean = nanSum / float64(nanN)
			}

			sse := 0.0
			for i, row := range x {
				var pred float64
				switch {
				case col >= len(row) || math.IsNaN(row[col]):
					pred = nanMean
				case row[col] < threshold:
					pred = leftMean
				default:
					pred = rightMean
				}
				d := residual[i] - pred
				sse += d * d
			}
			if sse < bestSSE {
				bestSSE = sse
				best = stump{FeatureIndex: col, Threshold: threshold, LeftValue: leftMean, RightValue: rightMean, NaNValue: nanMean}
				found = true
			}
		}
	}
	return best, found
}

// candidateThresholds returns midpoints between consecutive sorted unique
// values, capped to a bounded number of candidates for tractability.
func candidateThresholds(vals []float64) []float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	var uniq []float64
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) < 2 {
		return nil
	}

	const maxCandidates = 20
	step := 1
	if len(uniq)-1 > maxCandidates {
		step = (len(uniq) - 1) / maxCandidates
	}

	var out []float64
	for i := 0; i+1 < len(uniq); i += step {
		out = append(out, (uniq[i]+uniq[i+1])/2)
	}
	return out
}
