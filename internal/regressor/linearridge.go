package regressor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearRidge is a closed-form ridge regression over median-imputed
// features. It stands in for both the random-forest and ridge options in
// the distilled model choice; feature imputation is required since, unlike
// GradientStump, a single linear fit cannot route around a missing
// feature at predict time.
type LinearRidge struct {
	Lambda      float64   `json:"lambda"`
	FillValues  []float64 `json:"fill_values"`
	Intercept   float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// NewLinearRidge builds an untrained regressor with the given L2 penalty.
func NewLinearRidge(lambda float64) *LinearRidge {
	return &LinearRidge{Lambda: lambda}
}

func (r *LinearRidge) Name() string { return "linear_ridge" }

func (r *LinearRidge) IsAvailable() bool { return len(r.Coefficients) > 0 }

func (r *LinearRidge) Load(path string) error {
	return readJSONFile(path, r)
}

func (r *LinearRidge) Save(path string) error {
	return writeJSONFile(path, r)
}

func (r *LinearRidge) Train(xTrain, yTrain, xTest, yTest [][]float64) (Metrics, error) {
	if len(xTrain) == 0 {
		return Metrics{}, fmt.Errorf("regressor: linear_ridge: empty training set")
	}
	numFeatures := len(xTrain[0])
	r.FillValues = medianFillValues(xTrain)

	// Design matrix with an intercept column of ones.
	design := mat.NewDense(len(xTrain), numFeatures+1, nil)
	for i, row := range xTrain {
		imputed := imputeRow(row, r.FillValues)
		design.Set(i, 0, 1.0)
		for j, v := range imputed {
			design.Set(i, j+1, v)
		}
	}
	target := mat.NewVecDense(len(yTrain), yTrain)

	var xtx mat.Dense
	xtx.Mul(design.T(), design)
	for i := 1; i <= numFeatures; i++ { // never penalize the intercept
		xtx.Set(i, i, xtx.At(i, i)+r.Lambda)
	}

	var xty mat.VecDense
	xty.MulVec(design.T(), target)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return Metrics{}, fmt.Errorf("regressor: linear_ridge: solve normal equations: %w", err)
	}

	r.Intercept = beta.AtVec(0)
	r.Coefficients = make([]float64, numFeatures)
	for i := 0; i < numFeatures; i++ {
		r.Coefficients[i] = beta.AtVec(i + 1)
	}

	yTrainPred := make([]float64, len(xTrain))
	for i, row := range xTrain {
		p, _ := r.Predict(row)
		yTrainPred[i] = p
	}
	yTestPred := make([]float64, len(xTest))
	for i, row := range xTest {
		p, _ := r.Predict(row)
		yTestPred[i] = p
	}
	return computeMetrics(yTest, yTestPred, yTrain, yTrainPred, len(xTrain)+len(xTest)), nil
}

func (r *LinearRidge) Predict(features []float64) (float64, error) {
	if len(r.Coefficients) == 0 {
		return 0, fmt.Errorf("regressor: linear_ridge: not trained, call Train or Load first")
	}
	imputed := imputeRow(features, r.FillValues)
	out := r.Intercept
	for i, c := range r.Coefficients {
		if i < len(imputed) {
			out += c * imputed[i]
		}
	}
	return out, nil
}
