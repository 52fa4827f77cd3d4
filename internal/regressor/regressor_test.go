package regressor

import (
	"math"
	"testing"
)

func linearData(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		f1 := float64(i)
		f2 := float64(i % 7)
		x[i] = []float64{f1, f2}
		y[i] = 2.0*f1 + 3.0*f2 + 10.0
	}
	return x, y
}

func TestChronologicalSplitPreservesOrder(t *testing.T) {
	x, y := linearData(10)
	xTrain, xTest, yTrain, yTest := ChronologicalSplit(x, y)
	if len(xTrain) != 8 || len(xTest) != 2 {
		t.Fatalf("split sizes = %d/%d, want 8/2", len(xTrain), len(xTest))
	}
	if yTrain[0] != y[0] || yTest[len(yTest)-1] != y[len(y)-1] {
		t.Errorf("split did not preserve chronological order")
	}
}

func TestLinearRidgeFitsLinearData(t *testing.T) {
	x, y := linearData(50)
	xTrain, xTest, yTrain, yTest := ChronologicalSplit(x, y)

	r := NewLinearRidge(0.01)
	metrics, err := r.Train(xTrain, yTrain, xTest, yTest)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !r.IsAvailable() {
		t.Fatal("IsAvailable() = false after training")
	}
	if metrics.RMSE > 1.0 {
		t.Errorf("RMSE = %v, want a near-perfect fit on linear data", metrics.RMSE)
	}

	pred, err := r.Predict([]float64{10, 3})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	want := 2.0*10 + 3.0*3 + 10.0
	if math.Abs(pred-want) > 1.0 {
		t.Errorf("Predict = %v, want ~%v", pred, want)
	}
}

func TestLinearRidgeImputesMissingFeatures(t *testing.T) {
	x, y := linearData(30)
	x[0][1] = math.NaN()
	xTrain, xTest, yTrain, yTest := ChronologicalSplit(x, y)

	r := NewLinearRidge(0.1)
	if _, err := r.Train(xTrain, yTrain, xTest, yTest); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(r.FillValues) != 2 {
		t.Fatalf("len(FillValues) = %d, want 2", len(r.FillValues))
	}

	pred, err := r.Predict([]float64{5, math.NaN()})
	if err != nil {
		t.Fatalf("Predict with NaN feature: %v", err)
	}
	if math.IsNaN(pred) {
		t.Error("Predict returned NaN for an imputable row")
	}
}

func TestGradientStumpFitsLinearData(t *testing.T) {
	x, y := linearData(60)
	xTrain, xTest, yTrain, yTest := ChronologicalSplit(x, y)

	g := NewGradientStump(40, 0.2)
	metrics, err := g.Train(xTrain, yTrain, xTest, yTest)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !g.IsAvailable() {
		t.Fatal("IsAvailable() = false after training")
	}
	if metrics.TrainCount != len(xTrain) || metrics.TestCount != len(xTest) {
		t.Errorf("metrics counts = %d/%d, want %d/%d", metrics.TrainCount, metrics.TestCount, len(xTrain), len(xTest))
	}
}

func TestGradientStumpPredictHandlesNaNFeature(t *testing.T) {
	x, y := linearData(40)
	xTrain, xTest, yTrain, yTest := ChronologicalSplit(x, y)

	g := NewGradientStump(20, 0.2)
	if _, err := g.Train(xTrain, yTrain, xTest, yTest); err != nil {
		t.Fatalf("Train: %v", err)
	}

	pred, err := g.Predict([]float64{math.NaN(), 3})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if math.IsNaN(pred) {
		t.Error("Predict returned NaN; stumps must route NaN features to a learned fallback")
	}
}

func TestPredictBeforeTrainFails(t *testing.T) {
	if _, err := NewLinearRidge(0.1).Predict([]float64{1, 2}); err == nil {
		t.Error("Predict on untrained LinearRidge: want error")
	}
	if _, err := NewGradientStump(10, 0.1).Predict([]float64{1, 2}); err == nil {
		t.Error("Predict on untrained GradientStump: want error")
	}
}

type stubRegressor struct {
	name      string
	available bool
	predict   float64
}

func (s *stubRegressor) Name() string      { return s.name }
func (s *stubRegressor) IsAvailable() bool { return s.available }
func (s *stubRegressor) Load(string) error { return nil }
func (s *stubRegressor) Save(string) error { return nil }
func (s *stubRegressor) Train(_, _, _, _ [][]float64) (Metrics, error) {
	return Metrics{}, nil
}
func (s *stubRegressor) Predict(_ []float64) (float64, error) { return s.predict, nil }

func TestEnsembleWeightsInverselyByRMSE(t *testing.T) {
	accurate := &stubRegressor{name: "accurate", available: true, predict: 60.0}
	noisy := &stubRegressor{name: "noisy", available: true, predict: 40.0}

	e := NewEnsemble([]Member{
		{Regressor: accurate, RMSE: 1.0},
		{Regressor: noisy, RMSE: 9.0},
	})
	if !e.IsAnyAvailable() {
		t.Fatal("IsAnyAvailable() = false")
	}

	pred, contributors, err := e.Predict([]float64{1})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(contributors) != 2 {
		t.Errorf("len(contributors) = %d, want 2", len(contributors))
	}
	// accurate model (lower RMSE) must pull the blend toward 60, not the midpoint 50
	if pred <= 50.0 {
		t.Errorf("pred = %v, want > 50.0 (accurate model should dominate)", pred)
	}
}

func TestEnsembleSkipsUnavailableMembers(t *testing.T) {
	available := &stubRegressor{name: "ok", available: true, predict: 42.0}
	unavailable := &stubRegressor{name: "missing", available: false}

	e := NewEnsemble([]Member{{Regressor: available, RMSE: 2.0}, {Regressor: unavailable, RMSE: 2.0}})
	pred, contributors, err := e.Predict([]float64{1})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred != 42.0 {
		t.Errorf("pred = %v, want 42.0 (only available member)", pred)
	}
	if len(contributors) != 1 || contributors[0] != "ok" {
		t.Errorf("contributors = %v, want [ok]", contributors)
	}
}

func TestEnsembleEmptyIsUnavailable(t *testing.T) {
	e := NewEnsemble(nil)
	if e.IsAnyAvailable() {
		t.Error("IsAnyAvailable() = true for an empty ensemble")
	}
	if _, _, err := e.Predict([]float64{1}); err == nil {
		t.Error("Predict on empty ensemble: want error")
	}
}
