package regressor

import "fmt"

// zeroRMSESentinel stands in for a perfect (RMSE == 0) model's inverse
// weight, matching the original weighting algorithm's cap so a single
// flukishly perfect backtest cannot dominate the ensemble outright.
const zeroRMSESentinel = 100.0

// Member pairs a trained regressor with the RMSE it achieved on held-out
// data, the input to inverse-RMSE ensemble weighting.
type Member struct {
	Regressor Regressor
	RMSE      float64
}

// Ensemble combines multiple trained regressors, weighting each inversely
// by its evaluation RMSE so more accurate models dominate the blended
// prediction. Grounded on the reference Python implementation's model-ensemble
// weighting scheme.
type Ensemble struct {
	members []Member
	weights []float64
}

// NewEnsemble computes and stores ensemble weights for the given members.
// Members with no available model are skipped. Weights are normalized to
// sum to 1.0; when no member has a usable RMSE, weight is split equally
// among available members.
func NewEnsemble(members []Member) *Ensemble {
	e := &Ensemble{}
	for _, m := range members {
		if m.Regressor != nil && m.Regressor.IsAvailable() {
			e.members = append(e.members, m)
		}
	}
	e.weights = InverseRMSEWeights(e.members)
	return e
}

// InverseRMSEWeights computes the normalized inverse-RMSE weight for each
// member, exported so callers (the weekly retrain job) can persist the
// weighting alongside the model artefacts it was computed from.
func InverseRMSEWeights(members []Member) []float64 {
	if len(members) == 0 {
		return nil
	}
	inverses := make([]float64, len(members))
	var sum float64
	for i, m := range members {
		inv := zeroRMSESentinel
		if m.RMSE > 0 {
			inv = 1.0 / m.RMSE
		}
		inverses[i] = inv
		sum += inv
	}
	if sum <= 0 {
		equal := 1.0 / float64(len(members))
		for i := range inverses {
			inverses[i] = equal
		}
		return inverses
	}
	weights := make([]float64, len(members))
	for i, inv := range inverses {
		weights[i] = inv / sum
	}
	return weights
}

// IsAnyAvailable reports whether the ensemble has at least one usable
// member.
func (e *Ensemble) IsAnyAvailable() bool { return len(e.members) > 0 }

// Predict returns the weighted mean prediction and the names of the
// regressors that contributed to it. An error is returned only if the
// ensemble has no available members at all; callers should fall back to a
// simple statistical baseline in that case.
func (e *Ensemble) Predict(features []float64) (float64, []string, error) {
	if len(e.members) == 0 {
		return 0, nil, fmt.Errorf("regressor: ensemble has no available members")
	}
	var weighted float64
	var totalWeight float64
	contributors := make([]string, 0, len(e.members))
	for i, m := range e.members {
		p, err := m.Regressor.Predict(features)
		if err != nil {
			continue
		}
		weighted += e.weights[i] * p
		totalWeight += e.weights[i]
		contributors = append(contributors, m.Regressor.Name())
	}
	if totalWeight == 0 {
		return 0, nil, fmt.Errorf("regressor: no ensemble member produced a prediction")
	}
	return weighted / totalWeight, contributors, nil
}
