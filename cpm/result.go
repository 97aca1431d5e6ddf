package cpm

// FoldResult describes the model fitted for one held-out subject.
type FoldResult struct {
	// Subject is the held-out subject index.
	Subject int `json:"subject"`
	// Selected lists the edges selected on the training subjects, ascending.
	Selected []int `json:"selected"`
	// Intercept and Slope define prediction = Intercept + Slope*strength.
	// For a fallback fold Slope is 0 and Intercept is the training mean.
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
	// Strength is the held-out subject's strength for this fold.
	Strength   float64 `json:"strength"`
	Prediction float64 `json:"prediction"`
	Fallback   bool    `json:"fallback"`
}

// Result is the outcome of a leave-one-out run.
type Result struct {
	RunID       string       `json:"run_id"`
	Predictions []float64    `json:"predictions"`
	Response    []float64    `json:"response"`
	R           float64      `json:"r"`
	PValue      float64      `json:"p_value"`
	MSE         float64      `json:"mse"`
	MAE         float64      `json:"mae"`
	R2          float64      `json:"r2"`
	Threshold   float64      `json:"threshold"`
	Aggregation string       `json:"aggregation"`
	Edges       int          `json:"edges"`
	Folds       []FoldResult `json:"folds"`
}

// FallbackFolds returns the number of folds that predicted the training mean.
func (r *Result) FallbackFolds() int {
	n := 0
	for _, f := range r.Folds {
		if f.Fallback {
			n++
		}
	}
	return n
}

// SelectionFrequency returns, per edge, the fraction of folds in which the
// edge was selected. Edges with frequency 1 form the consensus network.
func (r *Result) SelectionFrequency() []float64 {
	freq := make([]float64, r.Edges)
	if len(r.Folds) == 0 {
		return freq
	}
	for _, f := range r.Folds {
		for _, e := range f.Selected {
			freq[e]++
		}
	}
	for i := range freq {
		freq[i] /= float64(len(r.Folds))
	}
	return freq
}

// ConsensusEdges returns the edges selected in every fold.
func (r *Result) ConsensusEdges() []int {
	var out []int
	for e, f := range r.SelectionFrequency() {
		if f == 1 {
			out = append(out, e)
		}
	}
	return out
}
