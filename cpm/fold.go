package cpm

// Fold is one leave-one-out split: Test is the held-out subject and Train
// every other subject in ascending order.
type Fold struct {
	Test  int
	Train []int
}

// LeaveOneOut returns the n folds of leave-one-out cross-validation over
// subjects 0..n-1.
func LeaveOneOut(n int) []Fold {
	folds := make([]Fold, n)
	for s := 0; s < n; s++ {
		train := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != s {
				train = append(train, j)
			}
		}
		folds[s] = Fold{Test: s, Train: train}
	}
	return folds
}

// gather returns v at the given indices.
func gather(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
