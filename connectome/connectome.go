// Package connectome converts region time series and connectivity matrices
// into the vectorized edge representation consumed by cpm and brainmodel.
//
// An edge is one entry of the upper triangle of a symmetric region-by-region
// matrix, taken in row-major order. With the diagonal discarded, R regions
// give R(R-1)/2 edges.
package connectome

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

// EdgeCount returns the number of edges of a regions × regions matrix.
func EdgeCount(regions int, discardDiagonal bool) int {
	if regions <= 0 {
		return 0
	}
	if discardDiagonal {
		return regions * (regions - 1) / 2
	}
	return regions * (regions + 1) / 2
}

// RegionsForEdges inverts EdgeCount with the diagonal discarded. It returns
// an error when edges is not a triangular number.
func RegionsForEdges(edges int) (int, error) {
	for r := 2; EdgeCount(r, true) <= edges; r++ {
		if EdgeCount(r, true) == edges {
			return r, nil
		}
	}
	return 0, errors.NewValueError("connectome.RegionsForEdges", "edge count is not R(R-1)/2 for any region count R")
}

// FunctionalConnectivity returns the region-by-region Pearson correlation
// matrix of ts, whose rows are time points and columns are regions.
func FunctionalConnectivity(ts mat.Matrix) (*mat.SymDense, error) {
	t, r := ts.Dims()
	if t < 2 {
		return nil, errors.NewDegenerateInputError("connectome.FunctionalConnectivity", "at least 2 time points are required", -1)
	}
	if r < 2 {
		return nil, errors.NewDegenerateInputError("connectome.FunctionalConnectivity", "at least 2 regions are required", -1)
	}
	if err := errors.CheckMatrix("connectome.FunctionalConnectivity", ts, t, r, 0); err != nil {
		return nil, err
	}

	fc := mat.NewSymDense(r, nil)
	stat.CorrelationMatrix(fc, ts, nil)

	if err := errors.CheckMatrix("connectome.FunctionalConnectivity", fc, r, r, 0); err != nil {
		// NaN entries mean at least one region had a flat signal.
		return nil, errors.NewDegenerateInputError("connectome.FunctionalConnectivity", "a region time series has zero variance", -1)
	}
	return fc, nil
}

// Vectorize flattens the upper triangle of m in row-major order.
func Vectorize(m mat.Symmetric, discardDiagonal bool) []float64 {
	n := m.SymmetricDim()
	out := make([]float64, 0, EdgeCount(n, discardDiagonal))
	offset := 0
	if discardDiagonal {
		offset = 1
	}
	for i := 0; i < n; i++ {
		for j := i + offset; j < n; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// Unvectorize rebuilds a symmetric matrix from Vectorize output with the
// diagonal discarded; the diagonal is set to diag.
func Unvectorize(edges []float64, diag float64) (*mat.SymDense, error) {
	n, err := RegionsForEdges(len(edges))
	if err != nil {
		return nil, err
	}
	m := mat.NewSymDense(n, nil)
	k := 0
	for i := 0; i < n; i++ {
		m.SetSym(i, i, diag)
		for j := i + 1; j < n; j++ {
			m.SetSym(i, j, edges[k])
			k++
		}
	}
	return m, nil
}

// FeatureMatrix stacks per-subject edge vectors as the columns of an
// edges × subjects matrix.
func FeatureMatrix(vectors [][]float64) (*mat.Dense, error) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.NewModelError("connectome.FeatureMatrix", "empty data", errors.ErrEmptyData)
	}
	edges := len(vectors[0])
	fm := mat.NewDense(edges, len(vectors), nil)
	for s, v := range vectors {
		if len(v) != edges {
			return nil, errors.NewShapeMismatchError("connectome.FeatureMatrix", "edge vector length of subject", edges, len(v))
		}
		fm.SetCol(s, v)
	}
	return fm, nil
}

// FeatureMatrixFromTimeSeries computes the functional connectivity of every
// subject's time series and stacks the vectorized matrices, diagonal
// discarded.
func FeatureMatrixFromTimeSeries(series []mat.Matrix) (*mat.Dense, error) {
	vectors := make([][]float64, len(series))
	for s, ts := range series {
		fc, err := FunctionalConnectivity(ts)
		if err != nil {
			return nil, errors.Wrapf(err, "subject %d", s)
		}
		vectors[s] = Vectorize(fc, true)
	}
	return FeatureMatrix(vectors)
}
