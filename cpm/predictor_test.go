package cpm

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/neurocpm/metrics"
	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelError)
	return l
}

// mixedFeatures builds edges 0-1 as response plus small noise and edges 2-3
// as the negated response plus small noise.
func mixedFeatures() (*mat.Dense, []float64) {
	response := []float64{1, 2, 3, 4, 5}
	noise := [][]float64{
		{0.001, -0.002, 0.0015, -0.0005, 0.001},
		{-0.001, 0.0005, 0.002, -0.0015, 0.0005},
		{0.0005, 0.001, -0.001, 0.002, -0.0015},
		{-0.002, 0.0015, 0.0005, -0.001, 0.001},
	}
	features := mat.NewDense(4, 5, nil)
	for e := 0; e < 4; e++ {
		sign := 1.0
		if e >= 2 {
			sign = -1
		}
		for s, y := range response {
			features.Set(e, s, sign*y+noise[e][s])
		}
	}
	return features, response
}

// randomFeatures returns e edges over n subjects where the first half of the
// edges track the response.
func randomFeatures(seed int64, e, n int) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	response := make([]float64, n)
	for s := range response {
		response[s] = rng.NormFloat64()*10 + 50
	}
	features := mat.NewDense(e, n, nil)
	for i := 0; i < e; i++ {
		for s := 0; s < n; s++ {
			v := rng.NormFloat64()
			if i < e/2 {
				v += 0.2 * response[s]
			}
			features.Set(i, s, v)
		}
	}
	return features, response
}

func TestPredictSelectsPositiveEdges(t *testing.T) {
	features, response := mixedFeatures()

	res, err := Predict(features, response, WithLogger(quietLogger()))
	require.NoError(t, err)

	require.Len(t, res.Predictions, len(response))
	require.Len(t, res.Folds, len(response))
	for s, f := range res.Folds {
		assert.Equal(t, s, f.Subject)
		assert.Equalf(t, []int{0, 1}, f.Selected, "fold %d", s)
		assert.False(t, f.Fallback)
		assert.False(t, math.IsNaN(res.Predictions[s]) || math.IsInf(res.Predictions[s], 0))
	}
	assert.Greater(t, res.R, 0.9)
	assert.Less(t, res.PValue, 0.05)
	assert.Equal(t, []int{0, 1}, res.ConsensusEdges())
	assert.Equal(t, []float64{1, 1, 0, 0}, res.SelectionFrequency())
	assert.Equal(t, 4, res.Edges)
	assert.Equal(t, "sum", res.Aggregation)
	assert.Equal(t, DefaultThreshold, res.Threshold)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 0, res.FallbackFolds())
}

func TestPredictPerfectEdges(t *testing.T) {
	response := []float64{3, 1, 4, 1.5, 5, 9, 2, 6}
	features := mat.NewDense(3, len(response), nil)
	for e := 0; e < 3; e++ {
		features.SetRow(e, response)
	}

	res, err := Predict(features, response, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.R, 1e-9)
	if diff := cmp.Diff(response, res.Predictions, cmpopts.EquateApprox(0, 1e-8)); diff != "" {
		t.Errorf("predictions mismatch (-want +got):\n%s", diff)
	}
	for s, y := range response {
		assert.InDelta(t, 3*y, res.Folds[s].Strength, 1e-12)
	}
	assert.InDelta(t, 0, res.MSE, 1e-12)
}

func TestPredictAntiCorrelatedFallsBack(t *testing.T) {
	response := []float64{1, 2, 3, 4, 5, 6}
	features := mat.NewDense(2, len(response), nil)
	for s, y := range response {
		features.Set(0, s, -y)
		features.Set(1, s, -2*y+0.01*float64(s%2))
	}
	logger, _ := log.NewTestLogger(log.LevelDebug)

	res, err := Predict(features, response, WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, len(response), res.FallbackFolds())
	for s, f := range res.Folds {
		assert.Empty(t, f.Selected)
		assert.Zero(t, f.Strength)
		assert.Zero(t, f.Slope)
		// Training mean of 1..6 without subject s.
		want := (21 - response[s]) / 5
		assert.InDelta(t, want, f.Prediction, 1e-12)
		assert.Equal(t, f.Prediction, f.Intercept)
	}
	// Leave-one-out means are a decreasing function of the response.
	assert.InDelta(t, -1.0, res.R, 1e-9)

	assert.Equal(t, len(response), logger.CountLevel("WARN"))
	assert.True(t, logger.ContainsMessage("fold fell back to the training mean"))
	assert.True(t, logger.ContainsField(log.FoldKey, 0.0))
}

func TestPredictStrictSelection(t *testing.T) {
	response := []float64{1, 2, 3, 4, 5}
	features := mat.NewDense(1, len(response), []float64{-1, -2, -3, -4, -5})

	_, err := Predict(features, response, WithStrictSelection(true), WithLogger(quietLogger()))
	require.Error(t, err)
	var de *errors.DegenerateInputError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Index)
}

func TestPredictThresholdIsStrict(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	response := []float64{2, 1, 4, 3, 6, 5}
	features := mat.NewDense(1, len(x), x)

	// Fold 0 trains on subjects 1..5.
	_, p0, err := metrics.PearsonR(x[1:], response[1:])
	require.NoError(t, err)
	require.Greater(t, p0, 0.0)
	require.Less(t, p0, 1.0)

	res, err := Predict(features, response, WithThreshold(p0), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Empty(t, res.Folds[0].Selected, "p == threshold must not be selected")
	assert.True(t, res.Folds[0].Fallback)

	res, err = Predict(features, response, WithThreshold(math.Nextafter(p0, 1)), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Folds[0].Selected)
	assert.False(t, res.Folds[0].Fallback)
}

func TestIsSelected(t *testing.T) {
	assert.True(t, isSelected(0.5, 0.001, 0.01))
	assert.False(t, isSelected(0.5, 0.01, 0.01))
	assert.False(t, isSelected(-0.9, 0.0001, 0.01))
	assert.False(t, isSelected(0, 0.0001, 0.01))
}

func TestPredictHeldOutSubjectDoesNotLeak(t *testing.T) {
	features, response := randomFeatures(7, 40, 12)
	base, err := Predict(features, response, WithThreshold(0.05), WithLogger(quietLogger()))
	require.NoError(t, err)

	for _, s := range []int{0, 5, 11} {
		perturbed := mat.DenseCopyOf(features)
		for e := 0; e < 40; e++ {
			perturbed.Set(e, s, 1e6*float64(e%3-1))
		}
		resp := append([]float64(nil), response...)
		resp[s] = -1e6

		res, err := Predict(perturbed, resp, WithThreshold(0.05), WithLogger(quietLogger()))
		require.NoError(t, err)

		want, got := base.Folds[s], res.Folds[s]
		assert.Equalf(t, want.Selected, got.Selected, "fold %d selection", s)
		assert.Equalf(t, want.Intercept, got.Intercept, "fold %d intercept", s)
		assert.Equalf(t, want.Slope, got.Slope, "fold %d slope", s)
		assert.Equalf(t, want.Fallback, got.Fallback, "fold %d fallback", s)
	}
}

func TestPredictDeterministicAcrossWorkers(t *testing.T) {
	features, response := randomFeatures(3, 60, 15)

	seq, err := Predict(features, response, WithThreshold(0.05), WithLogger(quietLogger()))
	require.NoError(t, err)
	again, err := Predict(features, response, WithThreshold(0.05), WithLogger(quietLogger()))
	require.NoError(t, err)
	par, err := Predict(features, response, WithThreshold(0.05), WithWorkers(4), WithLogger(quietLogger()))
	require.NoError(t, err)

	ignoreRunID := cmpopts.IgnoreFields(Result{}, "RunID")
	if diff := cmp.Diff(seq, again, ignoreRunID); diff != "" {
		t.Errorf("repeated run differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(seq, par, ignoreRunID); diff != "" {
		t.Errorf("4 workers differ from 1 (-sequential +parallel):\n%s", diff)
	}
	assert.NotEqual(t, seq.RunID, again.RunID)
}

func TestPredictWideEdgeScan(t *testing.T) {
	// Above edgeParallelThreshold a single-worker run splits the edge scan.
	features, response := randomFeatures(11, edgeParallelThreshold+100, 8)

	wide, err := Predict(features, response, WithLogger(quietLogger()))
	require.NoError(t, err)
	folds, err := Predict(features, response, WithWorkers(2), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, folds.Folds, wide.Folds)
}

func TestPredictMeanAggregation(t *testing.T) {
	features, response := mixedFeatures()

	sum, err := Predict(features, response, WithLogger(quietLogger()))
	require.NoError(t, err)
	mean, err := Predict(features, response, WithAggregation(AggregateMean), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, "mean", mean.Aggregation)
	for s := range response {
		k := float64(len(sum.Folds[s].Selected))
		assert.InDelta(t, sum.Folds[s].Strength, k*mean.Folds[s].Strength, 1e-9)
		// OLS predictions are invariant to rescaling the predictor.
		assert.InDelta(t, sum.Predictions[s], mean.Predictions[s], 1e-9)
	}
}

func TestPredictRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	features, response := mixedFeatures()
	_, err = Predict(features, response, WithMetrics(m), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Folds.WithLabelValues("fitted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Folds.WithLabelValues("fallback")))

	_, err = Predict(features, response[:4], WithMetrics(m), WithLogger(quietLogger()))
	require.Error(t, err)
	// Input validation fails before a run starts.
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Runs.WithLabelValues("error")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestPredictErrors(t *testing.T) {
	t.Run("shape mismatch", func(t *testing.T) {
		features := mat.NewDense(2, 4, nil)
		_, err := Predict(features, []float64{1, 2, 3}, WithLogger(quietLogger()))
		var se *errors.ShapeMismatchError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 4, se.Expected)
		assert.Equal(t, 3, se.Got)
	})

	t.Run("too few subjects", func(t *testing.T) {
		features := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
		_, err := Predict(features, []float64{1, 2}, WithLogger(quietLogger()))
		var de *errors.DegenerateInputError
		require.True(t, errors.As(err, &de))
	})

	t.Run("constant edge", func(t *testing.T) {
		features := mat.NewDense(2, 4, []float64{
			1, 2, 3, 4,
			7, 7, 7, 7,
		})
		_, err := Predict(features, []float64{1, 3, 2, 4}, WithLogger(quietLogger()))
		var de *errors.DegenerateInputError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 1, de.Index)
	})

	t.Run("constant training response", func(t *testing.T) {
		features := mat.NewDense(1, 3, []float64{1, 2, 3})
		_, err := Predict(features, []float64{5, 5, 9}, WithLogger(quietLogger()))
		var de *errors.DegenerateInputError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 2, de.Index)
	})

	t.Run("non-finite feature", func(t *testing.T) {
		features := mat.NewDense(1, 3, []float64{1, math.NaN(), 3})
		_, err := Predict(features, []float64{1, 2, 3}, WithLogger(quietLogger()))
		var ne *errors.NumericalInstabilityError
		require.True(t, errors.As(err, &ne))
	})

	t.Run("invalid options", func(t *testing.T) {
		features, response := mixedFeatures()
		for _, opt := range []Option{
			WithThreshold(0),
			WithThreshold(1.5),
			WithThreshold(math.NaN()),
			WithWorkers(0),
			WithAggregation(Aggregation(7)),
		} {
			_, err := Predict(features, response, opt)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		features, response := mixedFeatures()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := PredictContext(ctx, features, response, WithLogger(quietLogger()))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseAggregation(t *testing.T) {
	a, err := ParseAggregation("Mean")
	require.NoError(t, err)
	assert.Equal(t, AggregateMean, a)

	a, err = ParseAggregation("")
	require.NoError(t, err)
	assert.Equal(t, AggregateSum, a)

	_, err = ParseAggregation("median")
	assert.Error(t, err)
}

func TestLeaveOneOut(t *testing.T) {
	folds := LeaveOneOut(3)
	assert.Equal(t, []Fold{
		{Test: 0, Train: []int{1, 2}},
		{Test: 1, Train: []int{0, 2}},
		{Test: 2, Train: []int{0, 1}},
	}, folds)
}
