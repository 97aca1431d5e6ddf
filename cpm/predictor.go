// Package cpm implements connectome-based predictive modelling: leave-one-out
// prediction of a behavioural score from functional-connectivity edges.
//
// For every held-out subject the edges whose values correlate positively and
// significantly with the response over the remaining subjects are summed into
// a per-subject strength, an OLS line response ~ strength is fitted on the
// remaining subjects, and the held-out subject's response is predicted from
// its own strength. The held-out subject never takes part in edge selection
// or in fitting.
//
//	res, err := cpm.Predict(features, scores, cpm.WithThreshold(0.01), cpm.WithWorkers(8))
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("r = %.3f, p = %.3g\n", res.R, res.PValue)
package cpm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/neurocpm/core/parallel"
	"github.com/YuminosukeSato/neurocpm/linear"
	"github.com/YuminosukeSato/neurocpm/metrics"
	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
)

const (
	op = "cpm.Predict"

	// minSubjects leaves two training subjects per fold.
	minSubjects = 3

	// edgeParallelThreshold is the edge count above which a single-worker
	// run scans edges concurrently.
	edgeParallelThreshold = 4096
)

// Predict runs leave-one-out CPM on features (edges × subjects) and response
// (one value per subject, same order as the feature columns).
func Predict(features mat.Matrix, response []float64, opts ...Option) (*Result, error) {
	return PredictContext(context.Background(), features, response, opts...)
}

// PredictContext is Predict with a context that stops outstanding folds.
func PredictContext(ctx context.Context, features mat.Matrix, response []float64, opts ...Option) (*Result, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	edges, subjects := features.Dims()
	if subjects != len(response) {
		return nil, errors.NewShapeMismatchError(op, "feature columns vs response length", subjects, len(response))
	}
	if edges < 1 {
		return nil, errors.NewDegenerateInputError(op, "at least one edge is required", -1)
	}
	if subjects < minSubjects {
		return nil, errors.NewDegenerateInputError(op,
			fmt.Sprintf("at least %d subjects are required, got %d", minSubjects, subjects), -1)
	}
	if err := errors.CheckMatrix(op, features, edges, subjects, 0); err != nil {
		return nil, err
	}
	if err := errors.CheckNumericalStability(op, response, 0); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	p := &predictor{
		cfg:      cfg,
		runID:    runID,
		rows:     make([][]float64, edges),
		response: append([]float64(nil), response...),
		logger: cfg.logger.With(
			log.RunIDKey, runID,
			log.OperationKey, log.OperationPredict,
		),
	}
	for e := range p.rows {
		p.rows[e] = mat.Row(nil, e, features)
	}

	return p.run(ctx)
}

type predictor struct {
	cfg      *config
	runID    string
	rows     [][]float64 // one slice per edge, indexed by subject
	response []float64
	logger   log.Logger
}

func (p *predictor) run(ctx context.Context) (*Result, error) {
	start := time.Now()
	n := len(p.response)

	p.logger.Info("leave-one-out started",
		log.SubjectsKey, n,
		log.EdgesKey, len(p.rows),
		log.ThresholdKey, p.cfg.threshold,
		log.WorkersKey, p.cfg.workers,
	)

	folds := LeaveOneOut(n)
	results := make([]FoldResult, n)
	err := parallel.ForEach(ctx, n, p.cfg.workers, func(_ context.Context, i int) error {
		fr, err := p.fold(folds[i])
		if err != nil {
			return err
		}
		results[i] = fr
		return nil
	})

	var res *Result
	if err == nil {
		res, err = p.summarize(results)
	}
	p.cfg.metrics.observeRun(time.Since(start).Seconds(), err)
	if err != nil {
		p.logger.Error("leave-one-out failed", err)
		return nil, err
	}

	p.logger.Info("leave-one-out finished",
		log.CorrelationKey, res.R,
		log.PValueKey, res.PValue,
		log.FallbackKey, res.FallbackFolds(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

// fold fits and evaluates the model for one held-out subject. Only the
// training subjects' columns of rows and entries of response are read until
// the final prediction, which applies the fitted line to the held-out
// subject's strength.
func (p *predictor) fold(f Fold) (FoldResult, error) {
	yTrain := gather(p.response, f.Train)
	if floats.Max(yTrain) == floats.Min(yTrain) {
		return FoldResult{}, errors.NewDegenerateInputError(op,
			fmt.Sprintf("response has zero variance over the training subjects of fold %d", f.Test), f.Test)
	}

	selected, err := p.selectEdges(f, yTrain)
	if err != nil {
		return FoldResult{}, err
	}

	strength := p.strength(selected)
	sTrain := gather(strength, f.Train)
	fr := FoldResult{
		Subject:  f.Test,
		Selected: selected,
		Strength: strength[f.Test],
	}

	if len(selected) == 0 {
		return p.fallback(fr, yTrain, "no edges selected")
	}
	if floats.Max(sTrain) == floats.Min(sTrain) {
		return p.fallback(fr, yTrain, "strength has zero variance")
	}

	lr := linear.NewLinearRegression()
	if err := lr.FitVector(sTrain, yTrain); err != nil {
		if errors.Is(err, errors.ErrSingularMatrix) {
			return p.fallback(fr, yTrain, "singular regression")
		}
		return FoldResult{}, errors.Wrapf(err, "fold %d", f.Test)
	}
	pred, err := lr.PredictScalar(fr.Strength)
	if err != nil {
		return FoldResult{}, errors.Wrapf(err, "fold %d", f.Test)
	}
	if err := errors.CheckScalar("cpm.fold_prediction", pred, f.Test); err != nil {
		return FoldResult{}, err
	}

	fr.Intercept = lr.GetIntercept()
	fr.Slope = lr.GetWeights()[0]
	fr.Prediction = pred

	p.cfg.metrics.observeFold(len(selected), false)
	p.logger.Debug("fold fitted",
		log.FoldKey, f.Test,
		log.SelectedKey, len(selected),
	)
	return fr, nil
}

// selectEdges returns the edges whose training values correlate positively
// with yTrain at p < threshold.
func (p *predictor) selectEdges(f Fold, yTrain []float64) ([]int, error) {
	keep := make([]bool, len(p.rows))

	threshold := len(p.rows)
	if p.cfg.workers == 1 {
		threshold = edgeParallelThreshold
	}
	err := parallel.ParallelizeErr(len(p.rows), threshold, func(start, end int) error {
		xTrain := make([]float64, len(f.Train))
		for e := start; e < end; e++ {
			for i, j := range f.Train {
				xTrain[i] = p.rows[e][j]
			}
			r, pv, err := metrics.PearsonR(xTrain, yTrain)
			if err != nil {
				if errors.As(err, new(*errors.DegenerateInputError)) {
					return errors.NewDegenerateInputError(op,
						fmt.Sprintf("edge %d has zero variance over the training subjects of fold %d", e, f.Test), e)
				}
				return err
			}
			keep[e] = isSelected(r, pv, p.cfg.threshold)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var selected []int
	for e, k := range keep {
		if k {
			selected = append(selected, e)
		}
	}
	return selected, nil
}

// isSelected keeps positive correlations strictly below the threshold.
// Negative correlations are never selected.
func isSelected(r, p, threshold float64) bool {
	return p < threshold && r > 0
}

// strength aggregates the selected edges over all subjects.
func (p *predictor) strength(selected []int) []float64 {
	s := make([]float64, len(p.response))
	for _, e := range selected {
		floats.Add(s, p.rows[e])
	}
	if p.cfg.aggregation == AggregateMean && len(selected) > 0 {
		floats.Scale(1/float64(len(selected)), s)
	}
	return s
}

func (p *predictor) fallback(fr FoldResult, yTrain []float64, reason string) (FoldResult, error) {
	if p.cfg.strict {
		return FoldResult{}, errors.NewDegenerateInputError(op,
			fmt.Sprintf("fold %d: %s", fr.Subject, reason), fr.Subject)
	}
	mean := stat.Mean(yTrain, nil)
	fr.Intercept = mean
	fr.Slope = 0
	fr.Prediction = mean
	fr.Fallback = true

	p.cfg.metrics.observeFold(len(fr.Selected), true)
	p.logger.Warn("fold fell back to the training mean",
		log.FoldKey, fr.Subject,
		"warning", errors.NewDegenerateFoldWarning(fr.Subject, len(fr.Selected), reason, mean),
	)
	return fr, nil
}

func (p *predictor) summarize(folds []FoldResult) (*Result, error) {
	n := len(folds)
	predictions := make([]float64, n)
	for i, f := range folds {
		predictions[i] = f.Prediction
	}

	r, pv, err := metrics.PearsonR(predictions, p.response)
	if err != nil {
		if errors.As(err, new(*errors.DegenerateInputError)) {
			return nil, errors.NewDegenerateInputError(op,
				"predictions have zero variance, the fit statistic is undefined", -1)
		}
		return nil, err
	}

	yTrue := mat.NewVecDense(n, append([]float64(nil), p.response...))
	yPred := mat.NewVecDense(n, append([]float64(nil), predictions...))
	mse, err := metrics.MSE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	mae, err := metrics.MAE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	r2, err := metrics.R2Score(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:       p.runID,
		Predictions: predictions,
		Response:    append([]float64(nil), p.response...),
		R:           r,
		PValue:      pv,
		MSE:         mse,
		MAE:         mae,
		R2:          r2,
		Threshold:   p.cfg.threshold,
		Aggregation: p.cfg.aggregation.String(),
		Edges:       len(p.rows),
		Folds:       folds,
	}, nil
}
