package brainmodel

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
)

const (
	// gridSize is the number of candidates scored by the acquisition.
	gridSize = 1000
	// duplicateTol is the fraction of the search range below which a
	// suggestion counts as already observed.
	duplicateTol = 1e-9
)

// lengthScales are tried as fractions of the search range; the one with the
// highest marginal likelihood is kept.
var lengthScales = []float64{0.05, 0.1, 0.2, 0.4, 0.8}

// jitters are added to the kernel diagonal until it factorises.
var jitters = []float64{1e-6, 1e-4, 1e-2}

// Evaluation is one probe of the objective.
type Evaluation struct {
	G    float64 `json:"g"`
	Loss float64 `json:"loss"`
}

// BayesianOptimizer minimises a scalar objective over a closed interval. It
// models the objective with a Gaussian process (Matérn 5/2 kernel) and picks
// the candidate with the lowest lower confidence bound mu - kappa*sigma.
//
// A BayesianOptimizer is not safe for concurrent use.
type BayesianOptimizer struct {
	lo, hi  float64
	kappa   float64
	uniform distuv.Uniform
	grid    []float64
	history []Evaluation
	logger  log.Logger
}

// NewBayesianOptimizer creates an optimizer over [lo, hi] whose random
// probes are drawn from a stream seeded with seed.
func NewBayesianOptimizer(lo, hi, kappa float64, seed uint64, logger log.Logger) *BayesianOptimizer {
	if logger == nil {
		logger = log.GetLoggerWithName("brainmodel")
	}
	grid := make([]float64, gridSize)
	floats.Span(grid, lo, hi)
	return &BayesianOptimizer{
		lo:    lo,
		hi:    hi,
		kappa: kappa,
		uniform: distuv.Uniform{
			Min: lo,
			Max: hi,
			Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
		grid:   grid,
		logger: logger,
	}
}

// Random returns a uniformly drawn candidate.
func (o *BayesianOptimizer) Random() float64 {
	return o.uniform.Rand()
}

// Observe records the loss of g.
func (o *BayesianOptimizer) Observe(g, loss float64) {
	o.history = append(o.history, Evaluation{G: g, Loss: loss})
}

// History returns the observations in the order they were made.
func (o *BayesianOptimizer) History() []Evaluation {
	return append([]Evaluation(nil), o.history...)
}

// Best returns the observation with the lowest loss. The earliest wins ties.
func (o *BayesianOptimizer) Best() (Evaluation, bool) {
	if len(o.history) == 0 {
		return Evaluation{}, false
	}
	best := o.history[0]
	for _, e := range o.history[1:] {
		if e.Loss < best.Loss {
			best = e
		}
	}
	return best, true
}

// Suggest returns the next candidate. Without observations, or when the
// surrogate cannot be fitted, it falls back to a random candidate.
func (o *BayesianOptimizer) Suggest() float64 {
	if len(o.history) == 0 {
		return o.Random()
	}
	xs := make([]float64, len(o.history))
	ys := make([]float64, len(o.history))
	for i, e := range o.history {
		xs[i], ys[i] = e.G, e.Loss
	}

	gp, err := fitGP(xs, ys, o.hi-o.lo)
	if err != nil {
		errors.Warn(errors.NewConvergenceWarning("BayesianOptimizer", len(o.history), err.Error()))
		return o.Random()
	}

	best, bestScore := o.grid[0], math.Inf(1)
	for _, x := range o.grid {
		mu, sigma := gp.predict(x)
		if score := mu - o.kappa*sigma; score < bestScore {
			best, bestScore = x, score
		}
	}
	for _, x := range xs {
		if math.Abs(x-best) <= duplicateTol*(o.hi-o.lo) {
			o.logger.Debug("suggestion already observed, probing at random", log.CouplingKey, best)
			return o.Random()
		}
	}
	return best
}

// Minimize probes f at initPoints random candidates and nIter suggested
// candidates and returns the best observation.
func (o *BayesianOptimizer) Minimize(ctx context.Context, f func(ctx context.Context, g float64) (float64, error), initPoints, nIter int) (Evaluation, error) {
	for i := 0; i < initPoints+nIter; i++ {
		if err := ctx.Err(); err != nil {
			return Evaluation{}, err
		}
		var g float64
		if i < initPoints {
			g = o.Random()
		} else {
			g = o.Suggest()
		}
		loss, err := f(ctx, g)
		if err != nil {
			return Evaluation{}, err
		}
		if err := errors.CheckScalar("BayesianOptimizer.objective", loss, i); err != nil {
			return Evaluation{}, err
		}
		o.Observe(g, loss)
		o.logger.Debug("probe evaluated",
			log.IterationKey, i,
			log.CouplingKey, g,
			log.LossKey, loss,
		)
	}
	best, ok := o.Best()
	if !ok {
		return Evaluation{}, errors.NewValueError("BayesianOptimizer.Minimize", "no probes were evaluated")
	}
	return best, nil
}

// gaussianProcess is a zero-mean GP over standardised observations.
type gaussianProcess struct {
	xs     []float64
	alpha  *mat.VecDense
	chol   mat.Cholesky
	mean   float64
	std    float64
	length float64
}

func matern52(d, length float64) float64 {
	r := math.Sqrt(5) * math.Abs(d) / length
	return (1 + r + r*r/3) * math.Exp(-r)
}

// fitGP fits one GP per candidate length scale and keeps the most likely.
func fitGP(xs, ys []float64, span float64) (*gaussianProcess, error) {
	mean, std := stat.PopMeanStdDev(ys, nil)
	if std == 0 {
		std = 1
	}
	z := make([]float64, len(ys))
	for i, y := range ys {
		z[i] = (y - mean) / std
	}

	var (
		best    *gaussianProcess
		bestLML = math.Inf(-1)
	)
	for _, frac := range lengthScales {
		gp, lml, err := fitGPWithLength(xs, z, frac*span)
		if err != nil {
			continue
		}
		if lml > bestLML {
			best, bestLML = gp, lml
		}
	}
	if best == nil {
		return nil, errors.NewModelError("gaussianProcess.fit", "kernel matrix is not positive definite", errors.ErrSingularMatrix)
	}
	best.mean, best.std = mean, std
	return best, nil
}

func fitGPWithLength(xs, z []float64, length float64) (*gaussianProcess, float64, error) {
	n := len(xs)
	for _, jitter := range jitters {
		k := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				k.SetSym(i, j, matern52(xs[i]-xs[j], length))
			}
			k.SetSym(i, i, 1+jitter)
		}
		gp := &gaussianProcess{xs: xs, length: length}
		if ok := gp.chol.Factorize(k); !ok {
			continue
		}
		gp.alpha = mat.NewVecDense(n, nil)
		if err := gp.chol.SolveVecTo(gp.alpha, mat.NewVecDense(n, z)); err != nil {
			continue
		}
		lml := -0.5*mat.Dot(mat.NewVecDense(n, z), gp.alpha) - 0.5*gp.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
		return gp, lml, nil
	}
	return nil, 0, errors.ErrSingularMatrix
}

// predict returns the posterior mean and standard deviation at x in the
// units of the observations.
func (gp *gaussianProcess) predict(x float64) (mu, sigma float64) {
	n := len(gp.xs)
	ks := mat.NewVecDense(n, nil)
	for i, xi := range gp.xs {
		ks.SetVec(i, matern52(x-xi, gp.length))
	}
	mu = mat.Dot(ks, gp.alpha)

	v := mat.NewVecDense(n, nil)
	variance := 1.0
	if err := gp.chol.SolveVecTo(v, ks); err == nil {
		variance -= mat.Dot(ks, v)
	}
	if variance < 0 {
		variance = 0
	}
	return mu*gp.std + gp.mean, math.Sqrt(variance) * gp.std
}
