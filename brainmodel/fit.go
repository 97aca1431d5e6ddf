package brainmodel

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/neurocpm/connectome"
	"github.com/YuminosukeSato/neurocpm/core/parallel"
	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
)

// FitResult is the outcome of fitting one empirical connectivity vector.
type FitResult struct {
	Params  Params       `json:"params"`
	Loss    float64      `json:"loss"`
	History []Evaluation `json:"history"`
}

// Fit searches GBounds for the coupling whose simulated connectivity
// distribution is closest to target.
func Fit(ctx context.Context, sim Simulator, scorer Scorer, cfg *Config, target []float64) (*FitResult, error) {
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if want := connectome.EdgeCount(sim.Regions(), true); len(target) != want {
		return nil, errors.NewShapeMismatchError("brainmodel.Fit", "empirical connectivity length", want, len(target))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("brainmodel")
	}

	start := time.Now()
	opt := NewBayesianOptimizer(cfg.GBounds[0], cfg.GBounds[1], cfg.Kappa, cfg.Seed, logger)
	best, err := opt.Minimize(ctx, func(ctx context.Context, g float64) (float64, error) {
		return Evaluate(ctx, sim, scorer, cfg.Defaults.WithG(g), target, cfg.DurationMs)
	}, cfg.InitPoints, cfg.NIter)
	if err != nil {
		return nil, err
	}

	logger.Info("coupling fitted",
		log.OperationKey, log.OperationFit,
		log.CouplingKey, best.G,
		log.LossKey, best.Loss,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &FitResult{
		Params:  cfg.Defaults.WithG(best.G),
		Loss:    best.Loss,
		History: opt.History(),
	}, nil
}

// Synthesis holds the fitted population and the synthetic subjects drawn
// from it.
type Synthesis struct {
	FittedG    []float64 `json:"fitted_g"`
	FittedLoss []float64 `json:"fitted_loss"`
	SampledG   []float64 `json:"sampled_g"`
	// Timeseries are time × regions, one per synthetic subject.
	Timeseries []*mat.Dense `json:"-"`
}

// Synthesize fits every subject column of fcs (edges × subjects), fits a
// normal distribution to the fitted couplings and simulates n new subjects of
// the given length in seconds with couplings drawn from it. Drawn couplings
// are clipped to GBounds.
func Synthesize(ctx context.Context, sim Simulator, scorer Scorer, cfg *Config, fcs mat.Matrix, n int, seconds float64) (*Synthesis, error) {
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, errors.NewValidationError("n", "must be at least 1", n)
	}
	if math.IsNaN(seconds) || seconds <= 0 {
		return nil, errors.NewValidationError("seconds", "must be positive", seconds)
	}
	edges, subjects := fcs.Dims()
	if want := connectome.EdgeCount(sim.Regions(), true); edges != want {
		return nil, errors.NewShapeMismatchError("brainmodel.Synthesize", "connectivity rows", want, edges)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("brainmodel")
	}

	out := &Synthesis{
		FittedG:    make([]float64, subjects),
		FittedLoss: make([]float64, subjects),
		SampledG:   make([]float64, n),
		Timeseries: make([]*mat.Dense, n),
	}

	err := parallel.ForEach(ctx, subjects, cfg.Workers, func(ctx context.Context, s int) error {
		sub := *cfg
		sub.Seed = cfg.Seed + uint64(s)
		sub.Logger = logger.With(log.SubjectsKey, s)
		res, err := Fit(ctx, sim, scorer, &sub, mat.Col(nil, s, fcs))
		if err != nil {
			return errors.Wrapf(err, "subject %d", s)
		}
		out.FittedG[s] = res.Params.G
		out.FittedLoss[s] = res.Loss
		return nil
	})
	if err != nil {
		return nil, err
	}

	mean, std := stat.PopMeanStdDev(out.FittedG, nil)
	normal := distuv.Normal{Mu: mean, Sigma: std, Src: rand.NewPCG(cfg.Seed, uint64(subjects))}
	for i := range out.SampledG {
		out.SampledG[i] = cfg.clip(normal.Rand())
	}
	logger.Info("coupling distribution fitted",
		log.OperationKey, log.OperationSynthesize,
		log.CouplingKey, mean,
		"coupling_std", std,
		log.SubjectsKey, subjects,
	)

	ms := int(math.Round(seconds * 1000))
	err = parallel.ForEach(ctx, n, cfg.Workers, func(ctx context.Context, i int) error {
		bold, err := sim.Simulate(ctx, cfg.Defaults.WithG(out.SampledG[i]), ms)
		if err != nil {
			return errors.Wrapf(err, "synthetic subject %d", i)
		}
		out.Timeseries[i] = mat.DenseCopyOf(bold.T())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
