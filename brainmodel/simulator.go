package brainmodel

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/neurocpm/connectome"
	"github.com/YuminosukeSato/neurocpm/metrics"
	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

// Simulator produces synthetic BOLD signals for a parameter set.
type Simulator interface {
	// Regions is the number of brain regions simulated.
	Regions() int
	// Simulate returns a regions × time matrix sampled every p.TR seconds.
	Simulate(ctx context.Context, p Params, durationMs int) (*mat.Dense, error)
}

// Scorer measures the distance between two samples of connectivity values.
// Lower is better.
type Scorer interface {
	Distance(a, b []float64) (float64, error)
}

// KSScorer scores with the two-sample Kolmogorov-Smirnov statistic.
type KSScorer struct{}

// Distance implements Scorer.
func (KSScorer) Distance(a, b []float64) (float64, error) {
	return metrics.KSDistance(a, b)
}

// NetworkSimulator is a noisy rate network coupled through a structural
// connectome:
//
//	tau dx/dt = -x + tanh(G * C x) + sigma * noise
//
// C is the structural connectome with a zero diagonal, scaled so that its
// largest row sum is 1. Around G = 1 the network moves from noise-driven to
// synchronised activity, which is what the coupling fit resolves. The output
// is the activity sampled every TR.
type NetworkSimulator struct {
	c       *mat.Dense
	regions int

	// TauMs is the time constant of every region.
	TauMs float64
	// Sigma is the standard deviation of the driving noise.
	Sigma float64
	// DtMs is the integration step.
	DtMs float64
	// Seed fixes the noise. Each parameter set draws its own stream so
	// that concurrent simulations stay reproducible.
	Seed uint64
}

var _ Simulator = (*NetworkSimulator)(nil)

// NewNetworkSimulator creates a simulator for the structural connectome sc.
func NewNetworkSimulator(sc mat.Symmetric, seed uint64) (*NetworkSimulator, error) {
	r := sc.SymmetricDim()
	if r < 2 {
		return nil, errors.NewDegenerateInputError("brainmodel.NewNetworkSimulator", "at least 2 regions are required", -1)
	}
	if err := errors.CheckMatrix("brainmodel.NewNetworkSimulator", sc, r, r, 0); err != nil {
		return nil, err
	}

	c := mat.NewDense(r, r, nil)
	var maxRow float64
	for i := 0; i < r; i++ {
		var row float64
		for j := 0; j < r; j++ {
			if i == j {
				continue
			}
			v := sc.At(i, j)
			if v < 0 {
				return nil, errors.NewValidationError("sc", "structural connectivity must be non-negative", v)
			}
			c.Set(i, j, v)
			row += v
		}
		maxRow = math.Max(maxRow, row)
	}
	if maxRow == 0 {
		return nil, errors.NewDegenerateInputError("brainmodel.NewNetworkSimulator", "structural connectome has no connections", -1)
	}
	c.Scale(1/maxRow, c)

	return &NetworkSimulator{
		c:       c,
		regions: r,
		TauMs:   100,
		Sigma:   0.5,
		DtMs:    10,
		Seed:    seed,
	}, nil
}

// Regions implements Simulator.
func (s *NetworkSimulator) Regions() int {
	return s.regions
}

// Simulate implements Simulator.
func (s *NetworkSimulator) Simulate(ctx context.Context, p Params, durationMs int) (*mat.Dense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	trMs := p.TR * 1000
	samples := int(float64(durationMs) / trMs)
	if samples < 2 {
		return nil, errors.NewDegenerateInputError("brainmodel.Simulate", "duration is shorter than two TRs", -1)
	}
	stepsPerSample := int(math.Max(1, math.Round(trMs/s.DtMs)))
	alpha := s.DtMs / s.TauMs
	noise := s.Sigma * math.Sqrt(alpha)

	rng := rand.New(rand.NewPCG(s.Seed, math.Float64bits(p.G)))
	x := mat.NewVecDense(s.regions, nil)
	for i := 0; i < s.regions; i++ {
		x.SetVec(i, rng.NormFloat64()*s.Sigma)
	}
	in := mat.NewVecDense(s.regions, nil)

	out := mat.NewDense(s.regions, samples, nil)
	for t := 0; t < samples; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for k := 0; k < stepsPerSample; k++ {
			in.MulVec(s.c, x)
			for i := 0; i < s.regions; i++ {
				xi := x.AtVec(i)
				drive := math.Tanh(p.G * in.AtVec(i))
				x.SetVec(i, xi+alpha*(drive-xi)+noise*rng.NormFloat64())
			}
		}
		for i := 0; i < s.regions; i++ {
			out.Set(i, t, x.AtVec(i))
		}
	}
	return out, nil
}

// Evaluate simulates p and returns the distance between the distribution of
// the simulated connectivity values and target, the vectorised upper
// triangle of an empirical connectivity matrix without its diagonal.
func Evaluate(ctx context.Context, sim Simulator, scorer Scorer, p Params, target []float64, durationMs int) (float64, error) {
	want := connectome.EdgeCount(sim.Regions(), true)
	if len(target) != want {
		return 0, errors.NewShapeMismatchError("brainmodel.Evaluate", "empirical connectivity length", want, len(target))
	}

	bold, err := sim.Simulate(ctx, p, durationMs)
	if err != nil {
		return 0, errors.Wrapf(err, "simulate G=%g", p.G)
	}
	if r, _ := bold.Dims(); r != sim.Regions() {
		return 0, errors.NewShapeMismatchError("brainmodel.Evaluate", "simulated regions", sim.Regions(), r)
	}

	fc, err := connectome.FunctionalConnectivity(bold.T())
	if err != nil {
		return 0, errors.Wrapf(err, "connectivity of simulation G=%g", p.G)
	}
	return scorer.Distance(connectome.Vectorize(fc, true), target)
}
