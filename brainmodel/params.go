// Package brainmodel fits a whole-brain simulator to empirical functional
// connectivity and draws synthetic subjects from the fitted population.
//
// The simulator and the distributional distance are supplied by the caller
// through the Simulator and Scorer interfaces. Model parameters are immutable
// values: the optimizer proposes a Params, Evaluate scores it, and the search
// state lives in the optimizer alone.
package brainmodel

import (
	"math"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

// DefaultTR is the repetition time in seconds of the HCP resting-state scans.
const DefaultTR = 0.72

// Params are the model parameters handed to a Simulator.
type Params struct {
	// G is the global coupling strength scaling the structural connectome.
	G float64 `json:"g" yaml:"g"`
	// TR is the sampling interval of the simulated BOLD signal in seconds.
	TR float64 `json:"tr" yaml:"tr"`
}

// DefaultParams returns the parameters used when a Config does not override
// them.
func DefaultParams() Params {
	return Params{G: 2.0, TR: DefaultTR}
}

// WithG returns a copy of p with the coupling set to g.
func (p Params) WithG(g float64) Params {
	p.G = g
	return p
}

// WithTR returns a copy of p with the repetition time set to tr seconds.
func (p Params) WithTR(tr float64) Params {
	p.TR = tr
	return p
}

// Validate reports whether p can be simulated.
func (p Params) Validate() error {
	if math.IsNaN(p.G) || math.IsInf(p.G, 0) || p.G < 0 {
		return errors.NewValidationError("G", "must be a finite non-negative number", p.G)
	}
	if math.IsNaN(p.TR) || p.TR <= 0 {
		return errors.NewValidationError("TR", "must be positive", p.TR)
	}
	return nil
}
