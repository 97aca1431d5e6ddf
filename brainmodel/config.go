package brainmodel

import (
	"math"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
)

// Config enumerates every option of the fitting pipeline. Build it with
// NewConfig so that it is validated.
type Config struct {
	// Defaults are the parameters every proposal starts from.
	Defaults Params `yaml:"defaults"`
	// GBounds is the closed search interval for the coupling G.
	GBounds [2]float64 `yaml:"g_bounds"`
	// DurationMs is the simulated duration per evaluation while fitting.
	DurationMs int `yaml:"duration_ms"`
	// InitPoints random probes precede NIter guided probes.
	InitPoints int `yaml:"init_points"`
	NIter      int `yaml:"n_iter"`
	// Kappa weighs exploration in the lower-confidence-bound acquisition.
	Kappa float64 `yaml:"kappa"`
	Seed  uint64  `yaml:"seed"`
	// Workers bounds the number of subjects fitted concurrently by Synthesize.
	Workers int `yaml:"workers"`

	Logger log.Logger `yaml:"-"`
}

// ConfigOption configures NewConfig.
type ConfigOption func(*Config)

// WithDefaults sets the base parameters.
func WithDefaults(p Params) ConfigOption {
	return func(c *Config) { c.Defaults = p }
}

// WithGBounds sets the coupling search interval.
func WithGBounds(lo, hi float64) ConfigOption {
	return func(c *Config) { c.GBounds = [2]float64{lo, hi} }
}

// WithDurationMs sets the simulated milliseconds per evaluation.
func WithDurationMs(ms int) ConfigOption {
	return func(c *Config) { c.DurationMs = ms }
}

// WithInitPoints sets the number of random probes.
func WithInitPoints(n int) ConfigOption {
	return func(c *Config) { c.InitPoints = n }
}

// WithNIter sets the number of guided probes.
func WithNIter(n int) ConfigOption {
	return func(c *Config) { c.NIter = n }
}

// WithKappa sets the exploration weight.
func WithKappa(k float64) ConfigOption {
	return func(c *Config) { c.Kappa = k }
}

// WithSeed seeds the optimizer and the sampling of synthetic couplings.
func WithSeed(seed uint64) ConfigOption {
	return func(c *Config) { c.Seed = seed }
}

// WithWorkers sets how many subjects are fitted concurrently.
func WithWorkers(n int) ConfigOption {
	return func(c *Config) { c.Workers = n }
}

// WithLogger sets the logger. Defaults to the "brainmodel" component logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the configuration used when no option is given.
func DefaultConfig() Config {
	return Config{
		Defaults:   DefaultParams(),
		GBounds:    [2]float64{0.1, 5},
		DurationMs: 120000,
		InitPoints: 5,
		NIter:      10,
		Kappa:      2.576,
		Seed:       1,
		Workers:    1,
	}
}

// NewConfig applies opts to DefaultConfig and validates the result.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Logger == nil {
		c.Logger = log.GetLoggerWithName("brainmodel")
	}
	return &c, nil
}

// Validate checks every field of c.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return err
	}
	lo, hi := c.GBounds[0], c.GBounds[1]
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo < 0 || lo >= hi {
		return errors.NewValidationError("g_bounds", "must satisfy 0 <= lo < hi", c.GBounds)
	}
	if c.DurationMs <= 0 {
		return errors.NewValidationError("duration_ms", "must be positive", c.DurationMs)
	}
	if c.InitPoints < 1 {
		return errors.NewValidationError("init_points", "must be at least 1", c.InitPoints)
	}
	if c.NIter < 0 {
		return errors.NewValidationError("n_iter", "must not be negative", c.NIter)
	}
	if math.IsNaN(c.Kappa) || c.Kappa < 0 {
		return errors.NewValidationError("kappa", "must not be negative", c.Kappa)
	}
	if c.Workers < 1 {
		return errors.NewValidationError("workers", "must be at least 1", c.Workers)
	}
	return nil
}

func (c *Config) clip(g float64) float64 {
	return errors.ClipValue(g, c.GBounds[0], c.GBounds[1])
}
