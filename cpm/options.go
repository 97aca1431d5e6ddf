package cpm

import (
	"math"
	"strings"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
)

// DefaultThreshold is the default edge significance level.
const DefaultThreshold = 0.01

// Aggregation controls how selected edges are combined into strength.
type Aggregation int

const (
	// AggregateSum adds the values of all selected edges.
	AggregateSum Aggregation = iota
	// AggregateMean divides the sum by the number of selected edges.
	AggregateMean
)

func (a Aggregation) String() string {
	switch a {
	case AggregateSum:
		return "sum"
	case AggregateMean:
		return "mean"
	default:
		return "unknown"
	}
}

// ParseAggregation converts "sum" or "mean" to an Aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "":
		return AggregateSum, nil
	case "mean":
		return AggregateMean, nil
	default:
		return AggregateSum, errors.NewValidationError("aggregation", "must be sum or mean", s)
	}
}

type config struct {
	threshold   float64
	workers     int
	aggregation Aggregation
	strict      bool
	logger      log.Logger
	metrics     *Metrics
}

// Option configures Predict.
type Option func(*config)

// WithThreshold sets the significance level an edge's p-value must be
// strictly below to be selected.
func WithThreshold(p float64) Option {
	return func(c *config) {
		c.threshold = p
	}
}

// WithWorkers sets the number of folds computed concurrently.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithAggregation sets how selected edges are combined.
func WithAggregation(a Aggregation) Option {
	return func(c *config) {
		c.aggregation = a
	}
}

// WithStrictSelection makes a fold without any selected edge an error
// instead of falling back to the training mean.
func WithStrictSelection(strict bool) Option {
	return func(c *config) {
		c.strict = strict
	}
}

// WithLogger sets the logger. Defaults to the "cpm" component logger.
func WithLogger(l log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics records run statistics into m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func newConfig(opts []Option) (*config, error) {
	c := &config{
		threshold:   DefaultThreshold,
		workers:     1,
		aggregation: AggregateSum,
	}
	for _, opt := range opts {
		opt(c)
	}

	if math.IsNaN(c.threshold) || c.threshold <= 0 || c.threshold > 1 {
		return nil, errors.NewValidationError("threshold", "must be in (0, 1]", c.threshold)
	}
	if c.workers < 1 {
		return nil, errors.NewValidationError("workers", "must be at least 1", c.workers)
	}
	if c.aggregation != AggregateSum && c.aggregation != AggregateMean {
		return nil, errors.NewValidationError("aggregation", "must be sum or mean", int(c.aggregation))
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("cpm")
	}
	return c, nil
}
