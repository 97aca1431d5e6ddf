package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/neurocpm/core/model"
	"github.com/YuminosukeSato/neurocpm/cpm"
	"github.com/YuminosukeSato/neurocpm/dataset"
	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
	"github.com/YuminosukeSato/neurocpm/viz"
)

type predictOptions struct {
	Features    string  `yaml:"features"`
	Response    string  `yaml:"response"`
	Threshold   float64 `yaml:"threshold"`
	Workers     int     `yaml:"workers"`
	Aggregate   string  `yaml:"aggregate"`
	Strict      bool    `yaml:"strict"`
	Out         string  `yaml:"out"`
	Plot        string  `yaml:"plot"`
	MetricsAddr string  `yaml:"metrics_addr"`
}

func newPredictCmd() *cobra.Command {
	o := &predictOptions{}
	var configPath string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Leave-one-out CPM prediction of a behavioural score",
		Long: `Runs leave-one-out connectome-based predictive modelling.

The features CSV holds one edge per row and one subject per column. The
response CSV holds one value per subject, as a single row or column.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfigFile(cmd, configPath, &fileConfig{Predict: o}); err != nil {
				return err
			}
			return runPredict(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file; flags override it")
	f.StringVar(&o.Features, "features", "", "edges × subjects CSV")
	f.StringVar(&o.Response, "response", "", "response CSV, one value per subject")
	f.Float64Var(&o.Threshold, "threshold", cpm.DefaultThreshold, "edge p-value must be below this to be selected")
	f.IntVar(&o.Workers, "workers", 1, "folds computed concurrently")
	f.StringVar(&o.Aggregate, "aggregate", "sum", "combine selected edges by sum or mean")
	f.BoolVar(&o.Strict, "strict", false, "fail when a fold selects no edge instead of predicting the training mean")
	f.StringVar(&o.Out, "out", "", "write the result as JSON to this file")
	f.StringVar(&o.Plot, "plot", "", "write a predicted vs observed scatterplot to this file (.png, .svg, .pdf)")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func runPredict(cmd *cobra.Command, o *predictOptions) error {
	if o.Features == "" || o.Response == "" {
		return errors.NewValidationError("features/response", "both input files are required", nil)
	}
	agg, err := cpm.ParseAggregation(o.Aggregate)
	if err != nil {
		return err
	}
	logger := log.GetLoggerWithName("cli")

	features, err := dataset.LoadMatrixCSV(o.Features)
	if err != nil {
		return err
	}
	response, err := dataset.LoadVectorCSV(o.Response)
	if err != nil {
		return err
	}

	opts := []cpm.Option{
		cpm.WithThreshold(o.Threshold),
		cpm.WithWorkers(o.Workers),
		cpm.WithAggregation(agg),
		cpm.WithStrictSelection(o.Strict),
	}
	if o.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := cpm.NewMetrics(reg)
		if err != nil {
			return err
		}
		stop, err := serveMetrics(o.MetricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
		opts = append(opts, cpm.WithMetrics(m))
	}

	res, err := cpm.PredictContext(cmd.Context(), features, response, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "r = %.4f  p = %.4g  (subjects %d, edges %d, fallback folds %d)\n",
		res.R, res.PValue, len(res.Predictions), res.Edges, res.FallbackFolds())

	if o.Out != "" {
		if err := model.SaveJSON(res, o.Out); err != nil {
			return err
		}
		logger.Info("result written", "path", o.Out)
	}
	if o.Plot != "" {
		if err := viz.SavePredictionScatter(o.Plot, res.Predictions, res.Response, res.R, res.PValue); err != nil {
			return err
		}
		logger.Info("plot written", "path", o.Plot)
	}
	return nil
}

// serveMetrics exposes reg on addr under /metrics until the returned
// function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	}, nil
}
