// Package neurocpm predicts behavioural scores from brain connectivity with
// connectome-based predictive modelling (CPM), and augments fMRI datasets
// with subjects simulated from a fitted whole-brain model.
//
// # Features
//
//   - Leave-one-out CPM: positive-edge selection, strength aggregation and
//     per-fold OLS, with no information from the held-out subject
//   - Concurrent folds with deterministic results
//   - Structured logging and Prometheus collectors for long runs
//   - Bayesian-optimisation fitting of a whole-brain model's coupling
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/neurocpm/cpm"
//	    "github.com/YuminosukeSato/neurocpm/dataset"
//	)
//
//	func main() {
//	    features, err := dataset.LoadMatrixCSV("edges.csv") // edges × subjects
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    scores, err := dataset.LoadVectorCSV("scores.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    res, err := cpm.Predict(features, scores, cpm.WithThreshold(0.01), cpm.WithWorkers(8))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("r = %.3f, p = %.3g\n", res.R, res.PValue)
//	}
//
// # Packages
//
//   - cpm: leave-one-out connectome-based predictive modelling
//   - brainmodel: whole-brain model fitting and subject synthesis
//   - connectome: functional connectivity and edge vectorisation
//   - dataset: CSV and HCP100 loaders
//   - metrics: Pearson correlation, KS distance, regression errors
//   - linear: ordinary least squares
//   - viz: scatter and diagnostics plots
//   - core/model: estimator interfaces and JSON persistence
//   - core/parallel: parallel loops and bounded fan-out
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// The neurocpm command in cmd/neurocpm wraps cpm and brainmodel for CSV
// inputs.
package neurocpm
