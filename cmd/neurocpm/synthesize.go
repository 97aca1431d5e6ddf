package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/neurocpm/brainmodel"
	"github.com/YuminosukeSato/neurocpm/core/model"
	"github.com/YuminosukeSato/neurocpm/dataset"
	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
	"github.com/YuminosukeSato/neurocpm/viz"
)

type synthesizeOptions struct {
	FC         string  `yaml:"fc"`
	SC         string  `yaml:"sc"`
	HCPDir     string  `yaml:"hcp_dir"`
	Subjects   string  `yaml:"subjects"`
	N          int     `yaml:"n"`
	Seconds    float64 `yaml:"seconds"`
	OutDir     string  `yaml:"out_dir"`
	Plot       string  `yaml:"plot"`
	TR         float64 `yaml:"tr"`
	GMin       float64 `yaml:"g_min"`
	GMax       float64 `yaml:"g_max"`
	DurationMs int     `yaml:"duration_ms"`
	InitPoints int     `yaml:"init_points"`
	NIter      int     `yaml:"n_iter"`
	Kappa      float64 `yaml:"kappa"`
	Seed       uint64  `yaml:"seed"`
	Workers    int     `yaml:"workers"`
}

func newSynthesizeCmd() *cobra.Command {
	o := &synthesizeOptions{}
	var configPath string
	def := brainmodel.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Fit a whole-brain model per subject and simulate new subjects",
		Long: `Fits the global coupling G of a network model to every subject's
functional connectivity, fits a normal distribution to the fitted couplings
and simulates new subjects with couplings drawn from it.

The fc CSV holds one edge (upper triangle without diagonal) per row and one
subject per column. The structural connectome is read from --sc, or
averaged over the HCP100 DTI matrices in --hcp-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfigFile(cmd, configPath, &fileConfig{Synthesize: o}); err != nil {
				return err
			}
			return runSynthesize(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file; flags override it")
	f.StringVar(&o.FC, "fc", "", "edges × subjects functional connectivity CSV")
	f.StringVar(&o.SC, "sc", "", "regions × regions structural connectivity CSV")
	f.StringVar(&o.HCPDir, "hcp-dir", "", "directory of HCP100 DTI matrices averaged into the structural connectome")
	f.StringVar(&o.Subjects, "subjects", "", "comma separated HCP100 subject ids (default all 100)")
	f.IntVar(&o.N, "n", 10, "number of synthetic subjects")
	f.Float64Var(&o.Seconds, "seconds", 300, "length of each synthetic series in seconds")
	f.StringVar(&o.OutDir, "out-dir", ".", "directory receiving synthetic_NNN.csv and synthesis.json")
	f.StringVar(&o.Plot, "plot", "", "write fit diagnostics PNG to this file")
	f.Float64Var(&o.TR, "tr", def.Defaults.TR, "repetition time in seconds")
	f.Float64Var(&o.GMin, "g-min", def.GBounds[0], "lower bound of the coupling search")
	f.Float64Var(&o.GMax, "g-max", def.GBounds[1], "upper bound of the coupling search")
	f.IntVar(&o.DurationMs, "duration-ms", def.DurationMs, "simulated milliseconds per fit evaluation")
	f.IntVar(&o.InitPoints, "init-points", def.InitPoints, "random probes per fit")
	f.IntVar(&o.NIter, "n-iter", def.NIter, "guided probes per fit")
	f.Float64Var(&o.Kappa, "kappa", def.Kappa, "exploration weight of the acquisition")
	f.Uint64Var(&o.Seed, "seed", def.Seed, "random seed")
	f.IntVar(&o.Workers, "workers", def.Workers, "subjects fitted concurrently")
	return cmd
}

func runSynthesize(cmd *cobra.Command, o *synthesizeOptions) error {
	if o.FC == "" {
		return errors.NewValidationError("fc", "a functional connectivity file is required", nil)
	}
	logger := log.GetLoggerWithName("cli")

	cfg, err := brainmodel.NewConfig(
		brainmodel.WithDefaults(brainmodel.DefaultParams().WithTR(o.TR)),
		brainmodel.WithGBounds(o.GMin, o.GMax),
		brainmodel.WithDurationMs(o.DurationMs),
		brainmodel.WithInitPoints(o.InitPoints),
		brainmodel.WithNIter(o.NIter),
		brainmodel.WithKappa(o.Kappa),
		brainmodel.WithSeed(o.Seed),
		brainmodel.WithWorkers(o.Workers),
	)
	if err != nil {
		return err
	}

	sc, err := loadStructural(o)
	if err != nil {
		return err
	}
	sim, err := brainmodel.NewNetworkSimulator(sc, o.Seed)
	if err != nil {
		return err
	}
	fcs, err := dataset.LoadMatrixCSV(o.FC)
	if err != nil {
		return err
	}

	syn, err := brainmodel.Synthesize(cmd.Context(), sim, brainmodel.KSScorer{}, cfg, fcs, o.N, o.Seconds)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(o.OutDir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	for i, ts := range syn.Timeseries {
		if err := dataset.SaveMatrixCSV(filepath.Join(o.OutDir, fmt.Sprintf("synthetic_%03d.csv", i+1)), ts); err != nil {
			return err
		}
	}
	if err := model.SaveJSON(syn, filepath.Join(o.OutDir, "synthesis.json")); err != nil {
		return err
	}
	if o.Plot != "" {
		f, err := os.Create(o.Plot)
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close()
		if err := viz.FitDiagnostics(f, syn.FittedG, syn.FittedLoss); err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return errors.WithStack(err)
		}
	}

	logger.Info("synthetic subjects written", "dir", o.OutDir, log.SubjectsKey, len(syn.Timeseries))
	fmt.Fprintf(cmd.OutOrStdout(), "fitted %d subjects, wrote %d synthetic subjects to %s\n",
		len(syn.FittedG), len(syn.Timeseries), o.OutDir)
	return nil
}

// loadStructural reads --sc, or averages the HCP100 matrices in --hcp-dir.
// The result is symmetrised.
func loadStructural(o *synthesizeOptions) (*mat.SymDense, error) {
	var mats []*mat.Dense
	switch {
	case o.SC != "":
		m, err := dataset.LoadMatrixCSV(o.SC)
		if err != nil {
			return nil, err
		}
		mats = []*mat.Dense{m}
	case o.HCPDir != "":
		subjects, err := parseSubjects(o.Subjects)
		if err != nil {
			return nil, err
		}
		if mats, err = dataset.LoadHCP100DTI(o.HCPDir, subjects); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewValidationError("sc/hcp-dir", "a structural connectome is required", nil)
	}

	r, c := mats[0].Dims()
	if r != c {
		return nil, errors.NewShapeMismatchError("loadStructural", "structural connectome must be square", r, c)
	}
	sum := mat.NewDense(r, r, nil)
	for i, m := range mats {
		if mr, _ := m.Dims(); mr != r {
			return nil, errors.NewShapeMismatchError("loadStructural", fmt.Sprintf("matrix %d regions", i), r, mr)
		}
		sum.Add(sum, m)
	}
	sc := mat.NewSymDense(r, nil)
	scale := 1 / float64(2*len(mats))
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			sc.SetSym(i, j, (sum.At(i, j)+sum.At(j, i))*scale)
		}
	}
	return sc, nil
}

// parseSubjects parses "1,2,10"; an empty string selects every subject.
func parseSubjects(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id < 1 {
			return nil, errors.NewValidationError("subjects", "must be positive integers separated by commas", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
