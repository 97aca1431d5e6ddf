package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"github.com/YuminosukeSato/neurocpm/pkg/log"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "neurocpm",
		Short:         "Connectome-based predictive modelling and fMRI synthesis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return log.SetupLogger(logLevel, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newPredictCmd(),
		newSynthesizeCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neurocpm %s\n", version)
		},
	}
}

// fileConfig is the layout of the --config YAML file.
type fileConfig struct {
	Predict    *predictOptions    `yaml:"predict"`
	Synthesize *synthesizeOptions `yaml:"synthesize"`
}

// loadConfigFile decodes the YAML file at path into cfg and then re-applies
// every flag set on the command line, so that flags win over the file.
func loadConfigFile(cmd *cobra.Command, path string, cfg *fileConfig) error {
	if path == "" {
		return nil
	}
	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parsing config %s", path)
	}

	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return errors.Wrapf(err, "re-applying --%s", name)
		}
	}
	return nil
}
