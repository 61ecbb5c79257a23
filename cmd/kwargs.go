package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/lensrecipe/internal/config"
)

var (
	kwargsSettings string
	kwargsFormat   string
)

var kwargsCmd = &cobra.Command{
	Use:   "kwargs",
	Short: "Print the engine keyword bundles derived from a settings file",
	RunE:  runKwargs,
}

func init() {
	rootCmd.AddCommand(kwargsCmd)

	kwargsCmd.Flags().StringVarP(&kwargsSettings, "settings", "s", "", "Settings file (required)")
	kwargsCmd.Flags().StringVarP(&kwargsFormat, "format", "f", formatJSON, "Output format (json, yaml)")
	_ = kwargsCmd.MarkFlagRequired("settings")
}

// kwargsBundle is the document printed by the kwargs command.
type kwargsBundle struct {
	Model       map[string]any     `json:"kwargs_model"`
	Constraints config.Constraints `json:"kwargs_constraints"`
	Likelihood  *config.Likelihood `json:"kwargs_likelihood"`
	Numerics    []config.Numerics  `json:"kwargs_numerics"`
	PSFIter     any                `json:"kwargs_psf_iteration,omitempty"`
}

func buildKwargs(settings *config.Settings) (*kwargsBundle, error) {
	likelihood, err := settings.KwargsLikelihood()
	if err != nil {
		return nil, err
	}
	numerics, err := settings.KwargsNumerics()
	if err != nil {
		return nil, err
	}

	b := &kwargsBundle{
		Model:       settings.KwargsModel(),
		Constraints: settings.KwargsConstraints(),
		Likelihood:  likelihood,
		Numerics:    numerics,
	}
	if settings.Fitting.PSFIterationSettings != nil {
		b.PSFIter = settings.PSFIteration()
	}
	return b, nil
}

func runKwargs(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(kwargsSettings)
	if err != nil {
		return err
	}
	b, err := buildKwargs(settings)
	if err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), b, kwargsFormat)
}
