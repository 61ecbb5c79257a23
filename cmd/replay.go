package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/lensrecipe/internal/pipeline"
	"github.com/cwbudde/lensrecipe/internal/recipe"
	"github.com/cwbudde/lensrecipe/internal/sequence"
	"github.com/cwbudde/lensrecipe/internal/store"
)

var (
	replayRecipeFile string
	replaySettings   string
	replayImages     []string
	replaySeed       int64
	replayEarlyStop  bool
	replayPatience   int
	replayThreshold  float64
	replayNoTrace    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [recipe-id]",
	Short: "Replay a recipe against the lens-light likelihood",
	Long: `Replay a stored recipe (by ID) or a recipe file (--recipe) against the band
images. PSO stages run the Mayfly optimizer over the free parameters; PSF
and MCMC stages are skipped. Stored recipes get a stage trace in the data
directory.

Press Ctrl+C to stop; the stages run so far are reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayRecipeFile, "recipe", "r", "", "Recipe file in JSON list form instead of a stored recipe")
	replayCmd.Flags().StringVarP(&replaySettings, "settings", "s", "", "Settings file (defaults to the one recorded with the recipe)")
	replayCmd.Flags().StringArrayVarP(&replayImages, "image", "i", nil, "Band image PNG, repeat once per band")
	replayCmd.Flags().Int64Var(&replaySeed, "seed", 1, "Random seed of the optimizer")
	replayCmd.Flags().BoolVar(&replayEarlyStop, "early-stop", false, "Skip remaining PSO stages once the cost stops improving")
	replayCmd.Flags().IntVar(&replayPatience, "patience", 2, "PSO stages without improvement before stopping early")
	replayCmd.Flags().Float64Var(&replayThreshold, "threshold", 0.001, "Minimum relative improvement for early stopping")
	replayCmd.Flags().BoolVar(&replayNoTrace, "no-trace", false, "Do not write a stage trace")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (replayRecipeFile != "") {
		return fmt.Errorf("give either a recipe ID or --recipe")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := pipeline.ReplayOptions{
		SettingsPath: replaySettings,
		Images:       replayImages,
		Seed:         replaySeed,
		Convergence: sequence.ConvergenceConfig{
			Enabled:   replayEarlyStop,
			Patience:  replayPatience,
			Threshold: replayThreshold,
		},
	}

	var rec *store.RecipeRecord
	if replayRecipeFile != "" {
		r, err := loadRecipeFile(replayRecipeFile)
		if err != nil {
			return err
		}
		rec = store.NewRecipeRecord("file", "", r)
	} else {
		recipes, err := store.NewFSStore(dataDir())
		if err != nil {
			return fmt.Errorf("failed to create recipe store: %w", err)
		}
		rec, err = recipes.LoadRecipe(args[0])
		if err != nil {
			return err
		}

		if !replayNoTrace {
			trace, err := store.NewTraceWriter(recipes.BaseDir(), rec.ID, false)
			if err != nil {
				return err
			}
			defer func() {
				if err := trace.Close(); err != nil {
					slog.Warn("Failed to close trace", "error", err)
				}
			}()
			opts.Tracer = trace
		}
	}

	res, err := pipeline.Replay(ctx, rec, opts)
	if res != nil {
		printStages(cmd.OutOrStdout(), res)
	}
	return err
}

func loadRecipeFile(path string) (*recipe.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	var r recipe.Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode recipe: %w", err)
	}
	return &r, nil
}

func printStages(out io.Writer, res *sequence.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tOPERATION\tFREE\tCOST")
	fmt.Fprintln(w, "----\t---------\t----\t----")
	for _, s := range res.Stages {
		free := "-"
		if s.Op == recipe.OpPSO {
			free = fmt.Sprintf("%d", s.Free)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.6g\n", s.Step, s.Op, free, s.Cost)
	}
	w.Flush()

	fmt.Fprintf(out, "\nFinal cost: %.6g\n", res.Cost)
}
