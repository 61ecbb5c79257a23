package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/lensrecipe/internal/arcmask"
	"github.com/cwbudde/lensrecipe/internal/pipeline"
	"github.com/cwbudde/lensrecipe/internal/recipe"
	"github.com/cwbudde/lensrecipe/internal/store"
)

var (
	recipeSettings    string
	recipeName        string
	recipeImages      []string
	recipeSampler     string
	recipeClearCenter float64
	recipeFormat      string
	recipeOutput      string
	recipeSave        bool
)

var recipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Build an optimization recipe from a settings file",
	Long: `Build the named optimization recipe for one lens system and print it in
the engine's list form. The galaxy-galaxy recipe needs one image per band
(--image, in band order) to derive its arc masks.`,
	Example: `  lensrecipe recipe --settings lens.yaml
  lensrecipe recipe --settings lens.yaml --name galaxy-galaxy --image F160W.png --format yaml
  lensrecipe recipe --settings lens.yaml --save`,
	RunE: runRecipe,
}

func init() {
	rootCmd.AddCommand(recipeCmd)

	recipeCmd.Flags().StringVarP(&recipeSettings, "settings", "s", "", "Settings file (required)")
	recipeCmd.Flags().StringVarP(&recipeName, "name", "n", recipe.NameDefault, "Recipe name (default, galaxy-galaxy)")
	recipeCmd.Flags().StringArrayVarP(&recipeImages, "image", "i", nil, "Band image PNG, repeat once per band")
	recipeCmd.Flags().StringVar(&recipeSampler, "sampler", recipe.SamplerEmcee, "Sampler type of the MCMC stage")
	recipeCmd.Flags().Float64Var(&recipeClearCenter, "clear-center", arcmask.DefaultClearCenter, "Arc mask clear-center radius in arcsec")
	recipeCmd.Flags().StringVarP(&recipeFormat, "format", "f", formatJSON, "Output format (json, yaml)")
	recipeCmd.Flags().StringVarP(&recipeOutput, "output", "o", "", "Write the recipe to a file instead of stdout")
	recipeCmd.Flags().BoolVar(&recipeSave, "save", false, "Store the recipe in the data directory")

	_ = recipeCmd.MarkFlagRequired("settings")
}

func runRecipe(cmd *cobra.Command, args []string) error {
	clearCenter := recipeClearCenter
	rec, err := pipeline.Build(cmd.Context(), pipeline.BuildRequest{
		Name:         recipeName,
		SettingsPath: recipeSettings,
		Images:       recipeImages,
		Sampler:      recipeSampler,
		ClearCenter:  &clearCenter,
	})
	if err != nil {
		return err
	}

	if err := writeOutput(cmd.OutOrStdout(), recipeOutput, rec.Recipe, recipeFormat); err != nil {
		return err
	}

	if recipeSave {
		recipes, err := store.NewFSStore(dataDir())
		if err != nil {
			return fmt.Errorf("failed to create recipe store: %w", err)
		}
		if err := recipes.SaveRecipe(rec); err != nil {
			return fmt.Errorf("failed to save recipe: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved recipe %s\n", rec.ID)
	}
	return nil
}
