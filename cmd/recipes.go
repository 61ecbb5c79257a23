package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/lensrecipe/internal/store"
)

var (
	showFormat    string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Manage stored recipes",
	Long: `Manage recipes saved with "recipe --save" or through the HTTP API,
including their replay traces.`,
}

var listRecipesCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored recipes",
	RunE:  runListRecipes,
}

var showRecipeCmd = &cobra.Command{
	Use:   "show <recipe-id>",
	Short: "Print a stored recipe",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRecipe,
}

var deleteRecipeCmd = &cobra.Command{
	Use:   "delete <recipe-id>...",
	Short: "Delete stored recipes and their traces",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDeleteRecipes,
}

var cleanRecipesCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old recipes",
	Long: `Delete old recipes based on retention policy.
You can keep only the newest N recipes or delete recipes older than N days.`,
	RunE: runCleanRecipes,
}

func init() {
	rootCmd.AddCommand(recipesCmd)

	recipesCmd.AddCommand(listRecipesCmd)
	recipesCmd.AddCommand(showRecipeCmd)
	recipesCmd.AddCommand(deleteRecipeCmd)
	recipesCmd.AddCommand(cleanRecipesCmd)

	showRecipeCmd.Flags().StringVarP(&showFormat, "format", "f", formatJSON, "Output format (json, yaml)")

	cleanRecipesCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N recipes (0 = keep all)")
	cleanRecipesCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete recipes older than N days (0 = no age limit)")
	cleanRecipesCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openStore() (*store.FSStore, error) {
	recipes, err := store.NewFSStore(dataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create recipe store: %w", err)
	}
	return recipes, nil
}

func runListRecipes(cmd *cobra.Command, args []string) error {
	recipes, err := openStore()
	if err != nil {
		return err
	}

	infos, err := recipes.ListRecipes()
	if err != nil {
		return fmt.Errorf("failed to list recipes: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No recipes found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIMESTAMP\tINSTRUCTIONS\tPSO\tSIZE")
	fmt.Fprintln(w, "--\t----\t---------\t------------\t---\t----")

	for _, info := range infos {
		size, err := getDirSize(filepath.Join(recipes.BaseDir(), "recipes", info.ID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(info.ID),
			info.Name,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Instructions,
			info.PSOStages,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal recipes: %d\n", len(infos))
	return nil
}

func runShowRecipe(cmd *cobra.Command, args []string) error {
	recipes, err := openStore()
	if err != nil {
		return err
	}
	rec, err := recipes.LoadRecipe(args[0])
	if err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), rec, showFormat)
}

func runDeleteRecipes(cmd *cobra.Command, args []string) error {
	recipes, err := openStore()
	if err != nil {
		return err
	}
	for _, id := range args {
		if err := recipes.DeleteRecipe(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	}
	return nil
}

func runCleanRecipes(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	recipes, err := openStore()
	if err != nil {
		return err
	}

	infos, err := recipes.ListRecipes()
	if err != nil {
		return fmt.Errorf("failed to list recipes: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No recipes to clean.")
		return nil
	}

	toDelete := selectRecipesForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No recipes match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d recipe(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			shortID(info.ID),
			info.Name,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean && !confirm(cmd.InOrStdin(), out, "\nProceed with deletion? [y/N]: ") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := recipes.DeleteRecipe(info.ID); err != nil {
			slog.Error("Failed to delete recipe", "id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted recipe", "id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d recipe(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRecipesForDeletion applies the retention policy: recipes older than
// olderThanDays, plus everything beyond the keepLast newest. Each recipe is
// selected at most once; the result is ordered oldest first.
func selectRecipesForDeletion(infos []store.RecipeInfo, keepLast, olderThanDays int, now time.Time) []store.RecipeInfo {
	sorted := make([]store.RecipeInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RecipeInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		if tooOld || i < excess {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
