package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Recipes are stored in a directory structure: <baseDir>/recipes/<id>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks.
type FSStore struct {
	baseDir string // Root directory for all recipe data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// checkID rejects ids that would escape the recipes directory.
func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

func recipeDir(baseDir, id string) string {
	return filepath.Join(baseDir, "recipes", id)
}

func (fs *FSStore) recipePath(id string) string {
	return filepath.Join(recipeDir(fs.baseDir, id), "recipe.json")
}

// SaveRecipe atomically saves a recipe record.
// Uses temp file + rename pattern to ensure atomicity.
func (fs *FSStore) SaveRecipe(record *RecipeRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	dir := recipeDir(fs.baseDir, record.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create recipe directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize recipe: %w", err)
	}

	tempPath := fs.recipePath(record.ID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp recipe file: %w", err)
	}

	finalPath := fs.recipePath(record.ID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename recipe file: %w", err)
	}

	slog.Debug("Recipe saved", "id", record.ID, "path", finalPath)
	return nil
}

// LoadRecipe retrieves the recipe record stored under id.
func (fs *FSStore) LoadRecipe(id string) (*RecipeRecord, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	path := fs.recipePath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}

	var record RecipeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize recipe: %w", err)
	}

	slog.Debug("Recipe loaded", "id", id, "path", path)
	return &record, nil
}

// ListRecipes returns metadata for all stored recipes, newest first.
// Unreadable records are logged and skipped.
func (fs *FSStore) ListRecipes() ([]RecipeInfo, error) {
	recipesDir := filepath.Join(fs.baseDir, "recipes")

	entries, err := os.ReadDir(recipesDir)
	if os.IsNotExist(err) {
		return []RecipeInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}

	infos := []RecipeInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		if _, err := os.Stat(fs.recipePath(id)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadRecipe(id)
		if err != nil {
			slog.Warn("Failed to load recipe for listing", "id", id, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed recipes", "count", len(infos))
	return infos, nil
}

// DeleteRecipe removes the recipe directory, including any replay trace.
func (fs *FSStore) DeleteRecipe(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	dir := recipeDir(fs.baseDir, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat recipe directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove recipe directory: %w", err)
	}

	slog.Debug("Recipe deleted", "id", id, "path", dir)
	return nil
}
