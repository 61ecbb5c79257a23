package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/lensrecipe/internal/recipe"
)

// RecipeRecord is a generated recipe together with the inputs it was built
// from. It is serialized to recipe.json.
type RecipeRecord struct {
	// ID is the unique identifier of this record
	ID string `json:"id"`

	// Name is the recipe name passed to the builder (default, galaxy-galaxy)
	Name string `json:"name"`

	// SettingsPath is the settings file the recipe was built from
	SettingsPath string `json:"settingsPath"`

	// Images are the band image files, in band order
	Images []string `json:"images,omitempty"`

	// SamplerType is the sampler written into the MCMC stage
	SamplerType string `json:"samplerType,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	Recipe *recipe.Recipe `json:"recipe"`
}

// RecipeInfo contains metadata about a stored recipe without its instructions.
type RecipeInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SettingsPath string    `json:"settingsPath"`
	Instructions int       `json:"instructions"`
	PSOStages    int       `json:"psoStages"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRecipeRecord wraps r in a record with a fresh ID and the current time.
func NewRecipeRecord(name, settingsPath string, r *recipe.Recipe) *RecipeRecord {
	return &RecipeRecord{
		ID:           uuid.NewString(),
		Name:         name,
		SettingsPath: settingsPath,
		Timestamp:    time.Now(),
		Recipe:       r,
	}
}

// ToInfo converts a full record to RecipeInfo (metadata only).
func (r *RecipeRecord) ToInfo() RecipeInfo {
	info := RecipeInfo{
		ID:           r.ID,
		Name:         r.Name,
		SettingsPath: r.SettingsPath,
		Timestamp:    r.Timestamp,
	}
	if r.Recipe != nil {
		info.Instructions = r.Recipe.Len()
		info.PSOStages = r.Recipe.Count(recipe.OpPSO)
	}
	return info
}

// Validate checks if the record has valid data.
func (r *RecipeRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if err := checkID(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: err.Error()}
	}
	if r.Name == "" {
		return &ValidationError{Field: "Name", Reason: "cannot be empty"}
	}
	if r.Recipe == nil {
		return &ValidationError{Field: "Recipe", Reason: "cannot be nil"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether the record was built from settingsPath.
// An empty settingsPath matches any record.
func (r *RecipeRecord) IsCompatible(settingsPath string) error {
	if settingsPath != "" && r.SettingsPath != settingsPath {
		return &CompatibilityError{
			Field:    "SettingsPath",
			Expected: r.SettingsPath,
			Actual:   settingsPath,
		}
	}
	return nil
}

// CompatibilityError reports a replay input that differs from the one the
// recipe was built from.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
