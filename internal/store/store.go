package store

// Store defines the interface for recipe persistence operations.
// Implementations must be thread-safe and handle concurrent access gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the recipe doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecipe atomically saves a generated recipe under record.ID.
	// An existing record with the same ID is overwritten.
	SaveRecipe(record *RecipeRecord) error

	// LoadRecipe retrieves the recipe stored under id.
	// Returns ErrNotFound if no recipe exists for this id.
	LoadRecipe(id string) (*RecipeRecord, error)

	// ListRecipes returns metadata for all stored recipes, newest first.
	// The returned slice may be empty.
	ListRecipes() ([]RecipeInfo, error)

	// DeleteRecipe removes the recipe and its replay trace.
	// Returns ErrNotFound if no recipe exists for this id.
	DeleteRecipe(id string) error
}

// ErrNotFound is returned when a requested recipe does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing recipe error.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "recipe not found: " + e.ID
	}
	return "recipe not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
