package recipe

import (
	"errors"

	"github.com/cwbudde/lensrecipe/internal/model"
)

var (
	// ErrUnrecognizedRecipe is returned for an unknown recipe name.
	ErrUnrecognizedRecipe = errors.New("recipe name not recognized")

	// ErrMissingRequiredInput is returned when a recipe needs data that
	// was not supplied, e.g. galaxy-galaxy without joint image data.
	ErrMissingRequiredInput = errors.New("missing required input")

	// ErrUnsupportedSampler is returned when sampling is requested with a
	// sampler that is not implemented.
	ErrUnsupportedSampler = errors.New("sampler not implemented")

	// ErrUnsupportedModel is returned for profile names or categories
	// outside the supported vocabulary.
	ErrUnsupportedModel = model.ErrUnsupportedModel
)
