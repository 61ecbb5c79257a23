package opt

import "errors"

// ErrBounds is returned when the lower and upper bounds do not describe a
// valid box.
var ErrBounds = errors.New("invalid search bounds")

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run minimizes eval inside the box [lower, upper]. Each dimension has
	// its own bounds; len(lower) == len(upper) is the problem size.
	// Returns the best parameters and their cost.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}

// Factory creates an optimizer sized for one particle-swarm stage.
type Factory func(particles, iterations int) Optimizer
