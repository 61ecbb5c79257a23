package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minPopulation is the smallest population mayfly accepts.
const minPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter. Populations below the
// library minimum are raised to it.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < minPopulation {
		popSize = minPopulation
	}
	if maxIters < 1 {
		maxIters = 1
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// MayflyFactory returns a Factory producing seeded Mayfly optimizers.
// Every optimizer it creates uses the same seed, so replays are repeatable.
func MayflyFactory(seed int64) Factory {
	return func(particles, iterations int) Optimizer {
		return NewMayfly(iterations, particles, seed)
	}
}

// Run executes the Mayfly optimization using the external library.
//
// The library only supports one scalar bound shared by all dimensions, so
// the search runs in the unit cube and positions are mapped back onto
// [lower, upper] per dimension. Dimensions with lower == upper are held.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	if len(lower) != len(upper) {
		return nil, 0, fmt.Errorf("%w: %d lower vs %d upper", ErrBounds, len(lower), len(upper))
	}
	dim := len(lower)
	for i := range lower {
		if upper[i] < lower[i] {
			return nil, 0, fmt.Errorf("%w: dimension %d has lower %g > upper %g", ErrBounds, i, lower[i], upper[i])
		}
	}

	if dim == 0 {
		return []float64{}, eval([]float64{}), nil
	}

	scale := func(unit []float64) []float64 {
		x := make([]float64, dim)
		for i, u := range unit {
			u = min(max(u, 0), 1)
			x[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 { return eval(scale(unit)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}

	best := scale(result.GlobalBest.Position)
	return best, result.GlobalBest.Cost, nil
}
