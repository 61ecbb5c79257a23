package sequence

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when consecutive PSO stages stop paying off
type ConvergenceConfig struct {
	Enabled bool

	// Patience is the number of PSO stages with no improvement before the
	// remaining PSO stages are skipped
	Patience int

	// Threshold is the relative cost drop, (reference - cost) / reference,
	// a stage must reach to reset the patience counter
	Threshold float64
}

// DefaultConvergenceConfig stops after two PSO stages that gain less than 0.1%.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  2,
		Threshold: 0.001,
	}
}

// ConvergenceTracker follows the cost after each PSO stage. The reference
// cost only moves when a stage beats it by the threshold.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	costHistory     []float64
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	c := &ConvergenceTracker{config: config}
	c.Reset()
	return c
}

// Update records the cost after a PSO stage and reports whether the
// remaining PSO stages should be skipped.
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.costHistory = append(c.costHistory, cost)
	if cost < c.bestCost {
		c.bestCost = cost
	}

	if len(c.costHistory) == 1 {
		c.lastSignificant = cost
		return false
	}

	// A zero cost cannot improve further.
	improvement := 0.0
	if c.lastSignificant > 0 {
		improvement = (c.lastSignificant - cost) / c.lastSignificant
	}

	if improvement >= c.config.Threshold && c.lastSignificant > 0 {
		c.lastSignificant = cost
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("PSO stage below improvement threshold",
		"cost", cost,
		"last_significant", c.lastSignificant,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - skipping remaining PSO stages",
			"stale_count", c.staleCount,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// BestCost is the lowest recorded stage cost.
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns a copy of the recorded stage costs.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset forgets all recorded stages.
func (c *ConvergenceTracker) Reset() {
	c.costHistory = []float64{}
	c.bestCost = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
