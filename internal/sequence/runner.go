package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
	"github.com/cwbudde/lensrecipe/internal/opt"
	"github.com/cwbudde/lensrecipe/internal/recipe"
	"github.com/cwbudde/lensrecipe/internal/store"
)

// Objective scores a full parameter state under the installed likelihood
// masks. Lower is better.
type Objective func(params Params, st *State) float64

// PSFHook runs a PSF reconstruction stage.
type PSFHook func(ctx context.Context, settings config.PSFIterationSettings, st *State) error

// MCMCHook runs the posterior sampling stage.
type MCMCHook func(ctx context.Context, settings recipe.MCMC, st *State) error

// Tracer receives one entry per replayed instruction.
type Tracer interface {
	Write(entry store.TraceEntry) error
}

// StageResult summarizes one replayed instruction.
type StageResult struct {
	Step int
	Op   recipe.Operation
	Cost float64
	Free int
}

// Result is the outcome of a replay.
type Result struct {
	Stages []StageResult
	Cost   float64
}

// Runner replays recipes against an objective.
type Runner struct {
	provider     model.Provider
	objective    Objective
	newOptimizer opt.Factory
	psf          PSFHook
	mcmc         MCMCHook
	tracer       Tracer
	convergence  ConvergenceConfig
}

// Option configures a Runner.
type Option func(*Runner)

// WithOptimizer sets the factory creating one optimizer per PSO stage.
func WithOptimizer(f opt.Factory) Option {
	return func(r *Runner) { r.newOptimizer = f }
}

// WithPSFHook sets the PSF reconstruction hook. Without one, PSF stages are
// skipped.
func WithPSFHook(h PSFHook) Option {
	return func(r *Runner) { r.psf = h }
}

// WithMCMCHook sets the sampling hook. Without one, MCMC stages are skipped.
func WithMCMCHook(h MCMCHook) Option {
	return func(r *Runner) { r.mcmc = h }
}

// WithTracer records every replayed instruction.
func WithTracer(t Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithConvergence skips the remaining PSO stages once consecutive stages
// stop improving the cost.
func WithConvergence(cfg ConvergenceConfig) Option {
	return func(r *Runner) { r.convergence = cfg }
}

// NewRunner creates a runner optimizing objective over the bundles of
// provider. PSO stages default to a Mayfly optimizer with seed 1.
func NewRunner(provider model.Provider, objective Objective, opts ...Option) *Runner {
	r := &Runner{
		provider:     provider,
		objective:    objective,
		newOptimizer: opt.MayflyFactory(1),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run replays rec from the initial state of the provider's bundles.
func (r *Runner) Run(ctx context.Context, rec *recipe.Recipe) (*Result, *State, error) {
	st, err := NewState(r.provider)
	if err != nil {
		return nil, nil, err
	}
	res, err := r.Resume(ctx, rec, st)
	return res, st, err
}

// Resume replays rec on top of st. The context is checked before every
// instruction; on cancellation the stages run so far are returned with the
// context error.
func (r *Runner) Resume(ctx context.Context, rec *recipe.Recipe, st *State) (*Result, error) {
	res := &Result{Cost: r.objective(st.Params, st)}
	tracker := NewConvergenceTracker(r.convergence)
	tracker.Update(res.Cost)
	converged := false

	for step := 0; step < rec.Len(); step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ins := rec.At(step)
		stage := StageResult{Step: step, Op: ins.Op}
		var traced map[string]float64

		switch {
		case ins.Update != nil:
			if err := st.Apply(ins.Update); err != nil {
				return res, fmt.Errorf("step %d: %w", step, err)
			}
			res.Cost = r.objective(st.Params, st)

		case ins.PSO != nil:
			if converged {
				slog.Debug("PSO stage skipped after convergence", "step", step)
				break
			}
			free, cost, err := r.pso(st, *ins.PSO, res.Cost)
			if err != nil {
				return res, fmt.Errorf("step %d: %w", step, err)
			}
			stage.Free = len(free)
			traced = free
			res.Cost = cost
			converged = tracker.Update(cost)

		case ins.PSFIteration != nil:
			if r.psf == nil {
				slog.Debug("PSF iteration skipped", "step", step)
				break
			}
			if err := r.psf(ctx, *ins.PSFIteration, st); err != nil {
				return res, fmt.Errorf("step %d psf_iteration: %w", step, err)
			}
			res.Cost = r.objective(st.Params, st)

		case ins.MCMC != nil:
			if r.mcmc == nil {
				slog.Debug("MCMC skipped", "step", step, "sampler", ins.MCMC.SamplerType)
				break
			}
			if err := r.mcmc(ctx, *ins.MCMC, st); err != nil {
				return res, fmt.Errorf("step %d MCMC: %w", step, err)
			}
			res.Cost = r.objective(st.Params, st)

		default:
			slog.Warn("Unknown instruction skipped", "step", step, "op", ins.Op)
		}

		stage.Cost = res.Cost
		res.Stages = append(res.Stages, stage)

		if r.tracer != nil {
			entry := store.TraceEntry{
				Step:      step,
				Op:        string(ins.Op),
				Cost:      stage.Cost,
				Free:      stage.Free,
				Timestamp: time.Now(),
				Params:    traced,
			}
			if err := r.tracer.Write(entry); err != nil {
				return res, fmt.Errorf("trace: %w", err)
			}
		}
	}

	slog.Info("Replay finished", "instructions", rec.Len(), "cost", res.Cost)
	return res, nil
}

// pso optimizes the free parameters inside their stage box. The state only
// changes when the optimizer improves on current.
func (r *Runner) pso(st *State, stage recipe.PSO, current float64) (map[string]float64, float64, error) {
	vars := st.freeVariables()
	lower := make([]float64, len(vars))
	upper := make([]float64, len(vars))
	for i, v := range vars {
		lower[i], upper[i] = st.searchBox(v, stage.SigmaScale)
	}

	trial := st.Params.Clone()
	eval := func(x []float64) float64 {
		for i, v := range vars {
			trial[v.cat][v.index][v.name] = x[i]
		}
		return r.objective(trial, st)
	}

	optimizer := r.newOptimizer(stage.NParticles, stage.NIterations)
	best, cost, err := optimizer.Run(eval, lower, upper)
	if err != nil {
		return nil, current, fmt.Errorf("PSO: %w", err)
	}

	values := make(map[string]float64, len(vars))
	if cost <= current {
		for i, v := range vars {
			st.Params[v.cat][v.index][v.name] = best[i]
		}
	} else {
		cost = current
	}
	for _, v := range vars {
		values[v.String()] = st.Params[v.cat][v.index][v.name]
	}

	slog.Debug("PSO stage finished",
		"sigma_scale", stage.SigmaScale,
		"free", len(vars),
		"cost", cost,
	)
	return values, cost, nil
}
