// Package pipeline ties settings, band images, the recipe builder and the
// replay engine together into the two end-to-end operations exposed by the
// CLI and the HTTP API.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/arcmask"
	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/fit"
	"github.com/cwbudde/lensrecipe/internal/imageio"
	"github.com/cwbudde/lensrecipe/internal/opt"
	"github.com/cwbudde/lensrecipe/internal/recipe"
	"github.com/cwbudde/lensrecipe/internal/sequence"
	"github.com/cwbudde/lensrecipe/internal/store"
)

// ErrNoImages is returned when a replay has no band images to fit.
var ErrNoImages = errors.New("no band images")

// BuildRequest describes one recipe build.
type BuildRequest struct {
	Name         string   `json:"name"`
	SettingsPath string   `json:"settingsPath"`
	Images       []string `json:"images,omitempty"`
	Sampler      string   `json:"sampler,omitempty"`
	ClearCenter  *float64 `json:"clearCenter,omitempty"`
}

// Build loads the settings and band images of req and builds the named
// recipe. The returned record is not saved.
func Build(ctx context.Context, req BuildRequest) (*store.RecipeRecord, error) {
	if req.SettingsPath == "" {
		return nil, fmt.Errorf("settings path is required")
	}
	if req.Name == "" {
		req.Name = recipe.NameDefault
	}

	settings, err := config.Load(req.SettingsPath)
	if err != nil {
		return nil, err
	}
	joint, err := imageio.LoadJoint(settings, req.Images)
	if err != nil {
		return nil, err
	}

	var opts []recipe.Option
	if req.Sampler != "" {
		opts = append(opts, recipe.WithSamplerType(req.Sampler))
	}
	if req.ClearCenter != nil {
		opts = append(opts, recipe.WithClearCenter(*req.ClearCenter))
	}

	r, err := recipe.New(settings, opts...).Build(ctx, req.Name, joint)
	if err != nil {
		return nil, err
	}

	rec := store.NewRecipeRecord(req.Name, req.SettingsPath, r)
	rec.Images = append([]string(nil), req.Images...)
	rec.SamplerType = req.Sampler
	if rec.SamplerType == "" {
		rec.SamplerType = recipe.SamplerEmcee
	}
	return rec, nil
}

// ReplayOptions configures Replay.
type ReplayOptions struct {
	// SettingsPath names the settings file for records built without one.
	// It must match the recorded path otherwise.
	SettingsPath string
	// Images overrides the band images recorded with the recipe.
	Images      []string
	Seed        int64
	Convergence sequence.ConvergenceConfig
	Tracer      sequence.Tracer
}

// Replay runs rec against the lens-light likelihood of its band images.
func Replay(ctx context.Context, rec *store.RecipeRecord, opts ReplayOptions) (*sequence.Result, error) {
	settingsPath := opts.SettingsPath
	if settingsPath == "" {
		settingsPath = rec.SettingsPath
	}
	if err := rec.IsCompatible(opts.SettingsPath); err != nil {
		return nil, err
	}
	if settingsPath == "" {
		return nil, fmt.Errorf("recipe %s has no settings path", rec.ID)
	}
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	paths := opts.Images
	if len(paths) == 0 {
		paths = rec.Images
	}
	if len(paths) == 0 {
		return nil, ErrNoImages
	}
	images, err := imageio.LoadImages(paths)
	if err != nil {
		return nil, err
	}
	if err := checkMaskShapes(rec.Recipe, images); err != nil {
		return nil, err
	}

	likelihood, err := fit.NewImageLikelihood(settings, images)
	if err != nil {
		return nil, err
	}

	runnerOpts := []sequence.Option{
		sequence.WithOptimizer(opt.MayflyFactory(opts.Seed)),
		sequence.WithConvergence(opts.Convergence),
	}
	if opts.Tracer != nil {
		runnerOpts = append(runnerOpts, sequence.WithTracer(opts.Tracer))
	}
	runner := sequence.NewRunner(settings, likelihood.Objective(), runnerOpts...)

	start := time.Now()
	slog.Info("Starting replay", "recipe_id", rec.ID, "instructions", rec.Recipe.Len(), "seed", opts.Seed)
	res, _, err := runner.Run(ctx, rec.Recipe)
	if err != nil {
		return res, err
	}
	slog.Info("Replay complete", "recipe_id", rec.ID, "cost", res.Cost, "elapsed", time.Since(start))
	return res, nil
}

// checkMaskShapes rejects recipes whose likelihood masks do not match the
// band images.
func checkMaskShapes(r *recipe.Recipe, images []*mat.Dense) error {
	for step := 0; step < r.Len(); step++ {
		ins := r.At(step)
		if ins.Update == nil || ins.Update.LikelihoodMasks == nil {
			continue
		}
		masks := ins.Update.LikelihoodMasks
		if len(masks) != len(images) {
			return fmt.Errorf("step %d: %d masks for %d images", step, len(masks), len(images))
		}
		for n, m := range masks {
			if m == nil {
				continue
			}
			mr, mc := m.Dims()
			ir, ic := images[n].Dims()
			if mr != ir || mc != ic {
				return fmt.Errorf("step %d band %d: %w", step, n,
					&arcmask.ShapeError{Rows: ir, Cols: ic, BaselineRows: mr, BaselineCols: mc})
			}
		}
	}
	return nil
}
