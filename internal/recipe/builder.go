// Package recipe builds the ordered optimization instruction sequences
// ("recipes") handed to the lens-model fitting engine.
package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/arcmask"
	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
)

// Recipe names accepted by Build.
const (
	NameDefault      = "default"
	NameGalaxyGalaxy = "galaxy-galaxy"
)

// Sampler types understood by the MCMC stage. COSMOHAMMER is kept for
// legacy engines.
const (
	SamplerEmcee       = "EMCEE"
	SamplerCosmoHammer = "COSMOHAMMER"
)

const (
	// epochs of the default recipe; the power-law slope is fixed in the
	// first and freed in the second.
	defaultEpochs = 2

	// shapeletBeta holds the shapelet scale while the source centroid settles.
	shapeletBeta = 0.1

	// isothermalGamma pins the power-law slope during the first joint
	// lens+source stage.
	isothermalGamma = 2.0
)

// psoRangeMultipliers narrows the particle-swarm search radius within an epoch.
var psoRangeMultipliers = []float64{1, 0.1, 0.1}

// JointImageData is the per-band pixel data of a lens system.
type JointImageData struct {
	Bands []arcmask.Band
}

// State is the configuration snapshot a Builder works from. It is taken
// once in New and never changes afterwards.
type State struct {
	DoPSO          bool
	ReconstructPSF bool
	DoSampling     bool
	NumParticles   int
	NumIterations  int
	SamplerType    string
	GuessParams    map[model.Category]map[int]model.ParamSet
}

// Option configures a Builder.
type Option func(*Builder)

// WithSamplerType sets the sampler type written into the MCMC stage.
func WithSamplerType(sampler string) Option {
	return func(b *Builder) { b.state.SamplerType = sampler }
}

// WithProvider replaces the settings as source of profiles and bundles.
func WithProvider(p model.Provider) Option {
	return func(b *Builder) { b.provider = p }
}

// WithClearCenter sets the arc mask clear-center radius in arcsec.
func WithClearCenter(radius float64) Option {
	return func(b *Builder) { b.clearCenter = radius }
}

// Builder produces recipes for one lens system.
type Builder struct {
	settings    *config.Settings
	provider    model.Provider
	fixer       *FixController
	state       State
	clearCenter float64
}

// New snapshots the fitting toggles of settings into a Builder.
func New(settings *config.Settings, opts ...Option) *Builder {
	f := settings.Fitting
	b := &Builder{
		settings: settings,
		provider: settings,
		state: State{
			DoPSO:          f.PSO,
			ReconstructPSF: f.PSFIteration,
			DoSampling:     f.Sampling,
			NumParticles:   f.PSOSettings.NumParticle,
			NumIterations:  f.PSOSettings.NumIteration,
			SamplerType:    SamplerEmcee,
			GuessParams:    guessParams(settings),
		},
		clearCenter: arcmask.DefaultClearCenter,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.fixer = NewFixController(b.provider)
	return b
}

// State returns the configuration snapshot.
func (b *Builder) State() State { return b.state }

// Fixer returns the builder's fix controller.
func (b *Builder) Fixer() *FixController { return b.fixer }

// Build returns the named recipe followed by the sampling epilogue. The
// galaxy-galaxy recipe requires joint image data. Either the full sequence
// is returned or an error; never a partial sequence.
func (b *Builder) Build(ctx context.Context, name string, joint *JointImageData) (*Recipe, error) {
	seq := &Sequence{}

	switch name {
	case NameDefault:
		if b.settings.FittingKwargsList != nil {
			prebuilt, err := FromRaw(b.settings.FittingKwargsList)
			if err != nil {
				return nil, fmt.Errorf("fitting_kwargs_list: %w", err)
			}
			seq.Extend(prebuilt)
		} else {
			r, err := b.DefaultRecipe()
			if err != nil {
				return nil, err
			}
			seq.Extend(r)
		}
	case NameGalaxyGalaxy:
		if joint == nil || len(joint.Bands) == 0 {
			return nil, fmt.Errorf("%w: joint image data is necessary to use the %s recipe",
				ErrMissingRequiredInput, NameGalaxyGalaxy)
		}
		r, err := b.GalaxyGalaxyRecipe(ctx, joint)
		if err != nil {
			return nil, err
		}
		seq.Extend(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedRecipe, name)
	}

	epilogue, err := b.SamplingSequence()
	if err != nil {
		return nil, err
	}
	seq.Extend(epilogue)

	r := seq.Recipe()
	slog.Info("Recipe built",
		"recipe", name,
		"instructions", r.Len(),
		"pso_stages", r.Count(OpPSO),
	)
	return r, nil
}

// DefaultRecipe returns the coarse-to-fine particle-swarm refinement: two
// epochs of three stages each, with the power-law slope fixed during the
// first epoch when such a profile is present.
func (b *Builder) DefaultRecipe() (*Recipe, error) {
	seq := &Sequence{}
	if !b.state.DoPSO {
		return seq.Recipe(), nil
	}

	pl := b.powerLawIndex()
	for epoch := 0; epoch < defaultEpochs; epoch++ {
		if pl >= 0 {
			gamma := FixedEntry{Index: pl, Params: []string{"gamma"}}
			if epoch == 0 {
				seq.AddFixed(model.Lens, gamma)
			} else {
				seq.RemoveFixed(model.Lens, gamma)
			}
		}

		for _, multiplier := range psoRangeMultipliers {
			b.pso(seq, multiplier)
			if b.state.ReconstructPSF {
				seq.PSFIteration(b.settings.PSFIteration())
			}
		}
	}
	return seq.Recipe(), nil
}

// GalaxyGalaxyRecipe returns the staged lens+source optimization for a
// galaxy-scale lens with extended arcs, followed by the default recipe.
// PSF reconstruction is only part of the trailing default recipe.
func (b *Builder) GalaxyGalaxyRecipe(ctx context.Context, joint *JointImageData) (*Recipe, error) {
	seq := &Sequence{}
	if !b.state.DoPSO {
		return seq.Recipe(), nil
	}

	baselines, err := b.baselineMasks(joint)
	if err != nil {
		return nil, err
	}
	bands := make([]arcmask.Band, len(joint.Bands))
	for i, band := range joint.Bands {
		bands[i] = arcmask.Band{Name: band.Name, Image: band.Image, Mask: baselines[i]}
	}
	arcMasks, err := arcmask.Bands(ctx, bands, b.settings.PixelSize, b.clearCenter)
	if err != nil {
		return nil, fmt.Errorf("arc masks: %w", err)
	}

	pl := b.powerLawIndex()
	shear := b.externalShearIndex()
	shapelets := b.shapeletIndex()

	// Lens light only, inside the arc-free region.
	if err := b.fix(seq, model.Lens); err != nil {
		return nil, err
	}
	if err := b.fix(seq, model.Source); err != nil {
		return nil, err
	}
	seq.LikelihoodMasks(arcMasks)
	b.pso(seq, 1)

	// Source only, on the full mask, with the shapelet scale held.
	if err := b.unfix(seq, model.Source); err != nil {
		return nil, err
	}
	if shapelets >= 0 {
		seq.AddFixed(model.Source, FixedEntry{Index: shapelets, Params: []string{"beta"}, Values: []float64{shapeletBeta}})
	}
	if err := b.fix(seq, model.LensLight); err != nil {
		return nil, err
	}
	seq.LikelihoodMasks(baselines)
	if guesses := b.lensGuesses(); len(guesses) > 0 {
		seq.AddFixed(model.Lens, guesses...)
	}
	b.pso(seq, 1)

	// Deflector and source together; shear and slope stay fixed.
	if err := b.unfix(seq, model.Lens); err != nil {
		return nil, err
	}
	if shear >= 0 {
		if err := b.fix(seq, model.Lens, shear); err != nil {
			return nil, err
		}
	}
	if pl >= 0 {
		seq.AddFixed(model.Lens, FixedEntry{Index: pl, Params: []string{"gamma"}, Values: []float64{isothermalGamma}})
	}
	b.pso(seq, 1)

	if shapelets >= 0 {
		seq.RemoveFixed(model.Source, FixedEntry{Index: shapelets, Params: []string{"beta"}})
	}
	b.pso(seq, 1)

	if err := b.unfix(seq, model.LensLight); err != nil {
		return nil, err
	}
	b.pso(seq, 1)

	// Shear is free for the refinement and the sampler.
	if shear >= 0 {
		if err := b.unfix(seq, model.Lens, shear); err != nil {
			return nil, err
		}
	}

	tail, err := b.DefaultRecipe()
	if err != nil {
		return nil, err
	}
	seq.Extend(tail)
	return seq.Recipe(), nil
}

// SamplingSequence returns the posterior sampling stage, if enabled.
func (b *Builder) SamplingSequence() (*Recipe, error) {
	seq := &Sequence{}
	if !b.state.DoSampling {
		return seq.Recipe(), nil
	}

	f := b.settings.Fitting
	if f.Sampler != config.SamplerMCMC {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSampler, f.Sampler)
	}
	seq.Append(Instruction{
		Op: OpMCMC,
		MCMC: &MCMC{
			SamplerType: b.state.SamplerType,
			NBurn:       f.MCMCSettings.BurninStep,
			NRun:        f.MCMCSettings.IterationStep,
			WalkerRatio: f.MCMCSettings.WalkerRatio,
		},
	})
	return seq.Recipe(), nil
}

func (b *Builder) pso(seq *Sequence, multiplier float64) {
	seq.PSO(multiplier, b.state.NumParticles, b.state.NumIterations)
}

func (b *Builder) fix(seq *Sequence, cat model.Category, indices ...int) error {
	ins, err := b.fixer.Fix(cat, indices...)
	if err != nil {
		return err
	}
	seq.Append(ins)
	return nil
}

func (b *Builder) unfix(seq *Sequence, cat model.Category, indices ...int) error {
	ins, err := b.fixer.Unfix(cat, indices...)
	if err != nil {
		return err
	}
	seq.Append(ins)
	return nil
}

func (b *Builder) powerLawIndex() int {
	return model.IndexOf(b.provider.Profiles(model.Lens), model.SPEMD, model.SPEP)
}

func (b *Builder) externalShearIndex() int {
	return model.IndexOf(b.provider.Profiles(model.Lens), model.ShearGammaPsi, model.Shear)
}

func (b *Builder) shapeletIndex() int {
	return model.IndexOf(b.provider.Profiles(model.Source), model.Shapelets)
}

// lensGuesses converts the lens guess overrides into fixed entries ordered
// by profile index and parameter name. Indices without a lens profile are
// skipped.
func (b *Builder) lensGuesses() []FixedEntry {
	guesses := b.state.GuessParams[model.Lens]
	if len(guesses) == 0 {
		return nil
	}
	n := len(b.provider.Profiles(model.Lens))

	indices := make([]int, 0, len(guesses))
	for i := range guesses {
		if i >= 0 && i < n {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)

	entries := make([]FixedEntry, 0, len(indices))
	for _, i := range indices {
		params := guesses[i].Keys()
		values := make([]float64, len(params))
		for k, name := range params {
			values[k] = guesses[i][name]
		}
		entries = append(entries, FixedEntry{Index: i, Params: params, Values: values})
	}
	return entries
}

// baselineMasks picks each band's baseline mask: the mask carried by the
// band, else the configured mask for that band, else all ones.
func (b *Builder) baselineMasks(joint *JointImageData) ([]*mat.Dense, error) {
	configured, err := b.settings.Masks()
	if err != nil {
		return nil, fmt.Errorf("baseline masks: %w", err)
	}

	masks := make([]*mat.Dense, len(joint.Bands))
	for i, band := range joint.Bands {
		switch {
		case band.Mask != nil:
			masks[i] = band.Mask
		case i < len(configured) && configured[i] != nil:
			masks[i] = configured[i]
		case band.Image != nil:
			r, c := band.Image.Dims()
			masks[i] = onesDense(r, c)
		default:
			return nil, fmt.Errorf("band %d (%s): missing image", i, band.Name)
		}
	}
	return masks, nil
}

func onesDense(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = 1
	}
	return mat.NewDense(r, c, data)
}

func guessParams(s *config.Settings) map[model.Category]map[int]model.ParamSet {
	out := map[model.Category]map[int]model.ParamSet{}
	for _, cat := range model.Categories {
		raw := s.GuessParamsFor(cat)
		if raw == nil {
			continue
		}
		byIndex := make(map[int]model.ParamSet, len(raw))
		for i, params := range raw {
			byIndex[i] = model.ParamSet(params).Clone()
		}
		out[cat] = byIndex
	}
	return out
}
