// Package config loads and interprets the per-system modeling settings file:
// model lists, parameter bound tables, baseline masks, fitting toggles and
// the keyword bundles handed to the optimization engine.
package config

import (
	"errors"

	"github.com/cwbudde/lensrecipe/internal/model"
)

// SamplerMCMC is the only posterior sampler the recipe epilogue supports.
const SamplerMCMC = "MCMC"

// Settings mirrors the modeling settings file. Optional sections are
// pointers or zero-valued; accessors apply the documented defaults.
type Settings struct {
	// PixelSize is the angular pixel size in arcsec.
	PixelSize float64 `yaml:"pixel-size" json:"pixel-size"`

	// Band names, one per imaging band.
	Band []string `yaml:"band" json:"band"`

	Model ModelSettings `yaml:"model" json:"model"`

	DeflectorOption    *DeflectorOption   `yaml:"deflector-option,omitempty" json:"deflector-option,omitempty"`
	SourceLightOption  *SourceLightOption `yaml:"source-light-option,omitempty" json:"source-light-option,omitempty"`
	Mask               *MaskSettings      `yaml:"mask,omitempty" json:"mask,omitempty"`
	NumericOption      *NumericOption     `yaml:"numeric-option,omitempty" json:"numeric-option,omitempty"`
	KwargsModelOverlay map[string]any     `yaml:"kwargs-model,omitempty" json:"kwargs-model,omitempty"`
	Fitting            FittingSettings    `yaml:"fitting" json:"fitting"`

	// GuessParams holds literal per-profile overrides: component -> profile
	// index -> parameter -> value. Components are lens, source, lens_light, ps.
	GuessParams map[string]map[int]map[string]float64 `yaml:"guess_params,omitempty" json:"guess_params,omitempty"`

	// FittingKwargsList is a pre-built instruction sequence in the engine's
	// list form. When set, the default recipe returns it verbatim.
	FittingKwargsList []any `yaml:"fitting_kwargs_list,omitempty" json:"fitting_kwargs_list,omitempty"`
}

// ModelSettings lists the profile names of each model component.
type ModelSettings struct {
	Lens        []string `yaml:"lens" json:"lens"`
	LensLight   []string `yaml:"lens-light" json:"lens-light"`
	SourceLight []string `yaml:"source-light" json:"source-light"`
	PointSource []string `yaml:"point-source" json:"point-source"`
}

// DeflectorOption constrains the deflector centroid.
type DeflectorOption struct {
	CentroidInit  []float64 `yaml:"centroid-init,omitempty" json:"centroid-init,omitempty"`
	CentroidBound *float64  `yaml:"centroid-bound,omitempty" json:"centroid-bound,omitempty"`
}

// SourceLightOption configures source light profiles.
type SourceLightOption struct {
	// ShapeletNMax is the shapelet order per band.
	ShapeletNMax []int `yaml:"n_max,omitempty" json:"n_max,omitempty"`
}

// MaskSettings either provides masks directly or describes circular masks
// on a linear pixel grid, one entry per band.
type MaskSettings struct {
	Provided        [][][]float64 `yaml:"provided,omitempty" json:"provided,omitempty"`
	RaAtXY0         []float64     `yaml:"ra-at-xy-0,omitempty" json:"ra-at-xy-0,omitempty"`
	DecAtXY0        []float64     `yaml:"dec-at-xy-0,omitempty" json:"dec-at-xy-0,omitempty"`
	TransformMatrix [][][]float64 `yaml:"transform-matrix,omitempty" json:"transform-matrix,omitempty"`
	Size            []int         `yaml:"size,omitempty" json:"size,omitempty"`
	Radius          []float64     `yaml:"radius,omitempty" json:"radius,omitempty"`
}

// NumericOption configures image rendering numerics.
type NumericOption struct {
	SupersamplingFactor []int `yaml:"supersampling-option,omitempty" json:"supersampling-option,omitempty"`
}

// FittingSettings holds the optimization toggles. Every toggle defaults to
// false; a missing or null value is treated as false.
type FittingSettings struct {
	PSO                  bool                  `yaml:"pso" json:"pso"`
	PSOSettings          PSOSettings           `yaml:"pso_settings" json:"pso_settings"`
	PSFIteration         bool                  `yaml:"psf_iteration" json:"psf_iteration"`
	PSFIterationSettings *PSFIterationSettings `yaml:"psf_iteration_settings,omitempty" json:"psf_iteration_settings,omitempty"`
	Sampling             bool                  `yaml:"sampling" json:"sampling"`
	Sampler              string                `yaml:"sampler" json:"sampler"`
	MCMCSettings         MCMCSettings          `yaml:"mcmc_settings" json:"mcmc_settings"`
}

// PSOSettings sizes each particle-swarm stage.
type PSOSettings struct {
	NumParticle  int `yaml:"num_particle" json:"num_particle"`
	NumIteration int `yaml:"num_iteration" json:"num_iteration"`
}

// MCMCSettings sizes the posterior sampling run.
type MCMCSettings struct {
	BurninStep    int `yaml:"burnin_step" json:"burnin_step"`
	IterationStep int `yaml:"iteration_step" json:"iteration_step"`
	WalkerRatio   int `yaml:"walker_ratio" json:"walker_ratio"`
}

// PSFIterationSettings is forwarded untouched to the PSF reconstruction stage.
type PSFIterationSettings struct {
	StackingMethod       string  `yaml:"stacking_method,omitempty" json:"stacking_method,omitempty"`
	KeepPSFErrorMap      *bool   `yaml:"keep_psf_error_map,omitempty" json:"keep_psf_error_map,omitempty"`
	PSFSymmetry          int     `yaml:"psf_symmetry,omitempty" json:"psf_symmetry,omitempty"`
	BlockCenterNeighbour float64 `yaml:"block_center_neighbour,omitempty" json:"block_center_neighbour,omitempty"`
	NumIter              int     `yaml:"num_iter,omitempty" json:"num_iter,omitempty"`
	PSFIterFactor        float64 `yaml:"psf_iter_factor,omitempty" json:"psf_iter_factor,omitempty"`
}

const defaultCentroidBound = 0.5

// DeflectorCenter returns the initial deflector centroid, (0, 0) by default.
func (s *Settings) DeflectorCenter() (ra, dec float64) {
	if s.DeflectorOption == nil || len(s.DeflectorOption.CentroidInit) < 2 {
		return 0, 0
	}
	return s.DeflectorOption.CentroidInit[0], s.DeflectorOption.CentroidInit[1]
}

// DeflectorCentroidBound returns half the width of the box constraining the
// deflector centroid, 0.5 arcsec by default.
func (s *Settings) DeflectorCentroidBound() float64 {
	if s.DeflectorOption == nil || s.DeflectorOption.CentroidBound == nil {
		return defaultCentroidBound
	}
	return *s.DeflectorOption.CentroidBound
}

// ErrNoBands is returned when the settings list no imaging band.
var ErrNoBands = errors.New("number of bands less than 1")

// BandNumber returns the number of imaging bands.
func (s *Settings) BandNumber() (int, error) {
	if len(s.Band) < 1 {
		return 0, ErrNoBands
	}
	return len(s.Band), nil
}

// PSFIteration returns the PSF reconstruction settings, empty when unset.
func (s *Settings) PSFIteration() PSFIterationSettings {
	if s.Fitting.PSFIterationSettings == nil {
		return PSFIterationSettings{}
	}
	return *s.Fitting.PSFIterationSettings
}

// ModelNames returns the raw profile names configured for cat.
func (s *Settings) ModelNames(cat model.Category) []string {
	switch cat {
	case model.Lens:
		return s.Model.Lens
	case model.LensLight:
		return s.Model.LensLight
	case model.Source:
		return s.Model.SourceLight
	case model.PointSource:
		return s.Model.PointSource
	}
	return nil
}
