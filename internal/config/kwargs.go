package config

import (
	"github.com/cwbudde/lensrecipe/internal/model"
	"gonum.org/v1/gonum/mat"
)

const defaultSupersamplingFactor = 3

// KwargsModel lists the profiles of each component, overlaid with any
// extra model keywords from the settings file.
func (s *Settings) KwargsModel() map[string]any {
	kw := map[string]any{
		"lens_model_list":         nonNil(s.Model.Lens),
		"source_light_model_list": nonNil(s.Model.SourceLight),
		"lens_light_model_list":   nonNil(s.Model.LensLight),
		"point_source_model_list": nonNil(s.Model.PointSource),
	}
	for k, v := range s.KwargsModelOverlay {
		kw[k] = v
	}
	return kw
}

// Join ties parameters of one profile to those of another.
type Join struct {
	From   int      `json:"from"`
	To     int      `json:"to"`
	Params []string `json:"params"`
}

// Constraints holds the parameter joins the engine enforces.
type Constraints struct {
	JointSourceWithSource       []Join `json:"joint_source_with_source"`
	JointLensLightWithLensLight []Join `json:"joint_lens_light_with_lens_light"`
	JointSourceWithPointSource  []Join `json:"joint_source_with_point_source"`
}

var centerParams = []string{"center_x", "center_y"}

// KwargsConstraints joins the centers of every additional source and lens
// light profile to the first one of its component.
func (s *Settings) KwargsConstraints() Constraints {
	c := Constraints{
		JointSourceWithSource:       []Join{},
		JointLensLightWithLensLight: []Join{},
		JointSourceWithPointSource:  []Join{},
	}

	numSource := len(s.Model.SourceLight)
	for n := 1; n < numSource; n++ {
		c.JointSourceWithSource = append(c.JointSourceWithSource, Join{From: 0, To: n, Params: centerParams})
	}
	for n := 1; n < len(s.Model.LensLight); n++ {
		c.JointLensLightWithLensLight = append(c.JointLensLightWithLensLight, Join{From: 0, To: n, Params: centerParams})
	}
	if len(s.Model.PointSource) > 1 && numSource > 1 {
		for n := 0; n < numSource; n++ {
			c.JointSourceWithPointSource = append(c.JointSourceWithPointSource, Join{From: 0, To: n, Params: centerParams})
		}
	}
	return c
}

// Likelihood configures the engine's likelihood evaluation.
type Likelihood struct {
	ForceNoAddImage         bool         `json:"force_no_add_image"`
	SourceMarg              bool         `json:"source_marg"`
	PositionUncertainty     float64      `json:"position_uncertainty"`
	CheckSolver             bool         `json:"check_solver"`
	SolverTolerance         float64      `json:"solver_tolerance"`
	CheckPositiveFlux       bool         `json:"check_positive_flux"`
	CheckBounds             bool         `json:"check_bounds"`
	BandsCompute            []bool       `json:"bands_compute"`
	ImageLikelihoodMaskList []*mat.Dense `json:"-"`
}

// KwargsLikelihood returns the likelihood settings with every band enabled
// and the baseline masks installed.
func (s *Settings) KwargsLikelihood() (*Likelihood, error) {
	bands, err := s.BandNumber()
	if err != nil {
		return nil, err
	}
	masks, err := s.Masks()
	if err != nil {
		return nil, err
	}

	compute := make([]bool, bands)
	for i := range compute {
		compute[i] = true
	}

	return &Likelihood{
		PositionUncertainty:     0.00004,
		SolverTolerance:         0.001,
		CheckPositiveFlux:       true,
		CheckBounds:             true,
		BandsCompute:            compute,
		ImageLikelihoodMaskList: masks,
	}, nil
}

// Numerics configures image rendering for one band.
type Numerics struct {
	SupersamplingFactor            int    `json:"supersampling_factor"`
	SupersamplingConvolution       bool   `json:"supersampling_convolution"`
	SupersamplingKernelSize        int    `json:"supersampling_kernel_size"`
	PointSourceSupersamplingFactor int    `json:"point_source_supersampling_factor"`
	ComputeMode                    string `json:"compute_mode"`
}

// KwargsNumerics returns per-band numerics; supersampling defaults to 3.
func (s *Settings) KwargsNumerics() ([]Numerics, error) {
	bands, err := s.BandNumber()
	if err != nil {
		return nil, err
	}

	factors := make([]int, bands)
	for n := range factors {
		factors[n] = defaultSupersamplingFactor
		if s.NumericOption != nil && n < len(s.NumericOption.SupersamplingFactor) {
			factors[n] = s.NumericOption.SupersamplingFactor[n]
		}
	}

	numerics := make([]Numerics, bands)
	for n := range numerics {
		numerics[n] = Numerics{
			SupersamplingFactor:            factors[n],
			SupersamplingKernelSize:        3,
			PointSourceSupersamplingFactor: 1,
			ComputeMode:                    "regular",
		}
	}
	return numerics, nil
}

// GuessParamsFor returns the literal overrides for cat, or nil.
func (s *Settings) GuessParamsFor(cat model.Category) map[int]map[string]float64 {
	return s.GuessParams[string(cat)]
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
