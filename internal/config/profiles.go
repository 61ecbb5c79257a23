package config

import (
	"fmt"
	"math"

	"github.com/cwbudde/lensrecipe/internal/model"
)

const defaultShapeletNMax = 6

// Profiles returns the configured profile list for cat without validating
// it; Bundle and Validate report unsupported names.
func (s *Settings) Profiles(cat model.Category) []model.Profile {
	names := s.ModelNames(cat)
	profiles := make([]model.Profile, len(names))
	for i, name := range names {
		profiles[i] = model.Profile(name)
	}
	return profiles
}

// Bundle builds the parameter bundle of cat from the bound tables. Light
// bundles hold one entry per band and profile, band-major.
func (s *Settings) Bundle(cat model.Category) (*model.Bundle, error) {
	profiles, err := model.ParseProfiles(cat, s.ModelNames(cat))
	if err != nil {
		return nil, err
	}

	b := &model.Bundle{}
	switch cat {
	case model.Lens:
		for _, p := range profiles {
			s.appendLens(b, p)
		}
	case model.LensLight, model.Source:
		if len(profiles) == 0 {
			return b, nil
		}
		bands, err := s.BandNumber()
		if err != nil {
			return nil, err
		}
		for n := 0; n < bands; n++ {
			for _, p := range profiles {
				if cat == model.LensLight {
					s.appendLensLight(b, p)
				} else {
					s.appendSource(b, p, n)
				}
			}
		}
	case model.PointSource:
		// Image positions are vector-valued and tabulated by the engine.
	default:
		return nil, fmt.Errorf("%w: unknown model category %q", model.ErrUnsupportedModel, cat)
	}
	return b, nil
}

func (s *Settings) appendLens(b *model.Bundle, p model.Profile) {
	ra, dec := s.DeflectorCenter()
	bound := s.DeflectorCentroidBound()

	switch p {
	case model.SPEMD, model.SPEP:
		b.Append(
			model.ParamSet{"center_x": ra, "center_y": dec, "e1": 0, "e2": 0, "gamma": 2, "theta_E": 1},
			model.ParamSet{"theta_E": .1, "e1": .1, "e2": .1, "gamma": .02, "center_x": .1, "center_y": .1},
			model.ParamSet{},
			model.ParamSet{"theta_E": .01, "e1": -.5, "e2": -.5, "gamma": 1.5, "center_x": ra - bound, "center_y": dec - bound},
			model.ParamSet{"theta_E": 2, "e1": .5, "e2": .5, "gamma": 2.5, "center_x": ra + bound, "center_y": dec + bound},
		)
	case model.ShearGammaPsi:
		b.Append(
			model.ParamSet{"gamma_ext": .05, "psi_ext": 0},
			model.ParamSet{"gamma_ext": .01, "psi_ext": math.Pi / 90},
			model.ParamSet{"ra_0": 0, "dec_0": 0},
			model.ParamSet{"gamma_ext": 0, "psi_ext": -math.Pi},
			model.ParamSet{"gamma_ext": .5, "psi_ext": math.Pi},
		)
	case model.Shear:
		b.Append(
			model.ParamSet{"gamma1": 0, "gamma2": 0},
			model.ParamSet{"gamma1": .05, "gamma2": .05},
			model.ParamSet{"ra_0": 0, "dec_0": 0},
			model.ParamSet{"gamma1": -.5, "gamma2": -.5},
			model.ParamSet{"gamma1": .5, "gamma2": .5},
		)
	}
}

func (s *Settings) appendLensLight(b *model.Bundle, p model.Profile) {
	ra, dec := s.DeflectorCenter()
	bound := s.DeflectorCentroidBound()

	switch p {
	case model.SersicEllipse:
		b.Append(
			model.ParamSet{"amp": 1, "R_sersic": .2, "center_x": ra, "center_y": dec, "e1": 0, "e2": 0, "n_sersic": 4},
			model.ParamSet{"center_x": s.PixelSize / 10, "center_y": s.PixelSize / 10, "R_sersic": .05, "n_sersic": .5, "e1": .1, "e2": .1},
			model.ParamSet{},
			model.ParamSet{"e1": -.5, "e2": -.5, "n_sersic": .5, "R_sersic": .1, "center_x": ra - bound, "center_y": dec - bound},
			model.ParamSet{"e1": .5, "e2": .5, "n_sersic": 8, "R_sersic": 10, "center_x": ra + bound, "center_y": dec + bound},
		)
	}
}

func (s *Settings) appendSource(b *model.Bundle, p model.Profile, band int) {
	switch p {
	case model.SersicEllipse:
		b.Append(
			model.ParamSet{"amp": 1, "R_sersic": .2, "n_sersic": 1, "center_x": 0, "center_y": 0, "e1": 0, "e2": 0},
			model.ParamSet{"center_x": .01, "center_y": .01, "R_sersic": .01, "n_sersic": .5, "e1": .05, "e2": .05},
			model.ParamSet{},
			model.ParamSet{"R_sersic": .04, "n_sersic": .5, "center_y": -2, "center_x": -2, "e1": -.5, "e2": -.5},
			model.ParamSet{"R_sersic": .5, "n_sersic": 8, "center_y": 2, "center_x": 2, "e1": .5, "e2": .5},
		)
	case model.Shapelets:
		b.Append(
			model.ParamSet{"beta": .1, "center_x": 0, "center_y": 0},
			model.ParamSet{"beta": .05, "center_x": .01, "center_y": .01},
			model.ParamSet{"n_max": float64(s.shapeletNMax(band))},
			model.ParamSet{"beta": .02, "center_x": -2, "center_y": -2},
			model.ParamSet{"beta": 1, "center_x": 2, "center_y": 2},
		)
	}
}

func (s *Settings) shapeletNMax(band int) int {
	if s.SourceLightOption == nil || band >= len(s.SourceLightOption.ShapeletNMax) {
		return defaultShapeletNMax
	}
	return s.SourceLightOption.ShapeletNMax[band]
}

var _ model.Provider = (*Settings)(nil)
