package model

import (
	"errors"
	"fmt"
)

// ErrUnsupportedModel is returned when a profile name is not part of the
// vocabulary of its category, or when a category itself is unknown.
var ErrUnsupportedModel = errors.New("unsupported model")

// Category identifies one of the model component lists of a lens system.
// The string value doubles as the prefix of the engine's fixed-parameter
// settings keys (e.g. "lens_add_fixed").
type Category string

const (
	Lens        Category = "lens"
	LensLight   Category = "lens_light"
	Source      Category = "source"
	PointSource Category = "ps"
)

// Categories lists every category in canonical order.
var Categories = []Category{Lens, LensLight, Source, PointSource}

// ParseCategory maps a category name to its Category.
func ParseCategory(name string) (Category, error) {
	switch Category(name) {
	case Lens, LensLight, Source, PointSource:
		return Category(name), nil
	}
	return "", fmt.Errorf("%w: unknown model category %q", ErrUnsupportedModel, name)
}

// AddFixedKey returns the settings key that moves parameters into the fixed set.
func (c Category) AddFixedKey() string { return string(c) + "_add_fixed" }

// RemoveFixedKey returns the settings key that frees parameters again.
func (c Category) RemoveFixedKey() string { return string(c) + "_remove_fixed" }

// Profile is a parametric model component name.
type Profile string

const (
	SPEMD         Profile = "SPEMD"
	SPEP          Profile = "SPEP"
	ShearGammaPsi Profile = "SHEAR_GAMMA_PSI"
	Shear         Profile = "SHEAR"

	SersicEllipse Profile = "SERSIC_ELLIPSE"
	Shapelets     Profile = "SHAPELETS"

	LensedPosition Profile = "LENSED_POSITION"
	SourcePosition Profile = "SOURCE_POSITION"
	Unlensed       Profile = "UNLENSED"
)

// ParseProfile validates name against the vocabulary of cat.
func ParseProfile(cat Category, name string) (Profile, error) {
	p := Profile(name)
	switch cat {
	case Lens:
		switch p {
		case SPEMD, SPEP, ShearGammaPsi, Shear:
			return p, nil
		}
	case LensLight:
		switch p {
		case SersicEllipse:
			return p, nil
		}
	case Source:
		switch p {
		case SersicEllipse, Shapelets:
			return p, nil
		}
	case PointSource:
		switch p {
		case LensedPosition, SourcePosition, Unlensed:
			return p, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown model category %q", ErrUnsupportedModel, cat)
	}
	return "", fmt.Errorf("%w: %s not implemented as a %s model", ErrUnsupportedModel, name, cat)
}

// ParseProfiles validates every name in names for cat, preserving order.
func ParseProfiles(cat Category, names []string) ([]Profile, error) {
	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		p, err := ParseProfile(cat, name)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// IsPowerLaw reports whether the profile carries a free power-law slope "gamma".
func (p Profile) IsPowerLaw() bool { return p == SPEMD || p == SPEP }

// IsExternalShear reports whether the profile is an external shear field.
func (p Profile) IsExternalShear() bool { return p == ShearGammaPsi || p == Shear }

// IsShapelets reports whether the profile is a shapelet basis with scale "beta".
func (p Profile) IsShapelets() bool { return p == Shapelets }

// IndexOf returns the position in list of the first of preferred that is
// present, trying preferred in order. It returns -1 when none is present.
func IndexOf(list []Profile, preferred ...Profile) int {
	for _, want := range preferred {
		for i, p := range list {
			if p == want {
				return i
			}
		}
	}
	return -1
}
