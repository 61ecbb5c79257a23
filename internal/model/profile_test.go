package model

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		cat     Category
		name    string
		wantErr bool
	}{
		{Lens, "SPEMD", false},
		{Lens, "SHEAR_GAMMA_PSI", false},
		{Lens, "SERSIC_ELLIPSE", true},
		{LensLight, "SERSIC_ELLIPSE", false},
		{LensLight, "SHAPELETS", true},
		{Source, "SHAPELETS", false},
		{Source, "NIE", true},
		{PointSource, "LENSED_POSITION", false},
		{Category("dark_matter"), "SPEMD", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.cat)+"/"+tt.name, func(t *testing.T) {
			p, err := ParseProfile(tt.cat, tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedModel) {
					t.Errorf("Expected ErrUnsupportedModel, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if string(p) != tt.name {
				t.Errorf("Expected %s, got %s", tt.name, p)
			}
		})
	}
}

func TestParseProfiles(t *testing.T) {
	got, err := ParseProfiles(Lens, []string{"SPEP", "SHEAR"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []Profile{SPEP, Shear}) {
		t.Errorf("Order not preserved: %v", got)
	}

	if _, err := ParseProfiles(Lens, []string{"SPEMD", "PEMD"}); err == nil {
		t.Error("Expected error for unsupported name")
	}

	got, err = ParseProfiles(Source, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("Empty list should parse to nothing, got %v, %v", got, err)
	}
}

func TestParseCategory(t *testing.T) {
	for _, cat := range Categories {
		if got, err := ParseCategory(string(cat)); err != nil || got != cat {
			t.Errorf("ParseCategory(%q) = %q, %v", cat, got, err)
		}
	}
	if _, err := ParseCategory("lens-light"); !errors.Is(err, ErrUnsupportedModel) {
		t.Errorf("Expected ErrUnsupportedModel, got %v", err)
	}
}

func TestSettingsKeys(t *testing.T) {
	if got := LensLight.AddFixedKey(); got != "lens_light_add_fixed" {
		t.Errorf("AddFixedKey = %q", got)
	}
	if got := PointSource.RemoveFixedKey(); got != "ps_remove_fixed" {
		t.Errorf("RemoveFixedKey = %q", got)
	}
}

func TestProfileClasses(t *testing.T) {
	if !SPEMD.IsPowerLaw() || !SPEP.IsPowerLaw() || Shear.IsPowerLaw() {
		t.Error("IsPowerLaw misclassifies")
	}
	if !ShearGammaPsi.IsExternalShear() || !Shear.IsExternalShear() || SPEMD.IsExternalShear() {
		t.Error("IsExternalShear misclassifies")
	}
	if !Shapelets.IsShapelets() || SersicEllipse.IsShapelets() {
		t.Error("IsShapelets misclassifies")
	}
}

func TestIndexOf(t *testing.T) {
	list := []Profile{ShearGammaPsi, SPEP, SPEMD}

	tests := []struct {
		name      string
		preferred []Profile
		want      int
	}{
		{"first preference wins", []Profile{SPEMD, SPEP}, 2},
		{"fallback", []Profile{Shear, SPEP}, 1},
		{"absent", []Profile{Shear}, -1},
		{"nothing preferred", nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IndexOf(list, tt.preferred...); got != tt.want {
				t.Errorf("IndexOf = %d, want %d", got, tt.want)
			}
		})
	}

	if got := IndexOf(nil, SPEMD); got != -1 {
		t.Errorf("Empty list should give -1, got %d", got)
	}
}
