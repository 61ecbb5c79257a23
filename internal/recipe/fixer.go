package recipe

import (
	"github.com/cwbudde/lensrecipe/internal/model"
)

// FixController turns "fix everything currently free" requests into
// update_settings instructions.
type FixController struct {
	provider model.Provider
}

// NewFixController creates a controller reading bundles from provider.
func NewFixController(provider model.Provider) *FixController {
	return &FixController{provider: provider}
}

// FreeParams returns, for every selected profile index of cat, the
// parameters present in its lower bounds but not in its fixed set. With no
// indices every profile is selected; indices outside the bundle are skipped.
func (f *FixController) FreeParams(cat model.Category, indices ...int) ([]FixedEntry, error) {
	bundle, err := f.provider.Bundle(cat)
	if err != nil {
		return nil, err
	}

	selected := func(i int) bool { return true }
	if len(indices) > 0 {
		set := make(map[int]bool, len(indices))
		for _, i := range indices {
			set[i] = true
		}
		selected = func(i int) bool { return set[i] }
	}

	entries := []FixedEntry{}
	for i := 0; i < bundle.Len(); i++ {
		if selected(i) {
			entries = append(entries, FixedEntry{Index: i, Params: bundle.FreeParams(i)})
		}
	}
	return entries, nil
}

// Fix returns an instruction adding the free parameters of the selected
// profiles to the fixed set.
func (f *FixController) Fix(cat model.Category, indices ...int) (Instruction, error) {
	entries, err := f.FreeParams(cat, indices...)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		Op:     OpUpdateSettings,
		Update: &UpdateSettings{AddFixed: map[model.Category][]FixedEntry{cat: entries}},
	}, nil
}

// Unfix returns the instruction Fix would produce, relabeled to remove the
// same parameters from the fixed set.
func (f *FixController) Unfix(cat model.Category, indices ...int) (Instruction, error) {
	ins, err := f.Fix(cat, indices...)
	if err != nil {
		return Instruction{}, err
	}
	ins.Update.RemoveFixed = ins.Update.AddFixed
	ins.Update.AddFixed = nil
	return ins, nil
}
