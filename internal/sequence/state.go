// Package sequence replays a recipe locally: it tracks which parameters are
// fixed, installs likelihood masks and runs each particle-swarm stage with
// an optimizer over the parameters that are still free.
package sequence

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/model"
	"github.com/cwbudde/lensrecipe/internal/recipe"
)

// Params holds the current value of every parameter, per category and
// profile index.
type Params map[model.Category][]model.ParamSet

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for cat, sets := range p {
		cp := make([]model.ParamSet, len(sets))
		for i, s := range sets {
			cp[i] = s.Clone()
		}
		out[cat] = cp
	}
	return out
}

// State is the mutable replay state.
type State struct {
	// Params are the current parameter values.
	Params Params
	// Fixed maps each held parameter to the value it is held at.
	Fixed Params
	// Masks are the likelihood masks most recently installed, one per band.
	Masks []*mat.Dense

	bundles map[model.Category]*model.Bundle
}

// NewState starts from the initial values of every bundle the provider
// supplies. Parameters fixed by the bundle stay fixed at their fixed value
// for the whole replay.
func NewState(provider model.Provider) (*State, error) {
	st := &State{
		Params:  Params{},
		Fixed:   Params{},
		bundles: map[model.Category]*model.Bundle{},
	}
	for _, cat := range model.Categories {
		b, err := provider.Bundle(cat)
		if err != nil {
			return nil, fmt.Errorf("%s bundle: %w", cat, err)
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%s bundle: %w", cat, err)
		}
		st.bundles[cat] = b

		params := make([]model.ParamSet, b.Len())
		fixed := make([]model.ParamSet, b.Len())
		for i := 0; i < b.Len(); i++ {
			params[i] = b.Init[i].Clone()
			fixed[i] = b.Fixed[i].Clone()
			for name, v := range fixed[i] {
				params[i][name] = v
			}
		}
		st.Params[cat] = params
		st.Fixed[cat] = fixed
	}
	return st, nil
}

// IsFixed reports whether the named parameter is currently held.
func (st *State) IsFixed(cat model.Category, index int, name string) bool {
	sets := st.Fixed[cat]
	return index >= 0 && index < len(sets) && sets[index].Has(name)
}

// Apply executes an update_settings payload.
func (st *State) Apply(u *recipe.UpdateSettings) error {
	for _, cat := range model.Categories {
		for _, e := range u.AddFixed[cat] {
			if err := st.fix(cat, e); err != nil {
				return err
			}
		}
		for _, e := range u.RemoveFixed[cat] {
			st.free(cat, e)
		}
	}
	if u.LikelihoodMasks != nil {
		st.Masks = u.LikelihoodMasks
	}
	return nil
}

// fix holds the entry's parameters at the given values, or at their current
// values when none are given. Indices without a profile are ignored.
func (st *State) fix(cat model.Category, e recipe.FixedEntry) error {
	if e.Values != nil && len(e.Values) != len(e.Params) {
		return fmt.Errorf("%s %d: %d params but %d values", cat, e.Index, len(e.Params), len(e.Values))
	}
	params := st.Params[cat]
	if e.Index < 0 || e.Index >= len(params) {
		return nil
	}
	for k, name := range e.Params {
		v := params[e.Index][name]
		if e.Values != nil {
			v = e.Values[k]
		}
		st.Fixed[cat][e.Index][name] = v
		params[e.Index][name] = v
	}
	return nil
}

func (st *State) free(cat model.Category, e recipe.FixedEntry) {
	fixed := st.Fixed[cat]
	if e.Index < 0 || e.Index >= len(fixed) {
		return
	}
	for _, name := range e.Params {
		delete(fixed[e.Index], name)
	}
}

// variable is one free parameter of a particle-swarm stage.
type variable struct {
	cat   model.Category
	index int
	name  string
}

func (v variable) String() string {
	return fmt.Sprintf("%s/%d/%s", v.cat, v.index, v.name)
}

// freeVariables lists the parameters that have bounds and are not held, in
// category, index and name order.
func (st *State) freeVariables() []variable {
	var vars []variable
	for _, cat := range model.Categories {
		b := st.bundles[cat]
		for i := 0; i < b.Len(); i++ {
			for _, name := range b.Lower[i].Keys() {
				if !b.Upper[i].Has(name) || st.IsFixed(cat, i, name) {
					continue
				}
				vars = append(vars, variable{cat: cat, index: i, name: name})
			}
		}
	}
	return vars
}

// searchBox returns the stage bounds of v: its current value plus or minus
// sigmaScale steps, clipped to the parameter bounds. A parameter without a
// step searches its full bounds.
func (st *State) searchBox(v variable, sigmaScale float64) (lo, hi float64) {
	b := st.bundles[v.cat]
	lower := b.Lower[v.index][v.name]
	upper := b.Upper[v.index][v.name]
	cur := min(max(st.Params[v.cat][v.index][v.name], lower), upper)

	step, ok := b.Step[v.index][v.name]
	if !ok || step <= 0 || sigmaScale <= 0 {
		return lower, upper
	}
	return max(lower, cur-sigmaScale*step), min(upper, cur+sigmaScale*step)
}
