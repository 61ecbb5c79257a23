package model

import (
	"fmt"
	"sort"
)

// ParamSet maps parameter names to values for a single profile instance.
type ParamSet map[string]float64

// Keys returns the parameter names in sorted order.
func (p ParamSet) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether name is present.
func (p ParamSet) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Clone returns an independent copy.
func (p ParamSet) Clone() ParamSet {
	out := make(ParamSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Bundle holds the five index-aligned parameter sequences of one model
// category: one element per profile instance.
type Bundle struct {
	Init  []ParamSet
	Step  []ParamSet
	Fixed []ParamSet
	Lower []ParamSet
	Upper []ParamSet
}

// Len returns the number of profile instances.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Lower)
}

// Append adds one profile instance to every sequence.
func (b *Bundle) Append(init, step, fixed, lower, upper ParamSet) {
	b.Init = append(b.Init, init)
	b.Step = append(b.Step, step)
	b.Fixed = append(b.Fixed, fixed)
	b.Lower = append(b.Lower, lower)
	b.Upper = append(b.Upper, upper)
}

// Validate checks that the five sequences are index-aligned.
func (b *Bundle) Validate() error {
	n := len(b.Lower)
	for name, l := range map[string]int{
		"init":  len(b.Init),
		"step":  len(b.Step),
		"fixed": len(b.Fixed),
		"upper": len(b.Upper),
	} {
		if l != n {
			return fmt.Errorf("bundle %s has %d entries, lower has %d", name, l, n)
		}
	}
	return nil
}

// FreeParams returns, for profile instance i, the names present in the
// lower-bound entry but absent from the fixed entry, sorted.
func (b *Bundle) FreeParams(i int) []string {
	free := []string{}
	for _, name := range b.Lower[i].Keys() {
		if !b.Fixed[i].Has(name) {
			free = append(free, name)
		}
	}
	return free
}

// Provider supplies the profile lists and parameter bundles of a lens model.
type Provider interface {
	// Profiles returns the ordered profile list configured for cat.
	Profiles(cat Category) []Profile
	// Bundle returns the parameter bundle for cat.
	Bundle(cat Category) (*Bundle, error)
}
