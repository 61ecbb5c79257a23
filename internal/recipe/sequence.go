package recipe

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
)

// Recipe is an immutable, ordered instruction sequence. Payloads are shared
// with the Sequence that built it and must not be modified.
type Recipe struct {
	instructions []Instruction
}

// NewRecipe copies instructions into a Recipe.
func NewRecipe(instructions []Instruction) *Recipe {
	return &Recipe{instructions: append([]Instruction(nil), instructions...)}
}

// Len returns the number of instructions.
func (r *Recipe) Len() int { return len(r.instructions) }

// At returns the instruction at position i.
func (r *Recipe) At(i int) Instruction { return r.instructions[i] }

// Instructions returns a copy of the instruction slice.
func (r *Recipe) Instructions() []Instruction {
	return append([]Instruction(nil), r.instructions...)
}

// Count returns how many instructions carry op.
func (r *Recipe) Count(op Operation) int {
	n := 0
	for _, ins := range r.instructions {
		if ins.Op == op {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the recipe as the engine's list of [operation, payload].
func (r *Recipe) MarshalJSON() ([]byte, error) {
	if r.instructions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.instructions)
}

// UnmarshalJSON decodes a list of [operation, payload].
func (r *Recipe) UnmarshalJSON(data []byte) error {
	var instructions []Instruction
	if err := json.Unmarshal(data, &instructions); err != nil {
		return err
	}
	r.instructions = instructions
	return nil
}

// Sequence is an append-only instruction builder.
type Sequence struct {
	items []Instruction
}

// Append adds instructions in order.
func (s *Sequence) Append(ins ...Instruction) *Sequence {
	s.items = append(s.items, ins...)
	return s
}

// Extend appends every instruction of r.
func (s *Sequence) Extend(r *Recipe) *Sequence {
	s.items = append(s.items, r.instructions...)
	return s
}

// PSO appends a particle-swarm stage.
func (s *Sequence) PSO(sigmaScale float64, particles, iterations int) *Sequence {
	return s.Append(Instruction{
		Op:  OpPSO,
		PSO: &PSO{SigmaScale: sigmaScale, NParticles: particles, NIterations: iterations},
	})
}

// PSFIteration appends a PSF reconstruction stage.
func (s *Sequence) PSFIteration(settings config.PSFIterationSettings) *Sequence {
	return s.Append(Instruction{Op: OpPSFIteration, PSFIteration: &settings})
}

// AddFixed appends an update that fixes the given entries of cat.
func (s *Sequence) AddFixed(cat model.Category, entries ...FixedEntry) *Sequence {
	return s.Append(Instruction{
		Op:     OpUpdateSettings,
		Update: &UpdateSettings{AddFixed: map[model.Category][]FixedEntry{cat: entries}},
	})
}

// RemoveFixed appends an update that frees the given entries of cat.
func (s *Sequence) RemoveFixed(cat model.Category, entries ...FixedEntry) *Sequence {
	return s.Append(Instruction{
		Op:     OpUpdateSettings,
		Update: &UpdateSettings{RemoveFixed: map[model.Category][]FixedEntry{cat: entries}},
	})
}

// LikelihoodMasks appends an update that installs one mask per band. An
// empty list is still emitted as an empty mask list.
func (s *Sequence) LikelihoodMasks(masks []*mat.Dense) *Sequence {
	list := make([]*mat.Dense, len(masks))
	copy(list, masks)
	return s.Append(Instruction{
		Op:     OpUpdateSettings,
		Update: &UpdateSettings{LikelihoodMasks: list},
	})
}

// Len returns the number of instructions appended so far.
func (s *Sequence) Len() int { return len(s.items) }

// Recipe snapshots the sequence.
func (s *Sequence) Recipe() *Recipe { return NewRecipe(s.items) }

// FromRaw decodes a pre-built sequence in the engine's list form, as read
// from a settings file. Each payload is kept verbatim in Raw.
func FromRaw(items []any) (*Recipe, error) {
	instructions := make([]Instruction, len(items))
	for i, item := range items {
		data, err := json.Marshal(config.JSONCompatible(item))
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		var ins Instruction
		if err := json.Unmarshal(data, &ins); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		ins.Raw = parts[1]
		instructions[i] = ins
	}
	return &Recipe{instructions: instructions}, nil
}
