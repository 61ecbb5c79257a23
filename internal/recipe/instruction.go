package recipe

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
)

// Operation names the engine stage an Instruction triggers.
type Operation string

const (
	OpPSO            Operation = "PSO"
	OpPSFIteration   Operation = "psf_iteration"
	OpMCMC           Operation = "MCMC"
	OpUpdateSettings Operation = "update_settings"
)

// PSO configures one particle-swarm stage.
type PSO struct {
	SigmaScale  float64 `json:"sigma_scale"`
	NParticles  int     `json:"n_particles"`
	NIterations int     `json:"n_iterations"`
}

// MCMC configures the posterior sampling stage.
type MCMC struct {
	SamplerType string `json:"sampler_type"`
	NBurn       int    `json:"n_burn"`
	NRun        int    `json:"n_run"`
	WalkerRatio int    `json:"walkerRatio"`
}

// FixedEntry names parameters of the profile at Index. Values, when
// present, are the literal values to hold them at and align with Params.
type FixedEntry struct {
	Index  int
	Params []string
	Values []float64
}

// MarshalJSON encodes the entry as [index, params] or [index, params, values].
func (e FixedEntry) MarshalJSON() ([]byte, error) {
	params := e.Params
	if params == nil {
		params = []string{}
	}
	if e.Values == nil {
		return json.Marshal([]any{e.Index, params})
	}
	return json.Marshal([]any{e.Index, params, e.Values})
}

// UnmarshalJSON decodes the list form written by MarshalJSON.
func (e *FixedEntry) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("fixed entry must have 2 or 3 elements, got %d", len(parts))
	}
	var out FixedEntry
	if err := json.Unmarshal(parts[0], &out.Index); err != nil {
		return fmt.Errorf("fixed entry index: %w", err)
	}
	if err := json.Unmarshal(parts[1], &out.Params); err != nil {
		return fmt.Errorf("fixed entry params: %w", err)
	}
	if len(parts) == 3 {
		if err := json.Unmarshal(parts[2], &out.Values); err != nil {
			return fmt.Errorf("fixed entry values: %w", err)
		}
		if len(out.Values) != len(out.Params) {
			return fmt.Errorf("fixed entry has %d params but %d values", len(out.Params), len(out.Values))
		}
	}
	*e = out
	return nil
}

// UpdateSettings changes the engine state between stages: it moves
// parameters into or out of the fixed set and may replace the likelihood
// masks of every band.
type UpdateSettings struct {
	AddFixed        map[model.Category][]FixedEntry
	RemoveFixed     map[model.Category][]FixedEntry
	LikelihoodMasks []*mat.Dense
}

const (
	kwargsLikelihoodKey = "kwargs_likelihood"
	maskListKey         = "image_likelihood_mask_list"
)

// MarshalJSON encodes the engine keyword form, e.g.
// {"lens_add_fixed": [[0, ["gamma"]]]}.
func (u UpdateSettings) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for cat, entries := range u.AddFixed {
		out[cat.AddFixedKey()] = entries
	}
	for cat, entries := range u.RemoveFixed {
		out[cat.RemoveFixedKey()] = entries
	}
	if u.LikelihoodMasks != nil {
		masks := make([][][]float64, len(u.LikelihoodMasks))
		for i, m := range u.LikelihoodMasks {
			masks[i] = denseRows(m)
		}
		out[kwargsLikelihoodKey] = map[string]any{maskListKey: masks}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the engine keyword form.
func (u *UpdateSettings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out UpdateSettings
	for key, value := range raw {
		if key == kwargsLikelihoodKey {
			var likelihood map[string][][][]float64
			if err := json.Unmarshal(value, &likelihood); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if rows, ok := likelihood[maskListKey]; ok {
				out.LikelihoodMasks = make([]*mat.Dense, len(rows))
				for i, r := range rows {
					m, err := denseFromRows(r)
					if err != nil {
						return fmt.Errorf("%s mask %d: %w", key, i, err)
					}
					out.LikelihoodMasks[i] = m
				}
			}
			continue
		}

		cat, add, err := parseFixedKey(key)
		if err != nil {
			return err
		}
		var entries []FixedEntry
		if err := json.Unmarshal(value, &entries); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if add {
			if out.AddFixed == nil {
				out.AddFixed = map[model.Category][]FixedEntry{}
			}
			out.AddFixed[cat] = entries
		} else {
			if out.RemoveFixed == nil {
				out.RemoveFixed = map[model.Category][]FixedEntry{}
			}
			out.RemoveFixed[cat] = entries
		}
	}
	*u = out
	return nil
}

func parseFixedKey(key string) (model.Category, bool, error) {
	var name string
	var add bool
	switch {
	case strings.HasSuffix(key, "_add_fixed"):
		name, add = strings.TrimSuffix(key, "_add_fixed"), true
	case strings.HasSuffix(key, "_remove_fixed"):
		name = strings.TrimSuffix(key, "_remove_fixed")
	default:
		return "", false, fmt.Errorf("unknown update_settings key %q", key)
	}
	cat, err := model.ParseCategory(name)
	if err != nil {
		return "", false, err
	}
	return cat, add, nil
}

// Instruction is one stage of the optimization sequence: an operation and
// exactly one payload. Raw holds the payload verbatim for instructions
// taken from a pre-built sequence and is preferred when encoding.
type Instruction struct {
	Op           Operation
	PSO          *PSO
	PSFIteration *config.PSFIterationSettings
	MCMC         *MCMC
	Update       *UpdateSettings
	Raw          json.RawMessage
}

// MarshalJSON encodes the instruction as [operation, payload].
func (ins Instruction) MarshalJSON() ([]byte, error) {
	if ins.Raw != nil {
		return json.Marshal([]any{ins.Op, ins.Raw})
	}
	var payload any
	switch ins.Op {
	case OpPSO:
		payload = ins.PSO
	case OpPSFIteration:
		payload = ins.PSFIteration
	case OpMCMC:
		payload = ins.MCMC
	case OpUpdateSettings:
		payload = ins.Update
	default:
		return nil, fmt.Errorf("instruction %q has no payload", ins.Op)
	}
	return json.Marshal([]any{ins.Op, payload})
}

// UnmarshalJSON decodes [operation, payload]. Known operations are decoded
// into their typed payload; unknown ones keep only Raw.
func (ins *Instruction) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("instruction must have 2 elements, got %d", len(parts))
	}

	var op Operation
	if err := json.Unmarshal(parts[0], &op); err != nil {
		return fmt.Errorf("instruction operation: %w", err)
	}

	out := Instruction{Op: op}
	var target any
	switch op {
	case OpPSO:
		out.PSO = &PSO{}
		target = out.PSO
	case OpPSFIteration:
		out.PSFIteration = &config.PSFIterationSettings{}
		target = out.PSFIteration
	case OpMCMC:
		out.MCMC = &MCMC{}
		target = out.MCMC
	case OpUpdateSettings:
		out.Update = &UpdateSettings{}
		target = out.Update
	}
	if target == nil {
		out.Raw = append(json.RawMessage(nil), parts[1]...)
	} else if err := json.Unmarshal(parts[1], target); err != nil {
		return fmt.Errorf("%s payload: %w", op, err)
	}

	*ins = out
	return nil
}

// String gives a short human-readable form used in logs and tables.
func (ins Instruction) String() string {
	switch {
	case ins.PSO != nil:
		return fmt.Sprintf("PSO(sigma_scale=%g, particles=%d, iterations=%d)",
			ins.PSO.SigmaScale, ins.PSO.NParticles, ins.PSO.NIterations)
	case ins.MCMC != nil:
		return fmt.Sprintf("MCMC(%s, burn=%d, run=%d, walker_ratio=%d)",
			ins.MCMC.SamplerType, ins.MCMC.NBurn, ins.MCMC.NRun, ins.MCMC.WalkerRatio)
	case ins.Update != nil:
		var parts []string
		for _, cat := range sortedCategories(ins.Update.AddFixed) {
			parts = append(parts, fmt.Sprintf("%s=%s", cat.AddFixedKey(), formatEntries(ins.Update.AddFixed[cat])))
		}
		for _, cat := range sortedCategories(ins.Update.RemoveFixed) {
			parts = append(parts, fmt.Sprintf("%s=%s", cat.RemoveFixedKey(), formatEntries(ins.Update.RemoveFixed[cat])))
		}
		if ins.Update.LikelihoodMasks != nil {
			parts = append(parts, fmt.Sprintf("masks=%d", len(ins.Update.LikelihoodMasks)))
		}
		return "update_settings(" + strings.Join(parts, ", ") + ")"
	}
	return string(ins.Op)
}

func formatEntries(entries []FixedEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		if e.Values != nil {
			parts[i] = fmt.Sprintf("%d:%v=%v", e.Index, e.Params, e.Values)
		} else {
			parts[i] = fmt.Sprintf("%d:%v", e.Index, e.Params)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func sortedCategories(m map[model.Category][]FixedEntry) []model.Category {
	cats := make([]model.Category, 0, len(m))
	for cat := range m {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

func denseRows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("mask is empty")
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), len(rows[0]))
		}
		m.SetRow(i, row)
	}
	return m, nil
}
