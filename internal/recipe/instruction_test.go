package recipe

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
)

func TestInstructionWireFormat(t *testing.T) {
	tests := []struct {
		name string
		ins  Instruction
		want string
	}{
		{
			"fix",
			(&Sequence{}).AddFixed(model.Lens, FixedEntry{Index: 0, Params: []string{"gamma"}}).Recipe().At(0),
			`["update_settings",{"lens_add_fixed":[[0,["gamma"]]]}]`,
		},
		{
			"fix with values",
			(&Sequence{}).AddFixed(model.Source, FixedEntry{Index: 1, Params: []string{"beta"}, Values: []float64{0.1}}).Recipe().At(0),
			`["update_settings",{"source_add_fixed":[[1,["beta"],[0.1]]]}]`,
		},
		{
			"unfix",
			(&Sequence{}).RemoveFixed(model.LensLight, FixedEntry{Index: 0}).Recipe().At(0),
			`["update_settings",{"lens_light_remove_fixed":[[0,[]]]}]`,
		},
		{
			"pso",
			(&Sequence{}).PSO(0.1, 50, 100).Recipe().At(0),
			`["PSO",{"sigma_scale":0.1,"n_particles":50,"n_iterations":100}]`,
		},
		{
			"psf iteration",
			(&Sequence{}).PSFIteration(config.PSFIterationSettings{NumIter: 20}).Recipe().At(0),
			`["psf_iteration",{"num_iter":20}]`,
		},
		{
			"no masks",
			(&Sequence{}).LikelihoodMasks(nil).Recipe().At(0),
			`["update_settings",{"kwargs_likelihood":{"image_likelihood_mask_list":[]}}]`,
		},
		{
			"masks",
			(&Sequence{}).LikelihoodMasks([]*mat.Dense{mat.NewDense(1, 2, []float64{1, 0})}).Recipe().At(0),
			`["update_settings",{"kwargs_likelihood":{"image_likelihood_mask_list":[[[1,0]]]}}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ins)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestInstructionWithoutPayload(t *testing.T) {
	_, err := json.Marshal(Instruction{Op: OpPSO})
	assert.NoError(t, err, "nil payload encodes as null")

	_, err = json.Marshal(Instruction{Op: "unknown"})
	assert.Error(t, err)
}

func TestRecipeJSONRoundTrip(t *testing.T) {
	s := testSettings("SPEMD", "SHEAR_GAMMA_PSI")
	s.Fitting.PSFIteration = true
	s.Fitting.Sampling = true
	s.Fitting.Sampler = config.SamplerMCMC
	s.Fitting.MCMCSettings = config.MCMCSettings{BurninStep: 1, IterationStep: 2, WalkerRatio: 3}

	r, err := New(s).Build(t.Context(), NameDefault, nil)
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Recipe
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(r.Instructions(), back.Instructions()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateSettingsMasksRoundTrip(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	ins := (&Sequence{}).LikelihoodMasks([]*mat.Dense{m}).Recipe().At(0)

	data, err := json.Marshal(ins)
	require.NoError(t, err)

	var back Instruction
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.Update)
	require.Len(t, back.Update.LikelihoodMasks, 1)
	assert.True(t, mat.Equal(m, back.Update.LikelihoodMasks[0]))
}

func TestInstructionUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not a list", `{"PSO":{}}`},
		{"one element", `["PSO"]`},
		{"bad payload", `["PSO",{"n_particles":"many"}]`},
		{"unknown key", `["update_settings",{"lens_freeze":[]}]`},
		{"unknown category", `["update_settings",{"halo_add_fixed":[]}]`},
		{"short entry", `["update_settings",{"lens_add_fixed":[[0]]}]`},
		{"values mismatch", `["update_settings",{"lens_add_fixed":[[0,["a","b"],[1]]]}]`},
		{"ragged mask", `["update_settings",{"kwargs_likelihood":{"image_likelihood_mask_list":[[[1,0],[1]]]}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ins Instruction
			assert.Error(t, json.Unmarshal([]byte(tt.data), &ins))
		})
	}
}

func TestUnknownOperationKeepsPayload(t *testing.T) {
	var ins Instruction
	require.NoError(t, json.Unmarshal([]byte(`["align_images",{"n_particles":10}]`), &ins))
	assert.Equal(t, Operation("align_images"), ins.Op)
	assert.JSONEq(t, `{"n_particles":10}`, string(ins.Raw))

	data, err := json.Marshal(ins)
	require.NoError(t, err)
	assert.JSONEq(t, `["align_images",{"n_particles":10}]`, string(data))
}

func TestRecipeImmutable(t *testing.T) {
	seq := (&Sequence{}).PSO(1, 1, 1)
	r := seq.Recipe()
	seq.PSO(0.1, 1, 1)
	assert.Equal(t, 1, r.Len())

	ins := r.Instructions()
	ins[0] = Instruction{Op: OpMCMC}
	assert.Equal(t, OpPSO, r.At(0).Op)

	data, err := json.Marshal(NewRecipe(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestInstructionString(t *testing.T) {
	ins := Instruction{
		Op: OpUpdateSettings,
		Update: &UpdateSettings{
			AddFixed:    map[model.Category][]FixedEntry{model.Source: {{Index: 1, Params: []string{"beta"}, Values: []float64{0.1}}}},
			RemoveFixed: map[model.Category][]FixedEntry{model.Lens: {{Index: 0, Params: []string{"gamma"}}}},
		},
	}
	assert.Equal(t, "update_settings(source_add_fixed=[1:[beta]=[0.1]], lens_remove_fixed=[0:[gamma]])", ins.String())
	assert.Equal(t, "MCMC(EMCEE, burn=1, run=2, walker_ratio=3)",
		Instruction{Op: OpMCMC, MCMC: &MCMC{SamplerType: SamplerEmcee, NBurn: 1, NRun: 2, WalkerRatio: 3}}.String())
	assert.Equal(t, "psf_iteration", Instruction{Op: OpPSFIteration}.String())
}
