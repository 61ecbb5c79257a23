package recipe

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/arcmask"
	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
)

func testSettings(lens ...string) *config.Settings {
	return &config.Settings{
		PixelSize: 0.1,
		Band:      []string{"F160W"},
		Model: config.ModelSettings{
			Lens:        lens,
			LensLight:   []string{"SERSIC_ELLIPSE"},
			SourceLight: []string{"SERSIC_ELLIPSE"},
		},
		Fitting: config.FittingSettings{
			PSO:         true,
			PSOSettings: config.PSOSettings{NumParticle: 10, NumIteration: 20},
		},
	}
}

// blob returns a size×size image with a Gaussian light profile centered
// in the frame.
func blob(size int) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	c := float64(size-1) / 2
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			r2 := (float64(i)-c)*(float64(i)-c) + (float64(j)-c)*(float64(j)-c)
			m.Set(i, j, math.Exp(-r2/8))
		}
	}
	return m
}

func describe(r *Recipe) []string {
	out := make([]string, r.Len())
	for i, ins := range r.Instructions() {
		out[i] = ins.String()
	}
	return out
}

func TestDefaultRecipeSPEMDShear(t *testing.T) {
	b := New(testSettings("SPEMD", "SHEAR_GAMMA_PSI"))

	got, err := b.Build(context.Background(), NameDefault, nil)
	require.NoError(t, err)

	gamma := FixedEntry{Index: 0, Params: []string{"gamma"}}
	want := (&Sequence{}).
		AddFixed(model.Lens, gamma).
		PSO(1, 10, 20).PSO(0.1, 10, 20).PSO(0.1, 10, 20).
		RemoveFixed(model.Lens, gamma).
		PSO(1, 10, 20).PSO(0.1, 10, 20).PSO(0.1, 10, 20).
		Recipe()

	assert.Equal(t, 8, got.Len())
	if diff := cmp.Diff(want.Instructions(), got.Instructions()); diff != "" {
		t.Errorf("default recipe mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultRecipeLength(t *testing.T) {
	tests := []struct {
		name    string
		lens    []string
		pso     bool
		psf     bool
		wantLen int
		wantPSF int
	}{
		{"power law", []string{"SPEMD"}, true, false, 8, 0},
		{"no power law", []string{"SHEAR"}, true, false, 6, 0},
		{"power law with psf", []string{"SPEP"}, true, true, 14, 6},
		{"no power law with psf", []string{"SHEAR_GAMMA_PSI"}, true, true, 12, 6},
		{"pso disabled", []string{"SPEMD"}, false, true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(tt.lens...)
			s.Fitting.PSO = tt.pso
			s.Fitting.PSFIteration = tt.psf

			r, err := New(s).DefaultRecipe()
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, r.Len())
			assert.Equal(t, tt.wantPSF, r.Count(OpPSFIteration))
			if tt.pso {
				assert.Equal(t, 6, r.Count(OpPSO))
			}
		})
	}
}

func TestDefaultRecipePSFFollowsEachPSO(t *testing.T) {
	s := testSettings("SPEMD")
	s.Fitting.PSFIteration = true
	s.Fitting.PSFIterationSettings = &config.PSFIterationSettings{NumIter: 50, PSFSymmetry: 4}

	r, err := New(s).DefaultRecipe()
	require.NoError(t, err)

	for i := 0; i < r.Len(); i++ {
		if r.At(i).Op != OpPSO {
			continue
		}
		next := r.At(i + 1)
		require.Equal(t, OpPSFIteration, next.Op)
		assert.Equal(t, 50, next.PSFIteration.NumIter)
	}
}

func TestSamplingEpilogue(t *testing.T) {
	s := testSettings("SPEMD")
	s.Fitting.Sampling = true
	s.Fitting.Sampler = config.SamplerMCMC
	s.Fitting.MCMCSettings = config.MCMCSettings{BurninStep: 100, IterationStep: 200, WalkerRatio: 8}

	r, err := New(s, WithSamplerType(SamplerCosmoHammer)).Build(context.Background(), NameDefault, nil)
	require.NoError(t, err)
	require.Equal(t, 9, r.Len())

	last := r.At(r.Len() - 1)
	assert.Equal(t, OpMCMC, last.Op)
	assert.Equal(t, &MCMC{SamplerType: SamplerCosmoHammer, NBurn: 100, NRun: 200, WalkerRatio: 8}, last.MCMC)

	data, err := json.Marshal(last)
	require.NoError(t, err)
	assert.JSONEq(t, `["MCMC",{"sampler_type":"COSMOHAMMER","n_burn":100,"n_run":200,"walkerRatio":8}]`, string(data))
}

func TestSamplerRejection(t *testing.T) {
	for _, sampler := range []string{"NESTED", ""} {
		s := testSettings("SPEMD")
		s.Fitting.Sampling = true
		s.Fitting.Sampler = sampler

		r, err := New(s).Build(context.Background(), NameDefault, nil)
		assert.ErrorIs(t, err, ErrUnsupportedSampler)
		assert.Nil(t, r)
	}
}

func TestSamplingDisabledIgnoresSampler(t *testing.T) {
	s := testSettings("SPEMD")
	s.Fitting.Sampler = "NESTED"

	r, err := New(s).Build(context.Background(), NameDefault, nil)
	require.NoError(t, err)
	assert.Zero(t, r.Count(OpMCMC))
}

func TestBuildErrors(t *testing.T) {
	b := New(testSettings("SPEMD"))

	r, err := b.Build(context.Background(), "quasar", nil)
	assert.ErrorIs(t, err, ErrUnrecognizedRecipe)
	assert.Nil(t, r)

	r, err = b.Build(context.Background(), NameGalaxyGalaxy, nil)
	assert.ErrorIs(t, err, ErrMissingRequiredInput)
	assert.Nil(t, r)

	r, err = b.Build(context.Background(), NameGalaxyGalaxy, &JointImageData{})
	assert.ErrorIs(t, err, ErrMissingRequiredInput, "no bands")
	assert.Nil(t, r)
}

func TestBuildUnsupportedModel(t *testing.T) {
	s := testSettings("SPEMD")
	s.Model.SourceLight = []string{"PIXELATED"}
	joint := &JointImageData{Bands: []arcmask.Band{{Name: "F160W", Image: blob(9)}}}

	r, err := New(s).Build(context.Background(), NameGalaxyGalaxy, joint)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
	assert.Nil(t, r)
}

func TestEscapeHatch(t *testing.T) {
	s := testSettings("SPEMD")
	s.Fitting.PSO = false
	s.FittingKwargsList = []any{
		[]any{"PSO", map[string]any{"sigma_scale": 1.0, "n_particles": 50, "n_iterations": 10}},
		[]any{"custom_stage", map[string]any{"x": 1}},
	}

	r, err := New(s).Build(context.Background(), NameDefault, nil)
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())
	assert.Equal(t, 50, r.At(0).PSO.NParticles)
	assert.Equal(t, Operation("custom_stage"), r.At(1).Op)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[["PSO",{"sigma_scale":1,"n_particles":50,"n_iterations":10}],["custom_stage",{"x":1}]]`,
		string(data))
}

func TestEscapeHatchInvalid(t *testing.T) {
	s := testSettings("SPEMD")
	s.FittingKwargsList = []any{[]any{"PSO"}}

	_, err := New(s).Build(context.Background(), NameDefault, nil)
	assert.Error(t, err)
}

func TestGalaxyGalaxyRecipe(t *testing.T) {
	s := testSettings("SPEMD", "SHEAR_GAMMA_PSI")
	s.Model.SourceLight = []string{"SERSIC_ELLIPSE", "SHAPELETS"}
	s.GuessParams = map[string]map[int]map[string]float64{
		"lens": {0: {"theta_E": 1.1}, 7: {"theta_E": 3}},
	}
	joint := &JointImageData{Bands: []arcmask.Band{{Name: "F160W", Image: blob(9)}}}

	r, err := New(s).Build(context.Background(), NameGalaxyGalaxy, joint)
	require.NoError(t, err)

	const (
		lensFree   = "0:[center_x center_y e1 e2 gamma theta_E] 1:[gamma_ext psi_ext]"
		sourceFree = "0:[R_sersic center_x center_y e1 e2 n_sersic] 1:[beta center_x center_y]"
		lightFree  = "0:[R_sersic center_x center_y e1 e2 n_sersic]"
		pso        = "PSO(sigma_scale=1, particles=10, iterations=20)"
		psoFine    = "PSO(sigma_scale=0.1, particles=10, iterations=20)"
	)
	want := []string{
		"update_settings(lens_add_fixed=[" + lensFree + "])",
		"update_settings(source_add_fixed=[" + sourceFree + "])",
		"update_settings(masks=1)",
		pso,
		"update_settings(source_remove_fixed=[" + sourceFree + "])",
		"update_settings(source_add_fixed=[1:[beta]=[0.1]])",
		"update_settings(lens_light_add_fixed=[" + lightFree + "])",
		"update_settings(masks=1)",
		"update_settings(lens_add_fixed=[0:[theta_E]=[1.1]])",
		pso,
		"update_settings(lens_remove_fixed=[" + lensFree + "])",
		"update_settings(lens_add_fixed=[1:[gamma_ext psi_ext]])",
		"update_settings(lens_add_fixed=[0:[gamma]=[2]])",
		pso,
		"update_settings(source_remove_fixed=[1:[beta]])",
		pso,
		"update_settings(lens_light_remove_fixed=[" + lightFree + "])",
		pso,
		"update_settings(lens_remove_fixed=[1:[gamma_ext psi_ext]])",
		"update_settings(lens_add_fixed=[0:[gamma]])",
		pso, psoFine, psoFine,
		"update_settings(lens_remove_fixed=[0:[gamma]])",
		pso, psoFine, psoFine,
	}
	if diff := cmp.Diff(want, describe(r)); diff != "" {
		t.Errorf("galaxy-galaxy recipe mismatch (-want +got):\n%s", diff)
	}

	arcMasks := r.At(2).Update.LikelihoodMasks
	require.Len(t, arcMasks, 1)
	rows, cols := arcMasks[0].Dims()
	assert.Equal(t, 9, rows)
	assert.Equal(t, 9, cols)
	assert.Equal(t, 1.0, arcMasks[0].At(4, 4))

	baselines := r.At(7).Update.LikelihoodMasks
	require.Len(t, baselines, 1)
	assert.Equal(t, 81.0, mat.Sum(baselines[0]))
}

func TestGalaxyGalaxyMinimalModel(t *testing.T) {
	joint := &JointImageData{Bands: []arcmask.Band{{Name: "F160W", Image: blob(9)}}}

	r, err := New(testSettings("SHEAR")).GalaxyGalaxyRecipe(context.Background(), joint)
	require.NoError(t, err)

	// No power law and no shapelets: five joint stages, then the default
	// recipe without slope toggles.
	assert.Equal(t, 21, r.Len())
	assert.Equal(t, 11, r.Count(OpPSO))
	assert.Equal(t, "update_settings(lens_add_fixed=[0:[gamma1 gamma2]])", r.At(9).String())
	assert.Equal(t, "update_settings(lens_remove_fixed=[0:[gamma1 gamma2]])", r.At(14).String())
}

func TestGalaxyGalaxyWithoutPSO(t *testing.T) {
	s := testSettings("SPEMD")
	s.Fitting.PSO = false
	joint := &JointImageData{Bands: []arcmask.Band{{Name: "F160W", Image: blob(9)}}}

	r, err := New(s).Build(context.Background(), NameGalaxyGalaxy, joint)
	require.NoError(t, err)
	assert.Zero(t, r.Len())
}

func TestGalaxyGalaxyBaselineMasks(t *testing.T) {
	s := testSettings("SPEMD")
	s.Mask = &config.MaskSettings{Provided: [][][]float64{
		onesRows(9), onesRows(9),
	}}
	s.Band = []string{"F160W", "F814W"}

	bandMask := mat.NewDense(9, 9, nil)
	bandMask.Set(0, 0, 1)
	joint := &JointImageData{Bands: []arcmask.Band{
		{Name: "F160W", Image: blob(9), Mask: bandMask},
		{Name: "F814W", Image: blob(9)},
	}}

	r, err := New(s).GalaxyGalaxyRecipe(context.Background(), joint)
	require.NoError(t, err)

	var installs [][]*mat.Dense
	for _, ins := range r.Instructions() {
		if ins.Update != nil && ins.Update.LikelihoodMasks != nil {
			installs = append(installs, ins.Update.LikelihoodMasks)
		}
	}
	require.Len(t, installs, 2)

	// Arc masks are ANDed with the baseline.
	assert.LessOrEqual(t, mat.Sum(installs[0][0]), 1.0)

	assert.Same(t, bandMask, installs[1][0])
	assert.Equal(t, 81.0, mat.Sum(installs[1][1]))
}

func TestGalaxyGalaxyMissingImage(t *testing.T) {
	joint := &JointImageData{Bands: []arcmask.Band{{Name: "F160W"}}}

	_, err := New(testSettings("SPEMD")).GalaxyGalaxyRecipe(context.Background(), joint)
	assert.Error(t, err)
}

func TestGalaxyGalaxyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	joint := &JointImageData{Bands: []arcmask.Band{{Name: "F160W", Image: blob(9)}}}

	_, err := New(testSettings("SPEMD")).GalaxyGalaxyRecipe(ctx, joint)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateSnapshot(t *testing.T) {
	s := testSettings("SPEMD")
	s.GuessParams = map[string]map[int]map[string]float64{"lens": {0: {"theta_E": 1}}}
	b := New(s)

	s.Fitting.PSO = false
	s.GuessParams["lens"][0]["theta_E"] = 5

	st := b.State()
	assert.True(t, st.DoPSO)
	assert.Equal(t, SamplerEmcee, st.SamplerType)
	assert.Equal(t, 1.0, st.GuessParams[model.Lens][0]["theta_E"])
}

func onesRows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = 1
		}
	}
	return rows
}
