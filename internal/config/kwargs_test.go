package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestKwargsModel(t *testing.T) {
	s := loadFull(t)
	kw := s.KwargsModel()

	assert.Equal(t, []string{"SPEMD", "SHEAR_GAMMA_PSI"}, kw["lens_model_list"])
	assert.Equal(t, []string{}, kw["point_source_model_list"])
	assert.Equal(t, 0.5, kw["z_lens"])

	empty := (&Settings{}).KwargsModel()
	assert.Equal(t, []string{}, empty["lens_light_model_list"])
}

func TestKwargsConstraints(t *testing.T) {
	s := &Settings{Model: ModelSettings{
		SourceLight: []string{"SERSIC_ELLIPSE", "SHAPELETS", "SHAPELETS"},
		LensLight:   []string{"SERSIC_ELLIPSE"},
		PointSource: []string{"LENSED_POSITION", "SOURCE_POSITION"},
	}}
	c := s.KwargsConstraints()

	assert.Equal(t, []Join{
		{From: 0, To: 1, Params: []string{"center_x", "center_y"}},
		{From: 0, To: 2, Params: []string{"center_x", "center_y"}},
	}, c.JointSourceWithSource)
	assert.Empty(t, c.JointLensLightWithLensLight)
	assert.NotNil(t, c.JointLensLightWithLensLight)
	assert.Len(t, c.JointSourceWithPointSource, 3)

	s.Model.PointSource = s.Model.PointSource[:1]
	assert.Empty(t, s.KwargsConstraints().JointSourceWithPointSource)
}

func TestKwargsLikelihood(t *testing.T) {
	s := loadFull(t)
	l, err := s.KwargsLikelihood()
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true}, l.BandsCompute)
	assert.True(t, l.CheckBounds)
	assert.True(t, l.CheckPositiveFlux)
	assert.Nil(t, l.ImageLikelihoodMaskList)

	_, err = (&Settings{}).KwargsLikelihood()
	assert.ErrorIs(t, err, ErrNoBands)
}

func TestKwargsNumerics(t *testing.T) {
	s := loadFull(t)
	n, err := s.KwargsNumerics()
	require.NoError(t, err)
	require.Len(t, n, 2)

	assert.Equal(t, 1, n[0].SupersamplingFactor)
	assert.Equal(t, 3, n[1].SupersamplingFactor)
	assert.Equal(t, "regular", n[1].ComputeMode)
}

func TestProvidedMasks(t *testing.T) {
	s := &Settings{
		Band: []string{"g"},
		Mask: &MaskSettings{Provided: [][][]float64{{{1, 0}, {0, 1}}}},
	}
	masks, err := s.Masks()
	require.NoError(t, err)
	require.Len(t, masks, 1)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), masks[0]))

	s.Mask.Provided = [][][]float64{{{1, 0}, {1}}}
	_, err = s.Masks()
	assert.Error(t, err)

	s.Mask.Provided = [][][]float64{{}}
	_, err = s.Masks()
	assert.Error(t, err)
}

func TestCircularMasks(t *testing.T) {
	s := &Settings{
		Band: []string{"g"},
		Mask: &MaskSettings{
			RaAtXY0:         []float64{-0.2},
			DecAtXY0:        []float64{-0.2},
			TransformMatrix: [][][]float64{{{0.1, 0}, {0, 0.1}}},
			Size:            []int{5},
			Radius:          []float64{0.12},
		},
	}
	masks, err := s.Masks()
	require.NoError(t, err)
	require.Len(t, masks, 1)

	m := masks[0]
	r, c := m.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 5, c)
	assert.Equal(t, 5.0, mat.Sum(m))
	assert.Equal(t, 1.0, m.At(2, 2))
	assert.Equal(t, 1.0, m.At(1, 2))
	assert.Equal(t, 0.0, m.At(1, 1))

	s.Mask.TransformMatrix = [][][]float64{{{0.1, 0}}}
	_, err = s.Masks()
	assert.Error(t, err)
}

func TestMasksUnset(t *testing.T) {
	masks, err := (&Settings{Band: []string{"g"}}).Masks()
	require.NoError(t, err)
	assert.Nil(t, masks)
}

func TestMaskOptionsTooShort(t *testing.T) {
	s := &Settings{
		Band: []string{"g", "r"},
		Mask: &MaskSettings{Size: []int{5}},
	}
	_, err := s.Masks()
	assert.Error(t, err)
}

func TestPixelGrid(t *testing.T) {
	s := &Settings{PixelSize: 0.1}
	g := s.PixelGrid(0, 5, 7)

	ra, dec := g.Coord(3, 2)
	assert.InDelta(t, 0, ra, 1e-12)
	assert.InDelta(t, 0, dec, 1e-12)

	ra, dec = g.Coord(0, 0)
	assert.InDelta(t, -0.3, ra, 1e-12)
	assert.InDelta(t, -0.2, dec, 1e-12)

	s.Mask = &MaskSettings{
		RaAtXY0:         []float64{1},
		DecAtXY0:        []float64{2},
		TransformMatrix: [][][]float64{{{0, 0.05}, {0.05, 0}}},
	}
	g = s.PixelGrid(0, 5, 7)
	ra, dec = g.Coord(2, 4)
	assert.InDelta(t, 1.2, ra, 1e-12)
	assert.InDelta(t, 2.1, dec, 1e-12)

	// Bands without a configured grid fall back to the pixel size.
	g = s.PixelGrid(1, 5, 7)
	assert.Equal(t, [2][2]float64{{0.1, 0}, {0, 0.1}}, g.Transform)
}
