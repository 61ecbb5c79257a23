package fit

import (
	"math"

	"github.com/cwbudde/lensrecipe/internal/model"
)

// Sersic is an elliptical Sérsic light profile in angular coordinates.
type Sersic struct {
	Amp     float64
	RSersic float64 // half-light radius in arcsec
	NSersic float64
	CenterX float64
	CenterY float64
	E1, E2  float64
}

// SersicFromParams reads a SERSIC_ELLIPSE parameter set.
func SersicFromParams(p model.ParamSet) Sersic {
	return Sersic{
		Amp:     p["amp"],
		RSersic: p["R_sersic"],
		NSersic: p["n_sersic"],
		CenterX: p["center_x"],
		CenterY: p["center_y"],
		E1:      p["e1"],
		E2:      p["e2"],
	}
}

// sersicB approximates b(n) so that RSersic encloses half the light.
func sersicB(n float64) float64 {
	return 1.9992*n - 0.3271
}

// Eval returns the surface brightness at (x, y).
func (s Sersic) Eval(x, y float64) float64 {
	if s.RSersic <= 0 || s.NSersic <= 0 {
		return 0
	}

	// Ellipticity (e1, e2) -> axis ratio q and position angle phi.
	phi := math.Atan2(s.E2, s.E1) / 2
	c := math.Min(math.Hypot(s.E1, s.E2), 0.9999)
	q := (1 - c) / (1 + c)

	dx, dy := x-s.CenterX, y-s.CenterY
	cos, sin := math.Cos(phi), math.Sin(phi)
	xt := cos*dx + sin*dy
	yt := -sin*dx + cos*dy
	r := math.Sqrt(q*xt*xt + yt*yt/q)

	b := sersicB(s.NSersic)
	return s.Amp * math.Exp(-b*(math.Pow(r/s.RSersic, 1/s.NSersic)-1))
}
