package bloom

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const Gamma float32 = 2.2

// Curve selects the tone curve used when high contrast is off.
type Curve int

const (
	// CurveReinhard maps c to c / (1 + c).
	CurveReinhard = Curve(iota)
	// CurveExponential maps c to 1 - exp(-c).
	CurveExponential
)

func (c Curve) String() string {
	switch c {
	case CurveReinhard:
		return "reinhard"
	case CurveExponential:
		return "exp"
	}
	return fmt.Sprintf("Curve(%d)", int(c))
}

func ParseCurve(s string) (Curve, error) {
	switch s {
	case "exp", "exponential":
		return CurveExponential, nil
	case "reinhard":
		return CurveReinhard, nil
	}
	return 0, fmt.Errorf("unknown tone curve %q", s)
}

func ToneMapExponential(c float32) float32 {
	return 1.0 - math32.Exp(-c)
}

func ToneMapReinhard(c float32) float32 {
	return c / (1.0 + c)
}

// ToneMapACES is the Narkowicz fit of the ACES filmic curve.
func ToneMapACES(c float32) float32 {
	const (
		A = 2.51
		B = 0.03
		C = 2.43
		D = 0.59
		E = 0.14
	)
	return (c * (A*c + B)) / (c*(C*c+D) + E)
}

func GammaEncode(c float32) float32 {
	return math32.Pow(math32.Max(c, 0), 1.0/Gamma)
}

// ClampHalf bounds v to the finite half float range. NaN becomes 0.
func ClampHalf(v float32) float32 {
	if v != v {
		return 0
	}
	return mgl32.Clamp(v, -MaxHalfFloat, MaxHalfFloat)
}

func clampHalf3(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{ClampHalf(v[0]), ClampHalf(v[1]), ClampHalf(v[2])}
}

type CompositeParams struct {
	Intensity    float32
	Exposure     float32
	HighContrast bool
	Curve        Curve
}

// Composite blends the bloom into the base color and maps the result to display range.
func Composite(base, bloom mgl32.Vec3, p CompositeParams) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := range out {
		c := (base[i]*(1-p.Intensity) + bloom[i]*p.Intensity) * p.Exposure
		if c != c {
			c = 0
		}
		c = mgl32.Clamp(c, 0, MaxComposite)

		switch {
		case p.HighContrast:
			c = ToneMapACES(c)
		case p.Curve == CurveExponential:
			c = ToneMapExponential(c)
		default:
			c = ToneMapReinhard(c)
		}

		out[i] = mgl32.Clamp(GammaEncode(c), 0, 1)
	}
	return out
}
