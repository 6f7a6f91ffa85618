package effects_test

import (
	"math"
	"math/rand"
	"testing"

	"hdr-bloom/bloom"
	"hdr-bloom/effects"
	"hdr-bloom/libgl"
	"hdr-bloom/libio"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

func randomFrame(width, height int, max float32) *libio.FloatImage {
	rng := rand.New(rand.NewSource(0))
	img := libio.MakeFloatImage(3, width, height)
	for i := range img.Pix {
		img.Pix[i] = rng.Float32() * max
	}
	return img
}

// offscreen is a float target the composite can be read back from.
type offscreen struct {
	texture     libgl.UnboundTexture
	framebuffer libgl.UnboundFramebuffer
}

func newOffscreen(width, height int) (*offscreen, error) {
	tex := libgl.NewTexture(gl.TEXTURE_2D)
	tex.Allocate(1, gl.RGBA32F, width, height)
	fbo := libgl.NewFramebuffer()
	fbo.AttachTexture(0, tex)
	fbo.BindTargets(0)
	if err := fbo.Check(gl.DRAW_FRAMEBUFFER); err != nil {
		fbo.Delete()
		tex.Delete()
		return nil, err
	}
	return &offscreen{texture: tex, framebuffer: fbo}, nil
}

func (o *offscreen) read() *libio.FloatImage {
	img := libio.MakeFloatImage(3, o.texture.Width(), o.texture.Height())
	o.texture.Read(0, gl.RGB, img.Pix)
	return img
}

func (o *offscreen) Delete() {
	o.framebuffer.Delete()
	o.texture.Delete()
}

// renderGl runs one frame of frame through a new effect and returns the composited image.
func renderGl(t *testing.T, frame *libio.FloatImage, params bloom.CompositeParams) (result *libio.FloatImage, layout bloom.Layout) {
	t.Helper()
	var err error
	runOnMain(t, func() {
		var effect *effects.BloomEffect
		effect, err = effects.NewBloomEffect(frame.Width, frame.Height, bloom.DefaultConfig())
		if err != nil {
			return
		}
		defer effect.Release()

		var target *offscreen
		target, err = newOffscreen(frame.Width, frame.Height)
		if err != nil {
			return
		}
		defer target.Delete()
		effect.Target = target.framebuffer

		effect.Begin()
		effect.UploadBase(frame)
		effect.EndWith(params)

		result = target.read()
		layout = effect.Layout()
		if code := gl.GetError(); code != gl.NO_ERROR {
			t.Errorf("GL error 0x%x\n", code)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	return
}

func renderSoftware(t *testing.T, frame *libio.FloatImage, params bloom.CompositeParams) *libio.FloatImage {
	t.Helper()
	r, err := bloom.NewSoftwareRenderer(frame.Width, frame.Height, bloom.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	out, err := r.Render(frame, params)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func compareImages(t *testing.T, is, should *libio.FloatImage, tolerance float64) {
	t.Helper()
	if is.Width != should.Width || is.Height != should.Height {
		t.Fatalf("size should be %dx%d but was %dx%d\n", should.Width, should.Height, is.Width, is.Height)
	}
	worst, worstIndex := 0.0, 0
	for i := range should.Pix {
		if d := math.Abs(float64(is.Pix[i] - should.Pix[i])); d > worst {
			worst, worstIndex = d, i
		}
	}
	if worst > tolerance {
		t.Errorf("value %d should be %f but was %f (tolerance %f)\n", worstIndex, should.Pix[worstIndex], is.Pix[worstIndex], tolerance)
	}
}

func TestMatchesSoftwareRenderer(t *testing.T) {
	frame := randomFrame(96, 54, 4)
	// a few bright spots so the pyramid carries energy
	frame.SetRGB(10, 10, 500, 400, 300)
	frame.SetRGB(70, 40, 50, 900, 50)

	for _, params := range []bloom.CompositeParams{
		{Intensity: 0.15, Exposure: 1},
		{Intensity: 0.8, Exposure: 0.5, HighContrast: true},
		{Intensity: 0.5, Exposure: 2, Curve: bloom.CurveExponential},
	} {
		is, layout := renderGl(t, frame, params)
		if layout.Count != bloom.LevelCount(54) {
			t.Errorf("level count should be %d but was %d\n", bloom.LevelCount(54), layout.Count)
		}
		should := renderSoftware(t, frame, params)
		// half float targets
		compareImages(t, is, should, 0.02)
	}
}

func TestIntensityZeroGl(t *testing.T) {
	frame := randomFrame(33, 21, 12)
	params := bloom.CompositeParams{Intensity: 0, Exposure: 1}

	is, _ := renderGl(t, frame, params)
	should := libio.MakeFloatImage(3, frame.Width, frame.Height)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			r, g, b := frame.RGB(x, y)
			c := bloom.Composite(mgl32.Vec3{r, g, b}, mgl32.Vec3{}, params)
			should.SetRGB(x, y, c[0], c[1], c[2])
		}
	}
	compareImages(t, is, should, 0.01)
}

func TestDegenerateSizeGl(t *testing.T) {
	frame := randomFrame(17, 2, 3)
	is, layout := renderGl(t, frame, bloom.CompositeParams{Intensity: 1, Exposure: 1})
	if layout.Count != 0 {
		t.Errorf("level count should be 0 but was %d\n", layout.Count)
	}
	should := renderSoftware(t, frame, bloom.CompositeParams{Intensity: 1, Exposure: 1})
	compareImages(t, is, should, 0.01)
}

func TestBorderStaysZero(t *testing.T) {
	var border []float32
	var err error
	runOnMain(t, func() {
		var effect *effects.BloomEffect
		effect, err = effects.NewBloomEffect(40, 30, bloom.DefaultConfig())
		if err != nil {
			return
		}
		defer effect.Release()

		for i := 0; i < 2; i++ {
			effect.Begin()
			libgl.GlState.ClearColor(1, 2, 3, 1)
			gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
			effect.End(0.5, 1, false)
		}
		libgl.GlState.ClearColor(0, 0, 0, 0)

		for level := 0; level < effect.Layout().Count; level++ {
			raw := effect.ReadRaw(level)
			for y := 0; y < raw.Height; y++ {
				for x := 0; x < raw.Width; x++ {
					if x != 0 && y != 0 && x != raw.Width-1 && y != raw.Height-1 {
						continue
					}
					r, g, b := raw.RGB(x, y)
					border = append(border, r, g, b)
				}
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range border {
		if v != 0 {
			t.Fatalf("border value %d should be 0 but was %f\n", i, v)
		}
	}
}

func TestFrameOrderGl(t *testing.T) {
	var panicked []bool
	var err error
	try := func(fn func()) (p bool) {
		defer func() { p = recover() != nil }()
		fn()
		return
	}

	runOnMain(t, func() {
		var effect *effects.BloomEffect
		effect, err = effects.NewBloomEffect(16, 16, bloom.DefaultConfig())
		if err != nil {
			return
		}
		panicked = append(panicked, try(func() { effect.End(1, 1, false) }))
		effect.Begin()
		panicked = append(panicked, try(func() { _ = effect.Resize(32, 32) }))
		effect.End(1, 1, false)
		effect.Release()
		effect.Release()
		panicked = append(panicked, try(func() { effect.Begin() }))
	})
	if err != nil {
		t.Fatal(err)
	}

	for i, p := range panicked {
		if !p {
			t.Errorf("misuse %d should panic\n", i)
		}
	}
}
