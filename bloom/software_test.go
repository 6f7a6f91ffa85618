package bloom_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"hdr-bloom/bloom"
	"hdr-bloom/libio"
)

func newRenderer(t *testing.T, width, height int) *bloom.SoftwareRenderer {
	t.Helper()
	r, err := bloom.NewSoftwareRenderer(width, height, bloom.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Release)
	return r
}

func randomFrame(width, height int, max float32) *libio.FloatImage {
	rng := rand.New(rand.NewSource(0))
	img := libio.MakeFloatImage(3, width, height)
	for i := range img.Pix {
		img.Pix[i] = rng.Float32() * max
	}
	return img
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s should panic\n", name)
		}
	}()
	fn()
}

func TestDownsampleUniform(t *testing.T) {
	for _, size := range [][2]int{{37, 23}, {64, 64}, {5, 9}, {3, 3}} {
		r := newRenderer(t, size[0], size[1])
		if r.Layout().Count < 2 {
			t.Fatalf("%v should have at least 2 levels\n", size)
		}

		// border included so edge texels see the same color
		r.RawLevel(0).Fill(0.25, 4, 1000)
		r.Downsample(1)

		mip := r.Layout().Mips[1]
		for y := 0; y < mip.Height; y++ {
			for x := 0; x < mip.Width; x++ {
				cr, cg, cb := r.RawLevel(1).RGB(x+bloom.Border, y+bloom.Border)
				if math.Abs(float64(cr-0.25)) > 1e-5 || math.Abs(float64(cg-4)) > 1e-5 || math.Abs(float64(cb-1000)) > 1e-3 {
					t.Errorf("%v texel (%d,%d) should be (0.25,4,1000) but was (%f,%f,%f)\n", size, x, y, cr, cg, cb)
				}
			}
		}
	}
}

func TestDownsampleClamps(t *testing.T) {
	src := libio.MakeFloatImage(3, 6, 6)
	src.Fill(1e30, float32(math.Inf(1)), 1)

	c := bloom.DownsampleTexel(src, 1, 1)
	if c[0] != bloom.MaxHalfFloat || c[1] != bloom.MaxHalfFloat {
		t.Errorf("overflowing texels should clamp to %f but were %v\n", bloom.MaxHalfFloat, c)
	}
}

func TestUpsampleUniform(t *testing.T) {
	src := libio.MakeFloatImage(3, 5, 3)
	src.Fill(2, 0.5, 7)

	for y := 0; y < 6; y++ {
		for x := 0; x < 10; x++ {
			c := bloom.UpsampleTexel(src, x, y)
			if !c.ApproxEqualThreshold(mgl32.Vec3{2, 0.5, 7}, 1e-5) {
				t.Errorf("texel (%d,%d) should be (2,0.5,7) but was %v\n", x, y, c)
			}
		}
	}
}

func TestUpsampleTent(t *testing.T) {
	// a horizontal ramp is reproduced as a finer ramp away from the edges
	src := libio.MakeFloatImage(3, 8, 1)
	for x := 0; x < 8; x++ {
		src.SetRGB(x, 0, float32(x), 0, 0)
	}

	for x := 2; x < 14; x++ {
		should := (float32(x)+0.5)/2 - 0.5
		if c := bloom.UpsampleTexel(src, x, 0); math.Abs(float64(c[0]-should)) > 1e-5 {
			t.Errorf("texel %d should be %f but was %f\n", x, should, c[0])
		}
	}
}

func TestFloorDiv(t *testing.T) {
	cases := [][3]int{{-1, 2, -1}, {0, 2, 0}, {1, 2, 0}, {2, 2, 1}, {-3, 2, -2}, {-4, 2, -2}}
	for _, c := range cases {
		if got := bloom.FloorDiv(c[0], c[1]); got != c[2] {
			t.Errorf("floorDiv(%d,%d) should be %d but was %d\n", c[0], c[1], c[2], got)
		}
	}
}

func TestSampleLinearHalfTexel(t *testing.T) {
	img := libio.MakeFloatImage(3, 4, 1)
	for x := 0; x < 4; x++ {
		img.SetRGB(x, 0, float32(x), 0, 0)
	}

	cases := []struct{ u, should float32 }{
		{0.125, 0},
		{0.25, 0.5},
		{0.375, 1},
		{0, 0},
		{1, 3},
	}
	for _, c := range cases {
		if v := bloom.SampleLinear(img, c.u, 0.5)[0]; math.Abs(float64(v-c.should)) > 1e-6 {
			t.Errorf("sample at %f should be %f but was %f\n", c.u, c.should, v)
		}
	}
}

func TestBlackFrame(t *testing.T) {
	r := newRenderer(t, 64, 48)

	r.Begin()
	r.End(1.0, 1.0, false)

	for i, v := range r.Output().Pix {
		if v != 0 {
			t.Fatalf("value %d should be black but was %f\n", i, v)
		}
	}
}

func TestIntensityZeroIsToneMappedBase(t *testing.T) {
	frame := randomFrame(40, 30, 20)

	for _, highContrast := range []bool{false, true} {
		r := newRenderer(t, 40, 30)

		surface := r.Begin()
		if err := surface.CopyFrom(frame); err != nil {
			t.Fatal(err)
		}
		r.End(0, 1, highContrast)

		params := bloom.CompositeParams{Exposure: 1, HighContrast: highContrast}
		out := r.Output()
		for y := 0; y < 30; y++ {
			for x := 0; x < 40; x++ {
				cr, cg, cb := frame.RGB(x, y)
				should := bloom.Composite(mgl32.Vec3{cr, cg, cb}, mgl32.Vec3{}, params)
				ir, ig, ib := out.RGB(x, y)
				if !should.ApproxEqualThreshold(mgl32.Vec3{ir, ig, ib}, 1e-6) {
					t.Errorf("highContrast=%v pixel (%d,%d) should be %v but was (%f,%f,%f)\n", highContrast, x, y, should, ir, ig, ib)
				}
			}
		}
	}
}

func TestSoftCurveIsReinhard(t *testing.T) {
	// 1 / (1 + 1) = 0.5 before gamma
	should := bloom.GammaEncode(0.5)

	for name, config := range map[string]bloom.Config{"zero": {}, "default": bloom.DefaultConfig()} {
		r, err := bloom.NewSoftwareRenderer(8, 8, config)
		if err != nil {
			t.Fatal(err)
		}
		r.Begin().Fill(mgl32.Vec3{1, 1, 1})
		r.End(0, 1, false)

		for i, v := range r.Output().Pix {
			if math.Abs(float64(v-should)) > 1e-6 {
				t.Fatalf("%s config value %d should be %f but was %f\n", name, i, should, v)
			}
		}
		r.Release()
	}
}

func TestBloomSpreads(t *testing.T) {
	r := newRenderer(t, 64, 64)

	surface := r.Begin()
	surface.Set(32, 32, mgl32.Vec3{1000, 1000, 1000})
	r.End(1, 1, false)

	out := r.Output()
	near, _, _ := out.RGB(34, 32)
	far, _, _ := out.RGB(42, 32)
	corner, _, _ := out.RGB(0, 0)

	if near <= 0 || far <= 0 {
		t.Errorf("bloom should reach neighbours but was near=%f far=%f\n", near, far)
	}
	if far >= near {
		t.Errorf("bloom should fall off with distance but near=%f far=%f\n", near, far)
	}
	if corner >= far {
		t.Errorf("the corner should receive less bloom than (42,32) but was %f\n", corner)
	}
}

func TestDegeneratePyramid(t *testing.T) {
	r := newRenderer(t, 10, 2)
	if r.Layout().Count != 0 {
		t.Fatalf("level count should be 0 but was %d\n", r.Layout().Count)
	}

	surface := r.Begin()
	surface.Fill(mgl32.Vec3{1, 2, 3})
	r.End(1, 1, false)

	should := bloom.Composite(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{}, bloom.CompositeParams{Exposure: 1})
	out := r.Output()
	for y := 0; y < 2; y++ {
		for x := 0; x < 10; x++ {
			cr, cg, cb := out.RGB(x, y)
			if !should.ApproxEqualThreshold(mgl32.Vec3{cr, cg, cb}, 1e-6) {
				t.Errorf("pixel (%d,%d) should be %v but was (%f,%f,%f)\n", x, y, should, cr, cg, cb)
			}
		}
	}
}

func TestTinyFrame(t *testing.T) {
	r := newRenderer(t, 1, 1)
	if r.Layout().Count != 0 {
		t.Fatalf("a 1x1 frame should have no pyramid but had %d levels\n", r.Layout().Count)
	}

	surface := r.Begin()
	surface.Fill(mgl32.Vec3{1, 1, 1})
	r.End(1, 1, false)

	should := bloom.Composite(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{}, bloom.CompositeParams{Exposure: 1})
	if v := r.Output().Pix[0]; math.Abs(float64(v-should[0])) > 1e-6 {
		t.Errorf("pixel should be %f but was %f\n", should[0], v)
	}
}

func TestEmptyFrame(t *testing.T) {
	r := newRenderer(t, 0, 0)
	if surface := r.Begin(); surface != nil {
		t.Error("an empty frame should have no surface")
	}
	r.End(1, 1, false)
	if r.Output() != nil {
		t.Error("an empty frame should have no output")
	}
}

func TestResizeDeterministic(t *testing.T) {
	r := newRenderer(t, 300, 200)

	if err := r.Resize(1280, 720); err != nil {
		t.Fatal(err)
	}
	a := r.Layout()
	if err := r.Resize(1280, 720); err != nil {
		t.Fatal(err)
	}
	b := r.Layout()

	if !a.Equal(&b) {
		t.Error("resizing twice to the same size should produce identical filter sets")
	}
	if r.Output().Width != 1280 || r.Output().Height != 720 {
		t.Errorf("output should be 1280x720 but was %dx%d\n", r.Output().Width, r.Output().Height)
	}
}

func TestRenderMatchesBeginEnd(t *testing.T) {
	frame := randomFrame(33, 17, 5)
	params := bloom.CompositeParams{Intensity: 0.3, Exposure: 1.5, HighContrast: true}

	a := newRenderer(t, 1, 1)
	rendered, err := a.Render(frame, params)
	if err != nil {
		t.Fatal(err)
	}

	b := newRenderer(t, 33, 17)
	if err := b.Begin().CopyFrom(frame); err != nil {
		t.Fatal(err)
	}
	b.EndWith(params)

	for i := range rendered.Pix {
		if rendered.Pix[i] != b.Output().Pix[i] {
			t.Fatalf("value %d should be %f but was %f\n", i, b.Output().Pix[i], rendered.Pix[i])
		}
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	frame := randomFrame(50, 40, 30)
	params := bloom.CompositeParams{Intensity: 0.5, Exposure: 1}

	single := newRenderer(t, 50, 40)
	single.Workers = 1
	a, err := single.Render(frame, params)
	if err != nil {
		t.Fatal(err)
	}

	many := newRenderer(t, 50, 40)
	many.Workers = 7
	b, err := many.Render(frame, params)
	if err != nil {
		t.Fatal(err)
	}

	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("value %d differs: %f != %f\n", i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestFrameOrder(t *testing.T) {
	r := newRenderer(t, 8, 8)

	expectPanic(t, "End without Begin", func() { r.End(1, 1, false) })

	r.Begin()
	expectPanic(t, "Begin twice", func() { r.Begin() })
	expectPanic(t, "Resize during a frame", func() { _ = r.Resize(16, 16) })
	r.End(1, 1, false)

	if r.Frames() != 1 {
		t.Errorf("one frame should be counted but was %d\n", r.Frames())
	}
	if err := r.Resize(16, 16); err != nil {
		t.Errorf("Resize between frames should work: %v\n", err)
	}

	r.Release()
	r.Release()
	expectPanic(t, "Begin after Release", func() { r.Begin() })
	expectPanic(t, "Resize after Release", func() { _ = r.Resize(8, 8) })
}
