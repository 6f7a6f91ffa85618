package clbloom_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"hdr-bloom/bloom"
	"hdr-bloom/clbloom"
	"hdr-bloom/libio"
)

func newRenderer(t *testing.T, width, height int) *clbloom.Renderer {
	t.Helper()
	r, err := clbloom.NewRenderer(clbloom.DeviceTypeCPU, width, height, bloom.DefaultConfig())
	if errors.Is(err, clbloom.ErrNoDevice) {
		t.Skip(err)
	}
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
	for i := range should.Pix {
		if d := math.Abs(float64(is.Pix[i] - should.Pix[i])); d > tolerance {
			t.Fatalf("value %d should be %f but was %f\n", i, should.Pix[i], is.Pix[i])
		}
	}
}

func TestMatchesSoftwareRenderer(t *testing.T) {
	frame := randomFrame(80, 45, 3)
	frame.SetRGB(20, 20, 300, 200, 100)
	frame.SetRGB(79, 44, 2000, 2000, 2000)

	r := newRenderer(t, frame.Width, frame.Height)
	t.Logf("running on %v\n", r.DeviceName())

	for _, params := range []bloom.CompositeParams{
		{Intensity: 0.15, Exposure: 1},
		{Intensity: 1, Exposure: 0.25, HighContrast: true},
		{Intensity: 0.4, Exposure: 3, Curve: bloom.CurveExponential},
	} {
		is, err := r.Render(frame, params)
		if err != nil {
			t.Fatal(err)
		}
		compareImages(t, is, renderSoftware(t, frame, params), 1e-3)
	}
}

func TestRenderResizes(t *testing.T) {
	r := newRenderer(t, 16, 16)

	for _, size := range [][2]int{{31, 17}, {7, 2}, {4, 4}, {0, 0}} {
		frame := randomFrame(size[0], size[1], 5)
		params := bloom.CompositeParams{Intensity: 0.5, Exposure: 1}
		is, err := r.Render(frame, params)
		if err != nil {
			t.Fatal(err)
		}
		if r.Layout().Count != bloom.NewLayout(size[0], size[1]).Count {
			t.Errorf("%v: level count should be %d but was %d\n", size, bloom.NewLayout(size[0], size[1]).Count, r.Layout().Count)
		}
		compareImages(t, is, renderSoftware(t, frame, params), 1e-3)
	}
}

func TestRepeatedFramesAreStable(t *testing.T) {
	frame := randomFrame(40, 24, 50)
	r := newRenderer(t, frame.Width, frame.Height)
	params := bloom.CompositeParams{Intensity: 0.3, Exposure: 1}

	first, err := r.Render(frame, params)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Render(frame, params)
	if err != nil {
		t.Fatal(err)
	}
	compareImages(t, second, first, 0)
	if r.Frames() != 2 {
		t.Errorf("frame count should be 2 but was %d\n", r.Frames())
	}
}

func TestReleaseTwice(t *testing.T) {
	r := newRenderer(t, 8, 8)
	r.Release()
	r.Release()
}
