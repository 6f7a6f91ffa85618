package bloom

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"hdr-bloom/libio"
)

// SoftwareRenderer runs the bloom passes on float32 images.
// It keeps the same pyramid as the GPU implementation, so it doubles as its reference.
type SoftwareRenderer struct {
	FrameState
	Config Config
	// Workers limits how many goroutines split the rows of a pass. Zero means GOMAXPROCS.
	Workers int

	layout   Layout
	raw      [MaxLevels]*libio.FloatImage
	filtered [MaxLevels]*libio.FloatImage
	output   *libio.FloatImage
}

func NewSoftwareRenderer(width, height int, config Config) (*SoftwareRenderer, error) {
	r := &SoftwareRenderer{Config: config}
	if err := r.Resize(width, height); err != nil {
		return nil, err
	}
	Logger().Info("software bloom renderer created", "layout", &r.layout)
	return r, nil
}

// Resize replaces every level with zeroed images sized for width by height.
func (r *SoftwareRenderer) Resize(width, height int) error {
	r.CheckResize()

	layout, err := NewLayoutWith(width, height, r.Config.KernelTable())
	if err != nil {
		return fmt.Errorf("could not compute bloom layout: %w", err)
	}

	r.raw = [MaxLevels]*libio.FloatImage{}
	r.filtered = [MaxLevels]*libio.FloatImage{}
	r.output = nil

	if base := layout.Mips[0]; base.Width > 0 {
		r.raw[0] = libio.MakeFloatImage(3, base.RawWidth(), base.RawHeight())
		r.output = libio.MakeFloatImage(3, base.Width, base.Height)
	}
	for i := 1; i < layout.Count; i++ {
		mip := layout.Mips[i]
		r.raw[i] = libio.MakeFloatImage(3, mip.RawWidth(), mip.RawHeight())
		r.filtered[i] = libio.MakeFloatImage(3, mip.Width, mip.Height)
	}

	r.layout = layout
	Logger().Debug("bloom pyramid resized", "layout", &r.layout)
	return nil
}

func (r *SoftwareRenderer) Layout() Layout {
	return r.layout
}

// Begin opens a frame and returns the surface the scene is drawn into.
// The surface keeps the contents of the previous frame. It is nil for an empty frame size.
func (r *SoftwareRenderer) Begin() *Surface {
	r.BeginFrame()
	if r.raw[0] == nil {
		return nil
	}
	return newSurface(r.raw[0])
}

// End runs all passes and writes the display ready frame to Output.
// The tone curve is taken from Config.
func (r *SoftwareRenderer) End(intensity, exposure float32, highContrast bool) {
	r.EndWith(CompositeParams{
		Intensity:    intensity,
		Exposure:     exposure,
		HighContrast: highContrast,
		Curve:        r.Config.Curve,
	})
}

func (r *SoftwareRenderer) EndWith(params CompositeParams) {
	r.EndFrame()
	if r.raw[0] == nil {
		return
	}

	n := r.layout.Count
	for level := 1; level < n; level++ {
		r.downsample(level)
	}
	for level := 1; level < n; level++ {
		r.filter(level)
	}
	for level := n - 2; level >= 1; level-- {
		r.upsample(level)
	}
	r.composite(params)

	Logger().Debug("bloom frame rendered", "frame", r.Frames(), "levels", n)
}

// Output is the last composited frame. It is overwritten by the next End.
func (r *SoftwareRenderer) Output() *libio.FloatImage {
	return r.output
}

// Render draws frame as the scene and returns a copy of the composited result.
func (r *SoftwareRenderer) Render(frame *libio.FloatImage, params CompositeParams) (*libio.FloatImage, error) {
	if frame.Width != r.layout.Width || frame.Height != r.layout.Height {
		if err := r.Resize(frame.Width, frame.Height); err != nil {
			return nil, err
		}
	}

	surface := r.Begin()
	if surface != nil {
		if err := surface.CopyFrom(frame); err != nil {
			r.EndFrame()
			return nil, err
		}
	}
	r.EndWith(params)

	if r.output == nil {
		return libio.MakeFloatImage(3, 0, 0), nil
	}
	return r.output.Clone(), nil
}

func (r *SoftwareRenderer) Release() {
	if !r.MarkReleased() {
		return
	}
	r.raw = [MaxLevels]*libio.FloatImage{}
	r.filtered = [MaxLevels]*libio.FloatImage{}
	r.output = nil
}

func (r *SoftwareRenderer) downsample(level int) {
	src, dst := r.raw[level-1], r.raw[level]
	mip := r.layout.Mips[level]
	r.forRows(mip.Height, func(y int) {
		for x := 0; x < mip.Width; x++ {
			c := DownsampleTexel(src, x, y)
			dst.SetRGB(x+Border, y+Border, c[0], c[1], c[2])
		}
	})
}

func (r *SoftwareRenderer) filter(level int) {
	src, dst := r.raw[level], r.filtered[level]
	fs := &r.layout.Filters[level]
	r.forRows(dst.Height, func(y int) {
		for x := 0; x < dst.Width; x++ {
			c := FilterTexel(src, fs, x, y)
			dst.SetRGB(x, y, c[0], c[1], c[2])
		}
	})
}

// upsample adds the next coarser level into level, the equivalent of additive blending.
func (r *SoftwareRenderer) upsample(level int) {
	src, dst := r.filtered[level+1], r.filtered[level]
	r.forRows(dst.Height, func(y int) {
		for x := 0; x < dst.Width; x++ {
			c := Texel(dst, x, y).Add(UpsampleTexel(src, x, y))
			c = clampHalf3(c)
			dst.SetRGB(x, y, c[0], c[1], c[2])
		}
	})
}

func (r *SoftwareRenderer) composite(params CompositeParams) {
	base, dst := r.raw[0], r.output

	var fs *FilterSet
	if r.layout.Count > 0 {
		fs = &r.layout.Filters[0]
	} else {
		// without a pyramid the base is tone mapped as is
		params.Intensity = 0
	}
	pyramid := r.filtered[1]

	r.forRows(dst.Height, func(y int) {
		for x := 0; x < dst.Width; x++ {
			bloom := BloomTexel(base, fs, pyramid, x, y)
			c := Composite(Texel(base, x+Border, y+Border), bloom, params)
			dst.SetRGB(x, y, c[0], c[1], c[2])
		}
	})
}

// forRows runs fn for every row in [0, rows), split into contiguous chunks across goroutines.
// It returns once all rows are done.
func (r *SoftwareRenderer) forRows(rows int, fn func(y int)) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (rows + workers - 1) / workers
	if chunk < 1 {
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < rows; start += chunk {
		start, end := start, min(start+chunk, rows)
		g.Go(func() error {
			for y := start; y < end; y++ {
				fn(y)
			}
			return nil
		})
	}
	_ = g.Wait()
}
