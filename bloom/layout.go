package bloom

import (
	"fmt"
	"log/slog"
)

const (
	MaxLevels = 9
	// Border is the padding in texels on each side of a raw level.
	Border    = 1
	TapRadius = 2
	TapSize   = 2*TapRadius + 1
	TapCount  = TapSize * TapSize
	// MaxHalfFloat bounds every stored pass output so it stays finite in half float storage.
	MaxHalfFloat float32 = 6.55e4
	// MaxComposite bounds the exposed color before tone mapping.
	MaxComposite float32 = 10.0
)

// Mip is the size of one pyramid level without its border.
type Mip struct {
	Width, Height int
}

func (m Mip) RawWidth() int {
	return m.Width + 2*Border
}

func (m Mip) RawHeight() int {
	return m.Height + 2*Border
}

// Layout describes the pyramid for one frame size.
// Levels at index Count and above are unused and zero, except for Mips[0] which is set
// for any positive frame size, even when Count is 0.
type Layout struct {
	Width, Height int
	Count         int
	// KernelHeight is the reference height of the kernel the filters were derived from.
	KernelHeight int
	Mips         [MaxLevels]Mip
	Filters      [MaxLevels]FilterSet
}

// LevelCount returns the number of pyramid levels for a frame height.
// Heights are halved (rounding up) and every value is a level, up to and including the
// first one at or below 2, capped at MaxLevels. Heights of 2 or less have no pyramid.
func LevelCount(height int) int {
	if height <= 2 {
		return 0
	}
	n := 0
	for h := height; n < MaxLevels; h = halve(h) {
		n++
		if h <= 2 {
			break
		}
	}
	return n
}

func halve(v int) int {
	return (v + 1) / 2
}

// NewLayout computes the layout for the given frame size using the default kernels.
func NewLayout(width, height int) Layout {
	layout, err := NewLayoutWith(width, height, defaultKernels[:])
	if err != nil {
		panic(err)
	}
	return layout
}

// NewLayoutWith computes the layout for the given frame size. The kernel is selected by the
// frame height, not by the per level height.
func NewLayoutWith(width, height int, kernels KernelTable) (Layout, error) {
	if err := kernels.Validate(); err != nil {
		return Layout{}, fmt.Errorf("invalid kernel table: %w", err)
	}

	layout := Layout{
		Width:  width,
		Height: height,
	}
	if width <= 0 || height <= 0 {
		return layout, nil
	}

	// the base level always exists so there is something to render the scene into
	layout.Mips[0] = Mip{Width: width, Height: height}
	layout.Count = LevelCount(height)

	kernel := kernels.Nearest(height)
	layout.KernelHeight = kernel.Height

	w, h := width, height
	for i := 0; i < layout.Count; i++ {
		mip := Mip{Width: w, Height: h}
		layout.Mips[i] = mip
		layout.Filters[i] = kernel.FilterSet(i, mip.RawWidth(), mip.RawHeight())
		w, h = halve(w), halve(h)
	}

	return layout, nil
}

// Equal reports whether both layouts are bit identical.
func (l *Layout) Equal(other *Layout) bool {
	return *l == *other
}

func (l *Layout) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("width", l.Width),
		slog.Int("height", l.Height),
		slog.Int("levels", l.Count),
		slog.Int("kernel", l.KernelHeight),
	)
}
