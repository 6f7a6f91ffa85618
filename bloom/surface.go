package bloom

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"hdr-bloom/libio"
)

// Surface is the drawable interior of a raw base level.
// Coordinates start at the bottom left like the backing image.
type Surface struct {
	raw           *libio.FloatImage
	Width, Height int
}

func newSurface(raw *libio.FloatImage) *Surface {
	return &Surface{
		raw:    raw,
		Width:  raw.Width - 2*Border,
		Height: raw.Height - 2*Border,
	}
}

func (s *Surface) At(x, y int) mgl32.Vec3 {
	r, g, b := s.raw.RGB(x+Border, y+Border)
	return mgl32.Vec3{r, g, b}
}

func (s *Surface) Set(x, y int, c mgl32.Vec3) {
	s.raw.SetRGB(x+Border, y+Border, c[0], c[1], c[2])
}

func (s *Surface) Add(x, y int, c mgl32.Vec3) {
	s.Set(x, y, s.At(x, y).Add(c))
}

// Fill sets every interior texel. The border is left untouched.
func (s *Surface) Fill(c mgl32.Vec3) {
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			s.Set(x, y, c)
		}
	}
}

func (s *Surface) Clear() {
	s.Fill(mgl32.Vec3{})
}

// CopyFrom copies the color channels of an image with the same size as the surface.
func (s *Surface) CopyFrom(img *libio.FloatImage) error {
	if img.Width != s.Width || img.Height != s.Height {
		return fmt.Errorf("image is %dx%d but surface is %dx%d", img.Width, img.Height, s.Width, s.Height)
	}
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			r, g, b := img.RGB(x, y)
			s.raw.SetRGB(x+Border, y+Border, r, g, b)
		}
	}
	return nil
}
