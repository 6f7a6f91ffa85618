package effects

import (
	"hdr-bloom/bloom"
	"hdr-bloom/libio"

	"github.com/go-gl/gl/v4.5-core/gl"
)

// UploadBase writes img into the interior of the base level, the border is written as zero.
func (effect *BloomEffect) UploadBase(img *libio.FloatImage) {
	raw := effect.raw[0]
	padded := libio.MakeFloatImage(3, raw.Width(), raw.Height())
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b := img.RGB(x, y)
			padded.SetRGB(x+bloom.Border, y+bloom.Border, r, g, b)
		}
	}
	raw.Load(0, raw.Width(), raw.Height(), gl.RGB, padded.Pix)
}

func (effect *BloomEffect) ReadRaw(level int) *libio.FloatImage {
	raw := effect.raw[level]
	img := libio.MakeFloatImage(3, raw.Width(), raw.Height())
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	raw.Read(0, gl.RGB, img.Pix)
	return img
}
