package libio

import (
	goimg "image"

	"github.com/chewxy/math32"
)

const MagicNumberF32 = 0x6d16837d

type FloatImageVersion uint32

const (
	F32Version1_001_000 = FloatImageVersion(1_001_000)
)

type FloatImageCompression uint32

const (
	FloatImageCompressionNone = FloatImageCompression(iota)
	FloatImageCompressionFixedPoint16Lz4
)

type image struct {
	Channels      int
	Width, Height int
}

// Calculates the tuple index into the images data.
//
// Note that the origin (0,0) is in the bottom left, as opposed to Go's top left origin
func (img *image) Index(x, y int) int {
	return x*img.Channels + y*img.Channels*img.Width
}

func (img *image) Count() int {
	return img.Width * img.Height
}

type IntImage struct {
	image
	Pix []uint8
}

func NewIntImage(pix []uint8, channels int, width, height int) *IntImage {
	return &IntImage{
		Pix: pix,
		image: image{
			Channels: channels,
			Width:    width,
			Height:   height,
		},
	}
}

// ToRGBA converts to a Go image, flipping rows so the first row is the top.
func (img *IntImage) ToRGBA() *goimg.RGBA {
	rgba := goimg.NewRGBA(goimg.Rect(0, 0, img.Width, img.Height))

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := img.Index(x, y)
			j := (x + (img.Height-y-1)*img.Width) * 4
			for c := 0; c < img.Channels && c < 4; c++ {
				rgba.Pix[j+c] = img.Pix[i+c]
			}
			if img.Channels == 1 {
				rgba.Pix[j+1] = img.Pix[i]
				rgba.Pix[j+2] = img.Pix[i]
			}
			if img.Channels < 4 {
				rgba.Pix[j+3] = 0xff
			}
		}
	}

	return rgba
}

type FloatImageHeader struct {
	Check         uint32
	Version       FloatImageVersion
	Width, Height uint32
	Channels      uint8
	Compression   FloatImageCompression
	Unused        [14]uint8
}

type FloatImage struct {
	image
	Pix []float32
}

func NewFloatImage(pix []float32, channels int, width, height int) *FloatImage {
	return &FloatImage{
		Pix: pix,
		image: image{
			Channels: channels,
			Width:    width,
			Height:   height,
		},
	}
}

// MakeFloatImage allocates a zeroed image.
func MakeFloatImage(channels int, width, height int) *FloatImage {
	return NewFloatImage(make([]float32, channels*width*height), channels, width, height)
}

func (img *FloatImage) Bytes() int {
	return img.Width * img.Height * img.Channels * 4
}

func (img *FloatImage) Clone() *FloatImage {
	pix := make([]float32, len(img.Pix))
	copy(pix, img.Pix)
	return NewFloatImage(pix, img.Channels, img.Width, img.Height)
}

// RGB returns the first three channels at (x, y). Missing channels read as 0.
func (img *FloatImage) RGB(x, y int) (r, g, b float32) {
	i := img.Index(x, y)
	switch img.Channels {
	case 1:
		return img.Pix[i], img.Pix[i], img.Pix[i]
	case 2:
		return img.Pix[i], img.Pix[i+1], 0
	}
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

func (img *FloatImage) SetRGB(x, y int, r, g, b float32) {
	i := img.Index(x, y)
	img.Pix[i] = r
	if img.Channels > 1 {
		img.Pix[i+1] = g
	}
	if img.Channels > 2 {
		img.Pix[i+2] = b
	}
}

func (img *FloatImage) Fill(values ...float32) {
	for i := 0; i < img.Count(); i++ {
		for c := 0; c < img.Channels && c < len(values); c++ {
			img.Pix[i*img.Channels+c] = values[c]
		}
	}
}

func (img *FloatImage) ToChannels(nr int, defaults ...float32) *FloatImage {
	dst := toChannels(img.Channels, nr, img.Count(), img.Pix, defaults...)

	return NewFloatImage(dst, nr, img.Width, img.Height)
}

func toChannels[P ~[]E, E any](srcCh, dstCh int, count int, pix P, defaults ...E) P {
	if srcCh == dstCh {
		return pix
	}

	if len(defaults) < dstCh {
		defaults = append(defaults, make([]E, dstCh-len(defaults))...)
	}

	dst := make([]E, count*dstCh)

	for i := 0; i < count; i++ {
		for c := 0; c < dstCh; c++ {
			if c < srcCh {
				dst[i*dstCh+c] = pix[i*srcCh+c]
			} else {
				dst[i*dstCh+c] = defaults[c]
			}
		}
	}

	return dst
}

// ToIntImage quantizes to 8 bits. Values are raised to 1/gamma and multiplied by scale
// before clamping to [0, 1]. Display ready data uses gamma 1 and scale 1.
func (img *FloatImage) ToIntImage(gamma, scale float32) *IntImage {
	pix := make([]uint8, len(img.Pix))

	for i := 0; i < len(img.Pix); i++ {
		pix[i] = uint8(tonemap(img.Pix[i], 1.0/gamma, scale)*0xff + 0.5)
	}

	return NewIntImage(pix, img.Channels, img.Width, img.Height)
}

func tonemap(value, gamma, scale float32) float32 {
	if gamma != 1.0 {
		value = math32.Pow(math32.Max(value, 0.0), gamma)
	}
	value *= scale
	return math32.Min(math32.Max(0.0, value), 1.0)
}
