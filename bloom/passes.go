package bloom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"hdr-bloom/libio"
)

// Per axis weights of the 4x4 reduction.
var downsampleWeights = [4]float32{1.0 / 8.0, 3.0 / 8.0, 3.0 / 8.0, 1.0 / 8.0}

// Tent weights for the four source texels (x0,y0), (x1,y0), (x0,y1), (x1,y1),
// indexed by x%2 + 2*(y%2) of the output texel.
var upsampleWeights = [4][4]float32{
	{1.0 / 16.0, 3.0 / 16.0, 3.0 / 16.0, 9.0 / 16.0},
	{3.0 / 16.0, 1.0 / 16.0, 9.0 / 16.0, 3.0 / 16.0},
	{3.0 / 16.0, 9.0 / 16.0, 1.0 / 16.0, 3.0 / 16.0},
	{9.0 / 16.0, 3.0 / 16.0, 3.0 / 16.0, 1.0 / 16.0},
}

// Texel fetches with clamp to edge addressing.
func Texel(img *libio.FloatImage, x, y int) mgl32.Vec3 {
	x = min(max(x, 0), img.Width-1)
	y = min(max(y, 0), img.Height-1)
	r, g, b := img.RGB(x, y)
	return mgl32.Vec3{r, g, b}
}

// SampleLinear filters bilinearly at normalized coordinates with clamp to edge addressing.
func SampleLinear(img *libio.FloatImage, u, v float32) mgl32.Vec3 {
	tx := u*float32(img.Width) - 0.5
	ty := v*float32(img.Height) - 0.5
	fx, fy := math32.Floor(tx), math32.Floor(ty)
	x0, y0 := int(fx), int(fy)
	ax, ay := tx-fx, ty-fy

	c00 := Texel(img, x0, y0)
	c10 := Texel(img, x0+1, y0)
	c01 := Texel(img, x0, y0+1)
	c11 := Texel(img, x0+1, y0+1)

	bottom := c00.Mul(1 - ax).Add(c10.Mul(ax))
	top := c01.Mul(1 - ax).Add(c11.Mul(ax))
	return bottom.Mul(1 - ay).Add(top.Mul(ay))
}

// DownsampleTexel computes interior texel (x, y) of a raw level from the raw level above it.
func DownsampleTexel(src *libio.FloatImage, x, y int) mgl32.Vec3 {
	var color mgl32.Vec3
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			w := downsampleWeights[i] * downsampleWeights[j]
			color = color.Add(Texel(src, 2*x+i, 2*y+j).Mul(w))
		}
	}
	return clampHalf3(color)
}

// FilterTexel convolves the raw level src around interior texel (x, y).
func FilterTexel(src *libio.FloatImage, fs *FilterSet, x, y int) mgl32.Vec3 {
	return clampHalf3(filterSum(src, fs, x, y))
}

func filterSum(src *libio.FloatImage, fs *FilterSet, x, y int) mgl32.Vec3 {
	var color mgl32.Vec3
	for i := range fs {
		dx, dy, w := fs.Tap(i)
		color = color.Add(Texel(src, x+Border+dx, y+Border+dy).Mul(w))
	}
	return color
}

// UpsampleTexel interpolates texel (x, y) of a filtered level from the next coarser filtered level.
func UpsampleTexel(src *libio.FloatImage, x, y int) mgl32.Vec3 {
	x0, y0 := floorDiv(x-1, 2), floorDiv(y-1, 2)
	w := upsampleWeights[x%2+2*(y%2)]

	color := Texel(src, x0, y0).Mul(w[0])
	color = color.Add(Texel(src, x0+1, y0).Mul(w[1]))
	color = color.Add(Texel(src, x0, y0+1).Mul(w[2]))
	color = color.Add(Texel(src, x0+1, y0+1).Mul(w[3]))
	return clampHalf3(color)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// BloomTexel is the bloom color at output pixel (x, y): the base level taps plus the accumulated
// pyramid sampled at half resolution. Either source may be nil.
func BloomTexel(base *libio.FloatImage, fs *FilterSet, pyramid *libio.FloatImage, x, y int) mgl32.Vec3 {
	var color mgl32.Vec3
	if pyramid != nil {
		u := 0.5 * (float32(x) + 0.5) / float32(pyramid.Width)
		v := 0.5 * (float32(y) + 0.5) / float32(pyramid.Height)
		color = SampleLinear(pyramid, u, v)
	}
	if fs != nil {
		color = color.Add(filterSum(base, fs, x, y))
	}
	return color
}
