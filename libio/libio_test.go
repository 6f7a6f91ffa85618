package libio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/png"
	"math"
	"math/rand"
	"testing"

	"hdr-bloom/libio"
)

func randomImage(channels, width, height int, min, max float32) *libio.FloatImage {
	rng := rand.New(rand.NewSource(0))
	img := libio.MakeFloatImage(channels, width, height)
	for i := range img.Pix {
		img.Pix[i] = rng.Float32()*(max-min) + min
	}
	return img
}

func TestFloatImageUncompressed(t *testing.T) {
	img := randomImage(4, 13, 7, -5, 100)

	buf := bytes.NewBuffer(nil)
	if err := libio.EncodeFloatImage(buf, img, libio.FloatImageCompressionNone); err != nil {
		t.Fatal(err)
	}

	result, err := libio.DecodeFloatImage(buf)
	if err != nil {
		t.Fatal(err)
	}

	if result.Width != img.Width || result.Height != img.Height || result.Channels != img.Channels {
		t.Fatalf("Decoded size should be %dx%dx%d but was %dx%dx%d\n", img.Width, img.Height, img.Channels, result.Width, result.Height, result.Channels)
	}

	for i := range img.Pix {
		if result.Pix[i] != img.Pix[i] {
			t.Errorf("Decoded value %d should be %f but was %f\n", i, img.Pix[i], result.Pix[i])
		}
	}
}

func TestFloatImageBinaryStreams(t *testing.T) {
	img := randomImage(3, 11, 6, 0, 20)

	for _, compression := range []libio.FloatImageCompression{libio.FloatImageCompressionNone, libio.FloatImageCompressionFixedPoint16Lz4} {
		buf := bytes.NewBuffer(nil)
		bw := &libio.BinaryWriter{Order: binary.LittleEndian, Dst: buf}
		if err := libio.EncodeFloatImage(bw, img, compression); err != nil {
			t.Fatal(err)
		}
		if bw.Err != nil {
			t.Fatal(bw.Err)
		}

		br := &libio.BinaryReader{Order: binary.LittleEndian, Src: buf}
		result, err := libio.DecodeFloatImage(br)
		if err != nil {
			t.Fatal(err)
		}
		if br.Err != nil {
			t.Fatal(br.Err)
		}
		if result.Width != img.Width || result.Height != img.Height || result.Channels != img.Channels {
			t.Fatalf("Decoded size should be %dx%dx%d but was %dx%dx%d\n", img.Width, img.Height, img.Channels, result.Width, result.Height, result.Channels)
		}
		for i := range img.Pix {
			if math.Abs(float64(result.Pix[i]-img.Pix[i])) > 20.0/65535*2 {
				t.Errorf("compression %d value %d should be %f but was %f\n", compression, i, img.Pix[i], result.Pix[i])
			}
		}
	}
}

func TestFloatImageFixedPoint(t *testing.T) {
	img := randomImage(3, 32, 16, 0, 10)

	buf := bytes.NewBuffer(nil)
	if err := libio.EncodeFloatImage(buf, img, libio.FloatImageCompressionFixedPoint16Lz4); err != nil {
		t.Fatal(err)
	}

	result, err := libio.DecodeFloatImage(buf)
	if err != nil {
		t.Fatal(err)
	}

	for i := range img.Pix {
		if math.Abs(float64(result.Pix[i]-img.Pix[i])) > 10.0/0xffff {
			t.Errorf("Decoded value %d should be %f but was %f\n", i, img.Pix[i], result.Pix[i])
		}
	}
}

func TestFloatImageConstantChannel(t *testing.T) {
	img := libio.MakeFloatImage(2, 4, 4)
	img.Fill(3, 3)

	buf := bytes.NewBuffer(nil)
	if err := libio.EncodeFloatImage(buf, img, libio.FloatImageCompressionFixedPoint16Lz4); err != nil {
		t.Fatal(err)
	}
	result, err := libio.DecodeFloatImage(buf)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range result.Pix {
		if v != 3 {
			t.Errorf("Decoded value %d should be 3 but was %f\n", i, v)
		}
	}
}

func TestFloatImageBadMagic(t *testing.T) {
	_, err := libio.DecodeFloatImage(bytes.NewReader(make([]byte, 64)))
	if err == nil {
		t.Error("Decoding zeroes should fail")
	}
}

func radianceHeader(width, height int) string {
	return fmt.Sprintf("#?RADIANCE\n# made by hand\nFORMAT=32-bit_rle_rgbe\nEXPOSURE=1.0\n\n-Y %d +X %d\n", height, width)
}

func TestDecodeRadianceFlat(t *testing.T) {
	data := bytes.NewBufferString(radianceHeader(2, 2))
	// top row then bottom row
	data.Write([]byte{128, 64, 32, 129, 0, 0, 0, 0})
	data.Write([]byte{128, 128, 128, 128, 10, 20, 30, 0})

	img, err := libio.DecodeRadiance(data)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		x, y    int
		r, g, b float32
	}{
		{0, 1, 1, 0.5, 0.25},
		{1, 1, 0, 0, 0},
		{0, 0, 0.5, 0.5, 0.5},
		{1, 0, 0, 0, 0},
	}
	for _, c := range cases {
		r, g, b := img.RGB(c.x, c.y)
		if r != c.r || g != c.g || b != c.b {
			t.Errorf("Pixel (%d,%d) should be (%f,%f,%f) but was (%f,%f,%f)\n", c.x, c.y, c.r, c.g, c.b, r, g, b)
		}
	}
}

func TestDecodeRadianceRle(t *testing.T) {
	const width = 8

	flat := bytes.NewBufferString(radianceHeader(width, 1))
	rle := bytes.NewBufferString(radianceHeader(width, 1))
	rle.Write([]byte{2, 2, 0, width})

	pixels := make([][4]byte, width)
	for x := range pixels {
		pixels[x] = [4]byte{byte(100 + x), 50, 50, 130}
	}
	for _, p := range pixels {
		flat.Write(p[:])
	}
	// red as literals, the rest as runs
	rle.WriteByte(width)
	for _, p := range pixels {
		rle.WriteByte(p[0])
	}
	rle.Write([]byte{128 + width, 50})
	rle.Write([]byte{128 + width, 50})
	rle.Write([]byte{128 + width, 130})

	a, err := libio.DecodeRadiance(flat)
	if err != nil {
		t.Fatal(err)
	}
	b, err := libio.DecodeRadiance(rle)
	if err != nil {
		t.Fatal(err)
	}

	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Errorf("Value %d should be %f but was %f\n", i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestDecodeRadianceUnsupported(t *testing.T) {
	data := bytes.NewBufferString("#?RADIANCE\nFORMAT=32-bit_rle_xyze\n\n-Y 1 +X 1\n\x00\x00\x00\x00")
	_, err := libio.DecodeRadiance(data)
	if !errors.Is(err, libio.ErrUnsupportedRadiance) {
		t.Errorf("Decoding xyze should fail with ErrUnsupportedRadiance but was %v\n", err)
	}
}

func TestDecodeRadianceTooLarge(t *testing.T) {
	for _, res := range []string{"-Y 100000 +X 100000", "-Y 4 +X 32768", "-Y 32768 +X 4"} {
		data := bytes.NewBufferString("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n" + res + "\n")
		_, err := libio.DecodeRadiance(data)
		if !errors.Is(err, libio.ErrUnsupportedRadiance) {
			t.Errorf("Decoding %q should fail with ErrUnsupportedRadiance but was %v\n", res, err)
		}
	}
}

func TestRadianceRoundTrip(t *testing.T) {
	img := randomImage(3, 9, 5, 0, 50)

	buf := bytes.NewBuffer(nil)
	if err := libio.EncodeRadiance(buf, img); err != nil {
		t.Fatal(err)
	}
	result, err := libio.DecodeRadiance(buf)
	if err != nil {
		t.Fatal(err)
	}

	for i := range img.Pix {
		// 8 bit mantissa relative to the largest channel
		if math.Abs(float64(result.Pix[i]-img.Pix[i])) > 50.0/128 {
			t.Errorf("Value %d should be %f but was %f\n", i, img.Pix[i], result.Pix[i])
		}
	}
}

func TestToRGBAFlips(t *testing.T) {
	img := libio.MakeFloatImage(3, 2, 2)
	img.SetRGB(0, 0, 1, 0, 0)
	img.SetRGB(0, 1, 0, 1, 0)

	rgba := img.ToIntImage(1, 1).ToRGBA()

	top := rgba.RGBAAt(0, 0)
	bottom := rgba.RGBAAt(0, 1)
	if top.G != 0xff || top.R != 0 {
		t.Errorf("Top left should be green but was %v\n", top)
	}
	if bottom.R != 0xff || bottom.G != 0 {
		t.Errorf("Bottom left should be red but was %v\n", bottom)
	}
	if top.A != 0xff {
		t.Errorf("Alpha should be opaque but was %d\n", top.A)
	}
}

func TestEncodeLdrPng(t *testing.T) {
	img := libio.MakeFloatImage(4, 3, 2)
	img.Fill(0.5, 2, -1, 1)

	buf := bytes.NewBuffer(nil)
	if err := libio.EncodeLdr(buf, img, libio.LdrFormatPNG); err != nil {
		t.Fatal(err)
	}

	decoded, err := png.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := decoded.At(1, 1).RGBA()
	if r>>8 != 128 || g>>8 != 255 || b>>8 != 0 {
		t.Errorf("Pixel should be (128,255,0) but was (%d,%d,%d)\n", r>>8, g>>8, b>>8)
	}
}

func TestEncodeLdrPreview(t *testing.T) {
	img := randomImage(3, 64, 32, 0, 1)

	buf := bytes.NewBuffer(nil)
	if err := libio.EncodeLdrPreview(buf, img, libio.LdrFormatPNG, 16); err != nil {
		t.Fatal(err)
	}

	decoded, err := png.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if size := decoded.Bounds().Size(); size.X != 16 || size.Y != 8 {
		t.Errorf("Preview size should be 16x8 but was %dx%d\n", size.X, size.Y)
	}
}
