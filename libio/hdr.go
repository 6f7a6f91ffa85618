package libio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chewxy/math32"
)

var ErrUnsupportedRadiance = errors.New("unsupported radiance file")

// MaxRadianceSize bounds both image dimensions. It is also the largest run length encoded scanline.
const MaxRadianceSize = 0x7fff

// DecodeRadiance reads a Radiance RGBE (.hdr) image into a 3 channel float image.
// Both flat and new style run length encoded scanlines are accepted.
func DecodeRadiance(r io.Reader) (*FloatImage, error) {
	br := bufio.NewReader(r)

	magic, err := readHeaderLine(br)
	if err != nil {
		return nil, fmt.Errorf("could not read radiance magic: %w", err)
	}
	if magic != "#?RADIANCE" && magic != "#?RGBE" {
		return nil, fmt.Errorf("%w: bad magic %q", ErrUnsupportedRadiance, magic)
	}

	for {
		line, err := readHeaderLine(br)
		if err != nil {
			return nil, fmt.Errorf("could not read radiance header: %w", err)
		}
		if line == "" {
			break
		}
		if format, ok := strings.CutPrefix(line, "FORMAT="); ok && format != "32-bit_rle_rgbe" {
			return nil, fmt.Errorf("%w: format %q", ErrUnsupportedRadiance, format)
		}
	}

	res, err := readHeaderLine(br)
	if err != nil {
		return nil, fmt.Errorf("could not read radiance resolution: %w", err)
	}
	var ySign, xSign byte
	var width, height int
	if _, err := fmt.Sscanf(res, "%cY %d %cX %d", &ySign, &height, &xSign, &width); err != nil {
		return nil, fmt.Errorf("%w: resolution %q", ErrUnsupportedRadiance, res)
	}
	if xSign != '+' || (ySign != '-' && ySign != '+') || width <= 0 || height <= 0 || width > MaxRadianceSize || height > MaxRadianceSize {
		return nil, fmt.Errorf("%w: resolution %q", ErrUnsupportedRadiance, res)
	}

	img := MakeFloatImage(3, width, height)
	scanline := make([]byte, width*4)

	for row := 0; row < height; row++ {
		if err := readScanline(br, scanline, width); err != nil {
			return nil, fmt.Errorf("could not read radiance scanline %d: %w", row, err)
		}

		// -Y stores the top row first
		y := row
		if ySign == '-' {
			y = height - 1 - row
		}
		for x := 0; x < width; x++ {
			rgbe := scanline[x*4 : x*4+4]
			r, g, b := rgbeToFloat(rgbe[0], rgbe[1], rgbe[2], rgbe[3])
			img.SetRGB(x, y, r, g, b)
		}
	}

	return img, nil
}

func readHeaderLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readScanline(br *bufio.Reader, dst []byte, width int) error {
	if width < 8 || width > MaxRadianceSize {
		_, err := io.ReadFull(br, dst)
		return err
	}

	head, err := br.Peek(4)
	if err != nil {
		return err
	}
	if head[0] != 2 || head[1] != 2 || head[2]&0x80 != 0 {
		_, err := io.ReadFull(br, dst)
		return err
	}
	if int(head[2])<<8|int(head[3]) != width {
		return fmt.Errorf("%w: scanline width mismatch", ErrUnsupportedRadiance)
	}
	if _, err := br.Discard(4); err != nil {
		return err
	}

	// channels are stored planar, each with its own runs
	for ch := 0; ch < 4; ch++ {
		for x := 0; x < width; {
			count, err := br.ReadByte()
			if err != nil {
				return err
			}
			if count > 128 {
				n := int(count) - 128
				if x+n > width {
					return fmt.Errorf("%w: run overflows scanline", ErrUnsupportedRadiance)
				}
				value, err := br.ReadByte()
				if err != nil {
					return err
				}
				for ; n > 0; n-- {
					dst[x*4+ch] = value
					x++
				}
			} else {
				n := int(count)
				if n == 0 || x+n > width {
					return fmt.Errorf("%w: bad literal run", ErrUnsupportedRadiance)
				}
				for ; n > 0; n-- {
					value, err := br.ReadByte()
					if err != nil {
						return err
					}
					dst[x*4+ch] = value
					x++
				}
			}
		}
	}
	return nil
}

func rgbeToFloat(r, g, b, e byte) (float32, float32, float32) {
	if e == 0 {
		return 0, 0, 0
	}
	f := math32.Ldexp(1, int(e)-(128+8))
	return float32(r) * f, float32(g) * f, float32(b) * f
}

func floatToRGBE(r, g, b float32) [4]byte {
	v := math32.Max(r, math32.Max(g, b))
	if v < 1e-32 {
		return [4]byte{}
	}
	m, e := math32.Frexp(v)
	f := m * 256 / v
	return [4]byte{
		byte(math32.Max(r, 0) * f),
		byte(math32.Max(g, 0) * f),
		byte(math32.Max(b, 0) * f),
		byte(e + 128),
	}
}

// EncodeRadiance writes img as a flat (uncompressed) Radiance RGBE file.
func EncodeRadiance(w io.Writer, img *FloatImage) error {
	bw := bufio.NewWriter(w)
	_, err := fmt.Fprintf(bw, "#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y %d +X %d\n", img.Height, img.Width)
	if err != nil {
		return fmt.Errorf("could not write radiance header: %w", err)
	}

	for y := img.Height - 1; y >= 0; y-- {
		for x := 0; x < img.Width; x++ {
			rgbe := floatToRGBE(img.RGB(x, y))
			if _, err := bw.Write(rgbe[:]); err != nil {
				return fmt.Errorf("could not write radiance pixels: %w", err)
			}
		}
	}

	return bw.Flush()
}
