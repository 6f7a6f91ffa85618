package libio

import (
	"fmt"
	goimg "image"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

type LdrFormat string

const (
	LdrFormatPNG  LdrFormat = "png"
	LdrFormatBMP  LdrFormat = "bmp"
	LdrFormatTIFF LdrFormat = "tiff"
)

func ParseLdrFormat(ext string) (LdrFormat, bool) {
	switch ext {
	case "png":
		return LdrFormatPNG, true
	case "bmp":
		return LdrFormatBMP, true
	case "tif", "tiff":
		return LdrFormatTIFF, true
	}
	return "", false
}

// EncodeLdr writes display ready (already tone mapped and gamma encoded) data as an 8 bit image.
func EncodeLdr(w io.Writer, img *FloatImage, format LdrFormat) error {
	return encodeGoImage(w, img.ToIntImage(1.0, 1.0).ToRGBA(), format)
}

// EncodeLdrPreview is like EncodeLdr but scales the image so its longest side is at most maxSize.
func EncodeLdrPreview(w io.Writer, img *FloatImage, format LdrFormat, maxSize int) error {
	src := img.ToIntImage(1.0, 1.0).ToRGBA()
	if maxSize <= 0 || (img.Width <= maxSize && img.Height <= maxSize) {
		return encodeGoImage(w, src, format)
	}

	width, height := maxSize, maxSize
	if img.Width > img.Height {
		height = max(1, img.Height*maxSize/img.Width)
	} else {
		width = max(1, img.Width*maxSize/img.Height)
	}
	dst := goimg.NewRGBA(goimg.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return encodeGoImage(w, dst, format)
}

func encodeGoImage(w io.Writer, img goimg.Image, format LdrFormat) error {
	var err error
	switch format {
	case LdrFormatPNG:
		err = png.Encode(w, img)
	case LdrFormatBMP:
		err = bmp.Encode(w, img)
	case LdrFormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unknown image format %q", format)
	}
	if err != nil {
		return fmt.Errorf("could not encode %s image: %w", format, err)
	}
	return nil
}
