package libio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/pierrec/lz4/v4"
)

// EncodeFloatImage writes img in the f32 container format.
// The fixed point compression is lossy; each channel is quantized to 16 bits over its own value range.
func EncodeFloatImage(w io.Writer, img *FloatImage, compression FloatImageCompression) (err error) {
	bw, ok := w.(*BinaryWriter)
	if !ok {
		bw = &BinaryWriter{Dst: w, Order: binary.LittleEndian}
		defer func() {
			if bw.Err != nil && err == nil {
				err = bw.Err
			}
		}()
	}

	header := FloatImageHeader{
		Check:       MagicNumberF32,
		Version:     F32Version1_001_000,
		Width:       uint32(img.Width),
		Height:      uint32(img.Height),
		Channels:    uint8(img.Channels),
		Compression: compression,
	}

	if !bw.WriteRef(header) {
		return fmt.Errorf("could not write f32 header: %w", bw.Err)
	}

	var data []byte

	switch compression {
	case FloatImageCompressionNone:
		buf := bytes.NewBuffer(make([]byte, 0, img.Bytes()))
		err = binary.Write(buf, bw.Order, img.Pix)
		data = buf.Bytes()
	case FloatImageCompressionFixedPoint16Lz4:
		data, err = packFixedPoint16(img)
		if err != nil {
			break
		}
		buf := bytes.NewBuffer(nil)
		lzw := lz4.NewWriter(buf)
		if err = lzw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			break
		}
		if _, err = lzw.Write(data); err != nil {
			break
		}
		err = lzw.Close()
		data = buf.Bytes()
	default:
		err = fmt.Errorf("unknown compression %d", compression)
	}

	if err != nil {
		return fmt.Errorf("could not compress f32 pixels: %w", err)
	}

	if !bw.WriteBytes(data) {
		return fmt.Errorf("could not write f32 encoded pixels: %w", bw.Err)
	}

	return nil
}

func DecodeFloatImage(r io.Reader) (img *FloatImage, err error) {
	br, ok := r.(*BinaryReader)
	if !ok {
		br = &BinaryReader{Src: r, Order: binary.LittleEndian}
		defer func() {
			if br.Err != nil && err == nil {
				err = br.Err
			}
		}()
	}

	header := FloatImageHeader{}
	if !br.ReadRef(&header) {
		return nil, fmt.Errorf("expected f32 header; byte 0x%08x", br.LastIndex)
	}
	if header.Check != MagicNumberF32 {
		return nil, fmt.Errorf("f32 header is corrupt; byte 0x%08x", br.LastIndex)
	}
	if header.Version != F32Version1_001_000 {
		return nil, fmt.Errorf("f32 version %d unsupported; byte 0x%08x", header.Version, br.LastIndex)
	}

	channels := int(header.Channels)
	count := int(header.Width) * int(header.Height)
	var data []float32

	switch header.Compression {
	case FloatImageCompressionNone:
		data = make([]float32, count*channels)
		br.ReadRef(data)
		err = br.Err
	case FloatImageCompressionFixedPoint16Lz4:
		buf := make([]byte, 8*channels+2*count*channels)
		if _, err = io.ReadFull(lz4.NewReader(br.Src), buf); err != nil {
			break
		}
		data, err = unpackFixedPoint16(channels, count, buf)
	default:
		err = fmt.Errorf("unknown compression %d", header.Compression)
	}

	if err != nil {
		return nil, fmt.Errorf("could not decompress f32 pixels: %w", err)
	}

	return NewFloatImage(data, channels, int(header.Width), int(header.Height)), nil
}

// Layout: per channel, min and max as float bits followed by count uint16 samples.
func packFixedPoint16(img *FloatImage) ([]byte, error) {
	count := img.Count()
	buf := bytes.NewBuffer(make([]byte, 0, 8*img.Channels+2*count*img.Channels))
	bw := &BinaryWriter{Order: binary.LittleEndian, Dst: buf}

	for ch := 0; ch < img.Channels; ch++ {
		lo, hi := math32.Inf(1), math32.Inf(-1)
		for i := 0; i < count; i++ {
			v := img.Pix[i*img.Channels+ch]
			lo = math32.Min(lo, v)
			hi = math32.Max(hi, v)
		}
		if count == 0 {
			lo, hi = 0, 0
		}

		bw.WriteUInt32(math32.Float32bits(lo))
		bw.WriteUInt32(math32.Float32bits(hi))

		r := hi - lo
		for i := 0; i < count; i++ {
			var fix uint16
			if r > 0 {
				fix = uint16((img.Pix[i*img.Channels+ch]-lo)/r*0xffff + 0.5)
			}
			bw.WriteUInt16(fix)
		}
		if bw.Err != nil {
			return nil, bw.Err
		}
	}
	return buf.Bytes(), nil
}

func unpackFixedPoint16(channels, count int, data []byte) ([]float32, error) {
	pix := make([]float32, count*channels)
	br := &BinaryReader{Src: bytes.NewReader(data), Order: binary.LittleEndian}
	samples := make([]uint16, count)

	for ch := 0; ch < channels; ch++ {
		var ilo, ihi int
		br.ReadUInt32(&ilo)
		br.ReadUInt32(&ihi)
		br.ReadRef(samples)
		if br.Err != nil {
			return nil, br.Err
		}

		lo := math32.Float32frombits(uint32(ilo))
		hi := math32.Float32frombits(uint32(ihi))
		r := hi - lo
		for i, fix := range samples {
			pix[i*channels+ch] = float32(fix)/0xffff*r + lo
		}
	}
	return pix, nil
}
