package imgverify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"

	"github.com/gen2brain/jpegn"
	"github.com/mrjoshuak/go-jpeg2000"
	"github.com/sunshineplan/tiff"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

// Decoder turns encoded image bytes into a raster plus its metadata.
// Both the backend under test and the reference oracle satisfy it.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Raster, Metadata, error)
}

// defaultMaxPixels caps decoded image area. Pathological files declare
// absurd dimensions; refusing them up front turns a potential
// multi-gigabyte allocation into a decode error.
const defaultMaxPixels = 200_000_000

// Backend decodes the supported container formats, dispatching on
// sniffed magic bytes rather than filename extensions. The raster keeps
// the source's channel semantics: grayscale stays one channel, palettes
// stay indexed, CMYK stays four channels, 16-bit sources keep their
// depth. Orientation and color profiles are extracted but never
// applied; that is the pipeline's job.
type Backend struct {
	// MaxPixels overrides the decoded area cap. Zero means the
	// default; negative disables the check.
	MaxPixels int64
}

func (b *Backend) maxPixels() int64 {
	switch {
	case b.MaxPixels < 0:
		return 0
	case b.MaxPixels == 0:
		return defaultMaxPixels
	}
	return b.MaxPixels
}

// Decode implements Decoder.
func (b *Backend) Decode(ctx context.Context, data []byte) (*Raster, Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, Metadata{}, err
	}

	meta := ExtractMetadata(data)
	if meta.Format == FormatUnknown {
		return nil, meta, ErrFormat
	}

	if max := b.maxPixels(); max > 0 && meta.Format != JP2 {
		cfg, err := decodeConfig(meta.Format, data)
		if err != nil {
			return nil, meta, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > max {
			return nil, meta, fmt.Errorf("%w: image %dx%d exceeds pixel limit", ErrDecode, cfg.Width, cfg.Height)
		}
	}

	img, err := decodeImage(meta.Format, data)
	if err != nil {
		return nil, meta, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return fromImage(img), meta, nil
}

func decodeConfig(f Format, data []byte) (image.Config, error) {
	r := bytes.NewReader(data)
	switch f {
	case JPEG:
		return jpegn.DecodeConfig(r)
	case PNG:
		return png.DecodeConfig(r)
	case GIF:
		return gif.DecodeConfig(r)
	case TIFF:
		return tiff.DecodeConfig(r)
	case BMP:
		return bmp.DecodeConfig(r)
	case WEBP:
		return webp.DecodeConfig(r)
	}
	return image.Config{}, fmt.Errorf("no config decoder for %v", f)
}

func decodeImage(f Format, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch f {
	case JPEG:
		// AutoRotate stays off: orientation belongs to the pipeline.
		// Native output keeps YCbCr as YCbCr, and four-component
		// images fall through to the standard library, which hands
		// back CMYK with the Adobe inversion already undone.
		return jpegn.Decode(r, &jpegn.Options{UpsampleMethod: jpegn.CatmullRom})
	case PNG:
		return png.Decode(r)
	case GIF:
		return gif.Decode(r)
	case TIFF:
		return tiff.Decode(r)
	case BMP:
		return bmp.Decode(r)
	case WEBP:
		return webp.Decode(r)
	case JP2:
		return jpeg2000.Decode(r)
	}
	return nil, ErrFormat
}

// fromImage converts a decoded image into a Raster without collapsing
// its channel semantics. Premultiplied sources are unpremultiplied,
// YCbCr is converted to RGB, everything else copies through.
func fromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch img := img.(type) {
	case *image.NRGBA:
		dst := NewRaster(w, h, RGBA, 8)
		copyRows(dst, img.Pix, img.Stride, img.PixOffset(bounds.Min.X, bounds.Min.Y))
		return dst

	case *image.NRGBA64:
		dst := NewRaster(w, h, RGBA, 16)
		copyRows(dst, img.Pix, img.Stride, img.PixOffset(bounds.Min.X, bounds.Min.Y))
		return dst

	case *image.Gray:
		dst := NewRaster(w, h, Gray, 8)
		copyRows(dst, img.Pix, img.Stride, img.PixOffset(bounds.Min.X, bounds.Min.Y))
		return dst

	case *image.Gray16:
		dst := NewRaster(w, h, Gray, 16)
		copyRows(dst, img.Pix, img.Stride, img.PixOffset(bounds.Min.X, bounds.Min.Y))
		return dst

	case *image.CMYK:
		dst := NewRaster(w, h, CMYK, 8)
		copyRows(dst, img.Pix, img.Stride, img.PixOffset(bounds.Min.X, bounds.Min.Y))
		return dst

	case *image.RGBA:
		dst := NewRaster(w, h, RGBA, 8)
		for y := 0; y < h; y++ {
			i := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			j := y * dst.Stride
			for x := 0; x < w; x++ {
				s := img.Pix[i : i+4 : i+4]
				d := dst.Pix[j : j+4 : j+4]
				a := s[3]
				switch a {
				case 0:
					d[0], d[1], d[2] = 0, 0, 0
				case 0xff:
					d[0], d[1], d[2] = s[0], s[1], s[2]
				default:
					d[0] = uint8(uint16(s[0]) * 0xff / uint16(a))
					d[1] = uint8(uint16(s[1]) * 0xff / uint16(a))
					d[2] = uint8(uint16(s[2]) * 0xff / uint16(a))
				}
				d[3] = a
				i += 4
				j += 4
			}
		}
		return dst

	case *image.RGBA64:
		dst := NewRaster(w, h, RGBA, 16)
		for y := 0; y < h; y++ {
			i := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			j := y * dst.Stride
			for x := 0; x < w; x++ {
				s := img.Pix[i : i+8 : i+8]
				a := uint32(s[6])<<8 | uint32(s[7])
				var r, g, b uint32
				switch a {
				case 0:
				case 0xffff:
					r = uint32(s[0])<<8 | uint32(s[1])
					g = uint32(s[2])<<8 | uint32(s[3])
					b = uint32(s[4])<<8 | uint32(s[5])
				default:
					r = (uint32(s[0])<<8 | uint32(s[1])) * 0xffff / a
					g = (uint32(s[2])<<8 | uint32(s[3])) * 0xffff / a
					b = (uint32(s[4])<<8 | uint32(s[5])) * 0xffff / a
				}
				d := dst.Pix[j : j+8 : j+8]
				d[0], d[1] = uint8(r>>8), uint8(r)
				d[2], d[3] = uint8(g>>8), uint8(g)
				d[4], d[5] = uint8(b>>8), uint8(b)
				d[6], d[7] = uint8(a>>8), uint8(a)
				i += 8
				j += 8
			}
		}
		return dst

	case *image.Paletted:
		dst := NewRaster(w, h, Indexed, 8)
		dst.Palette = make([]color.NRGBA, len(img.Palette))
		for i, c := range img.Palette {
			dst.Palette[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
		}
		copyRows(dst, img.Pix, img.Stride, img.PixOffset(bounds.Min.X, bounds.Min.Y))
		return dst

	case *image.YCbCr:
		return fromYCbCr(img)
	}

	// Fallback for layouts without a fast path.
	dst := NewRaster(w, h, RGBA, 8)
	j := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, a16 := img.At(x, y).RGBA()
			d := dst.Pix[j : j+4 : j+4]
			switch a16 {
			case 0xffff:
				d[0] = uint8(r16 >> 8)
				d[1] = uint8(g16 >> 8)
				d[2] = uint8(b16 >> 8)
				d[3] = 0xff
			case 0:
				d[0], d[1], d[2], d[3] = 0, 0, 0, 0
			default:
				d[0] = uint8(((r16 * 0xffff) / a16) >> 8)
				d[1] = uint8(((g16 * 0xffff) / a16) >> 8)
				d[2] = uint8(((b16 * 0xffff) / a16) >> 8)
				d[3] = uint8(a16 >> 8)
			}
			j += 4
		}
	}
	return dst
}

// copyRows copies w*pixelBytes bytes per row from a stdlib pixel slice
// into a tightly strided raster.
func copyRows(dst *Raster, pix []uint8, stride, offset int) {
	rowSize := dst.Width * dst.PixelBytes()
	for y := 0; y < dst.Height; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowSize], pix[offset+y*stride:])
	}
}

// fromYCbCr converts a subsampled YCbCr image to an RGB raster using
// the fixed-point coefficients of the standard library.
func fromYCbCr(img *image.YCbCr) *Raster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := NewRaster(w, h, RGB, 8)

	x1 := bounds.Min.X
	y1 := bounds.Min.Y
	hy := img.Rect.Min.Y / 2
	hx := img.Rect.Min.X / 2
	for y := 0; y < h; y++ {
		iy := img.YOffset(x1, y1+y)
		j := y * dst.Stride

		var yBase int
		switch img.SubsampleRatio {
		case image.YCbCrSubsampleRatio444, image.YCbCrSubsampleRatio422:
			yBase = (y1 + y - img.Rect.Min.Y) * img.CStride
		case image.YCbCrSubsampleRatio420, image.YCbCrSubsampleRatio440:
			yBase = ((y1+y)/2 - hy) * img.CStride
		}

		for x := 0; x < w; x++ {
			var ic int
			switch img.SubsampleRatio {
			case image.YCbCrSubsampleRatio444, image.YCbCrSubsampleRatio440:
				ic = yBase + (x1 + x - img.Rect.Min.X)
			case image.YCbCrSubsampleRatio422, image.YCbCrSubsampleRatio420:
				ic = yBase + ((x1+x)/2 - hx)
			default:
				ic = img.COffset(x1+x, y1+y)
			}

			yy1 := int32(img.Y[iy]) * 0x10101
			cb1 := int32(img.Cb[ic]) - 128
			cr1 := int32(img.Cr[ic]) - 128

			r := yy1 + 91881*cr1
			if uint32(r)&0xff000000 == 0 {
				r >>= 16
			} else {
				r = ^(r >> 31)
			}

			g := yy1 - 22554*cb1 - 46802*cr1
			if uint32(g)&0xff000000 == 0 {
				g >>= 16
			} else {
				g = ^(g >> 31)
			}

			b := yy1 + 116130*cb1
			if uint32(b)&0xff000000 == 0 {
				b >>= 16
			} else {
				b = ^(b >> 31)
			}

			d := dst.Pix[j : j+3 : j+3]
			d[0] = uint8(r)
			d[1] = uint8(g)
			d[2] = uint8(b)

			iy++
			j += 3
		}
	}
	return dst
}
