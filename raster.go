package imgverify

import (
	"fmt"
	"image/color"
)

// Layout describes the channel semantics of a Raster.
type Layout int

const (
	Gray Layout = iota
	GrayAlpha
	RGB
	RGBA
	CMYK
	Indexed
)

var layoutChannels = map[Layout]int{
	Gray:      1,
	GrayAlpha: 2,
	RGB:       3,
	RGBA:      4,
	CMYK:      4,
	Indexed:   1,
}

var layoutNames = map[Layout]string{
	Gray:      "gray",
	GrayAlpha: "gray+alpha",
	RGB:       "rgb",
	RGBA:      "rgba",
	CMYK:      "cmyk",
	Indexed:   "indexed",
}

// Channels returns the number of samples per pixel for the layout.
func (l Layout) Channels() int {
	return layoutChannels[l]
}

func (l Layout) String() string {
	if s, ok := layoutNames[l]; ok {
		return s
	}
	return "unknown"
}

// HasAlpha reports whether the layout carries an alpha channel.
func (l Layout) HasAlpha() bool {
	return l == GrayAlpha || l == RGBA
}

// Raster is a decoded pixel buffer. Samples are interleaved per pixel;
// 16-bit samples are stored big endian, two bytes each. Indexed rasters
// hold one palette index per pixel and resolve colors through Palette.
type Raster struct {
	Pix    []uint8
	Width  int
	Height int
	Depth  int // bits per sample, 8 or 16
	Stride int // bytes per row
	Layout Layout

	// Palette is set for Indexed rasters only.
	Palette []color.NRGBA

	// Inverted marks CMYK samples stored in the inverted Adobe
	// convention (0xff means no ink).
	Inverted bool
}

// NewRaster allocates a raster with a tight stride.
func NewRaster(width, height int, layout Layout, depth int) *Raster {
	stride := width * layout.Channels() * depth / 8
	return &Raster{
		Pix:    make([]uint8, height*stride),
		Width:  width,
		Height: height,
		Depth:  depth,
		Stride: stride,
		Layout: layout,
	}
}

// PixelBytes returns the number of bytes per pixel.
func (r *Raster) PixelBytes() int {
	return r.Layout.Channels() * r.Depth / 8
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	dst := *r
	dst.Pix = make([]uint8, len(r.Pix))
	copy(dst.Pix, r.Pix)
	if r.Palette != nil {
		dst.Palette = make([]color.NRGBA, len(r.Palette))
		copy(dst.Palette, r.Palette)
	}
	return &dst
}

// Sample returns channel c of pixel (x, y) scaled to [0, 1].
func (r *Raster) Sample(x, y, c int) float64 {
	i := y*r.Stride + x*r.PixelBytes()
	if r.Depth == 16 {
		i += c * 2
		v := uint16(r.Pix[i])<<8 | uint16(r.Pix[i+1])
		return float64(v) / 0xffff
	}
	return float64(r.Pix[i+c]) / 0xff
}

func (r *Raster) check() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: bad dimensions %dx%d", ErrDecode, r.Width, r.Height)
	}
	if r.Depth != 8 && r.Depth != 16 {
		return fmt.Errorf("%w: bad sample depth %d", ErrDecode, r.Depth)
	}
	if r.Stride < r.Width*r.PixelBytes() {
		return fmt.Errorf("%w: stride %d too small for width %d", ErrDecode, r.Stride, r.Width)
	}
	if len(r.Pix) != r.Height*r.Stride {
		return fmt.Errorf("%w: pixel buffer is %d bytes, want %d", ErrDecode, len(r.Pix), r.Height*r.Stride)
	}
	if r.Layout == Indexed && len(r.Palette) == 0 {
		return fmt.Errorf("%w: indexed raster without palette", ErrDecode)
	}
	return nil
}
