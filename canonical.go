package imgverify

import "image/color"

// CanonicalImage is the comparison form every decoded image is reduced
// to: 8-bit RGBA, sRGB encoded, orientation applied. Only Canonicalize
// produces it. Sources without an alpha channel get an opaque one so
// that any two canonical images of equal size compare channel for
// channel.
type CanonicalImage struct {
	Raster
	// Warnings records assume-sRGB fallbacks hit during conversion.
	Warnings []string
}

// At returns the canonical pixel at (x, y).
func (c *CanonicalImage) At(x, y int) color.NRGBA {
	i := y*c.Stride + x*4
	s := c.Pix[i : i+4 : i+4]
	return color.NRGBA{R: s[0], G: s[1], B: s[2], A: s[3]}
}

// Options configures which normalizations Canonicalize applies.
type Options struct {
	Orientation bool
	Profile     bool
}

// NewOptions creates options with every normalization enabled.
func NewOptions() *Options {
	return &Options{Orientation: true, Profile: true}
}

// SetOrientation toggles the geometric orientation fix.
func (opts *Options) SetOrientation(enabled bool) *Options {
	opts.Orientation = enabled
	return opts
}

// SetProfile toggles gamma and ICC handling. Layout conversion to RGBA8
// always happens, so the output is canonical either way.
func (opts *Options) SetProfile(enabled bool) *Options {
	opts.Profile = enabled
	return opts
}

// Canonicalize runs the pipeline with opts applied.
func (opts *Options) Canonicalize(r *Raster, m Metadata) (*CanonicalImage, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	if opts.Orientation {
		o := m.Orientation
		if o == OrientationUnspecified {
			o = OrientationNormal
		}
		var err error
		if r, err = Reorient(r, o); err != nil {
			return nil, err
		}
	}

	profile := m.Profile
	if !opts.Profile {
		profile = Profile{}
	}
	norm, warnings, err := NormalizeColor(r, profile)
	if err != nil {
		return nil, err
	}

	return &CanonicalImage{Raster: *expandRGBA(norm), Warnings: warnings}, nil
}

// Canonicalize normalizes a decoded raster into a CanonicalImage:
// orientation first, then color, then quantization to RGBA8. It is
// idempotent: feeding its output back in with orientation normal and an
// sRGB profile reproduces the same bytes. On error no partially
// transformed buffer is returned.
func Canonicalize(r *Raster, m Metadata) (*CanonicalImage, error) {
	return NewOptions().Canonicalize(r, m)
}

// expandRGBA widens an RGB raster to RGBA with opaque alpha. RGBA
// rasters pass through unchanged.
func expandRGBA(r *Raster) *Raster {
	if r.Layout == RGBA {
		return r
	}
	dst := NewRaster(r.Width, r.Height, RGBA, 8)
	for y := 0; y < r.Height; y++ {
		i := y * r.Stride
		j := y * dst.Stride
		for x := 0; x < r.Width; x++ {
			s := r.Pix[i : i+3 : i+3]
			d := dst.Pix[j : j+4 : j+4]
			d[0] = s[0]
			d[1] = s[1]
			d[2] = s[2]
			d[3] = 0xff
			i += 3
			j += 4
		}
	}
	return dst
}
