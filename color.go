package imgverify

import (
	"errors"
	"fmt"
	"math"

	"seehuhn.de/go/icc"
)

// NormalizeColor converts a raster to 8-bit sRGB, preserving channel
// presence: sources without alpha come back as RGB, sources with alpha
// as RGBA. Indexed rasters are resolved through their palette first,
// grayscale is replicated into the color channels, CMYK is un-inverted
// when flagged and converted with the plain subtractive formula, and an
// explicit gamma or ICC profile is applied to reach sRGB. A CMYK
// profile on CMYK data maps the ink values itself and replaces the
// subtractive formula. Malformed or unsupported profiles never fail the
// conversion; the raster is treated as already sRGB and a warning is
// returned.
//
// All arithmetic runs in float64 and is quantized back to 8 bit with
// round half to even. That rounding rule is part of the contract: it is
// the main source of off-by-one disagreement with other decoders.
func NormalizeColor(r *Raster, p Profile) (*Raster, []string, error) {
	if err := r.check(); err != nil {
		return nil, nil, err
	}
	src := r
	if src.Layout == Indexed {
		src = resolvePalette(src)
	}

	var warnings []string
	var pix []float64
	channels := 3
	if src.Layout == CMYK && p.Kind == ProfileICC {
		if converted, err := cmykICC(src, p.ICC); err != nil {
			warnings = append(warnings, fmt.Sprintf("%v, assuming sRGB", err))
			p = Profile{}
		} else {
			pix = converted
		}
	}
	if pix == nil {
		var err error
		pix, channels, err = layoutToFloat(src)
		if err != nil {
			return nil, nil, err
		}
		switch p.Kind {
		case ProfileGamma:
			if p.Gamma <= 0 {
				warnings = append(warnings, fmt.Sprintf("invalid gamma %g, assuming sRGB", p.Gamma))
				break
			}
			applyGamma(pix, channels, p.Gamma)
		case ProfileICC:
			if err := applyICC(pix, channels, p.ICC); err != nil {
				warnings = append(warnings, fmt.Sprintf("%v, assuming sRGB", err))
			}
		}
	}

	layout := RGB
	if channels == 4 {
		layout = RGBA
	}
	dst := NewRaster(src.Width, src.Height, layout, 8)
	for i, v := range pix {
		dst.Pix[i] = quantize8(v)
	}
	return dst, warnings, nil
}

// resolvePalette replaces palette indices with direct RGBA samples.
// Out of range indices clamp to the last palette entry.
func resolvePalette(src *Raster) *Raster {
	dst := NewRaster(src.Width, src.Height, RGBA, 8)
	for y := 0; y < src.Height; y++ {
		i := y * src.Stride
		j := y * dst.Stride
		for x := 0; x < src.Width; x++ {
			idx := int(src.Pix[i+x])
			if idx >= len(src.Palette) {
				idx = len(src.Palette) - 1
			}
			c := src.Palette[idx]
			d := dst.Pix[j : j+4 : j+4]
			d[0] = c.R
			d[1] = c.G
			d[2] = c.B
			d[3] = c.A
			j += 4
		}
	}
	return dst
}

// layoutToFloat unpacks a raster into interleaved float64 samples in
// [0, 1], three channels for opaque layouts and four when alpha is
// present. Grayscale replicates into R, G, B; CMYK applies the
// subtractive formula after undoing Adobe inversion.
func layoutToFloat(r *Raster) ([]float64, int, error) {
	channels := 3
	if r.Layout.HasAlpha() {
		channels = 4
	}

	px := r.PixelBytes()
	read := func(i, c int) float64 {
		if r.Depth == 16 {
			i += c * 2
			return float64(uint16(r.Pix[i])<<8|uint16(r.Pix[i+1])) / 0xffff
		}
		return float64(r.Pix[i+c]) / 0xff
	}

	out := make([]float64, r.Width*r.Height*channels)
	j := 0
	for y := 0; y < r.Height; y++ {
		i := y * r.Stride
		for x := 0; x < r.Width; x++ {
			switch r.Layout {
			case Gray:
				g := read(i, 0)
				out[j] = g
				out[j+1] = g
				out[j+2] = g
			case GrayAlpha:
				g := read(i, 0)
				out[j] = g
				out[j+1] = g
				out[j+2] = g
				out[j+3] = read(i, 1)
			case RGB:
				out[j] = read(i, 0)
				out[j+1] = read(i, 1)
				out[j+2] = read(i, 2)
			case RGBA:
				out[j] = read(i, 0)
				out[j+1] = read(i, 1)
				out[j+2] = read(i, 2)
				out[j+3] = read(i, 3)
			case CMYK:
				c := read(i, 0)
				m := read(i, 1)
				ye := read(i, 2)
				k := read(i, 3)
				if r.Inverted {
					c, m, ye, k = 1-c, 1-m, 1-ye, 1-k
				}
				out[j] = (1 - c) * (1 - k)
				out[j+1] = (1 - m) * (1 - k)
				out[j+2] = (1 - ye) * (1 - k)
			default:
				return nil, 0, fmt.Errorf("%w: layout %v", ErrColorConvert, r.Layout)
			}
			i += px
			j += channels
		}
	}
	return out, channels, nil
}

// applyGamma re-encodes samples tagged with a plain transfer exponent
// into the sRGB curve. Alpha is left untouched.
func applyGamma(pix []float64, channels int, gamma float64) {
	inv := 1 / gamma
	for i := 0; i < len(pix); i += channels {
		for c := 0; c < 3; c++ {
			pix[i+c] = srgbEncode(math.Pow(pix[i+c], inv))
		}
	}
}

// applyICC pushes samples through an embedded RGB profile to the
// XYZ (D50) connection space and back down to sRGB. Profiles for other
// device spaces are reported as unsupported so the caller can fall
// back to the assume-sRGB policy.
func applyICC(pix []float64, channels int, data []byte) error {
	profile, err := icc.Decode(data)
	if err != nil {
		return errors.New("unreadable ICC profile")
	}
	if profile.ColorSpace != icc.RGBSpace {
		return errors.New("unsupported ICC color space")
	}
	tr, err := icc.NewTransform(profile, icc.DeviceToPCS, icc.Perceptual)
	if err != nil {
		return errors.New("unsupported ICC profile")
	}

	dev := make([]float64, 3)
	for i := 0; i < len(pix); i += channels {
		dev[0], dev[1], dev[2] = pix[i], pix[i+1], pix[i+2]
		x, y, z := tr.ToXYZ(dev)
		pix[i], pix[i+1], pix[i+2] = xyzToSRGB(x, y, z)
	}
	return nil
}

// cmykICC resolves CMYK ink values through an embedded CMYK profile to
// the XYZ (D50) connection space and down to sRGB, three float channels
// per pixel. Adobe inversion is undone before the profile is applied,
// since the profile describes the true ink values.
func cmykICC(r *Raster, data []byte) ([]float64, error) {
	profile, err := icc.Decode(data)
	if err != nil {
		return nil, errors.New("unreadable ICC profile")
	}
	if profile.ColorSpace != icc.CMYKSpace {
		return nil, errors.New("unsupported ICC color space")
	}
	tr, err := icc.NewTransform(profile, icc.DeviceToPCS, icc.Perceptual)
	if err != nil {
		return nil, errors.New("unsupported ICC profile")
	}

	px := r.PixelBytes()
	read := func(i, c int) float64 {
		if r.Depth == 16 {
			i += c * 2
			return float64(uint16(r.Pix[i])<<8|uint16(r.Pix[i+1])) / 0xffff
		}
		return float64(r.Pix[i+c]) / 0xff
	}

	out := make([]float64, r.Width*r.Height*3)
	dev := make([]float64, 4)
	j := 0
	for y := 0; y < r.Height; y++ {
		i := y * r.Stride
		for x := 0; x < r.Width; x++ {
			for c := 0; c < 4; c++ {
				v := read(i, c)
				if r.Inverted {
					v = 1 - v
				}
				dev[c] = v
			}
			cx, cy, cz := tr.ToXYZ(dev)
			out[j], out[j+1], out[j+2] = xyzToSRGB(cx, cy, cz)
			i += px
			j += 3
		}
	}
	return out, nil
}

// xyzD50ToSRGB converts the XYZ (D50) connection space to linear sRGB
// primaries (D65), Bradford adapted.
var xyzD50ToSRGB = [9]float64{
	3.1338561, -1.6168667, -0.4906146,
	-0.9787684, 1.9161415, 0.0334540,
	0.0719453, -0.2289914, 1.4052427,
}

func xyzToSRGB(x, y, z float64) (float64, float64, float64) {
	m := &xyzD50ToSRGB
	r := m[0]*x + m[1]*y + m[2]*z
	g := m[3]*x + m[4]*y + m[5]*z
	b := m[6]*x + m[7]*y + m[8]*z
	return srgbEncode(clip01(r)), srgbEncode(clip01(g)), srgbEncode(clip01(b))
}

// srgbEncode applies the piecewise sRGB transfer curve to a linear sample.
func srgbEncode(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055*math.Pow(f, 1/2.4) - 0.055
}

func clip01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// quantize8 collapses a [0, 1] sample to 8 bit, rounding half to even.
func quantize8(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.RoundToEven(v * 255))
}
