package imgverify

import (
	"errors"
	"fmt"
)

// Tolerance bounds the acceptable difference between two canonical
// rasters. Deltas are absolute per-channel differences of 8-bit values.
type Tolerance struct {
	// Max caps the delta of interior pixels.
	Max uint8
	// Avg caps the mean delta over every channel of every pixel.
	// Zero disables the check.
	Avg float64
	// EdgeMax caps the delta of pixels on the outermost ring, where
	// chroma upsampling disagreements concentrate. Zero means Max
	// applies to edges too.
	EdgeMax uint8
}

// DefaultTolerance returns the comparison budget for a source format.
// Lossless formats compare exactly. JPEG absorbs IDCT and upsampling
// differences between codecs, and 16-bit PNG absorbs rounding in the
// narrowing to 8 bits.
func DefaultTolerance(f Format, depth int) Tolerance {
	switch f {
	case JPEG:
		return Tolerance{Max: 20, Avg: 0.29, EdgeMax: 80}
	case PNG:
		if depth == 16 {
			return Tolerance{Max: 1, Avg: 0.17, EdgeMax: 80}
		}
	}
	return Tolerance{}
}

// PixelDiff records one differing pixel.
type PixelDiff struct {
	X, Y  int
	Got   [4]uint8
	Want  [4]uint8
	Delta uint8
	Edge  bool
}

func (p PixelDiff) String() string {
	return fmt.Sprintf("(%d,%d) got %v want %v delta %d", p.X, p.Y, p.Got, p.Want, p.Delta)
}

// worstPixels bounds how many offenders a Diff retains.
const worstPixels = 10

// Diff summarizes a pixel comparison between two canonical images.
type Diff struct {
	GotWidth, GotHeight   int
	WantWidth, WantHeight int

	// MaxDelta is the largest interior delta, EdgeDelta the largest
	// on the border ring.
	MaxDelta  uint8
	EdgeDelta uint8
	// AvgDelta is the mean delta over all channels, edges included.
	AvgDelta float64
	// Worst holds up to ten differing pixels, largest delta first.
	Worst []PixelDiff

	Pass bool
	// Reason describes the first violated bound when Pass is false.
	Reason string
}

var errNotCanonical = errors.New("imgverify: compare: raster is not canonical RGBA")

// Compare measures got against want and applies tol. A dimension
// mismatch is a failing verdict, not an error; errors are reserved for
// rasters that are not in canonical 8-bit RGBA form.
func Compare(got, want *CanonicalImage, tol Tolerance) (*Diff, error) {
	if got.Layout != RGBA || got.Depth != 8 || want.Layout != RGBA || want.Depth != 8 {
		return nil, errNotCanonical
	}
	if err := got.check(); err != nil {
		return nil, err
	}
	if err := want.check(); err != nil {
		return nil, err
	}

	d := &Diff{
		GotWidth: got.Width, GotHeight: got.Height,
		WantWidth: want.Width, WantHeight: want.Height,
	}
	if got.Width != want.Width || got.Height != want.Height {
		d.Reason = fmt.Sprintf("size %dx%d, want %dx%d", got.Width, got.Height, want.Width, want.Height)
		return d, nil
	}

	w, h := got.Width, got.Height
	var sum uint64
	var maxAt, edgeAt PixelDiff
	for y := 0; y < h; y++ {
		gi := y * got.Stride
		wi := y * want.Stride
		for x := 0; x < w; x++ {
			g := got.Pix[gi : gi+4 : gi+4]
			e := want.Pix[wi : wi+4 : wi+4]
			var dmax uint8
			for c := 0; c < 4; c++ {
				delta := g[c] - e[c]
				if g[c] < e[c] {
					delta = e[c] - g[c]
				}
				sum += uint64(delta)
				if delta > dmax {
					dmax = delta
				}
			}
			if dmax > 0 {
				p := PixelDiff{
					X: x, Y: y,
					Got:   [4]uint8{g[0], g[1], g[2], g[3]},
					Want:  [4]uint8{e[0], e[1], e[2], e[3]},
					Delta: dmax,
					Edge:  x == 0 || y == 0 || x == w-1 || y == h-1,
				}
				if p.Edge {
					if dmax > d.EdgeDelta {
						d.EdgeDelta = dmax
						edgeAt = p
					}
				} else if dmax > d.MaxDelta {
					d.MaxDelta = dmax
					maxAt = p
				}
				d.record(p)
			}
			gi += 4
			wi += 4
		}
	}
	if n := uint64(w) * uint64(h) * 4; n > 0 {
		d.AvgDelta = float64(sum) / float64(n)
	}

	edgeMax := tol.EdgeMax
	if edgeMax == 0 {
		edgeMax = tol.Max
	}
	switch {
	case d.MaxDelta > tol.Max:
		d.Reason = fmt.Sprintf("max delta %d at (%d,%d) exceeds %d", d.MaxDelta, maxAt.X, maxAt.Y, tol.Max)
	case d.EdgeDelta > edgeMax:
		d.Reason = fmt.Sprintf("edge delta %d at (%d,%d) exceeds %d", d.EdgeDelta, edgeAt.X, edgeAt.Y, edgeMax)
	case tol.Avg > 0 && d.AvgDelta > tol.Avg:
		d.Reason = fmt.Sprintf("average delta %.4f exceeds %.2f", d.AvgDelta, tol.Avg)
	default:
		d.Pass = true
	}
	return d, nil
}

// record keeps Worst sorted by descending delta, capped at worstPixels.
func (d *Diff) record(p PixelDiff) {
	if len(d.Worst) == worstPixels && p.Delta <= d.Worst[worstPixels-1].Delta {
		return
	}
	i := len(d.Worst)
	for i > 0 && d.Worst[i-1].Delta < p.Delta {
		i--
	}
	if len(d.Worst) < worstPixels {
		d.Worst = append(d.Worst, PixelDiff{})
	}
	copy(d.Worst[i+1:], d.Worst[i:])
	d.Worst[i] = p
}
