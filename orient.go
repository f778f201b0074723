package imgverify

import (
	"fmt"
	"runtime"
	"sync"
)

// Orientation is an EXIF flag that specifies the transformation
// that should be applied to image to display it correctly.
type Orientation int

const (
	OrientationUnspecified Orientation = iota
	OrientationNormal
	OrientationFlipH
	OrientationRotate180
	OrientationFlipV
	OrientationTranspose
	OrientationRotate270
	OrientationTransverse
	OrientationRotate90
)

// Reorient applies the geometric transform named by the orientation code
// and returns a raster whose orientation is effectively reset to normal.
// The remap is a pure index permutation, so applying a transform and then
// its inverse reproduces the original buffer byte for byte. Width and
// height swap for codes 5 through 8. Codes outside 1..8 are rejected.
func Reorient(r *Raster, o Orientation) (*Raster, error) {
	switch o {
	case OrientationNormal:
		return r, nil
	case OrientationFlipH:
		return flipH(r), nil
	case OrientationRotate180:
		return rotate180(r), nil
	case OrientationFlipV:
		return flipV(r), nil
	case OrientationTranspose:
		return transpose(r), nil
	case OrientationRotate270:
		return rotate270(r), nil
	case OrientationTransverse:
		return transverse(r), nil
	case OrientationRotate90:
		return rotate90(r), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrOrientation, o)
}

// newLike allocates a raster sharing src's layout, depth and palette
// with the given dimensions and a tight stride.
func newLike(src *Raster, width, height int) *Raster {
	dst := NewRaster(width, height, src.Layout, src.Depth)
	dst.Palette = src.Palette
	dst.Inverted = src.Inverted
	return dst
}

// flipH flips the raster horizontally (from left to right).
func flipH(src *Raster) *Raster {
	dst := newLike(src, src.Width, src.Height)
	px := src.PixelBytes()
	rowSize := src.Width * px
	parallel(0, dst.Height, func(ys <-chan int) {
		for dstY := range ys {
			i := dstY * dst.Stride
			copy(dst.Pix[i:i+rowSize], src.Pix[dstY*src.Stride:])
			reverseRow(dst.Pix[i:i+rowSize], px)
		}
	})
	return dst
}

// flipV flips the raster vertically (from top to bottom).
func flipV(src *Raster) *Raster {
	dst := newLike(src, src.Width, src.Height)
	rowSize := src.Width * src.PixelBytes()
	parallel(0, dst.Height, func(ys <-chan int) {
		for dstY := range ys {
			i := dstY * dst.Stride
			srcY := src.Height - dstY - 1
			copy(dst.Pix[i:i+rowSize], src.Pix[srcY*src.Stride:])
		}
	})
	return dst
}

// rotate180 rotates the raster 180 degrees.
func rotate180(src *Raster) *Raster {
	dst := newLike(src, src.Width, src.Height)
	px := src.PixelBytes()
	rowSize := src.Width * px
	parallel(0, dst.Height, func(ys <-chan int) {
		for dstY := range ys {
			i := dstY * dst.Stride
			srcY := src.Height - dstY - 1
			copy(dst.Pix[i:i+rowSize], src.Pix[srcY*src.Stride:])
			reverseRow(dst.Pix[i:i+rowSize], px)
		}
	})
	return dst
}

// transpose flips the raster horizontally and rotates 90 degrees counter-clockwise.
func transpose(src *Raster) *Raster {
	dst := newLike(src, src.Height, src.Width)
	px := src.PixelBytes()
	parallel(0, dst.Height, func(ys <-chan int) {
		for dstY := range ys {
			i := dstY * dst.Stride
			for dstX := 0; dstX < dst.Width; dstX++ {
				j := dstX*src.Stride + dstY*px
				copy(dst.Pix[i:i+px], src.Pix[j:j+px])
				i += px
			}
		}
	})
	return dst
}

// transverse flips the raster vertically and rotates 90 degrees counter-clockwise.
func transverse(src *Raster) *Raster {
	dst := newLike(src, src.Height, src.Width)
	px := src.PixelBytes()
	parallel(0, dst.Height, func(ys <-chan int) {
		for dstY := range ys {
			i := dstY * dst.Stride
			srcX := src.Width - dstY - 1
			for dstX := 0; dstX < dst.Width; dstX++ {
				srcY := src.Height - dstX - 1
				j := srcY*src.Stride + srcX*px
				copy(dst.Pix[i:i+px], src.Pix[j:j+px])
				i += px
			}
		}
	})
	return dst
}

// rotate90 rotates the raster 90 degrees counter-clockwise.
func rotate90(src *Raster) *Raster {
	dst := newLike(src, src.Height, src.Width)
	px := src.PixelBytes()
	parallel(0, dst.Height, func(ys <-chan int) {
		for dstY := range ys {
			i := dstY * dst.Stride
			srcX := src.Width - dstY - 1
			for dstX := 0; dstX < dst.Width; dstX++ {
				j := dstX*src.Stride + srcX*px
				copy(dst.Pix[i:i+px], src.Pix[j:j+px])
				i += px
			}
		}
	})
	return dst
}

// rotate270 rotates the raster 270 degrees counter-clockwise.
func rotate270(src *Raster) *Raster {
	dst := newLike(src, src.Height, src.Width)
	px := src.PixelBytes()
	parallel(0, dst.Height, func(ys <-chan int) {
		for dstY := range ys {
			i := dstY * dst.Stride
			for dstX := 0; dstX < dst.Width; dstX++ {
				srcY := src.Height - dstX - 1
				j := srcY*src.Stride + dstY*px
				copy(dst.Pix[i:i+px], src.Pix[j:j+px])
				i += px
			}
		}
	})
	return dst
}

// parallel processes the rows in separate goroutines.
func parallel(start, stop int, fn func(<-chan int)) {
	count := stop - start
	if count < 1 {
		return
	}

	procs := runtime.GOMAXPROCS(0)
	if procs > count {
		procs = count
	}

	c := make(chan int, count)
	for i := start; i < stop; i++ {
		c <- i
	}
	close(c)

	var wg sync.WaitGroup
	for i := 0; i < procs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(c)
		}()
	}
	wg.Wait()
}

// reverseRow reverses a row of px-byte pixels in place.
func reverseRow(pix []uint8, px int) {
	if len(pix) <= px {
		return
	}
	i := 0
	j := len(pix) - px
	for i < j {
		for k := 0; k < px; k++ {
			pix[i+k], pix[j+k] = pix[j+k], pix[i+k]
		}
		i += px
		j -= px
	}
}
