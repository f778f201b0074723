package imgverify

import (
	"bytes"
	"errors"
	"testing"
)

func grayRaster(w, h int, pix []uint8) *Raster {
	r := NewRaster(w, h, Gray, 8)
	copy(r.Pix, pix)
	return r
}

func TestReorient(t *testing.T) {
	src := grayRaster(3, 2, []uint8{
		1, 2, 3,
		4, 5, 6,
	})
	testCase := []struct {
		orientation Orientation
		width       int
		pix         []uint8
	}{
		{OrientationNormal, 3, []uint8{1, 2, 3, 4, 5, 6}},
		{OrientationFlipH, 3, []uint8{3, 2, 1, 6, 5, 4}},
		{OrientationRotate180, 3, []uint8{6, 5, 4, 3, 2, 1}},
		{OrientationFlipV, 3, []uint8{4, 5, 6, 1, 2, 3}},
		{OrientationTranspose, 2, []uint8{1, 4, 2, 5, 3, 6}},
		{OrientationRotate270, 2, []uint8{4, 1, 5, 2, 6, 3}},
		{OrientationTransverse, 2, []uint8{6, 3, 5, 2, 4, 1}},
		{OrientationRotate90, 2, []uint8{3, 6, 2, 5, 1, 4}},
	}
	for _, tc := range testCase {
		got, err := Reorient(src, tc.orientation)
		if err != nil {
			t.Fatal(tc.orientation, err)
		}
		if got.Width != tc.width || got.Width*got.Height != 6 {
			t.Fatalf("orientation %d: wrong size %dx%d", tc.orientation, got.Width, got.Height)
		}
		if !bytes.Equal(got.Pix, tc.pix) {
			t.Errorf("orientation %d: got %v, want %v", tc.orientation, got.Pix, tc.pix)
		}
	}
}

func TestReorientRoundTrip(t *testing.T) {
	inverse := map[Orientation]Orientation{
		OrientationNormal:     OrientationNormal,
		OrientationFlipH:      OrientationFlipH,
		OrientationRotate180:  OrientationRotate180,
		OrientationFlipV:      OrientationFlipV,
		OrientationTranspose:  OrientationTranspose,
		OrientationRotate270:  OrientationRotate90,
		OrientationTransverse: OrientationTransverse,
		OrientationRotate90:   OrientationRotate270,
	}
	src := NewRaster(5, 3, RGBA, 8)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	for o, inv := range inverse {
		once, err := Reorient(src, o)
		if err != nil {
			t.Fatal(o, err)
		}
		back, err := Reorient(once, inv)
		if err != nil {
			t.Fatal(inv, err)
		}
		if back.Width != src.Width || back.Height != src.Height {
			t.Fatalf("orientation %d: round trip changed size to %dx%d", o, back.Width, back.Height)
		}
		if !bytes.Equal(back.Pix, src.Pix) {
			t.Errorf("orientation %d does not round-trip", o)
		}
	}
}

func TestReorient16(t *testing.T) {
	src := NewRaster(2, 2, Gray, 16)
	copy(src.Pix, []uint8{
		0x11, 0x22, 0x33, 0x44,
		0x55, 0x66, 0x77, 0x88,
	})
	got, err := Reorient(src, OrientationRotate180)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint8{
		0x77, 0x88, 0x55, 0x66,
		0x33, 0x44, 0x11, 0x22,
	}
	if !bytes.Equal(got.Pix, want) {
		t.Errorf("16-bit rotate: got %x, want %x", got.Pix, want)
	}
}

func TestReorientRange(t *testing.T) {
	src := grayRaster(1, 1, []uint8{1})
	if _, err := Reorient(src, Orientation(9)); !errors.Is(err, ErrOrientation) {
		t.Fatalf("orientation 9 want ErrOrientation; got %v", err)
	}
	if _, err := Reorient(src, OrientationUnspecified); !errors.Is(err, ErrOrientation) {
		t.Fatalf("orientation 0 want ErrOrientation; got %v", err)
	}
}
