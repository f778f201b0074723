package imgverify

import (
	"errors"
	"image/color"
	"testing"
)

func TestLayout(t *testing.T) {
	testCase := []struct {
		layout   Layout
		channels int
		name     string
		alpha    bool
	}{
		{Gray, 1, "gray", false},
		{GrayAlpha, 2, "gray+alpha", true},
		{RGB, 3, "rgb", false},
		{RGBA, 4, "rgba", true},
		{CMYK, 4, "cmyk", false},
		{Indexed, 1, "indexed", false},
	}
	for _, tc := range testCase {
		if got := tc.layout.Channels(); got != tc.channels {
			t.Errorf("%s: got %d channels, want %d", tc.name, got, tc.channels)
		}
		if got := tc.layout.String(); got != tc.name {
			t.Errorf("got %q, want %q", got, tc.name)
		}
		if got := tc.layout.HasAlpha(); got != tc.alpha {
			t.Errorf("%s: got alpha %v", tc.name, got)
		}
	}
	if got := Layout(99).String(); got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}

func TestSample(t *testing.T) {
	r := NewRaster(2, 1, RGB, 8)
	copy(r.Pix, []uint8{0, 51, 255, 1, 2, 3})
	if got := r.Sample(0, 0, 2); got != 1 {
		t.Errorf("got %v, want 1", got)
	}
	if got := r.Sample(1, 0, 0); got != 1.0/255 {
		t.Errorf("got %v, want 1/255", got)
	}

	deep := NewRaster(1, 1, Gray, 16)
	copy(deep.Pix, []uint8{0xff, 0xff})
	if got := deep.Sample(0, 0, 0); got != 1 {
		t.Errorf("16 bit: got %v, want 1", got)
	}
}

func TestClone(t *testing.T) {
	r := NewRaster(1, 1, Indexed, 8)
	r.Palette = []color.NRGBA{{R: 1}}
	c := r.Clone()
	c.Pix[0] = 9
	c.Palette[0] = color.NRGBA{R: 2}
	if r.Pix[0] == 9 || r.Palette[0].R == 2 {
		t.Error("clone shares storage with the original")
	}
}

func TestCheck(t *testing.T) {
	testCase := []struct {
		name   string
		raster *Raster
	}{
		{"empty", &Raster{}},
		{"bad depth", &Raster{Pix: make([]uint8, 4), Width: 2, Height: 2, Depth: 12, Stride: 2}},
		{"short pix", &Raster{Pix: make([]uint8, 3), Width: 2, Height: 2, Depth: 8, Stride: 2}},
		{"no palette", &Raster{Pix: make([]uint8, 4), Width: 2, Height: 2, Depth: 8, Stride: 2, Layout: Indexed}},
	}
	for _, tc := range testCase {
		if err := tc.raster.check(); !errors.Is(err, ErrDecode) {
			t.Errorf("%s: got %v", tc.name, err)
		}
	}
	if err := NewRaster(2, 2, RGBA, 8).check(); err != nil {
		t.Errorf("valid raster: got %v", err)
	}
}
