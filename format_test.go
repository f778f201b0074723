package imgverify

import (
	"errors"
	"testing"
)

func TestFormatFromExtension(t *testing.T) {
	if _, err := FormatFromExtension("Jpg"); err != nil {
		t.Fatal("jpg format want no error")
	}
	if _, err := FormatFromExtension(".TIFF"); err != nil {
		t.Fatal("tiff format want no error")
	}
	if f, _ := FormatFromExtension("j2k"); f != JP2 {
		t.Fatalf("j2k want jp2 format; got %s", f)
	}
	if _, err := FormatFromExtension("txt"); !errors.Is(err, ErrFormat) {
		t.Fatal("txt format want error")
	}
}

func TestDetectFormat(t *testing.T) {
	testCase := []struct {
		data   []byte
		format Format
	}{
		{[]byte{0xff, 0xd8, 0xff, 0xe0}, JPEG},
		{[]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, PNG},
		{[]byte("GIF87a"), GIF},
		{[]byte("GIF89a"), GIF},
		{[]byte("RIFF\x00\x00\x00\x00WEBP"), WEBP},
		{[]byte{'I', 'I', 0x2a, 0x00}, TIFF},
		{[]byte{'M', 'M', 0x00, 0x2a}, TIFF},
		{[]byte("BM\x00\x00"), BMP},
		{[]byte{0x00, 0x00, 0x00, 0x0c, 'j', 'P', ' ', ' ', 0x0d, 0x0a, 0x87, 0x0a}, JP2},
		{[]byte{0xff, 0x4f, 0xff, 0x51}, JP2},
	}
	for _, tc := range testCase {
		f, err := DetectFormat(tc.data)
		if err != nil {
			t.Fatal(tc.format, err)
		}
		if f != tc.format {
			t.Errorf("expected %s format; got %s", tc.format, f)
		}
	}
	if _, err := DetectFormat([]byte("not an image")); !errors.Is(err, ErrFormat) {
		t.Fatal("junk data want ErrFormat")
	}
	if _, err := DetectFormat(nil); !errors.Is(err, ErrFormat) {
		t.Fatal("empty data want ErrFormat")
	}
}
