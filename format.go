package imgverify

import (
	"bytes"
	"fmt"
	"strings"
)

// Format is an image container format.
type Format int

// Image file formats.
const (
	FormatUnknown Format = iota
	JPEG
	PNG
	GIF
	TIFF
	BMP
	WEBP
	JP2
)

var formatNames = map[Format]string{
	JPEG: "jpeg",
	PNG:  "png",
	GIF:  "gif",
	TIFF: "tiff",
	BMP:  "bmp",
	WEBP: "webp",
	JP2:  "jp2",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// FormatFromExtension parses an image format from a filename extension
// or format name. The leading dot and letter case are ignored.
func FormatFromExtension(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "gif":
		return GIF, nil
	case "tif", "tiff":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	case "webp":
		return WEBP, nil
	case "jp2", "j2k", "jpc":
		return JP2, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrFormat, ext)
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	jp2Magic  = []byte{0x00, 0x00, 0x00, 0x0c, 'j', 'P', ' ', ' ', 0x0d, 0x0a, 0x87, 0x0a}
	j2kMagic  = []byte{0xff, 0x4f, 0xff, 0x51}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// DetectFormat sniffs the container format from the leading magic bytes.
func DetectFormat(data []byte) (Format, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff:
		return JPEG, nil
	case bytes.HasPrefix(data, pngMagic):
		return PNG, nil
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return GIF, nil
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpMagic):
		return WEBP, nil
	case bytes.HasPrefix(data, []byte{'I', 'I', 0x2a, 0x00}) || bytes.HasPrefix(data, []byte{'M', 'M', 0x00, 0x2a}):
		return TIFF, nil
	case bytes.HasPrefix(data, []byte("BM")):
		return BMP, nil
	case bytes.HasPrefix(data, jp2Magic) || bytes.HasPrefix(data, j2kMagic):
		return JP2, nil
	}
	return FormatUnknown, ErrFormat
}
