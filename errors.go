package imgverify

import "errors"

var (
	// ErrFormat is returned when the container magic is not recognized.
	ErrFormat = errors.New("imgverify: unknown image format")
	// ErrDecode is returned when source bytes cannot be decoded.
	ErrDecode = errors.New("imgverify: cannot decode image")
	// ErrOrientation is returned for orientation codes outside 1..8.
	ErrOrientation = errors.New("imgverify: orientation code out of range")
	// ErrColorConvert is returned when a raster cannot be converted to sRGB.
	ErrColorConvert = errors.New("imgverify: cannot convert color")
)
