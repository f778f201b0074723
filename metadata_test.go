package imgverify

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
	"seehuhn.de/go/icc"
)

// tiffBlob builds a one-entry IFD carrying an orientation tag, in
// either byte order.
func tiffBlob(endian string, orient uint16) []byte {
	var bo binary.ByteOrder = binary.BigEndian
	if endian == "II" {
		bo = binary.LittleEndian
	}
	var b bytes.Buffer
	b.WriteString(endian)
	binary.Write(&b, bo, uint16(0x2a))
	binary.Write(&b, bo, uint32(8))      // IFD0 offset
	binary.Write(&b, bo, uint16(1))      // entry count
	binary.Write(&b, bo, uint16(0x0112)) // orientation
	binary.Write(&b, bo, uint16(3))      // SHORT
	binary.Write(&b, bo, uint32(1))
	binary.Write(&b, bo, orient)
	binary.Write(&b, bo, uint16(0)) // value padding
	return b.Bytes()
}

func app(marker byte, payload []byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{0xff, marker})
	binary.Write(&b, binary.BigEndian, uint16(len(payload)+2))
	b.Write(payload)
	return b.Bytes()
}

func jpegFile(segments ...[]byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{0xff, 0xd8})
	for _, seg := range segments {
		b.Write(seg)
	}
	b.Write([]byte{0xff, 0xd9})
	return b.Bytes()
}

func exifApp1(endian string, orient uint16) []byte {
	return app(markerAPP1, append([]byte("Exif\x00\x00"), tiffBlob(endian, orient)...))
}

func pngChunk(typ string, body []byte) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(len(body)))
	b.WriteString(typ)
	b.Write(body)
	b.Write([]byte{0, 0, 0, 0}) // crc is not checked by the scanner
	return b.Bytes()
}

func pngFile(chunks ...[]byte) []byte {
	var b bytes.Buffer
	b.Write(pngMagic)
	b.Write(pngChunk("IHDR", make([]byte, 13)))
	for _, c := range chunks {
		b.Write(c)
	}
	b.Write(pngChunk("IDAT", nil))
	b.Write(pngChunk("IEND", nil))
	return b.Bytes()
}

func TestExtractOrientation(t *testing.T) {
	testCase := []struct {
		endian string
		tag    uint16
		want   Orientation
	}{
		{"II", 6, OrientationRotate270},
		{"MM", 6, OrientationRotate270},
		{"II", 1, OrientationNormal},
		{"MM", 8, OrientationRotate90},
	}
	for _, tc := range testCase {
		m := ExtractMetadata(jpegFile(exifApp1(tc.endian, tc.tag)))
		if m.Format != JPEG {
			t.Fatalf("%s: format %s, want jpeg", tc.endian, m.Format)
		}
		if m.Orientation != tc.want {
			t.Errorf("%s orientation tag %d: got %d, want %d", tc.endian, tc.tag, m.Orientation, tc.want)
		}
		if len(m.Warnings) != 0 {
			t.Errorf("%s orientation tag %d: unexpected warnings %v", tc.endian, tc.tag, m.Warnings)
		}
	}
}

func TestExtractOrientationRange(t *testing.T) {
	m := ExtractMetadata(jpegFile(exifApp1("II", 9)))
	if m.Orientation != OrientationNormal {
		t.Errorf("orientation tag 9: got %d, want normal", m.Orientation)
	}
	if len(m.Warnings) == 0 {
		t.Error("orientation tag 9 want a warning")
	}
}

func TestExtractDefaults(t *testing.T) {
	m := ExtractMetadata(jpegFile())
	if m.Orientation != OrientationNormal {
		t.Errorf("bare jpeg orientation: got %d, want normal", m.Orientation)
	}
	if m.AdobeTransform != -1 {
		t.Errorf("bare jpeg adobe transform: got %d, want -1", m.AdobeTransform)
	}
	if m.Profile.Kind != ProfileNone {
		t.Errorf("bare jpeg profile: got %s, want none", m.Profile.Kind)
	}
}

func TestExtractAdobe(t *testing.T) {
	m := ExtractMetadata(jpegFile(app(markerAPP14, []byte("Adobe\x00\x64\x00\x00\x00\x00\x02"))))
	if m.AdobeTransform != 2 {
		t.Errorf("adobe transform: got %d, want 2", m.AdobeTransform)
	}
}

func TestExtractJPEGICC(t *testing.T) {
	profile := icc.SRGBv2Profile
	half := len(profile) / 2
	m := ExtractMetadata(jpegFile(
		app(markerAPP2, append(append([]byte("ICC_PROFILE\x00"), 1, 2), profile[:half]...)),
		app(markerAPP2, append(append([]byte("ICC_PROFILE\x00"), 2, 2), profile[half:]...)),
	))
	if m.Profile.Kind != ProfileICC {
		t.Fatalf("profile kind: got %s, want icc", m.Profile.Kind)
	}
	if !bytes.Equal(m.Profile.ICC, profile) {
		t.Error("reassembled ICC profile differs from the original")
	}

	// A missing chunk falls back to assume-sRGB with a warning.
	m = ExtractMetadata(jpegFile(
		app(markerAPP2, append(append([]byte("ICC_PROFILE\x00"), 2, 2), profile[half:]...)),
	))
	if m.Profile.Kind != ProfileNone {
		t.Errorf("incomplete profile kind: got %s, want none", m.Profile.Kind)
	}
	if len(m.Warnings) == 0 {
		t.Error("incomplete profile want a warning")
	}
}

func TestExtractPNGProfile(t *testing.T) {
	gama := pngChunk("gAMA", binary.BigEndian.AppendUint32(nil, 45455))
	srgb := pngChunk("sRGB", []byte{0})

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write(icc.SRGBv2Profile); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	iccp := pngChunk("iCCP", append([]byte("icc\x00\x00"), z.Bytes()...))

	testCase := []struct {
		name   string
		chunks [][]byte
		want   Profile
	}{
		{"gamma", [][]byte{gama}, Profile{Kind: ProfileGamma, Gamma: 0.45455}},
		{"srgb over gamma", [][]byte{gama, srgb}, Profile{Kind: ProfileSRGB}},
		{"iccp over srgb", [][]byte{iccp, srgb, gama}, Profile{Kind: ProfileICC, ICC: icc.SRGBv2Profile}},
	}
	for _, tc := range testCase {
		m := ExtractMetadata(pngFile(tc.chunks...))
		if m.Format != PNG {
			t.Fatalf("%s: format %s, want png", tc.name, m.Format)
		}
		if diff := cmp.Diff(tc.want, m.Profile); diff != "" {
			t.Errorf("%s: profile mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestExtractPNGBadICCP(t *testing.T) {
	m := ExtractMetadata(pngFile(pngChunk("iCCP", []byte("no nul terminator"))))
	if m.Profile.Kind != ProfileNone {
		t.Errorf("bad iCCP profile kind: got %s, want none", m.Profile.Kind)
	}
	if len(m.Warnings) == 0 {
		t.Error("bad iCCP want a warning")
	}
}

func TestExtractPNGEXIF(t *testing.T) {
	m := ExtractMetadata(pngFile(pngChunk("eXIf", tiffBlob("MM", 3))))
	if m.Orientation != OrientationRotate180 {
		t.Errorf("eXIf orientation: got %d, want %d", m.Orientation, OrientationRotate180)
	}
	m = ExtractMetadata(pngFile(pngChunk("acTL", make([]byte, 8))))
	if !m.Animated {
		t.Error("acTL chunk should mark the image animated")
	}
}

func TestExtractTIFF(t *testing.T) {
	profile := icc.SRGBv2Profile
	var b bytes.Buffer
	bo := binary.BigEndian
	b.WriteString("MM")
	binary.Write(&b, bo, uint16(0x2a))
	binary.Write(&b, bo, uint32(8))
	binary.Write(&b, bo, uint16(2))
	binary.Write(&b, bo, uint16(0x0112)) // orientation
	binary.Write(&b, bo, uint16(3))
	binary.Write(&b, bo, uint32(1))
	binary.Write(&b, bo, uint16(5))
	binary.Write(&b, bo, uint16(0))
	binary.Write(&b, bo, uint16(0x8773)) // icc profile
	binary.Write(&b, bo, uint16(7))      // UNDEFINED
	binary.Write(&b, bo, uint32(len(profile)))
	binary.Write(&b, bo, uint32(8+2+2*12+4))
	binary.Write(&b, bo, uint32(0)) // no next IFD
	b.Write(profile)

	m := ExtractMetadata(b.Bytes())
	if m.Format != TIFF {
		t.Fatalf("format %s, want tiff", m.Format)
	}
	if m.Orientation != OrientationTranspose {
		t.Errorf("orientation: got %d, want %d", m.Orientation, OrientationTranspose)
	}
	if m.Profile.Kind != ProfileICC || !bytes.Equal(m.Profile.ICC, profile) {
		t.Error("tiff ICC profile was not extracted")
	}
}

func gifFrame() []byte {
	return []byte{
		0x2c,
		0, 0, 0, 0, 1, 0, 1, 0, // 1x1 at origin
		0x00,             // no local color table
		0x02, 0x01, 0x00, // minimum code size and one data block
		0x00, // block terminator
	}
}

func TestExtractAnimated(t *testing.T) {
	header := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00")
	single := append(append([]byte{}, header...), gifFrame()...)
	single = append(single, 0x3b)
	if m := ExtractMetadata(single); m.Animated {
		t.Error("single frame gif reported animated")
	}

	double := append(append([]byte{}, header...), gifFrame()...)
	double = append(double, gifFrame()...)
	double = append(double, 0x3b)
	if m := ExtractMetadata(double); !m.Animated {
		t.Error("two frame gif not reported animated")
	}

	vp8x := []byte("RIFF\x00\x00\x00\x00WEBPVP8X\x0a\x00\x00\x00\x02")
	if m := ExtractMetadata(vp8x); !m.Animated {
		t.Error("animated webp not reported animated")
	}
	vp8x[20] = 0
	if m := ExtractMetadata(vp8x); m.Animated {
		t.Error("still webp reported animated")
	}
}
