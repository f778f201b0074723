package imgverify

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ProfileKind tags the color profile variants an image can carry.
type ProfileKind int

const (
	// ProfileNone means no color information was found; samples are
	// treated as already sRGB encoded.
	ProfileNone ProfileKind = iota
	// ProfileSRGB means the image explicitly declares sRGB encoding.
	ProfileSRGB
	// ProfileGamma means the image declares a plain transfer exponent.
	ProfileGamma
	// ProfileICC means the image embeds an ICC profile.
	ProfileICC
)

func (k ProfileKind) String() string {
	switch k {
	case ProfileSRGB:
		return "srgb"
	case ProfileGamma:
		return "gamma"
	case ProfileICC:
		return "icc"
	}
	return "none"
}

// Profile describes how the samples of a raster are color encoded.
type Profile struct {
	Kind ProfileKind
	// Gamma is the file's encoding exponent, set for ProfileGamma.
	// PNG stores roughly 0.45455 for sRGB-like content.
	Gamma float64
	// ICC holds the raw profile bytes, set for ProfileICC.
	ICC []byte
}

// Metadata is everything the canonicalization pipeline needs to know
// about a decoded image beyond its pixels. It is extracted once per
// decode and not mutated afterwards. The assume-sRGB fallback is always
// visible here as ProfileNone plus a warning, never applied silently.
type Metadata struct {
	Format      Format
	Orientation Orientation
	Profile     Profile
	// AdobeTransform is the JPEG APP14 color transform byte
	// (0 RGB/CMYK, 1 YCbCr, 2 YCCK), -1 when the marker is absent.
	AdobeTransform int
	// Animated marks multi-frame sources; only the first frame is decoded.
	Animated bool
	Warnings []string
}

func (m *Metadata) warn(format string, args ...any) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, args...))
}

// setOrientation validates a raw orientation tag value. Out of range
// values fall back to normal with a warning rather than failing.
func (m *Metadata) setOrientation(v int) {
	if v < 1 || v > 8 {
		m.warn("invalid orientation %d, assuming normal", v)
		m.Orientation = OrientationNormal
		return
	}
	m.Orientation = Orientation(v)
}

// ExtractMetadata reads orientation, color profile and animation hints
// from encoded image bytes. It never fails: on malformed metadata it
// falls back to orientation normal and assume-sRGB, recording warnings.
// The raster itself is not touched.
func ExtractMetadata(data []byte) Metadata {
	m := Metadata{
		Orientation:    OrientationNormal,
		AdobeTransform: -1,
	}
	f, err := DetectFormat(data)
	if err != nil {
		return m
	}
	m.Format = f
	switch f {
	case JPEG:
		m.scanJPEG(data)
	case PNG:
		m.scanPNG(data)
	case GIF:
		m.Animated = gifAnimated(data)
	case TIFF:
		o, found, icc := scanTIFF(data)
		if found {
			m.setOrientation(o)
		}
		if len(icc) > 0 {
			m.Profile = Profile{Kind: ProfileICC, ICC: icc}
		}
	case WEBP:
		m.Animated = webpAnimated(data)
	}
	return m
}

const (
	markerSOS   = 0xda
	markerEOI   = 0xd9
	markerAPP1  = 0xe1
	markerAPP2  = 0xe2
	markerAPP14 = 0xee
)

var (
	exifHeader = []byte("Exif\x00\x00")
	iccHeader  = []byte("ICC_PROFILE\x00")
	adobeSig   = []byte("Adobe")
)

// scanJPEG walks the segments before SOS and collects the EXIF
// orientation, the reassembled APP2 ICC profile and the APP14 Adobe
// color transform.
func (m *Metadata) scanJPEG(data []byte) {
	var (
		iccChunks [][]byte
		iccTotal  int
	)
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xff {
			break
		}
		// Skip fill bytes.
		for i+4 <= len(data) && data[i+1] == 0xff {
			i++
		}
		marker := data[i+1]
		if marker == markerSOS || marker == markerEOI {
			break
		}
		size := int(data[i+2])<<8 | int(data[i+3])
		if size < 2 || i+2+size > len(data) {
			break
		}
		seg := data[i+4 : i+2+size]
		switch marker {
		case markerAPP1:
			if bytes.HasPrefix(seg, exifHeader) {
				if o, found, _ := scanTIFF(seg[len(exifHeader):]); found {
					m.setOrientation(o)
				}
			}
		case markerAPP2:
			if len(seg) > len(iccHeader)+2 && bytes.HasPrefix(seg, iccHeader) {
				seq := int(seg[len(iccHeader)])
				total := int(seg[len(iccHeader)+1])
				if iccTotal == 0 {
					iccTotal = total
					iccChunks = make([][]byte, total)
				}
				if total == iccTotal && seq >= 1 && seq <= total {
					iccChunks[seq-1] = seg[len(iccHeader)+2:]
				}
			}
		case markerAPP14:
			if len(seg) >= 12 && bytes.HasPrefix(seg, adobeSig) {
				m.AdobeTransform = int(seg[11])
			}
		}
		i += 2 + size
	}

	if iccTotal > 0 {
		var profile []byte
		for _, c := range iccChunks {
			if c == nil {
				m.warn("incomplete ICC profile, assuming sRGB")
				return
			}
			profile = append(profile, c...)
		}
		m.Profile = Profile{Kind: ProfileICC, ICC: profile}
	}
}

// maxProfileSize caps iCCP decompression so a malformed chunk cannot
// balloon the extractor.
const maxProfileSize = 16 << 20

// scanPNG walks the chunks before IDAT. Profile priority follows the
// PNG recommendation: iCCP over sRGB over gAMA. An acTL chunk marks the
// image as animated.
func (m *Metadata) scanPNG(data []byte) {
	var (
		gamma   float64
		srgb    bool
		iccData []byte
	)
	i := len(pngMagic)
	for i+8 <= len(data) {
		n := int(binary.BigEndian.Uint32(data[i:]))
		typ := string(data[i+4 : i+8])
		if n < 0 || i+8+n > len(data) {
			break
		}
		body := data[i+8 : i+8+n]
		switch typ {
		case "gAMA":
			if n == 4 {
				gamma = float64(binary.BigEndian.Uint32(body)) / 100000
			}
		case "sRGB":
			srgb = true
		case "iCCP":
			iccData = inflateICCP(body, m)
		case "acTL":
			m.Animated = true
		case "eXIf":
			if o, found, _ := scanTIFF(body); found {
				m.setOrientation(o)
			}
		case "IDAT", "IEND":
			i = len(data)
			continue
		}
		i += 8 + n + 4
	}

	switch {
	case len(iccData) > 0:
		m.Profile = Profile{Kind: ProfileICC, ICC: iccData}
	case srgb:
		m.Profile = Profile{Kind: ProfileSRGB}
	case gamma > 0:
		m.Profile = Profile{Kind: ProfileGamma, Gamma: gamma}
	}
}

// inflateICCP decompresses the profile from an iCCP chunk body:
// profile name, null, compression method, zlib stream.
func inflateICCP(body []byte, m *Metadata) []byte {
	j := bytes.IndexByte(body, 0)
	if j < 0 || j+2 > len(body) || body[j+1] != 0 {
		m.warn("malformed iCCP chunk, assuming sRGB")
		return nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(body[j+2:]))
	if err != nil {
		m.warn("unreadable ICC profile, assuming sRGB")
		return nil
	}
	defer zr.Close()
	profile, err := io.ReadAll(io.LimitReader(zr, maxProfileSize))
	if err != nil || len(profile) == 0 {
		m.warn("unreadable ICC profile, assuming sRGB")
		return nil
	}
	return profile
}

const (
	orientationTag = 0x0112
	iccProfileTag  = 0x8773
)

// scanTIFF walks IFD0 of a TIFF blob (a TIFF file or the payload of a
// JPEG APP1 or PNG eXIf block) and returns the raw orientation tag
// value and any embedded ICC profile.
func scanTIFF(data []byte) (orient int, found bool, icc []byte) {
	if len(data) < 8 {
		return
	}
	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I' && data[2] == 0x2a && data[3] == 0:
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M' && data[2] == 0 && data[3] == 0x2a:
		bo = binary.BigEndian
	default:
		return
	}
	off := int(bo.Uint32(data[4:8]))
	if off < 8 || off+2 > len(data) {
		return
	}
	n := int(bo.Uint16(data[off:]))
	for k := 0; k < n; k++ {
		e := off + 2 + k*12
		if e+12 > len(data) {
			return
		}
		switch bo.Uint16(data[e:]) {
		case orientationTag:
			if bo.Uint16(data[e+2:]) == 3 { // SHORT
				orient = int(bo.Uint16(data[e+8:]))
				found = true
			}
		case iccProfileTag:
			count := int(bo.Uint32(data[e+4:]))
			val := int(bo.Uint32(data[e+8:]))
			if count > 4 && val >= 0 && val+count <= len(data) {
				icc = data[val : val+count]
			}
		}
	}
	return
}

// gifAnimated reports whether a GIF stream contains more than one image
// descriptor. Sub-blocks are skipped by length without LZW decoding.
func gifAnimated(data []byte) bool {
	if len(data) < 13 {
		return false
	}
	flags := data[10]
	i := 13
	if flags&0x80 != 0 {
		i += 3 << ((flags & 7) + 1)
	}
	images := 0
	for i < len(data) {
		switch data[i] {
		case 0x3b: // trailer
			return images > 1
		case 0x21: // extension block
			i += 2
			for i < len(data) && data[i] != 0 {
				i += int(data[i]) + 1
			}
			i++
		case 0x2c: // image descriptor
			images++
			if images > 1 {
				return true
			}
			if i+10 > len(data) {
				return false
			}
			local := data[i+9]
			i += 10
			if local&0x80 != 0 {
				i += 3 << ((local & 7) + 1)
			}
			i++ // LZW minimum code size
			for i < len(data) && data[i] != 0 {
				i += int(data[i]) + 1
			}
			i++
		default:
			return false
		}
	}
	return images > 1
}

// webpAnimated checks the animation flag of an extended WEBP header.
func webpAnimated(data []byte) bool {
	return len(data) >= 21 && bytes.Equal(data[12:16], []byte("VP8X")) && data[20]&0x02 != 0
}
