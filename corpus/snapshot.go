package corpus

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/sunshineplan/imgverify"
)

// Snapshots store canonical reference pixels: a small header with the
// dimensions followed by a zstd frame of tightly packed 8-bit RGBA
// rows. They compress far better than PNG re-encoding while staying
// trivially exact to read back.
const (
	snapshotExt     = ".ivsn"
	snapshotMagic   = "IVSN"
	snapshotVersion = 1

	// maxSnapshotBytes caps the decoded payload so a corrupt header
	// cannot demand an absurd allocation.
	maxSnapshotBytes = 1 << 31
)

// WriteSnapshot writes img to w in snapshot format.
func WriteSnapshot(w io.Writer, img *imgverify.CanonicalImage) error {
	if img.Layout != imgverify.RGBA || img.Depth != 8 {
		return fmt.Errorf("corpus: snapshot needs canonical RGBA, got %v/%d", img.Layout, img.Depth)
	}
	var header [13]byte
	copy(header[:4], snapshotMagic)
	header[4] = snapshotVersion
	binary.BigEndian.PutUint32(header[5:9], uint32(img.Width))
	binary.BigEndian.PutUint32(header[9:13], uint32(img.Height))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	rowSize := img.Width * 4
	for y := 0; y < img.Height; y++ {
		if _, err := enc.Write(img.Pix[y*img.Stride : y*img.Stride+rowSize]); err != nil {
			enc.Close()
			return err
		}
	}
	return enc.Close()
}

// ReadSnapshot reads a snapshot back into a canonical image.
func ReadSnapshot(r io.Reader) (*imgverify.CanonicalImage, error) {
	var header [13]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("corpus: short snapshot header: %v", err)
	}
	if string(header[:4]) != snapshotMagic {
		return nil, fmt.Errorf("corpus: not a snapshot file")
	}
	if header[4] != snapshotVersion {
		return nil, fmt.Errorf("corpus: unsupported snapshot version %d", header[4])
	}
	w := int(binary.BigEndian.Uint32(header[5:9]))
	h := int(binary.BigEndian.Uint32(header[9:13]))
	if w <= 0 || h <= 0 || int64(w)*int64(h)*4 > maxSnapshotBytes {
		return nil, fmt.Errorf("corpus: implausible snapshot size %dx%d", w, h)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	raster := imgverify.NewRaster(w, h, imgverify.RGBA, 8)
	if _, err := io.ReadFull(dec, raster.Pix); err != nil {
		return nil, fmt.Errorf("corpus: short snapshot payload: %v", err)
	}
	return &imgverify.CanonicalImage{Raster: *raster}, nil
}

// SaveSnapshot records img at path, creating parent directories.
func SaveSnapshot(path string, img *imgverify.CanonicalImage) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSnapshot(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadSnapshot reads the snapshot recorded at path.
func LoadSnapshot(path string) (*imgverify.CanonicalImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}
