// Package oracle adapts an external reference decoder into the
// Decoder interface so the harness can compare a backend against a
// second, independent implementation.
package oracle

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sunshineplan/imgverify"
)

// maxPayload caps the pixel payload a subprocess may declare.
const maxPayload = 1 << 31

// Exec runs a reference decoder as a subprocess, once per image. The
// command receives the image path as its final argument and writes to
// standard output an 8-byte header, width then height as big-endian
// 32-bit values, followed by width*height*4 bytes of tightly packed
// 8-bit RGBA rows.
//
// The subprocess must emit decoded pixels only, without applying EXIF
// orientation or color management: the harness runs both sides through
// the same canonicalization, so any remaining difference is the
// decoders' own. A non-zero exit reports a decode failure; standard
// error is folded into the returned error.
type Exec struct {
	// Path is the decoder executable, Args are passed before the
	// image path.
	Path string
	Args []string
	// Dir is where temporary inputs are written. Empty means the
	// system default.
	Dir string
}

// New returns an Exec oracle for the given command line.
func New(path string, args ...string) *Exec {
	return &Exec{Path: path, Args: args}
}

// Decode implements imgverify.Decoder. Metadata is extracted from the
// source bytes in-process; the subprocess only supplies pixels.
func (e *Exec) Decode(ctx context.Context, data []byte) (*imgverify.Raster, imgverify.Metadata, error) {
	meta := imgverify.ExtractMetadata(data)

	f, err := os.CreateTemp(e.Dir, "oracle-*"+formatExt(meta.Format))
	if err != nil {
		return nil, meta, err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, meta, err
	}
	if err := f.Close(); err != nil {
		return nil, meta, err
	}

	args := append(append([]string(nil), e.Args...), tmp)
	cmd := exec.CommandContext(ctx, e.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, meta, ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, meta, fmt.Errorf("%w: %v: %s", imgverify.ErrDecode, err, msg)
		}
		return nil, meta, fmt.Errorf("%w: %v", imgverify.ErrDecode, err)
	}

	raw := stdout.Bytes()
	if len(raw) < 8 {
		return nil, meta, fmt.Errorf("%w: short oracle output (%d bytes)", imgverify.ErrDecode, len(raw))
	}
	w := binary.BigEndian.Uint32(raw[0:4])
	h := binary.BigEndian.Uint32(raw[4:8])
	size := int64(w) * int64(h) * 4
	if w == 0 || h == 0 || size > maxPayload {
		return nil, meta, fmt.Errorf("%w: implausible oracle size %dx%d", imgverify.ErrDecode, w, h)
	}
	if size != int64(len(raw)-8) {
		return nil, meta, fmt.Errorf("%w: oracle payload is %d bytes, header says %d", imgverify.ErrDecode, len(raw)-8, size)
	}

	raster := imgverify.NewRaster(int(w), int(h), imgverify.RGBA, 8)
	copy(raster.Pix, raw[8:])
	return raster, meta, nil
}

func formatExt(f imgverify.Format) string {
	switch f {
	case imgverify.JPEG:
		return ".jpg"
	case imgverify.PNG:
		return ".png"
	case imgverify.GIF:
		return ".gif"
	case imgverify.TIFF:
		return ".tif"
	case imgverify.BMP:
		return ".bmp"
	case imgverify.WEBP:
		return ".webp"
	case imgverify.JP2:
		return ".jp2"
	}
	return ".bin"
}
