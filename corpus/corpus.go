// Package corpus enumerates a directory tree of sample images and the
// reference material recorded for them. Enumeration order is
// deterministic so that runs over the same tree are comparable.
package corpus

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sunshineplan/imgverify"
)

// ManifestName is the optional per-corpus settings file.
const ManifestName = "manifest.json"

// SnapshotDir holds recorded reference pixels, mirroring the corpus
// tree. It is skipped during enumeration.
const SnapshotDir = ".snapshots"

var supported = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|tiff?|bmp|webp|jp2|j2k|jpc)$`)

// Entry is one corpus image together with its reference material.
type Entry struct {
	// ID is the slash-separated path relative to the corpus root.
	ID     string
	Source string
	Format imgverify.Format

	// Snapshot is the recorded reference pixel file, empty if none
	// was recorded. Hash is the expected canonical digest from the
	// manifest, empty if unset.
	Snapshot string
	Hash     string

	// Tolerance overrides the per-format default when non-nil.
	Tolerance *imgverify.Tolerance

	// Problematic marks entries expected to fail; the harness reports
	// them separately instead of failing the run.
	Problematic bool
}

// Corpus is a loaded image tree.
type Corpus struct {
	Root     string
	Entries  []Entry
	defaults map[string]imgverify.Tolerance
}

type manifestTolerance struct {
	Max     uint8   `json:"max"`
	Avg     float64 `json:"avg"`
	EdgeMax uint8   `json:"edge_max"`
}

func (t manifestTolerance) tolerance() imgverify.Tolerance {
	return imgverify.Tolerance{Max: t.Max, Avg: t.Avg, EdgeMax: t.EdgeMax}
}

type manifestEntry struct {
	Tolerance   *manifestTolerance `json:"tolerance,omitempty"`
	Hash        string             `json:"hash,omitempty"`
	Problematic bool               `json:"problematic,omitempty"`
}

type manifest struct {
	Defaults map[string]manifestTolerance `json:"defaults,omitempty"`
	Entries  map[string]manifestEntry     `json:"entries,omitempty"`
}

// Load walks root, collects every supported image sorted by ID and
// applies the manifest, if one exists.
func Load(root string) (*Corpus, error) {
	c := &Corpus{Root: root, defaults: make(map[string]imgverify.Tolerance)}

	var m manifest
	b, err := os.ReadFile(filepath.Join(root, ManifestName))
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("corpus: bad %s: %v", ManifestName, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}
	for name, t := range m.Defaults {
		c.defaults[strings.ToLower(name)] = t.tolerance()
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !supported.MatchString(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		format, err := imgverify.FormatFromExtension(filepath.Ext(path))
		if err != nil {
			return nil
		}
		e := Entry{ID: id, Source: path, Format: format}
		if snap := filepath.Join(root, SnapshotDir, rel+snapshotExt); fileExists(snap) {
			e.Snapshot = snap
		}
		if me, ok := m.Entries[id]; ok {
			if me.Tolerance != nil {
				t := me.Tolerance.tolerance()
				e.Tolerance = &t
			}
			e.Hash = me.Hash
			e.Problematic = me.Problematic
		}
		c.Entries = append(c.Entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].ID < c.Entries[j].ID })
	return c, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Tolerance resolves the comparison budget for an entry: an explicit
// manifest override wins, then a manifest per-format default, then the
// built-in default. 16-bit PNG has its own manifest key, "png16".
func (c *Corpus) Tolerance(e *Entry, depth int) imgverify.Tolerance {
	if e.Tolerance != nil {
		return *e.Tolerance
	}
	if e.Format == imgverify.PNG && depth == 16 {
		if t, ok := c.defaults["png16"]; ok {
			return t
		}
	}
	if t, ok := c.defaults[strings.ToLower(e.Format.String())]; ok {
		return t
	}
	return imgverify.DefaultTolerance(e.Format, depth)
}

// SnapshotPath returns where an entry's reference pixels are recorded.
func (c *Corpus) SnapshotPath(e *Entry) string {
	return filepath.Join(c.Root, SnapshotDir, filepath.FromSlash(e.ID)+snapshotExt)
}

// Hash digests a canonical image, dimensions included, so that a bare
// digest can stand in for recorded pixels in the manifest.
func Hash(img *imgverify.CanonicalImage) string {
	h := sha256.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[0:4], uint32(img.Width))
	binary.BigEndian.PutUint32(dims[4:8], uint32(img.Height))
	h.Write(dims[:])
	rowSize := img.Width * 4
	for y := 0; y < img.Height; y++ {
		h.Write(img.Pix[y*img.Stride : y*img.Stride+rowSize])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
