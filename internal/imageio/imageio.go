// Package imageio decodes image files from disk in a way that is
// insensitive to how their path is encoded. The loader never hands a
// filename to an image decoder that would open it itself; it reads
// raw bytes through a platform-appropriate pathway first and decodes
// strictly from the resulting byte slice. This sidesteps the
// platform-specific narrow-string path handling that produced
// systemic silent zeros in the source pipeline this evaluator audits.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Raster is a decoded image plus the raw bytes it was decoded from,
// so callers that want a digest of the file (the signature-cache key,
// see sigcache.Key) don't need to re-read it.
type Raster struct {
	Image image.Image
	Bytes []byte
	Path  string
}

// Load reads path's bytes through readBytes (platform-specific, see
// imageio_unix.go / imageio_fallback.go) and decodes them in memory.
func Load(path string) (*Raster, error) {
	data, err := readBytes(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &Raster{Image: img, Bytes: data, Path: path}, nil
}

// DirEntry is one image file discovered in a directory scan.
type DirEntry struct {
	ID   string // basename without extension
	Path string
}

// ListImages enumerates dir for image files, returning entries sorted
// by ID. Non-image files are skipped; warn is called once per skipped
// file (nil warn is fine for silent callers, e.g. tests).
func ListImages(dir string, warn func(name string)) ([]DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var out []DirEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !imageExts[ext] {
			if warn != nil {
				warn(name)
			}
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		out = append(out, DirEntry{ID: id, Path: filepath.Join(dir, name)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
