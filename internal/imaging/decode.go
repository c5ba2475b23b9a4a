// Package imaging decodes photos from disk and provides the resize, encode and
// perceptual hash helpers shared by quality assessment and embedding.
package imaging

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions lists the lowercase file extensions treated as photos.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// IsSupported reports whether the file name has a photo extension (case-insensitive).
func IsSupported(name string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(name)))
}

// DecodeFile opens and decodes an image file. The returned format is the
// registered decoder name (jpeg, png, bmp, ...).
func DecodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("image %s has no pixels", filepath.Base(path))
	}
	return img, format, nil
}

// ListPhotos returns the supported photo files directly inside dir (non-recursive),
// as cleaned absolute paths sorted lexically.
func ListPhotos(dir string) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve folder: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(abs, e.Name()))
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}
