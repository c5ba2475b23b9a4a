package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Fit scales img down so neither side exceeds maxSize, keeping aspect ratio.
// Images already within bounds are returned unchanged.
func Fit(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}
	return scaleTo(img, newWidth, newHeight)
}

// Scale resizes img by factor using bilinear interpolation.
func Scale(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	w := max(1, int(float64(bounds.Dx())*factor))
	h := max(1, int(float64(bounds.Dy())*factor))
	return scaleTo(img, w, h)
}

func scaleTo(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// EncodeJPEG fits img into maxSize and encodes it as JPEG.
func EncodeJPEG(img image.Image, maxSize int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Fit(img, maxSize), &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
