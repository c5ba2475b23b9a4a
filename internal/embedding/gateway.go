// Package embedding maps images and text into a shared vector space.
package embedding

import (
	"context"
	"image"
)

// Gateway computes embeddings for images and text queries. Vectors returned by
// both methods live in the same space so they can be compared directly.
type Gateway interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
