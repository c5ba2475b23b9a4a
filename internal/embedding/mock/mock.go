// Package mock provides a deterministic embedding.Gateway for tests.
package mock

import (
	"context"
	"errors"
	"image"
	"slices"
	"sync"

	"github.com/kozaktomas/photo-triage/internal/embedding"
)

// gridSize is the side of the color grid ImageVector samples.
const gridSize = 4

// MockGateway embeds images with ImageVector and text through a lookup table.
type MockGateway struct {
	mu sync.Mutex

	// TextVectors maps a query to its vector. Unknown queries fall back to TextFallback.
	TextVectors  map[string][]float32
	TextFallback []float32

	// ImageFunc overrides ImageVector when set
	ImageFunc func(img image.Image) ([]float32, error)

	// Error injection
	ImageError error
	TextError  error

	// Call tracking
	ImageCalls int
	TextCalls  int
	Queries    []string
}

var _ embedding.Gateway = (*MockGateway)(nil)

// NewMockGateway creates a gateway with no text vectors.
func NewMockGateway() *MockGateway {
	return &MockGateway{TextVectors: make(map[string][]float32)}
}

func (m *MockGateway) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	m.mu.Lock()
	m.ImageCalls++
	err, fn := m.ImageError, m.ImageFunc
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var vec []float32
	if fn != nil {
		if vec, err = fn(img); err != nil {
			return nil, err
		}
	} else {
		vec = ImageVector(img)
	}
	// a real request is aborted when its context ends mid-flight
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vec, nil
}

func (m *MockGateway) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TextCalls++
	m.Queries = append(m.Queries, text)

	if m.TextError != nil {
		return nil, m.TextError
	}
	if v, ok := m.TextVectors[text]; ok {
		return slices.Clone(v), nil
	}
	if m.TextFallback != nil {
		return slices.Clone(m.TextFallback), nil
	}
	return nil, errors.New("no vector configured for query")
}

// SetText registers the vector returned for query.
func (m *MockGateway) SetText(query string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TextVectors[query] = slices.Clone(vector)
}

// SetImageError swaps the injected image error under the lock.
func (m *MockGateway) SetImageError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ImageError = err
}

// Calls returns the number of image and text embedding calls so far.
func (m *MockGateway) Calls() (images, texts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ImageCalls, m.TextCalls
}

// ImageVector derives a deterministic vector from the mean color of each cell
// of a 4x4 grid. A constant last component keeps the vector non-zero.
func ImageVector(img image.Image) []float32 {
	b := img.Bounds()
	v := make([]float32, 0, gridSize*gridSize*3+1)
	for gy := range gridSize {
		for gx := range gridSize {
			x0 := b.Min.X + gx*b.Dx()/gridSize
			x1 := b.Min.X + (gx+1)*b.Dx()/gridSize
			y0 := b.Min.Y + gy*b.Dy()/gridSize
			y1 := b.Min.Y + (gy+1)*b.Dy()/gridSize

			var r, g, bl, n float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					cr, cg, cb, _ := img.At(x, y).RGBA()
					r += float64(cr)
					g += float64(cg)
					bl += float64(cb)
					n++
				}
			}
			if n == 0 {
				v = append(v, 0, 0, 0)
				continue
			}
			v = append(v, float32(r/n/0xffff), float32(g/n/0xffff), float32(bl/n/0xffff))
		}
	}
	return append(v, 1)
}
