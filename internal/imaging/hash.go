package imaging

import (
	"fmt"
	"image"
	"math"
	"math/bits"
	"slices"
)

// HashResult contains the perceptual hashes of an image.
type HashResult struct {
	PHash     string `json:"phash"` // 64-bit perceptual hash as hex string
	DHash     string `json:"dhash"` // 64-bit difference hash as hex string
	PHashBits uint64 `json:"-"`
	DHashBits uint64 `json:"-"`
}

// Fingerprint returns a stable identifier of the visual content, used to
// detect that a file at a known path was replaced between runs.
func (h HashResult) Fingerprint() string {
	return h.PHash + h.DHash
}

// ComputeHashes computes both pHash and dHash for a decoded image.
func ComputeHashes(img image.Image) HashResult {
	p := computePHash(img)
	d := computeDHash(img)
	return HashResult{
		PHash:     fmt.Sprintf("%016x", p),
		DHash:     fmt.Sprintf("%016x", d),
		PHashBits: p,
		DHashBits: d,
	}
}

// HammingDistance counts differing bits between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// computePHash hashes the low-frequency 8x8 block of a 32x32 DCT.
func computePHash(img image.Image) uint64 {
	const size = 32
	gray := toGray(scaleTo(img, size, size))

	// Separable DCT-II: rows first, then columns of the 8 low frequencies.
	cos := make([][]float64, 8)
	for u := range 8 {
		cos[u] = make([]float64, size)
		for x := range size {
			cos[u][x] = math.Cos(math.Pi * float64(u) * (2*float64(x) + 1) / (2 * size))
		}
	}
	rows := make([][8]float64, size)
	for y := range size {
		for u := range 8 {
			var sum float64
			for x := range size {
				sum += gray[y][x] * cos[u][x]
			}
			rows[y][u] = sum
		}
	}
	coeffs := make([]float64, 0, 64)
	for v := range 8 {
		for u := range 8 {
			var sum float64
			for y := range size {
				sum += rows[y][u] * cos[v][y]
			}
			coeffs = append(coeffs, sum)
		}
	}

	// DC term is excluded from the median so flat brightness changes do not flip bits.
	median := medianOf(coeffs[1:])
	var hash uint64
	for i, c := range coeffs {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// computeDHash compares horizontally adjacent pixels of a 9x8 thumbnail.
func computeDHash(img image.Image) uint64 {
	gray := toGray(scaleTo(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[y][x] > gray[y][x+1] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// toGray returns BT.601 luma rows of an RGBA image.
func toGray(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	gray := make([][]float64, b.Dy())
	for y := range b.Dy() {
		gray[y] = make([]float64, b.Dx())
		for x := range b.Dx() {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			p := img.Pix[i : i+3 : i+3]
			gray[y][x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}
	return gray
}

func medianOf(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
