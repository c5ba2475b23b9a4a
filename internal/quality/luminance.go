package quality

import (
	"image"
	"math"
	"sync"

	"github.com/kozaktomas/photo-triage/internal/imaging"
)

// Histogram layout shared by the exposure detectors.
const (
	HistogramBins = 64
	binWidth      = 256 / HistogramBins

	// histogramSampleStride is applied to images over histogramSampleAbove pixels
	histogramSampleStride = 5
	histogramSampleAbove  = 1_000_000
)

// Luminance is an 8-bit single-channel view of a photo shared by all detectors.
type Luminance struct {
	Width  int
	Height int
	Pix    []uint8 // row-major, len = Width*Height

	histOnce sync.Once
	hist     [HistogramBins]int
	histN    int
}

// NewLuminance converts img to BT.601 luma, downscaling by scale first when the
// image has more than maxPixels pixels. maxPixels <= 0 disables downscaling.
func NewLuminance(img image.Image, maxPixels int, scale float64) *Luminance {
	b := img.Bounds()
	if maxPixels > 0 && scale > 0 && scale < 1 && b.Dx()*b.Dy() > maxPixels {
		img = imaging.Scale(img, scale)
		b = img.Bounds()
	}

	l := &Luminance{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]uint8, b.Dx()*b.Dy()),
	}

	switch src := img.(type) {
	case *image.Gray:
		for y := range l.Height {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(l.Pix[y*l.Width:(y+1)*l.Width], row[:l.Width])
		}
	case *image.RGBA:
		for y := range l.Height {
			for x := range l.Width {
				i := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				l.Pix[y*l.Width+x] = luma(uint32(src.Pix[i]), uint32(src.Pix[i+1]), uint32(src.Pix[i+2]))
			}
		}
	default:
		for y := range l.Height {
			for x := range l.Width {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				l.Pix[y*l.Width+x] = luma(r>>8, g>>8, bl>>8)
			}
		}
	}
	return l
}

func luma(r, g, b uint32) uint8 {
	v := math.Round(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
	return uint8(min(v, 255))
}

// Histogram returns the 64-bin luminance histogram and the number of sampled
// pixels. Large images are sampled every 5th pixel. Computed once per image.
func (l *Luminance) Histogram() ([HistogramBins]int, int) {
	l.histOnce.Do(func() {
		stride := 1
		if len(l.Pix) > histogramSampleAbove {
			stride = histogramSampleStride
		}
		for i := 0; i < len(l.Pix); i += stride {
			l.hist[int(l.Pix[i])/binWidth]++
			l.histN++
		}
	})
	return l.hist, l.histN
}

// LaplacianVariance returns the variance of the 3x3 aperture Laplacian
// (kernel [2 0 2; 0 -8 0; 2 0 2]) with reflect-101 border handling.
func (l *Luminance) LaplacianVariance() float64 {
	w, h := l.Width, l.Height
	if w == 0 || h == 0 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(l.Pix[reflect101(y, h)*w+reflect101(x, w)])
	}

	var sum, sumSq float64
	for y := range h {
		for x := range w {
			v := 2*(at(x-1, y-1)+at(x+1, y-1)+at(x-1, y+1)+at(x+1, y+1)) - 8*at(x, y)
			sum += v
			sumSq += v * v
		}
	}
	n := float64(w * h)
	mean := sum / n
	return max(sumSq/n-mean*mean, 0)
}

// reflect101 mirrors an out-of-range coordinate without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
