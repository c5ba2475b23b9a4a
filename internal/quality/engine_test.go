package quality

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/kozaktomas/photo-triage/internal/config"
)

func defaultConfig() config.QualityConfig {
	return config.QualityConfig{
		BlurThreshold:          25.0,
		OverexposureThreshold:  0.95,
		UnderexposureThreshold: 0.05,
		MaxPixels:              500_000,
		ResizeScale:            0.25,
	}
}

func uniformImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// checkerboard alternates two mid-tone cells so neither exposure flag fires.
func checkerboard(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(40)
			if (x/cell+y/cell)%2 == 0 {
				v = 215
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

// ramp is a horizontal gradient with value x in column x.
func ramp(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8(x)})
		}
	}
	return img
}

func TestAssess_AllBlackIsUnderexposed(t *testing.T) {
	res := NewEngine(defaultConfig()).Assess(uniformImage(64, 64, 0))

	if !res.IsDefective {
		t.Fatal("expected black image to be defective")
	}
	if !res.HasDefect(DefectUnderexposed) {
		t.Errorf("expected underexposed, got %v", res.DefectTypes)
	}
	if res.HasDefect(DefectOverexposed) {
		t.Errorf("black image must not be overexposed, got %v", res.DefectTypes)
	}
	if res.Metrics[MetricUnderexposedRatio] != 1.0 {
		t.Errorf("expected underexposed ratio 1.0, got %v", res.Metrics[MetricUnderexposedRatio])
	}
}

func TestAssess_AllWhiteIsOverexposed(t *testing.T) {
	res := NewEngine(defaultConfig()).Assess(uniformImage(64, 64, 255))

	if !res.HasDefect(DefectOverexposed) {
		t.Errorf("expected overexposed, got %v", res.DefectTypes)
	}
	if res.HasDefect(DefectUnderexposed) {
		t.Errorf("white image must not be underexposed, got %v", res.DefectTypes)
	}
	if res.Metrics[MetricOverexposedRatio] != 1.0 {
		t.Errorf("expected overexposed ratio 1.0, got %v", res.Metrics[MetricOverexposedRatio])
	}
}

func TestAssess_CheckerboardIsQualified(t *testing.T) {
	res := NewEngine(defaultConfig()).Assess(checkerboard(64, 64, 4))

	if res.IsDefective {
		t.Errorf("expected sharp checkerboard to be qualified, got %v (metrics %v)", res.DefectTypes, res.Metrics)
	}
	if len(res.DefectTypes) != 0 {
		t.Errorf("expected no defects, got %v", res.DefectTypes)
	}
	if res.Metrics[MetricLaplacianVariance] < 25 {
		t.Errorf("expected high Laplacian variance, got %v", res.Metrics[MetricLaplacianVariance])
	}
}

// grayCheckerboard alternates 40 and 215 in square cells.
func grayCheckerboard(w, h, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(40)
			if (x/cell+y/cell)%2 == 0 {
				v = 215
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

// boxBlur runs passes of a separable box filter with clamped borders.
func boxBlur(src *image.Gray, radius, passes int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	n := 2*radius + 1
	out := image.NewGray(src.Rect)
	copy(out.Pix, src.Pix)
	tmp := make([]uint8, len(out.Pix))

	for range passes {
		for y := range h {
			for x := range w {
				sum := 0
				for d := -radius; d <= radius; d++ {
					sum += int(out.Pix[y*w+min(max(x+d, 0), w-1)])
				}
				tmp[y*w+x] = uint8((sum + n/2) / n)
			}
		}
		for y := range h {
			for x := range w {
				sum := 0
				for d := -radius; d <= radius; d++ {
					sum += int(tmp[min(max(y+d, 0), h-1)*w+x])
				}
				out.Pix[y*w+x] = uint8((sum + n/2) / n)
			}
		}
	}
	return out
}

func TestAssess_FlatGrayIsBlurOnly(t *testing.T) {
	res := NewEngine(defaultConfig()).Assess(uniformImage(64, 64, 128))

	if len(res.DefectTypes) != 1 || res.DefectTypes[0] != DefectBlur {
		t.Errorf("expected only blur, got %v", res.DefectTypes)
	}
	if res.Metrics[MetricLaplacianVariance] != 0 {
		t.Errorf("expected zero variance, got %v", res.Metrics[MetricLaplacianVariance])
	}
}

func TestAssess_BoxBlurredIsBlurOnly(t *testing.T) {
	engine := NewEngine(defaultConfig())
	sharp := grayCheckerboard(128, 128, 32)

	before := engine.Assess(sharp)
	if before.IsDefective {
		t.Fatalf("expected unblurred board to be qualified, got %v (metrics %v)", before.DefectTypes, before.Metrics)
	}

	res := engine.Assess(boxBlur(sharp, 12, 2))
	if len(res.DefectTypes) != 1 || res.DefectTypes[0] != DefectBlur {
		t.Errorf("expected only blur, got %v (metrics %v)", res.DefectTypes, res.Metrics)
	}
	v := res.Metrics[MetricLaplacianVariance]
	if v <= 0 || v >= defaultConfig().BlurThreshold {
		t.Errorf("expected small non-zero variance, got %v", v)
	}
	if v >= before.Metrics[MetricLaplacianVariance]/100 {
		t.Errorf("expected blur to drop variance sharply: %v vs %v", v, before.Metrics[MetricLaplacianVariance])
	}
}

func TestLaplacianVariance_Ramp(t *testing.T) {
	// Interior columns of a linear ramp have zero response; the reflected
	// borders give +8 on the left column and -8 on the right one.
	l := NewLuminance(ramp(10, 6), 0, 1)

	got := l.LaplacianVariance()
	if math.Abs(got-12.8) > 1e-9 {
		t.Errorf("expected variance 12.8, got %v", got)
	}
}

func TestBlurThresholdBoundary(t *testing.T) {
	l := NewLuminance(ramp(10, 6), 0, 1)
	variance := l.LaplacianVariance()

	tests := []struct {
		name      string
		threshold float64
		expected  bool
	}{
		{"threshold below metric", variance - 1, false},
		{"threshold equal to metric", variance, false},
		{"threshold just above metric", math.Nextafter(variance, math.Inf(1)), true},
		{"default threshold", 25, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.BlurThreshold = tt.threshold
			res := NewEngine(cfg).AssessLuminance(l)
			if res.HasDefect(DefectBlur) != tt.expected {
				t.Errorf("threshold %v, variance %v: expected blur=%v, got %v", tt.threshold, variance, tt.expected, res.DefectTypes)
			}
		})
	}
}

func TestExposureRatiosNeverExceedOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	engine := NewEngine(defaultConfig())

	for i := range 20 {
		img := image.NewGray(image.Rect(0, 0, 32, 32))
		for p := range img.Pix {
			img.Pix[p] = uint8(rng.Intn(256))
		}
		res := engine.Assess(img)
		sum := res.Metrics[MetricOverexposedRatio] + res.Metrics[MetricUnderexposedRatio]
		if sum > 1.0 {
			t.Errorf("image %d: ratios sum to %v", i, sum)
		}
	}
}

func TestAssess_MultipleDefects(t *testing.T) {
	// Half black, half white: flat regions (blur) and both exposure tails.
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := range 100 {
		for x := range 100 {
			if x >= 50 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	cfg := defaultConfig()
	cfg.OverexposureThreshold = 0.4
	cfg.BlurThreshold = 1e9

	res := NewEngine(cfg).Assess(img)
	for _, d := range []DefectType{DefectBlur, DefectOverexposed, DefectUnderexposed} {
		if !res.HasDefect(d) {
			t.Errorf("expected %s in %v", d, res.DefectTypes)
		}
	}
}

type alwaysDetector struct{}

func (alwaysDetector) Name() string { return "closed_eyes" }

func (alwaysDetector) Detect(*Luminance) Finding {
	return Finding{
		Defect:    DefectType("closed_eyes"),
		Triggered: true,
		Metrics:   map[string]float64{"eyes_open_score": 0.1},
	}
}

func TestNewEngine_ExtraDetector(t *testing.T) {
	engine := NewEngine(defaultConfig(), alwaysDetector{})

	names := engine.Detectors()
	expected := []string{"blur", "overexposed", "underexposed", "closed_eyes"}
	if len(names) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("detector %d: expected %s, got %s", i, expected[i], names[i])
		}
	}

	types := engine.DefectTypes()
	if len(types) != 4 || types[3] != DefectType("closed_eyes") {
		t.Errorf("expected closed_eyes among defect types, got %v", types)
	}

	res := engine.Assess(checkerboard(32, 32, 4))
	if !res.IsDefective || !res.HasDefect("closed_eyes") {
		t.Errorf("expected custom defect, got %v", res.DefectTypes)
	}
	if res.Metrics["eyes_open_score"] != 0.1 {
		t.Errorf("expected custom metric, got %v", res.Metrics)
	}
}

func TestNewLuminance_Downscale(t *testing.T) {
	l := NewLuminance(uniformImage(1000, 800, 90), 500_000, 0.25)
	if l.Width != 250 || l.Height != 200 {
		t.Errorf("expected 250x200 after downscale, got %dx%d", l.Width, l.Height)
	}

	small := NewLuminance(uniformImage(100, 100, 90), 500_000, 0.25)
	if small.Width != 100 || small.Height != 100 {
		t.Errorf("small image should not be resized, got %dx%d", small.Width, small.Height)
	}
}

func TestHistogram_SamplesLargeImages(t *testing.T) {
	l := NewLuminance(uniformImage(1100, 1000, 10), 0, 1)

	hist, n := l.Histogram()
	if n != 220_000 {
		t.Errorf("expected 220000 sampled pixels, got %d", n)
	}
	if hist[10/binWidth] != n {
		t.Errorf("expected all samples in bin %d", 10/binWidth)
	}
}

func TestNewLuminance_RGBWeights(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 0, 255})
	img.Set(2, 0, color.RGBA{0, 0, 255, 255})

	l := NewLuminance(img, 0, 1)
	expected := []uint8{76, 150, 29}
	for i, v := range expected {
		if l.Pix[i] != v {
			t.Errorf("pixel %d: expected %d, got %d", i, v, l.Pix[i])
		}
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct {
		i, n, expected int
	}{
		{-1, 5, 1},
		{-2, 5, 2},
		{0, 5, 0},
		{5, 5, 3},
		{6, 5, 2},
		{-1, 1, 0},
		{1, 2, 1},
		{2, 2, 0},
	}

	for _, tt := range tests {
		if got := reflect101(tt.i, tt.n); got != tt.expected {
			t.Errorf("reflect101(%d, %d) = %d; want %d", tt.i, tt.n, got, tt.expected)
		}
	}
}

func TestParseDefectType(t *testing.T) {
	known := NewEngine(defaultConfig(), alwaysDetector{}).DefectTypes()

	tests := []struct {
		name     string
		input    string
		expected DefectType
		wantErr  bool
	}{
		{"built-in", "blur", DefectBlur, false},
		{"case-insensitive", "OverExposed", DefectOverexposed, false},
		{"custom detector", "closed_eyes", DefectType("closed_eyes"), false},
		{"unknown", "fuzzy", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDefectType(tt.input, known)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}

	if _, err := ParseDefectType("closed_eyes", NewEngine(defaultConfig()).DefectTypes()); err == nil {
		t.Error("expected custom defect to be unknown without its detector")
	}
}
