package quality

import (
	"fmt"
	"strings"
)

// DefectType names a technical defect.
type DefectType string

const (
	DefectBlur         DefectType = "blur"
	DefectOverexposed  DefectType = "overexposed"
	DefectUnderexposed DefectType = "underexposed"
)

// Metric names reported by the built-in detectors.
const (
	MetricLaplacianVariance = "laplacian_variance"
	MetricOverexposedRatio  = "overexposed_ratio"
	MetricUnderexposedRatio = "underexposed_ratio"
)

// ParseDefectType matches s case-insensitively against the known defect types.
func ParseDefectType(s string, known []DefectType) (DefectType, error) {
	names := make([]string, len(known))
	for i, d := range known {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
		names[i] = string(d)
	}
	return "", fmt.Errorf("unknown defect type %q (expected one of %s)", s, strings.Join(names, ", "))
}

// Finding is what a single detector reports for one image.
type Finding struct {
	Defect    DefectType
	Triggered bool
	Metrics   map[string]float64
}

// Detector inspects a luminance image for one kind of defect.
// Name returns the DefectType the detector reports.
type Detector interface {
	Name() string
	Detect(l *Luminance) Finding
}

// BlurDetector flags images whose Laplacian variance is below Threshold.
type BlurDetector struct {
	Threshold float64
}

func (d BlurDetector) Name() string { return string(DefectBlur) }

func (d BlurDetector) Detect(l *Luminance) Finding {
	variance := l.LaplacianVariance()
	return Finding{
		Defect:    DefectBlur,
		Triggered: variance < d.Threshold,
		Metrics:   map[string]float64{MetricLaplacianVariance: variance},
	}
}

// Luminance bins counted as near-white (>= 240) and near-black (< 16).
const (
	overexposedFromBin = 60
	underexposedToBin  = 4
)

// OverexposureDetector flags images where the near-white pixel fraction exceeds Threshold.
type OverexposureDetector struct {
	Threshold float64
}

func (d OverexposureDetector) Name() string { return string(DefectOverexposed) }

func (d OverexposureDetector) Detect(l *Luminance) Finding {
	ratio := binRatio(l, overexposedFromBin, HistogramBins)
	return Finding{
		Defect:    DefectOverexposed,
		Triggered: ratio > d.Threshold,
		Metrics:   map[string]float64{MetricOverexposedRatio: ratio},
	}
}

// UnderexposureDetector flags images where the near-black pixel fraction exceeds Threshold.
type UnderexposureDetector struct {
	Threshold float64
}

func (d UnderexposureDetector) Name() string { return string(DefectUnderexposed) }

func (d UnderexposureDetector) Detect(l *Luminance) Finding {
	ratio := binRatio(l, 0, underexposedToBin)
	return Finding{
		Defect:    DefectUnderexposed,
		Triggered: ratio > d.Threshold,
		Metrics:   map[string]float64{MetricUnderexposedRatio: ratio},
	}
}

// binRatio is the fraction of sampled pixels falling into bins [from, to).
func binRatio(l *Luminance, from, to int) float64 {
	hist, total := l.Histogram()
	if total == 0 {
		return 0
	}
	var count int
	for _, c := range hist[from:to] {
		count += c
	}
	return float64(count) / float64(total)
}
