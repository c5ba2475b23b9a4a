// Package quality flags technically defective photos (blurred, overexposed,
// underexposed) from their pixel data.
package quality

import (
	"image"
	"maps"
	"slices"

	"github.com/kozaktomas/photo-triage/internal/config"
)

// Result is the immutable outcome of assessing one photo.
type Result struct {
	IsDefective bool               `json:"is_defective"`
	DefectTypes []DefectType       `json:"defect_types"`
	Metrics     map[string]float64 `json:"metrics"`
}

// HasDefect reports whether d is among the result's defects.
func (r Result) HasDefect(d DefectType) bool {
	return slices.Contains(r.DefectTypes, d)
}

// Engine evaluates an ordered set of detectors against each image.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	detectors   []Detector
	maxPixels   int
	resizeScale float64
}

// NewEngine builds an engine with the blur and exposure detectors configured
// from cfg, followed by any extra detectors in the given order.
func NewEngine(cfg config.QualityConfig, extra ...Detector) *Engine {
	detectors := []Detector{
		BlurDetector{Threshold: cfg.BlurThreshold},
		OverexposureDetector{Threshold: cfg.OverexposureThreshold},
		UnderexposureDetector{Threshold: cfg.UnderexposureThreshold},
	}
	return &Engine{
		detectors:   append(detectors, extra...),
		maxPixels:   cfg.MaxPixels,
		resizeScale: cfg.ResizeScale,
	}
}

// Detectors returns the detector names in evaluation order.
func (e *Engine) Detectors() []string {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// DefectTypes returns the defect types the engine can report, in evaluation order.
func (e *Engine) DefectTypes() []DefectType {
	types := make([]DefectType, 0, len(e.detectors))
	for _, d := range e.detectors {
		if t := DefectType(d.Name()); !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	return types
}

// Assess runs every detector on img. It never fails on a decoded image.
func (e *Engine) Assess(img image.Image) Result {
	return e.AssessLuminance(NewLuminance(img, e.maxPixels, e.resizeScale))
}

// AssessLuminance runs every detector on an already converted image.
func (e *Engine) AssessLuminance(l *Luminance) Result {
	res := Result{
		DefectTypes: []DefectType{},
		Metrics:     make(map[string]float64),
	}
	for _, d := range e.detectors {
		f := d.Detect(l)
		maps.Copy(res.Metrics, f.Metrics)
		if f.Triggered && !res.HasDefect(f.Defect) {
			res.DefectTypes = append(res.DefectTypes, f.Defect)
		}
	}
	res.IsDefective = len(res.DefectTypes) > 0
	return res
}
