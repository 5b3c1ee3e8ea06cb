// Package imgproc normalizes raw page rasters for OCR. The enhancement
// pipeline runs an ordered set of independently toggle-able steps (denoise,
// deskew, contrast, sharpen, morphology, binarize, resize); each step
// degrades gracefully so preprocessing never aborts the pipeline.
package imgproc

import (
	"image"
	"log/slog"
)

// Step is a single enhancement stage operating on a grayscale page image.
type Step func(*image.Gray) *image.Gray

// StepName identifies a registered enhancement step.
type StepName string

const (
	StepDenoise    StepName = "denoise"
	StepDeskew     StepName = "deskew"
	StepContrast   StepName = "contrast"
	StepSharpen    StepName = "sharpen"
	StepMorphology StepName = "morphology"
	StepBinarize   StepName = "binarize"
	StepResize     StepName = "resize"
)

// DefaultSteps is the default enhancement order. Morphology and resize are
// opt-in: morphology only helps degraded scans, and resize triggers itself
// based on image dimensions.
var DefaultSteps = []StepName{StepDenoise, StepDeskew, StepContrast, StepSharpen, StepBinarize, StepResize}

// Config tunes the enhancement pipeline.
type Config struct {
	// MinDimension triggers upscaling when either image dimension is below
	// it. Exam scans below this resolution OCR poorly.
	MinDimension int

	// SkewThresholdDegrees is the minimum detected skew angle that makes
	// deskew worth the interpolation cost.
	SkewThresholdDegrees float64

	// AdaptiveWindow is the neighborhood size for adaptive thresholding.
	AdaptiveWindow int

	// AdaptiveBias is subtracted from the local mean before comparing;
	// positive values bias toward white on noisy backgrounds.
	AdaptiveBias int

	Logger *slog.Logger
}

// DefaultConfig returns the tuning used for exam-paper scans.
func DefaultConfig() Config {
	return Config{
		MinDimension:         500,
		SkewThresholdDegrees: 0.5,
		AdaptiveWindow:       25,
		AdaptiveBias:         10,
	}
}

// Enhancer applies the enhancement pipeline. Steps are resolved from a
// registry at construction; a missing capability shrinks the active set
// instead of failing at call time.
type Enhancer struct {
	cfg    Config
	steps  map[StepName]Step
	logger *slog.Logger
}

// NewEnhancer creates an enhancer with every built-in step registered.
func NewEnhancer(cfg Config) *Enhancer {
	if cfg.MinDimension <= 0 {
		cfg.MinDimension = DefaultConfig().MinDimension
	}
	if cfg.SkewThresholdDegrees <= 0 {
		cfg.SkewThresholdDegrees = DefaultConfig().SkewThresholdDegrees
	}
	if cfg.AdaptiveWindow <= 0 {
		cfg.AdaptiveWindow = DefaultConfig().AdaptiveWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Enhancer{cfg: cfg, logger: logger, steps: make(map[StepName]Step)}
	e.steps[StepDenoise] = medianDenoise
	e.steps[StepDeskew] = func(g *image.Gray) *image.Gray { return deskew(g, cfg.SkewThresholdDegrees) }
	e.steps[StepContrast] = equalizeTiled
	e.steps[StepSharpen] = unsharpMask
	e.steps[StepMorphology] = func(g *image.Gray) *image.Gray { return closeGray(g, 3, 3) }
	e.steps[StepBinarize] = func(g *image.Gray) *image.Gray {
		return adaptiveThreshold(g, cfg.AdaptiveWindow, cfg.AdaptiveBias)
	}
	e.steps[StepResize] = func(g *image.Gray) *image.Gray { return upscaleIfSmall(g, cfg.MinDimension) }
	return e
}

// Unregister removes a step capability from the enhancer. Requests for the
// step are skipped rather than failed.
func (e *Enhancer) Unregister(name StepName) {
	delete(e.steps, name)
}

// Enhance runs the requested steps (DefaultSteps when none given) over the
// image and reports which were actually applied. Any panic inside a step
// returns the original image with applied=["error"].
func (e *Enhancer) Enhance(img image.Image, steps ...StepName) (out image.Image, applied []string) {
	if len(steps) == 0 {
		steps = DefaultSteps
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("image enhancement panicked, returning original", "panic", r)
			out = img
			applied = []string{"error"}
		}
	}()

	gray := toGray(img)
	for _, name := range steps {
		step, ok := e.steps[name]
		if !ok {
			e.logger.Debug("enhancement step unavailable, skipping", "step", string(name))
			continue
		}
		next := step(gray)
		if next == nil {
			// Step declined to run (e.g. skew below threshold, image
			// already large enough).
			continue
		}
		gray = next
		applied = append(applied, string(name))
	}
	return gray, applied
}
