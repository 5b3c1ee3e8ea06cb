package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/examscan/examscan/internal/imgproc"
	"github.com/examscan/examscan/internal/procerr"
)

// EnsembleConfig configures an Ensemble.
type EnsembleConfig struct {
	Engines  []Engine
	Enhancer *imgproc.Enhancer
	Stats    *Stats
	Logger   *slog.Logger
}

// Ensemble runs the configured OCR engines concurrently over a page image
// and merges their results. One engine failing does not fail the call as
// long as another succeeds.
type Ensemble struct {
	engines  []Engine
	enhancer *imgproc.Enhancer
	stats    *Stats
	logger   *slog.Logger
}

// ExtractOptions tunes a single Extract call.
type ExtractOptions struct {
	// Engines selects a subset of configured engines by name. Empty means
	// all configured engines.
	Engines []string

	// Preprocess runs image enhancement before recognition. Defaults on
	// via DefaultExtractOptions.
	Preprocess bool

	// Languages are passed to each engine.
	Languages []string

	// DPI is the effective input resolution, if known.
	DPI int
}

// DefaultExtractOptions enables preprocessing with all engines.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{Preprocess: true}
}

// NewEnsemble creates an ensemble. Stats may be nil when no tracking is
// wanted.
func NewEnsemble(cfg EnsembleConfig) *Ensemble {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enhancer := cfg.Enhancer
	if enhancer == nil {
		enhancer = imgproc.NewEnhancer(imgproc.DefaultConfig())
	}
	return &Ensemble{
		engines:  cfg.Engines,
		enhancer: enhancer,
		stats:    cfg.Stats,
		logger:   logger,
	}
}

// Engines returns the names of the configured engines.
func (e *Ensemble) Engines() []string {
	names := make([]string, 0, len(e.engines))
	for _, eng := range e.engines {
		names = append(names, eng.Name())
	}
	return names
}

// Extract runs the selected engines and returns the best result: highest
// confidence, with extracted text length as the tie-break. This rewards
// engines that extract more content at similar confidence.
func (e *Ensemble) Extract(ctx context.Context, img image.Image, page int, opts ExtractOptions) (*Result, error) {
	results, err := e.ExtractAll(ctx, img, page, opts)
	if err != nil {
		return nil, err
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence ||
			(r.Confidence == best.Confidence && len(r.Text) > len(best.Text)) {
			best = r
		}
	}
	return best, nil
}

// ExtractAll runs the selected engines concurrently and returns every
// successful result. It fails only when no engine is selected or every
// engine fails.
func (e *Ensemble) ExtractAll(ctx context.Context, img image.Image, page int, opts ExtractOptions) ([]*Result, error) {
	selected := e.selectEngines(opts.Engines)
	if len(selected) == 0 {
		return nil, procerr.New(procerr.KindOCRProcessing, "", "no OCR engines available", ErrNoEngines)
	}

	in, err := e.prepareInput(img, page, opts)
	if err != nil {
		return nil, procerr.New(procerr.KindOCRProcessing, "", "prepare OCR input", err)
	}

	// One goroutine per selected engine; the pool is bounded by engine
	// count, which is small by construction.
	type outcome struct {
		result *Result
		err    error
		engine string
	}
	outcomes := make(chan outcome, len(selected))
	var wg sync.WaitGroup

	for _, eng := range selected {
		wg.Add(1)
		go func(eng Engine) {
			defer wg.Done()
			start := time.Now()
			res, err := eng.Recognize(ctx, in)
			if e.stats != nil {
				e.stats.RecordRequest(eng.Name(), time.Since(start))
			}
			outcomes <- outcome{result: res, err: err, engine: eng.Name()}
		}(eng)
	}
	wg.Wait()
	close(outcomes)

	var results []*Result
	var failures []error
	for o := range outcomes {
		if o.err != nil {
			e.logger.Warn("OCR engine failed", "engine", o.engine, "page", page, "error", o.err)
			failures = append(failures, fmt.Errorf("%s: %w", o.engine, o.err))
			continue
		}
		results = append(results, o.result)
	}

	if len(results) == 0 {
		return nil, procerr.New(procerr.KindOCRProcessing, "",
			fmt.Sprintf("all %d OCR engines failed", len(selected)), errors.Join(failures...))
	}
	return results, nil
}

func (e *Ensemble) selectEngines(names []string) []Engine {
	if len(names) == 0 {
		return e.engines
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []Engine
	for _, eng := range e.engines {
		if wanted[eng.Name()] {
			out = append(out, eng)
		}
	}
	return out
}

func (e *Ensemble) prepareInput(img image.Image, page int, opts ExtractOptions) (Input, error) {
	var applied []string
	if opts.Preprocess {
		img, applied = e.enhancer.Enhance(img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode page image: %w", err)
	}
	return Input{
		Image:         buf.Bytes(),
		PageNumber:    page,
		DPI:           opts.DPI,
		Languages:     opts.Languages,
		Preprocessing: applied,
	}, nil
}
