package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/examscan/examscan/internal/config"
	"github.com/examscan/examscan/internal/correction"
	"github.com/examscan/examscan/internal/ingest"
	"github.com/examscan/examscan/internal/layout"
	"github.com/examscan/examscan/internal/notify"
	"github.com/examscan/examscan/internal/ocr"
	"github.com/examscan/examscan/internal/pipeline"
	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/store"
)

// services bundles the wired application components.
type services struct {
	store       *store.MemoryStore
	ensemble    *ocr.Ensemble
	detector    *layout.Detector
	broker      *notify.Broker
	diagnostics *procerr.Diagnostics
	corrector   *correction.Corrector
	ingestor    *ingest.Ingestor
	runner      *pipeline.Runner
}

// buildServices wires the processing stack from configuration.
func buildServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	engines, err := buildEngines(cfg, logger)
	if err != nil {
		return nil, err
	}

	ensemble := ocr.NewEnsemble(ocr.EnsembleConfig{
		Engines: engines,
		Stats:   ocr.NewStats(),
		Logger:  logger,
	})

	sc := layout.DefaultStructuralConfig()
	sc.Columns.MinGap = cfg.Layout.MinColumnGap
	sc.Columns.SignificanceGap = cfg.Layout.SignificanceGap
	detector := layout.NewDetectorWithConfig(sc, layout.DefaultGeometricConfig(), logger)

	st := store.NewMemoryStore()
	broker := notify.NewBroker(logger)
	diagnostics := procerr.NewDiagnostics(0, logger)
	corrector := correction.NewCorrector(correction.NewAuditLog())

	ingCfg := ingest.DefaultConfig()
	if cfg.Ingest.MaxFileMB > 0 {
		ingCfg.MaxFileBytes = int64(cfg.Ingest.MaxFileMB) << 20
	}
	if cfg.Ingest.MaxPages > 0 {
		ingCfg.MaxPages = cfg.Ingest.MaxPages
	}
	if cfg.Ingest.RenderDPI > 0 {
		ingCfg.RenderDPI = cfg.Ingest.RenderDPI
	}
	if cfg.Ingest.DetectionDPI > 0 {
		ingCfg.DetectionDPI = cfg.Ingest.DetectionDPI
	}
	ingestor := ingest.New(st, ingCfg, logger)

	var opts []pipeline.Option
	if cfg.Pipeline.StepBudgetMinutes > 0 {
		opts = append(opts, pipeline.WithStepBudget(time.Duration(cfg.Pipeline.StepBudgetMinutes)*time.Minute))
	}
	pipe, err := pipeline.New(pipeline.Dependencies{
		Store:       st,
		OCR:         ensemble,
		Detector:    detector,
		Broker:      broker,
		Diagnostics: diagnostics,
		Logger:      logger,
	}, opts...)
	if err != nil {
		return nil, err
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Pipeline:  pipe,
		Logger:    logger,
		Workers:   cfg.Pipeline.Workers,
		QueueSize: cfg.Pipeline.QueueSize,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		store:       st,
		ensemble:    ensemble,
		detector:    detector,
		broker:      broker,
		diagnostics: diagnostics,
		corrector:   corrector,
		ingestor:    ingestor,
		runner:      runner,
	}, nil
}

// buildEngines constructs the configured OCR engines. Tesseract requires
// the ocr build tag; when it is unavailable the vision engine can carry
// recognition alone.
func buildEngines(cfg *config.Config, logger *slog.Logger) ([]ocr.Engine, error) {
	var engines []ocr.Engine

	if cfg.OCR.Tesseract.Enabled {
		tess, err := ocr.NewTesseract()
		if err != nil {
			if !errors.Is(err, ocr.ErrOCRNotEnabled) {
				return nil, fmt.Errorf("failed to create tesseract engine: %w", err)
			}
			logger.Warn("tesseract engine unavailable in this build, skipping")
		} else {
			engines = append(engines, tess)
		}
	}

	if cfg.OCR.Vision.Enabled {
		vision, err := ocr.NewVision(ocr.VisionConfig{
			APIKey:  config.ResolveEnvVars(cfg.OCR.Vision.APIKey),
			Model:   cfg.OCR.Vision.Model,
			BaseURL: cfg.OCR.Vision.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create vision engine: %w", err)
		}
		engines = append(engines, vision)
	}

	if len(engines) == 0 {
		return nil, fmt.Errorf("no OCR engines enabled")
	}
	return engines, nil
}
