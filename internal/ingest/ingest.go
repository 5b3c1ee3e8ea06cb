// Package ingest handles exam paper intake from PDF files and page scans.
// PDFs are validated with pdfcpu and rendered to page images; loose image
// files are decoded directly. Validation failures surface as file security
// errors so the pipeline can refuse the upload before any processing.
package ingest

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	xdraw "golang.org/x/image/draw"

	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/store"
)

// Config bounds what the ingestor accepts.
type Config struct {
	// MaxFileBytes rejects oversized uploads (default 100 MiB).
	MaxFileBytes int64

	// MaxPages rejects documents longer than an exam paper should be
	// (default 200).
	MaxPages int

	// RenderDPI is the resolution pages are rasterized at for OCR
	// (default 300).
	RenderDPI int

	// DetectionDPI is the resolution of the lighter companion raster used
	// for layout detection (default 150). Values at or above RenderDPI
	// disable the companion tier.
	DetectionDPI int
}

// DefaultConfig returns the standard intake limits.
func DefaultConfig() Config {
	return Config{
		MaxFileBytes: 100 << 20,
		MaxPages:     200,
		RenderDPI:    300,
		DetectionDPI: 150,
	}
}

// Request contains the parameters for ingesting an exam paper.
type Request struct {
	// Paths are PDF or image files, sorted by numeric suffix before
	// assembly (e.g. scan-1.pdf, scan-2.pdf).
	Paths []string

	// Name is the document name; derived from the first filename when
	// empty.
	Name string
}

// Result is a successfully ingested document with its decoded pages.
// Pages carry the full OCR-resolution rasters; DetectionPages carry the
// low-DPI companions for layout work, index-aligned with Pages.
type Result struct {
	DocumentID string
	Name       string
	PageCount  int
	Pages      []image.Image

	DetectionPages []image.Image

	// DetectionScale maps detection-page coordinates back to Pages
	// coordinates (RenderDPI / DetectionDPI, 1 when the tiers coincide).
	DetectionScale float64
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Ingestor validates uploads and turns them into in-memory page images.
type Ingestor struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
}

// New creates an ingestor. Store may be nil when no document record is
// wanted.
func New(st store.Store, cfg Config, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultConfig().MaxFileBytes
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = DefaultConfig().RenderDPI
	}
	if cfg.DetectionDPI <= 0 {
		cfg.DetectionDPI = DefaultConfig().DetectionDPI
	}
	if cfg.DetectionDPI > cfg.RenderDPI {
		cfg.DetectionDPI = cfg.RenderDPI
	}
	return &Ingestor{store: st, cfg: cfg, logger: logger.With("component", "ingest")}
}

// Ingest validates the upload, renders or decodes every page, and creates
// the document record.
func (ing *Ingestor) Ingest(ctx context.Context, req Request) (*Result, error) {
	if len(req.Paths) == 0 {
		return nil, procerr.New(procerr.KindFileSecurity, "", "no files provided", nil)
	}

	for _, p := range req.Paths {
		if err := ing.validateFile(p); err != nil {
			return nil, err
		}
	}

	sorted := sortByNumber(req.Paths)
	name := req.Name
	if name == "" {
		name = deriveName(sorted[0])
	}
	ing.logger.Info("starting ingest", "files", len(sorted), "name", name)

	scale := float64(ing.cfg.RenderDPI) / float64(ing.cfg.DetectionDPI)
	var pages, detection []image.Image
	for _, p := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			filePages     []image.Image
			fileDetection []image.Image
			err           error
		)
		if strings.EqualFold(filepath.Ext(p), ".pdf") {
			filePages, fileDetection, err = ing.renderPDF(ctx, p)
		} else {
			filePages, err = decodeImage(p)
			for _, img := range filePages {
				fileDetection = append(fileDetection, downscale(img, 1/scale))
			}
		}
		if err != nil {
			return nil, err
		}
		pages = append(pages, filePages...)
		detection = append(detection, fileDetection...)
		if len(pages) > ing.cfg.MaxPages {
			return nil, procerr.New(procerr.KindFileSecurity, "",
				fmt.Sprintf("document exceeds %d pages", ing.cfg.MaxPages), nil)
		}
	}
	if len(pages) == 0 {
		return nil, procerr.New(procerr.KindFileSecurity, "", "no pages extracted", nil)
	}

	docID := uuid.NewString()
	if ing.store != nil {
		doc := store.Document{
			ID:        docID,
			Name:      name,
			PageCount: len(pages),
			Status:    store.DocumentUploaded,
			CreatedAt: time.Now().UTC(),
		}
		if err := ing.store.CreateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to create document record: %w", err)
		}
	}

	ing.logger.Info("ingest complete", "document_id", docID, "pages", len(pages))
	return &Result{
		DocumentID:     docID,
		Name:           name,
		PageCount:      len(pages),
		Pages:          pages,
		DetectionPages: detection,
		DetectionScale: scale,
	}, nil
}

// validateFile checks existence, extension, and size limits.
func (ing *Ingestor) validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("file not found: %s", path), err)
	}
	if info.IsDir() {
		return procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("not a regular file: %s", path), nil)
	}
	if info.Size() > ing.cfg.MaxFileBytes {
		return procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("file %s exceeds size limit (%d bytes)", filepath.Base(path), info.Size()), nil)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("unsupported file type: %s", ext), nil)
	}
	return nil
}

// renderPDF validates the PDF structure and rasterizes every page with
// pdftoppm, once per DPI tier.
func (ing *Ingestor) renderPDF(ctx context.Context, pdfPath string) ([]image.Image, []image.Image, error) {
	if err := api.ValidateFile(pdfPath, nil); err != nil {
		return nil, nil, procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("PDF failed validation: %s", filepath.Base(pdfPath)), err)
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, nil, procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("failed to read PDF page count: %s", filepath.Base(pdfPath)), err)
	}
	if pageCount > ing.cfg.MaxPages {
		return nil, nil, procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("PDF has %d pages, limit is %d", pageCount, ing.cfg.MaxPages), nil)
	}

	tmpDir, err := os.MkdirTemp("", "examscan-pages-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	twoTier := ing.cfg.DetectionDPI < ing.cfg.RenderDPI

	maxWorkers := runtime.NumCPU()
	type renderResult struct {
		page int
		err  error
	}
	results := make(chan renderResult, pageCount)
	sem := make(chan struct{}, maxWorkers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{}
		go func(page int) {
			defer func() { <-sem }()
			err := ing.renderPage(ctx, pdfPath, tmpDir, "page", page, ing.cfg.RenderDPI)
			if err == nil && twoTier {
				err = ing.renderPage(ctx, pdfPath, tmpDir, "detect", page, ing.cfg.DetectionDPI)
			}
			results <- renderResult{page: page, err: err}
		}(page)
	}
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			return nil, nil, fmt.Errorf("failed to render page %d: %w", r.page, r.err)
		}
	}

	pages := make([]image.Image, 0, pageCount)
	detection := make([]image.Image, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		imgs, err := decodeImage(filepath.Join(tmpDir, fmt.Sprintf("page_%04d.png", page)))
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, imgs...)
		if !twoTier {
			detection = append(detection, imgs...)
			continue
		}
		low, err := decodeImage(filepath.Join(tmpDir, fmt.Sprintf("detect_%04d.png", page)))
		if err != nil {
			return nil, nil, err
		}
		detection = append(detection, low...)
	}
	return pages, detection, nil
}

// renderPage rasterizes one PDF page with pdftoppm (poppler-utils).
func (ing *Ingestor) renderPage(ctx context.Context, pdfPath, outDir, stem string, page, dpi int) error {
	pageStr := strconv.Itoa(page)
	prefix := filepath.Join(outDir, fmt.Sprintf("%s_%04d", stem, page))
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}
	if _, err := os.Stat(prefix + ".png"); err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return nil
}

func decodeImage(path string) ([]image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, procerr.New(procerr.KindFileSecurity, "",
			fmt.Sprintf("failed to decode image: %s", filepath.Base(path)), err)
	}
	return []image.Image{img}, nil
}

// downscale shrinks a decoded page by ratio to produce its detection-tier
// companion. Ratios at or above 1 return the page unchanged.
func downscale(img image.Image, ratio float64) image.Image {
	if ratio >= 1 {
		return img
	}
	b := img.Bounds()
	w := int(float64(b.Dx())*ratio + 0.5)
	h := int(float64(b.Dy())*ratio + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// sortByNumber orders paths by their numeric suffix so multi-part scans
// assemble in page order.
func sortByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	re := regexp.MustCompile(`-(\d+)\.[a-zA-Z]+$`)
	sort.Slice(sorted, func(i, j int) bool {
		mi := re.FindStringSubmatch(sorted[i])
		mj := re.FindStringSubmatch(sorted[j])
		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}

// deriveName extracts a document name from a filename, dropping any
// numeric part suffix.
func deriveName(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return regexp.MustCompile(`-\d+$`).ReplaceAllString(name, "")
}
