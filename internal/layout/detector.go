package layout

import (
	"image"
	"log/slog"

	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/ocr"
)

// Detection is the combined output of a page's region detection.
type Detection struct {
	// Groups are structurally detected question groups (Tier B). Empty
	// when the structural pass found nothing valid.
	Groups []QuestionGroup

	// Regions are all detected regions: one per question group, or the
	// geometric fallback regions when no group was found.
	Regions []geometry.Region

	// UsedFallback reports that the geometric tier produced the regions.
	UsedFallback bool
}

// Detector runs structural detection first and falls back to geometric
// detection when OCR words are unavailable or no valid question group
// emerges.
type Detector struct {
	structural *StructuralDetector
	geometric  *GeometricDetector
	logger     *slog.Logger
}

// NewDetector creates a detector with default tier configurations.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		structural: NewStructuralDetector(DefaultStructuralConfig(), logger),
		geometric:  NewGeometricDetector(DefaultGeometricConfig(), logger),
		logger:     logger,
	}
}

// NewDetectorWithConfig creates a detector with explicit tier tuning.
func NewDetectorWithConfig(sc StructuralConfig, gc GeometricConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		structural: NewStructuralDetector(sc, logger),
		geometric:  NewGeometricDetector(gc, logger),
		logger:     logger,
	}
}

// Detect analyzes one page. words may be empty (OCR unavailable), which
// forces the geometric fallback.
func (d *Detector) Detect(img *image.Gray, words []ocr.Word, page int) Detection {
	if len(words) > 0 {
		groups := d.structural.DetectGroups(words, page)
		if len(groups) > 0 {
			regions := make([]geometry.Region, len(groups))
			for i, g := range groups {
				regions[i] = g.Region
			}
			return Detection{Groups: groups, Regions: regions}
		}
		d.logger.Info("structural detection found no question groups, falling back to geometric",
			"page", page)
	}

	var regions []geometry.Region
	if img != nil {
		regions = d.geometric.Detect(img, page)
	}
	return Detection{Regions: regions, UsedFallback: true}
}
