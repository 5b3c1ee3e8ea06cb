package layout

import (
	"image"
	"log/slog"
	"sort"

	"github.com/examscan/examscan/internal/geometry"
)

// GeometricConfig tunes the fallback (Tier A) detector.
type GeometricConfig struct {
	// InkThreshold separates ink from paper in the grayscale bitmap.
	InkThreshold uint8

	// MinArea filters connected components smaller than this.
	MinArea int

	// LineHeightMin/Max bound text-line candidates.
	LineHeightMin, LineHeightMax int

	// BlockHeightMax bounds paragraph-block candidates.
	BlockHeightMax int

	// OverlapDiscard drops a candidate overlapping an already-kept larger
	// box above this intersection ratio.
	OverlapDiscard float64

	// MergeGap merges vertically adjacent boxes separated by at most this
	// many pixels.
	MergeGap int
}

// DefaultGeometricConfig returns the exam-paper tuning.
func DefaultGeometricConfig() GeometricConfig {
	return GeometricConfig{
		InkThreshold:   128,
		MinArea:        150,
		LineHeightMin:  8,
		LineHeightMax:  120,
		BlockHeightMax: 600,
		OverlapDiscard: 0.5,
		MergeGap:       50,
	}
}

// GeometricDetector finds candidate text regions from the bitmap alone,
// without OCR. Three complementary strategies run over the same grayscale
// page and their candidates are merged.
type GeometricDetector struct {
	cfg    GeometricConfig
	logger *slog.Logger
}

// NewGeometricDetector creates a detector.
func NewGeometricDetector(cfg GeometricConfig, logger *slog.Logger) *GeometricDetector {
	def := DefaultGeometricConfig()
	if cfg.InkThreshold == 0 {
		cfg.InkThreshold = def.InkThreshold
	}
	if cfg.MinArea <= 0 {
		cfg.MinArea = def.MinArea
	}
	if cfg.LineHeightMin <= 0 {
		cfg.LineHeightMin = def.LineHeightMin
	}
	if cfg.LineHeightMax <= 0 {
		cfg.LineHeightMax = def.LineHeightMax
	}
	if cfg.BlockHeightMax <= 0 {
		cfg.BlockHeightMax = def.BlockHeightMax
	}
	if cfg.OverlapDiscard <= 0 {
		cfg.OverlapDiscard = def.OverlapDiscard
	}
	if cfg.MergeGap <= 0 {
		cfg.MergeGap = def.MergeGap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeometricDetector{cfg: cfg, logger: logger}
}

// Detect runs all three strategies and merges their candidates.
func (d *GeometricDetector) Detect(img *image.Gray, page int) []geometry.Region {
	mask := inkMask(img, d.cfg.InkThreshold)

	var candidates []geometry.Region
	candidates = append(candidates, d.lineStrategy(mask, page)...)
	candidates = append(candidates, d.blockStrategy(mask, page)...)
	candidates = append(candidates, d.edgeStrategy(img, page)...)

	merged := MergeRegions(candidates, d.cfg.OverlapDiscard, d.cfg.MergeGap)
	d.logger.Debug("geometric detection",
		"page", page, "candidates", len(candidates), "merged", len(merged))
	return merged
}

// lineStrategy closes the ink mask with a wide, short kernel so adjacent
// characters fuse into text-line components.
func (d *GeometricDetector) lineStrategy(mask *bitmask, page int) []geometry.Region {
	closed := mask.close(25, 3)
	var out []geometry.Region
	for _, box := range closed.components(d.cfg.MinArea) {
		h := box.Dy()
		if h < d.cfg.LineHeightMin || h > d.cfg.LineHeightMax {
			continue
		}
		out = append(out, geometry.FromRect(box, page, geometry.TypeUnknown, 0.6))
	}
	return out
}

// blockStrategy uses a larger kernel that clusters whole lines into
// paragraph-scale blocks.
func (d *GeometricDetector) blockStrategy(mask *bitmask, page int) []geometry.Region {
	closed := mask.close(25, 15)
	var out []geometry.Region
	for _, box := range closed.components(d.cfg.MinArea * 4) {
		h := box.Dy()
		if h < d.cfg.LineHeightMin || h > d.cfg.BlockHeightMax {
			continue
		}
		out = append(out, geometry.FromRect(box, page, geometry.TypePassage, 0.55))
	}
	return out
}

// edgeStrategy thresholds the gradient magnitude to catch irregular
// regions (diagrams, tables) that the morphological passes miss.
func (d *GeometricDetector) edgeStrategy(img *image.Gray, page int) []geometry.Region {
	edges := gradientMask(img, 48)
	closed := edges.close(9, 9)
	var out []geometry.Region
	for _, box := range closed.components(d.cfg.MinArea * 2) {
		out = append(out, geometry.FromRect(box, page, geometry.TypeUnknown, 0.5))
	}
	return out
}

// MergeRegions deduplicates and coalesces candidate boxes: a candidate is
// dropped when it overlaps an already-kept larger box above the discard
// ratio, then vertically adjacent survivors (gap at most mergeGap, with
// horizontal overlap) fuse into single regions whose confidence is the
// group average. The operation is idempotent.
func MergeRegions(candidates []geometry.Region, overlapDiscard float64, mergeGap int) []geometry.Region {
	if len(candidates) == 0 {
		return nil
	}

	// Larger boxes first so smaller duplicates get discarded against them.
	sorted := append([]geometry.Region(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Area() > sorted[j].Area() })

	var kept []geometry.Region
	for _, c := range sorted {
		duplicate := false
		for _, k := range kept {
			if c.OverlapRatio(k) >= overlapDiscard {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, c)
		}
	}

	// Vertical coalescing: union-find over pairs that overlap horizontally
	// and sit within mergeGap vertically. A merge widens the group's
	// bounding box, which can bring it within range of a group it did not
	// previously touch, so the pass repeats on the group boxes until the
	// grouping is stable. Running MergeRegions over its own output is then
	// a no-op.
	groups := make([][]geometry.Region, len(kept))
	for i, r := range kept {
		groups[i] = []geometry.Region{r}
	}
	for {
		boxes := make([]geometry.Region, len(groups))
		for i, g := range groups {
			box := g[0].Rect()
			for _, r := range g[1:] {
				box = box.Union(r.Rect())
			}
			boxes[i] = geometry.FromRect(box, g[0].PageNumber, g[0].Type, 0)
		}

		parent := make([]int, len(groups))
		for i := range parent {
			parent[i] = i
		}
		var find func(int) int
		find = func(i int) int {
			for parent[i] != i {
				parent[i] = parent[parent[i]]
				i = parent[i]
			}
			return i
		}
		union := func(a, b int) { parent[find(a)] = find(b) }

		for i := 0; i < len(boxes); i++ {
			for j := i + 1; j < len(boxes); j++ {
				if boxes[i].VerticalGap(boxes[j]) > mergeGap {
					continue
				}
				if !horizontalOverlap(boxes[i], boxes[j]) {
					continue
				}
				union(i, j)
			}
		}

		next := make([][]geometry.Region, 0, len(groups))
		index := make(map[int]int, len(groups))
		for i, g := range groups {
			root := find(i)
			k, ok := index[root]
			if !ok {
				k = len(next)
				index[root] = k
				next = append(next, nil)
			}
			next[k] = append(next[k], g...)
		}
		if len(next) == len(groups) {
			break
		}
		groups = next
	}

	var out []geometry.Region
	for _, group := range groups {
		box := group[0].Rect()
		var confSum float64
		for _, r := range group {
			box = box.Union(r.Rect())
			confSum += r.Confidence
		}
		merged := geometry.FromRect(box, group[0].PageNumber, group[0].Type, confSum/float64(len(group)))
		out = append(out, merged)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func horizontalOverlap(a, b geometry.Region) bool {
	return a.X < b.X2() && b.X < a.X2()
}
