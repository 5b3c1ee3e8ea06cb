// Package geometry provides the Region type and the rectangle math used by
// region detection, correction, and structural grouping.
package geometry

import (
	"fmt"
	"image"
)

// RegionType classifies the content of a detected page region.
type RegionType string

const (
	TypeQuestion      RegionType = "question"
	TypeAnswerOptions RegionType = "answer_options"
	TypeQuestionGroup RegionType = "question_group"
	TypePassage       RegionType = "passage"
	TypeDiagram       RegionType = "diagram"
	TypeTable         RegionType = "table"
	TypeUnknown       RegionType = "unknown"
)

// Region is a rectangular area of a page with a classified content type,
// recognized text, and a detection confidence in [0,1].
type Region struct {
	X          int            `json:"x"`
	Y          int            `json:"y"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	PageNumber int            `json:"page_number"`
	Type       RegionType     `json:"region_type"`
	Confidence float64        `json:"confidence"`
	Text       string         `json:"text,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// X2 returns the exclusive right edge of the region.
func (r Region) X2() int { return r.X + r.Width }

// Y2 returns the exclusive bottom edge of the region.
func (r Region) Y2() int { return r.Y + r.Height }

// Area returns the region area in square pixels.
func (r Region) Area() int { return r.Width * r.Height }

// Center returns the center point of the region.
func (r Region) Center() image.Point {
	return image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X2(), r.Y2())
}

// Validate checks the region invariants: positive dimensions, non-negative
// coordinates, and a confidence within [0,1].
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("region dimensions must be positive, got %dx%d", r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("region coordinates must be non-negative, got (%d,%d)", r.X, r.Y)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("region confidence must be in [0,1], got %g", r.Confidence)
	}
	return nil
}

// Intersect returns the overlapping rectangle of two regions and whether
// they overlap at all.
func (r Region) Intersect(other Region) (image.Rectangle, bool) {
	sect := r.Rect().Intersect(other.Rect())
	return sect, !sect.Empty()
}

// OverlapRatio returns the intersection area divided by the smaller of the
// two region areas. Returns 0 for disjoint regions.
func (r Region) OverlapRatio(other Region) float64 {
	sect, ok := r.Intersect(other)
	if !ok {
		return 0
	}
	smaller := r.Area()
	if a := other.Area(); a < smaller {
		smaller = a
	}
	if smaller == 0 {
		return 0
	}
	return float64(sect.Dx()*sect.Dy()) / float64(smaller)
}

// VerticalGap returns the vertical distance between two regions, or 0 if
// they overlap vertically.
func (r Region) VerticalGap(other Region) int {
	if r.Y2() <= other.Y {
		return other.Y - r.Y2()
	}
	if other.Y2() <= r.Y {
		return r.Y - other.Y2()
	}
	return 0
}

// Union returns the smallest region covering both inputs. The result keeps
// the receiver's page number and type; confidence is the mean of the two.
func (r Region) Union(other Region) Region {
	u := r.Rect().Union(other.Rect())
	return Region{
		X:          u.Min.X,
		Y:          u.Min.Y,
		Width:      u.Dx(),
		Height:     u.Dy(),
		PageNumber: r.PageNumber,
		Type:       r.Type,
		Confidence: (r.Confidence + other.Confidence) / 2,
	}
}

// FromRect builds a region from an image.Rectangle.
func FromRect(rect image.Rectangle, page int, typ RegionType, confidence float64) Region {
	return Region{
		X:          rect.Min.X,
		Y:          rect.Min.Y,
		Width:      rect.Dx(),
		Height:     rect.Dy(),
		PageNumber: page,
		Type:       typ,
		Confidence: confidence,
	}
}
