// Package correction applies manual edits to detected regions while
// keeping an append-only audit of every change.
package correction

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/examscan/examscan/internal/geometry"
)

// Type classifies a manual region edit.
type Type string

const (
	TypeResize Type = "resize"
	TypeMove   Type = "move"
	TypeSplit  Type = "split"
	TypeMerge  Type = "merge"
	TypeDelete Type = "delete"
	TypeCreate Type = "create"
	TypeRetype Type = "retype"
)

// splitConfidenceFactor reduces confidence on both halves of a split; a
// human cutting a region signals the original geometry was uncertain.
const splitConfidenceFactor = 0.9

// Axis selects the direction of a split.
type Axis string

const (
	AxisHorizontal Axis = "horizontal" // split at a y coordinate
	AxisVertical   Axis = "vertical"   // split at an x coordinate
)

// Record is one immutable audit entry. Records are never mutated after
// creation; every correction is logged regardless of whether the result is
// later accepted.
type Record struct {
	Original         geometry.Region `json:"original_coordinates"`
	Corrected        *geometry.Region `json:"corrected_coordinates,omitempty"`
	Type             Type            `json:"correction_type"`
	Actor            string          `json:"actor"`
	Timestamp        time.Time       `json:"timestamp"`
	ConfidenceBefore float64         `json:"confidence_before"`
	ConfidenceAfter  float64         `json:"confidence_after"`
}

// AuditLog accumulates correction records. Safe for concurrent use.
type AuditLog struct {
	mu      sync.Mutex
	records []Record
}

// NewAuditLog creates an empty log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Records returns a copy of all entries in append order.
func (l *AuditLog) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

func (l *AuditLog) append(rec Record) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// Corrector applies manual edits and records them.
type Corrector struct {
	log *AuditLog
}

// NewCorrector creates a corrector writing to the given audit log.
func NewCorrector(log *AuditLog) *Corrector {
	if log == nil {
		log = NewAuditLog()
	}
	return &Corrector{log: log}
}

// Log returns the corrector's audit log.
func (c *Corrector) Log() *AuditLog { return c.log }

// Resize replaces a region's bounding box, keeping type, text, and
// confidence.
func (c *Corrector) Resize(region geometry.Region, newBox geometry.Region, actor string) (geometry.Region, error) {
	out := region
	out.X, out.Y = newBox.X, newBox.Y
	out.Width, out.Height = newBox.Width, newBox.Height
	if err := out.Validate(); err != nil {
		return geometry.Region{}, fmt.Errorf("resize: %w", err)
	}

	c.log.append(Record{
		Original:         region,
		Corrected:        &out,
		Type:             TypeResize,
		Actor:            actor,
		Timestamp:        time.Now(),
		ConfidenceBefore: region.Confidence,
		ConfidenceAfter:  out.Confidence,
	})
	return out, nil
}

// Split divides a region in two at the given coordinate along the axis.
// Both halves carry the original's type and a reduced confidence.
func (c *Corrector) Split(region geometry.Region, at int, axis Axis, actor string) (geometry.Region, geometry.Region, error) {
	first, second := region, region
	switch axis {
	case AxisHorizontal:
		if at <= region.Y || at >= region.Y2() {
			return geometry.Region{}, geometry.Region{}, fmt.Errorf("split: y=%d outside region [%d,%d)", at, region.Y, region.Y2())
		}
		first.Height = at - region.Y
		second.Y = at
		second.Height = region.Y2() - at
	case AxisVertical:
		if at <= region.X || at >= region.X2() {
			return geometry.Region{}, geometry.Region{}, fmt.Errorf("split: x=%d outside region [%d,%d)", at, region.X, region.X2())
		}
		first.Width = at - region.X
		second.X = at
		second.Width = region.X2() - at
	default:
		return geometry.Region{}, geometry.Region{}, fmt.Errorf("split: unknown axis %q", axis)
	}

	first.Confidence = region.Confidence * splitConfidenceFactor
	second.Confidence = region.Confidence * splitConfidenceFactor
	second.Text = ""

	now := time.Now()
	for _, half := range []*geometry.Region{&first, &second} {
		c.log.append(Record{
			Original:         region,
			Corrected:        half,
			Type:             TypeSplit,
			Actor:            actor,
			Timestamp:        now,
			ConfidenceBefore: region.Confidence,
			ConfidenceAfter:  half.Confidence,
		})
	}
	return first, second, nil
}

// Merge fuses two or more regions into their bounding union. Confidence is
// the mean of the inputs; texts concatenate in input order.
func (c *Corrector) Merge(regions []geometry.Region, actor string) (geometry.Region, error) {
	if len(regions) < 2 {
		return geometry.Region{}, fmt.Errorf("merge: need at least 2 regions, got %d", len(regions))
	}

	box := regions[0].Rect()
	var confSum float64
	var texts []string
	for _, r := range regions {
		box = box.Union(r.Rect())
		confSum += r.Confidence
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}

	out := geometry.FromRect(box, regions[0].PageNumber, regions[0].Type, confSum/float64(len(regions)))
	out.Text = strings.Join(texts, "\n")

	now := time.Now()
	for _, r := range regions {
		c.log.append(Record{
			Original:         r,
			Corrected:        &out,
			Type:             TypeMerge,
			Actor:            actor,
			Timestamp:        now,
			ConfidenceBefore: r.Confidence,
			ConfidenceAfter:  out.Confidence,
		})
	}
	return out, nil
}

// Delete records the removal of a region. The caller drops it from the
// saved set; the audit entry is what persists.
func (c *Corrector) Delete(region geometry.Region, actor string) {
	c.log.append(Record{
		Original:         region,
		Type:             TypeDelete,
		Actor:            actor,
		Timestamp:        time.Now(),
		ConfidenceBefore: region.Confidence,
	})
}

// Create records a manually drawn region.
func (c *Corrector) Create(region geometry.Region, actor string) (geometry.Region, error) {
	if err := region.Validate(); err != nil {
		return geometry.Region{}, fmt.Errorf("create: %w", err)
	}
	c.log.append(Record{
		Original:        region,
		Corrected:       &region,
		Type:            TypeCreate,
		Actor:           actor,
		Timestamp:       time.Now(),
		ConfidenceAfter: region.Confidence,
	})
	return region, nil
}

// Retype changes a region's content type.
func (c *Corrector) Retype(region geometry.Region, newType geometry.RegionType, actor string) geometry.Region {
	out := region
	out.Type = newType
	c.log.append(Record{
		Original:         region,
		Corrected:        &out,
		Type:             TypeRetype,
		Actor:            actor,
		Timestamp:        time.Now(),
		ConfidenceBefore: region.Confidence,
		ConfidenceAfter:  out.Confidence,
	})
	return out
}
