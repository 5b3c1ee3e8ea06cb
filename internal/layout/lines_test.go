package layout

import (
	"image"
	"testing"

	"github.com/examscan/examscan/internal/ocr"
)

func TestBuildLines_GroupsByBaseline(t *testing.T) {
	words := []ocr.Word{
		{Text: "World", Box: image.Rect(60, 100, 100, 116), Confidence: 90},
		{Text: "Hello", Box: image.Rect(10, 101, 50, 117), Confidence: 85},
		{Text: "Below", Box: image.Rect(10, 140, 50, 156), Confidence: 80},
	}

	lines := BuildLines(words, 15)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Text != "Hello World" {
		t.Errorf("first line = %q, want %q (words sorted left to right)", lines[0].Text, "Hello World")
	}
	if lines[1].Text != "Below" {
		t.Errorf("second line = %q, want Below", lines[1].Text)
	}
	if lines[0].Confidence != 87.5 {
		t.Errorf("line confidence = %g, want 87.5", lines[0].Confidence)
	}
}

func TestBuildLines_FiltersLowConfidenceAndEmpty(t *testing.T) {
	words := []ocr.Word{
		{Text: "keep", Box: image.Rect(0, 0, 40, 16), Confidence: 80},
		{Text: "drop", Box: image.Rect(50, 0, 90, 16), Confidence: 5},
		{Text: "   ", Box: image.Rect(100, 0, 140, 16), Confidence: 95},
		{Text: "degenerate", Box: image.Rect(150, 0, 150, 16), Confidence: 95},
	}

	lines := BuildLines(words, 15)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0].Text != "keep" {
		t.Errorf("line text = %q, want keep", lines[0].Text)
	}
}

func TestBuildLines_Empty(t *testing.T) {
	if lines := BuildLines(nil, 15); lines != nil {
		t.Errorf("BuildLines(nil) = %v, want nil", lines)
	}
}

func TestDetector_FallsBackWithoutWords(t *testing.T) {
	img := inkPage(640, 480, image.Rect(40, 50, 400, 66))

	d := NewDetector(nil)
	det := d.Detect(img, nil, 1)
	if !det.UsedFallback {
		t.Error("detection without OCR words must use the geometric fallback")
	}
	if len(det.Groups) != 0 {
		t.Errorf("fallback produced %d groups, want 0", len(det.Groups))
	}
	if len(det.Regions) == 0 {
		t.Error("fallback found no regions")
	}
}

func TestDetector_StructuralPrimary(t *testing.T) {
	words := page(
		wordRow("1. Question text here", 50, 100, 90),
		wordRow("(a) yes", 50, 130, 90),
		wordRow("(b) no", 50, 160, 90),
	)

	d := NewDetector(nil)
	det := d.Detect(nil, words, 1)
	if det.UsedFallback {
		t.Error("structural detection should not fall back when groups exist")
	}
	if len(det.Groups) != 1 || len(det.Regions) != 1 {
		t.Fatalf("got %d groups / %d regions, want 1/1", len(det.Groups), len(det.Regions))
	}
}

func TestDetector_FallbackWhenNoGroups(t *testing.T) {
	// Words with no question structure: structural pass yields nothing,
	// geometric fallback takes over.
	words := page(wordRow("just some prose with no numbering", 50, 100, 90))
	img := inkPage(640, 480, image.Rect(40, 50, 400, 66))

	d := NewDetector(nil)
	det := d.Detect(img, words, 1)
	if !det.UsedFallback {
		t.Error("no valid groups: detection must fall back to geometric tier")
	}
}
