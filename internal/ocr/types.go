// Package ocr provides the OCR engine contract, the concrete engines
// (Tesseract via gosseract, vision-LLM via the OpenAI API), and the
// ensemble runner that executes engines concurrently and selects the best
// result.
//
// All confidences in this package are on the canonical 0-100 scale.
// Engines normalize at their boundary; mixed scales never propagate.
package ocr

import (
	"context"
	"image"
)

// MinWordConfidence is the default per-word confidence floor. Words below
// it are filtered out before averaging so noise artifacts do not skew the
// mean down.
const MinWordConfidence = 15.0

// Input is a single image submitted for recognition.
type Input struct {
	// Image is the encoded PNG payload.
	Image []byte

	// PageNumber links the input back to the source page.
	PageNumber int

	// DPI is the effective dots-per-inch; zero means unknown.
	DPI int

	// Languages are tesseract-style language hints (e.g. "eng").
	Languages []string

	// Preprocessing lists the enhancement steps already applied, echoed
	// into results for audit.
	Preprocessing []string
}

// Word is a recognized token with its pixel bounding box.
type Word struct {
	Text       string          `json:"text"`
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"` // 0-100
}

// Result is the immutable output of one (image, engine) invocation.
type Result struct {
	Text              string   `json:"text"`
	Confidence        float64  `json:"confidence"` // 0-100
	EngineID          string   `json:"engine_id"`
	ProcessingSeconds float64  `json:"processing_time_seconds"`
	Words             []Word   `json:"word_confidences,omitempty"`
	Preprocessing     []string `json:"preprocessing_applied,omitempty"`
}

// Engine is the contract implemented by every OCR backend.
type Engine interface {
	// Name returns the stable engine identifier (e.g. "tesseract").
	Name() string

	// Recognize extracts text from the input image. Implementations must
	// return confidences on the 0-100 scale.
	Recognize(ctx context.Context, in Input) (*Result, error)
}

// FilterWords drops words below the confidence floor and returns the
// surviving words plus their average confidence. An empty survivor set has
// confidence 0.
func FilterWords(words []Word, floor float64) ([]Word, float64) {
	kept := words[:0:0]
	var sum float64
	for _, w := range words {
		if w.Confidence < floor {
			continue
		}
		kept = append(kept, w)
		sum += w.Confidence
	}
	if len(kept) == 0 {
		return nil, 0
	}
	return kept, sum / float64(len(kept))
}
