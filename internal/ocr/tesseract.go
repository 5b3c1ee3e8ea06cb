//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// TesseractName is the engine identifier for the Tesseract backend.
const TesseractName = "tesseract"

// Tesseract is an Engine backed by the system Tesseract installation via
// gosseract. Each Recognize call uses a fresh client; gosseract clients are
// not safe for concurrent use.
type Tesseract struct {
	clientFactory func() *gosseract.Client
	wordFloor     float64
}

// NewTesseract creates the Tesseract engine.
func NewTesseract() (*Tesseract, error) {
	return &Tesseract{
		clientFactory: gosseract.NewClient,
		wordFloor:     MinWordConfidence,
	}, nil
}

// Name returns the engine identifier.
func (t *Tesseract) Name() string { return TesseractName }

// Recognize performs OCR over the input image. Tesseract reports word
// confidences on 0-100 already, so no rescaling is needed.
func (t *Tesseract) Recognize(ctx context.Context, in Input) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	start := time.Now()
	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	words := t.extractWords(c)
	filtered, avg := FilterWords(words, t.wordFloor)

	return &Result{
		Text:              strings.TrimSpace(text),
		Confidence:        avg,
		EngineID:          TesseractName,
		ProcessingSeconds: time.Since(start).Seconds(),
		Words:             filtered,
		Preprocessing:     in.Preprocessing,
	}, nil
}

func (t *Tesseract) extractWords(c *gosseract.Client) []Word {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text:       b.Word,
			Box:        b.Box,
			Confidence: b.Confidence,
		})
	}
	return words
}
