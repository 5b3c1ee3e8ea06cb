//go:build !ocr

package ocr

import "context"

// TesseractName is the engine identifier for the Tesseract backend.
const TesseractName = "tesseract"

// Tesseract is the stub used when the "ocr" build tag is not set. All
// operations fail with ErrOCRNotEnabled; callers degrade to the remaining
// configured engines.
//
// To enable Tesseract, install tesseract-ocr and rebuild with:
//
//	go build -tags ocr
type Tesseract struct{}

// NewTesseract returns ErrOCRNotEnabled; Tesseract support was not
// compiled in.
func NewTesseract() (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// Name returns the engine identifier.
func (t *Tesseract) Name() string { return TesseractName }

// Recognize always fails on the stub.
func (t *Tesseract) Recognize(ctx context.Context, in Input) (*Result, error) {
	return nil, ErrOCRNotEnabled
}
