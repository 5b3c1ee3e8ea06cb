package ocr

import "errors"

// ErrOCRNotEnabled is returned when the Tesseract engine is requested but
// OCR support was not compiled in. Rebuild with -tags ocr to enable.
var ErrOCRNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

// ErrNoEngines is returned when an ensemble call is made with no
// configured engines.
var ErrNoEngines = errors.New("no OCR engines configured")
