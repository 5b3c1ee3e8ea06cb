// Package procerr defines the typed error taxonomy for the extraction
// pipeline and the structured diagnostics recorder used for step timing
// analysis.
package procerr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the class of a processing failure.
type Kind string

const (
	KindFileSecurity      Kind = "file_security"
	KindOCRProcessing     Kind = "ocr_processing"
	KindTextExtraction    Kind = "text_extraction"
	KindQuestionDetection Kind = "question_detection"
	KindLayoutAnalysis    Kind = "layout_analysis"
	KindProcessingTimeout Kind = "processing_timeout"

	// KindProcessingCanceled marks a job interrupted by caller
	// cancellation (shutdown), not a step overrunning its budget. It is
	// not critical and must not page an operator.
	KindProcessingCanceled Kind = "processing_canceled"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeFileSecurity      Code = "FILE_SECURITY_VIOLATION"
	CodeOCRFailed         Code = "OCR_PROCESSING_FAILED"
	CodeTextExtraction    Code = "TEXT_EXTRACTION_FAILED"
	CodeQuestionDetection Code = "QUESTION_DETECTION_FAILED"
	CodeLayoutAnalysis    Code = "LAYOUT_ANALYSIS_FAILED"
	CodeTimeout           Code = "PROCESSING_TIMEOUT"
	CodeCanceled          Code = "PROCESSING_CANCELED"
)

var kindCodes = map[Kind]Code{
	KindFileSecurity:       CodeFileSecurity,
	KindOCRProcessing:      CodeOCRFailed,
	KindTextExtraction:     CodeTextExtraction,
	KindQuestionDetection:  CodeQuestionDetection,
	KindLayoutAnalysis:     CodeLayoutAnalysis,
	KindProcessingTimeout:  CodeTimeout,
	KindProcessingCanceled: CodeCanceled,
}

// Error is a structured processing error carrying a stable code, the step
// it occurred in, and an optional details payload.
type Error struct {
	Kind      Kind
	Code      Code
	Message   string
	Step      string
	Timestamp time.Time
	Details   map[string]any
	Cause     error
}

// New creates a typed error for the given kind.
func New(kind Kind, step, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Code:      kindCodes[kind],
		Message:   message,
		Step:      step,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// WithDetail attaches a key-value pair to the error's details payload.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Critical reports whether the error class requires out-of-band operator
// notification. Security violations and timeouts are critical; everything
// else is recorded but non-critical.
func (e *Error) Critical() bool {
	return e.Kind == KindFileSecurity || e.Kind == KindProcessingTimeout
}

// ToMap renders the error for storage in a job's error details.
func (e *Error) ToMap() map[string]any {
	m := map[string]any{
		"error_code": string(e.Code),
		"message":    e.Message,
		"step":       e.Step,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
	}
	for k, v := range e.Details {
		m[k] = v
	}
	if e.Cause != nil {
		m["cause"] = truncate(e.Cause.Error(), 500)
	}
	return m
}

// Wrap converts an arbitrary error into a typed *Error for the given step.
// Already-typed errors pass through with the step filled in if missing;
// context deadline errors map to the timeout kind, context cancellation to
// the canceled kind, everything else takes the fallback kind for the step.
func Wrap(err error, step string, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Step == "" {
			typed.Step = step
		}
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindProcessingTimeout, step, "step exceeded time budget", err)
	}
	if errors.Is(err, context.Canceled) {
		return New(KindProcessingCanceled, step, "processing canceled", err)
	}
	return New(fallback, step, err.Error(), err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
