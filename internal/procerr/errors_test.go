package procerr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestError_Codes(t *testing.T) {
	tests := []struct {
		kind Kind
		code Code
	}{
		{KindFileSecurity, CodeFileSecurity},
		{KindOCRProcessing, CodeOCRFailed},
		{KindTextExtraction, CodeTextExtraction},
		{KindQuestionDetection, CodeQuestionDetection},
		{KindLayoutAnalysis, CodeLayoutAnalysis},
		{KindProcessingTimeout, CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "some-step", "boom", nil)
			if err.Code != tt.code {
				t.Errorf("code = %s, want %s", err.Code, tt.code)
			}
		})
	}
}

func TestError_Critical(t *testing.T) {
	if !New(KindFileSecurity, "validate-upload", "bad path", nil).Critical() {
		t.Error("file security errors must be critical")
	}
	if !New(KindProcessingTimeout, "ocr", "too slow", nil).Critical() {
		t.Error("timeout errors must be critical")
	}
	if New(KindOCRProcessing, "ocr", "engine failed", nil).Critical() {
		t.Error("OCR errors must not be critical")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(KindLayoutAnalysis, "layout-analysis", "failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find wrapped cause")
	}
}

func TestWrap(t *testing.T) {
	t.Run("passes through typed errors", func(t *testing.T) {
		orig := New(KindQuestionDetection, "", "no groups", nil)
		wrapped := Wrap(fmt.Errorf("outer: %w", orig), "question-detection", KindTextExtraction)
		if wrapped.Kind != KindQuestionDetection {
			t.Errorf("kind = %s, want %s", wrapped.Kind, KindQuestionDetection)
		}
		if wrapped.Step != "question-detection" {
			t.Errorf("step = %q, want question-detection", wrapped.Step)
		}
	})

	t.Run("classifies deadline expiry as timeout", func(t *testing.T) {
		wrapped := Wrap(fmt.Errorf("run: %w", context.DeadlineExceeded), "ocr", KindOCRProcessing)
		if wrapped.Kind != KindProcessingTimeout {
			t.Errorf("kind = %s, want %s", wrapped.Kind, KindProcessingTimeout)
		}
	})

	t.Run("classifies cancellation as canceled, not timeout", func(t *testing.T) {
		wrapped := Wrap(fmt.Errorf("run: %w", context.Canceled), "ocr", KindProcessingTimeout)
		if wrapped.Kind != KindProcessingCanceled {
			t.Errorf("kind = %s, want %s", wrapped.Kind, KindProcessingCanceled)
		}
		if wrapped.Critical() {
			t.Error("cancellation must not be critical")
		}
	})

	t.Run("uses fallback kind for plain errors", func(t *testing.T) {
		wrapped := Wrap(errors.New("oops"), "text-extraction", KindTextExtraction)
		if wrapped.Kind != KindTextExtraction {
			t.Errorf("kind = %s, want %s", wrapped.Kind, KindTextExtraction)
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		if got := Wrap(nil, "x", KindOCRProcessing); got != nil {
			t.Errorf("Wrap(nil) = %v, want nil", got)
		}
	})
}

func TestError_ToMap_TruncatesCause(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	err := New(KindOCRProcessing, "ocr", "failed", errors.New(string(long)))

	m := err.ToMap()
	cause, _ := m["cause"].(string)
	if len(cause) != 503 { // 500 chars + "..."
		t.Errorf("cause length = %d, want 503", len(cause))
	}
}

func TestDiagnostics_Events(t *testing.T) {
	d := NewDiagnostics(16, slog.Default())

	d.StepStarted("job-1", "ocr")
	d.StepCompleted("job-1", "ocr")
	d.Warn("job-1", "ocr", "engine degraded", map[string]any{"engine": "tesseract"})
	d.StepStarted("job-2", "finalize")

	events := d.Events("job-1")
	if len(events) != 3 {
		t.Fatalf("Events(job-1) = %d events, want 3", len(events))
	}
	if events[0].Type != EventStepStart || events[1].Type != EventStepComplete || events[2].Type != EventWarning {
		t.Errorf("event order wrong: %v %v %v", events[0].Type, events[1].Type, events[2].Type)
	}
	if events[1].Duration < 0 {
		t.Errorf("completion duration negative: %v", events[1].Duration)
	}

	all := d.Events("")
	if len(all) != 4 {
		t.Errorf("Events(\"\") = %d events, want 4", len(all))
	}
}

func TestDiagnostics_RingWrap(t *testing.T) {
	d := NewDiagnostics(4, slog.Default())

	for i := 0; i < 10; i++ {
		d.StepStarted("job", fmt.Sprintf("step-%d", i))
	}

	events := d.Events("job")
	if len(events) != 4 {
		t.Fatalf("ring should keep 4 events, got %d", len(events))
	}
	if events[0].Step != "step-6" || events[3].Step != "step-9" {
		t.Errorf("ring kept wrong window: first=%s last=%s", events[0].Step, events[3].Step)
	}
}
