package ocr

import (
	"context"
	"sync/atomic"
	"time"
)

// MockEngine is a configurable fake engine for tests.
type MockEngine struct {
	// ID is returned from Name(). Defaults to "mock".
	ID string

	// FixedResult is returned from every Recognize call when Err is nil.
	// The EngineID field is overwritten with ID.
	FixedResult Result

	// Err, when set, fails every Recognize call.
	Err error

	// Latency is slept before responding, for concurrency tests.
	Latency time.Duration

	calls atomic.Int64
}

// NewMockEngine creates a mock returning the given text at the given
// confidence.
func NewMockEngine(id, text string, confidence float64) *MockEngine {
	return &MockEngine{
		ID:          id,
		FixedResult: Result{Text: text, Confidence: confidence},
	}
}

// Name returns the configured engine id.
func (m *MockEngine) Name() string {
	if m.ID == "" {
		return "mock"
	}
	return m.ID
}

// Recognize returns the configured result or error.
func (m *MockEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	m.calls.Add(1)
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	res := m.FixedResult
	res.EngineID = m.Name()
	res.Preprocessing = in.Preprocessing
	return &res, nil
}

// Calls returns how many times Recognize was invoked.
func (m *MockEngine) Calls() int64 {
	return m.calls.Load()
}
