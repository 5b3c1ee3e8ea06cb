package procerr

import (
	"log/slog"
	"sync"
	"time"
)

// EventType classifies a diagnostics event.
type EventType string

const (
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventWarning      EventType = "warning"
)

// Event is a single structured diagnostics record. Events are independent
// of error handling and exist to support post-hoc performance analysis.
type Event struct {
	Type      EventType      `json:"type"`
	JobID     string         `json:"job_id"`
	Step      string         `json:"step"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Diagnostics records step lifecycle events into a bounded ring buffer and
// mirrors them to a structured logger. Safe for concurrent use.
type Diagnostics struct {
	mu     sync.Mutex
	events []Event
	next   int
	filled bool
	logger *slog.Logger

	starts map[string]time.Time // jobID+step -> start time
}

const defaultCapacity = 1024

// NewDiagnostics creates a recorder holding up to capacity events.
// A capacity of zero or less uses the default.
func NewDiagnostics(capacity int, logger *slog.Logger) *Diagnostics {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{
		events: make([]Event, capacity),
		logger: logger,
		starts: make(map[string]time.Time),
	}
}

// StepStarted records the beginning of a pipeline step.
func (d *Diagnostics) StepStarted(jobID, step string) {
	now := time.Now()
	d.mu.Lock()
	d.starts[jobID+"/"+step] = now
	d.appendLocked(Event{Type: EventStepStart, JobID: jobID, Step: step, Timestamp: now})
	d.mu.Unlock()

	d.logger.Debug("step started", "job_id", jobID, "step", step)
}

// StepCompleted records the end of a pipeline step with its measured duration.
func (d *Diagnostics) StepCompleted(jobID, step string) {
	now := time.Now()
	key := jobID + "/" + step

	d.mu.Lock()
	var dur time.Duration
	if start, ok := d.starts[key]; ok {
		dur = now.Sub(start)
		delete(d.starts, key)
	}
	d.appendLocked(Event{Type: EventStepComplete, JobID: jobID, Step: step, Duration: dur, Timestamp: now})
	d.mu.Unlock()

	d.logger.Info("step completed", "job_id", jobID, "step", step, "duration_ms", dur.Milliseconds())
}

// Warn records a non-fatal warning scoped to a job step.
func (d *Diagnostics) Warn(jobID, step, message string, fields map[string]any) {
	d.mu.Lock()
	d.appendLocked(Event{
		Type:      EventWarning,
		JobID:     jobID,
		Step:      step,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	})
	d.mu.Unlock()

	args := []any{"job_id", jobID, "step", step}
	for k, v := range fields {
		args = append(args, k, v)
	}
	d.logger.Warn(message, args...)
}

// Events returns recorded events for a job in insertion order. An empty
// jobID returns all events.
func (d *Diagnostics) Events(jobID string) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Event
	appendMatch := func(e Event) {
		if e.Timestamp.IsZero() {
			return
		}
		if jobID == "" || e.JobID == jobID {
			out = append(out, e)
		}
	}
	if d.filled {
		for i := d.next; i < len(d.events); i++ {
			appendMatch(d.events[i])
		}
	}
	for i := 0; i < d.next; i++ {
		appendMatch(d.events[i])
	}
	return out
}

func (d *Diagnostics) appendLocked(e Event) {
	d.events[d.next] = e
	d.next++
	if d.next == len(d.events) {
		d.next = 0
		d.filled = true
	}
}
