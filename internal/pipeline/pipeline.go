// Package pipeline runs the staged document processing workflow. A job
// walks a fixed sequence of weighted steps; the weights sum to 100 so the
// cumulative weight of completed steps is the job's progress percentage.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/layout"
	"github.com/examscan/examscan/internal/notify"
	"github.com/examscan/examscan/internal/ocr"
	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/questions"
	"github.com/examscan/examscan/internal/store"
)

// Status represents the current state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultStepBudget bounds how long a single step may run before the job
// fails with a processing timeout.
const DefaultStepBudget = 5 * time.Minute

// Dependencies provides shared resources for job execution.
type Dependencies struct {
	Store       store.Store
	OCR         *ocr.Ensemble
	Detector    *layout.Detector
	Broker      *notify.Broker
	Diagnostics *procerr.Diagnostics
	Logger      *slog.Logger
}

// Step is one stage of the workflow. Run mutates the job's working state
// and returns a typed error on failure.
type Step struct {
	Name   string
	Weight int
	Run    func(ctx context.Context, j *Job) *procerr.Error
}

// Job carries one document through the pipeline. DetectionPages, when
// set, are the low-DPI companions of Pages used for layout detection;
// DetectionScale maps their coordinates back to Pages coordinates.
type Job struct {
	ID             string
	DocumentID     string
	Pages          []image.Image
	DetectionPages []image.Image
	DetectionScale float64

	mu           sync.Mutex
	status       Status
	currentStep  string
	progress     int
	errorDetails map[string]any

	work workingState
}

// workingState holds the intermediate artifacts steps hand to each other.
type workingState struct {
	textBased    bool
	pageResults  []*ocr.Result
	fullText     string
	detections   []layout.Detection
	regions      []geometry.Region
	questions    []questions.ExtractedQuestion
	stats        questions.Statistics
	usedFallback bool
}

// NewJob creates a pending job for a document's page images.
func NewJob(id, documentID string, pages []image.Image) *Job {
	return &Job{
		ID:         id,
		DocumentID: documentID,
		Pages:      pages,
		status:     StatusPending,
	}
}

// Snapshot returns the job's current externally visible state.
func (j *Job) Snapshot() notify.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return notify.Snapshot{
		JobID:              j.ID,
		DocumentID:         j.DocumentID,
		Status:             string(j.status),
		CurrentStep:        j.currentStep,
		ProgressPercentage: j.progress,
		ErrorDetails:       j.errorDetails,
		Timestamp:          time.Now().UTC(),
	}
}

// Status returns the job's current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the cumulative weight of completed steps.
func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Questions returns the extracted questions after a completed run.
func (j *Job) Questions() []questions.ExtractedQuestion {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.work.questions
}

// Statistics returns the aggregate confidence statistics after a run.
func (j *Job) Statistics() questions.Statistics {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.work.stats
}

func (j *Job) setStep(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusInProgress
	j.currentStep = name
}

// advance raises progress to the given cumulative value. Progress never
// moves backwards.
func (j *Job) advance(cumulative int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if cumulative > j.progress {
		j.progress = cumulative
	}
}

func (j *Job) complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusCompleted
	j.currentStep = ""
	j.progress = 100
}

func (j *Job) fail(perr *procerr.Error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusFailed
	j.errorDetails = perr.ToMap()
}

// Pipeline executes jobs over a fixed step sequence.
type Pipeline struct {
	deps       Dependencies
	steps      []Step
	stepBudget time.Duration
	logger     *slog.Logger
}

// Option adjusts pipeline construction.
type Option func(*Pipeline)

// WithStepBudget overrides the per-step deadline.
func WithStepBudget(d time.Duration) Option {
	return func(p *Pipeline) { p.stepBudget = d }
}

// WithSteps replaces the default step sequence. Weights must still sum
// to 100.
func WithSteps(steps []Step) Option {
	return func(p *Pipeline) { p.steps = steps }
}

// New builds a pipeline and validates that step weights cover the full
// progress range.
func New(deps Dependencies, opts ...Option) (*Pipeline, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		deps:       deps,
		stepBudget: DefaultStepBudget,
		logger:     logger.With("component", "pipeline"),
	}
	p.steps = p.defaultSteps()
	for _, opt := range opts {
		opt(p)
	}

	total := 0
	for _, s := range p.steps {
		if s.Weight <= 0 {
			return nil, fmt.Errorf("step %s has non-positive weight %d", s.Name, s.Weight)
		}
		total += s.Weight
	}
	if total != 100 {
		return nil, fmt.Errorf("step weights sum to %d, want 100", total)
	}
	return p, nil
}

// Process runs a job to completion or failure, publishing a snapshot
// after every state transition.
func (p *Pipeline) Process(ctx context.Context, job *Job) error {
	logger := p.logger.With("job_id", job.ID, "document_id", job.DocumentID)
	logger.Info("job started", "pages", len(job.Pages))

	cumulative := 0
	for _, step := range p.steps {
		job.setStep(step.Name)
		p.publish(job)
		if p.deps.Diagnostics != nil {
			p.deps.Diagnostics.StepStarted(job.ID, step.Name)
		}

		perr := p.runStep(ctx, job, step)
		if perr != nil {
			perr.Step = step.Name
			job.fail(perr)
			p.persistJob(ctx, job)
			p.publish(job)
			if perr.Critical() && p.deps.Broker != nil {
				p.deps.Broker.NotifyCritical(job.Snapshot(), perr.Message)
			}
			logger.Error("job failed", "step", step.Name, "error", perr)
			return perr
		}

		cumulative += step.Weight
		job.advance(cumulative)
		if p.deps.Diagnostics != nil {
			p.deps.Diagnostics.StepCompleted(job.ID, step.Name)
		}
		p.persistJob(ctx, job)
		p.publish(job)
		logger.Debug("step completed", "step", step.Name, "progress", cumulative)
	}

	job.complete()
	p.persistJob(ctx, job)
	p.publish(job)
	logger.Info("job completed", "questions", len(job.Questions()))
	return nil
}

// runStep executes a single step under its deadline budget.
func (p *Pipeline) runStep(ctx context.Context, job *Job, step Step) *procerr.Error {
	stepCtx, cancel := context.WithTimeout(ctx, p.stepBudget)
	defer cancel()

	perr := step.Run(stepCtx, job)
	if perr != nil {
		return perr
	}
	if err := stepCtx.Err(); err != nil {
		return procerr.Wrap(err, step.Name, procerr.KindProcessingTimeout)
	}
	return nil
}

func (p *Pipeline) publish(job *Job) {
	if p.deps.Broker == nil {
		return
	}
	p.deps.Broker.Publish(job.Snapshot())
}

func (p *Pipeline) persistJob(ctx context.Context, job *Job) {
	if p.deps.Store == nil {
		return
	}
	snap := job.Snapshot()
	rec := store.JobRecord{
		ID:           snap.JobID,
		DocumentID:   snap.DocumentID,
		Status:       snap.Status,
		CurrentStep:  snap.CurrentStep,
		Progress:     snap.ProgressPercentage,
		ErrorDetails: snap.ErrorDetails,
	}
	if err := p.deps.Store.SaveJob(ctx, rec); err != nil {
		p.logger.Warn("failed to persist job record", "job_id", job.ID, "error", err)
	}
}
