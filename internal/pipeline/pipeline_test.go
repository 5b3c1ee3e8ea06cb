package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/examscan/examscan/internal/layout"
	"github.com/examscan/examscan/internal/notify"
	"github.com/examscan/examscan/internal/ocr"
	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/questions"
	"github.com/examscan/examscan/internal/store"
)

// examWords lays out a single multiple-choice question as OCR word boxes,
// matching the text the mock engine returns.
func examWords() []ocr.Word {
	rows := []struct {
		text string
		x, y int
	}{
		{"1. What is the capital of France?", 100, 100},
		{"(a) London", 120, 140},
		{"(b) Paris", 120, 180},
		{"(c) Berlin", 120, 220},
		{"(d) Madrid", 120, 260},
	}
	var words []ocr.Word
	for _, row := range rows {
		cx := row.x
		for _, tok := range strings.Fields(row.text) {
			words = append(words, ocr.Word{
				Text:       tok,
				Box:        image.Rect(cx, row.y, cx+40, row.y+16),
				Confidence: 90,
			})
			cx += 48
		}
	}
	return words
}

// examPage draws ink where the words sit so geometric fallback also has
// something to find.
func examPage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 800, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 800; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for _, w := range examWords() {
		for y := w.Box.Min.Y; y < w.Box.Max.Y; y++ {
			for x := w.Box.Min.X; x < w.Box.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func examEngine() *ocr.MockEngine {
	text := "1. What is the capital of France?\n(a) London\n(b) Paris\n(c) Berlin\n(d) Madrid"
	return &ocr.MockEngine{
		ID:          "mock",
		FixedResult: ocr.Result{Text: text, Confidence: 90, Words: examWords()},
	}
}

func testDeps(t *testing.T, st store.Store, broker *notify.Broker) Dependencies {
	t.Helper()
	return Dependencies{
		Store:    st,
		OCR:      ocr.NewEnsemble(ocr.EnsembleConfig{Engines: []ocr.Engine{examEngine()}}),
		Detector: layout.NewDetector(nil),
		Broker:   broker,
	}
}

func TestNewRejectsBadWeights(t *testing.T) {
	deps := Dependencies{}
	if _, err := New(deps, WithSteps([]Step{{Name: "only", Weight: 50, Run: nil}})); err == nil {
		t.Fatal("New() accepted weights summing to 50")
	}
	if _, err := New(deps, WithSteps([]Step{{Name: "bad", Weight: -10, Run: nil}, {Name: "rest", Weight: 110, Run: nil}})); err == nil {
		t.Fatal("New() accepted a non-positive weight")
	}
}

func TestDefaultStepWeightsSumTo100(t *testing.T) {
	p, err := New(Dependencies{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	total := 0
	for _, s := range p.steps {
		total += s.Weight
	}
	if total != 100 {
		t.Errorf("default weights sum to %d, want 100", total)
	}
}

func TestLayoutAnalysisUsesDetectionRaster(t *testing.T) {
	// Only the half-scale detection raster carries ink. Fallback regions
	// must come from it and arrive mapped back to full-resolution
	// coordinates.
	full := image.NewGray(image.Rect(0, 0, 800, 600))
	for i := range full.Pix {
		full.Pix[i] = 255
	}
	det := image.NewGray(image.Rect(0, 0, 400, 300))
	for i := range det.Pix {
		det.Pix[i] = 255
	}
	for y := 40; y < 50; y++ {
		for x := 50; x < 200; x++ {
			det.SetGray(x, y, color.Gray{Y: 10})
		}
	}

	p, err := New(testDeps(t, store.NewMemoryStore(), nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	job := NewJob("job-1", "doc-1", []image.Image{full})
	job.DetectionPages = []image.Image{det}
	job.DetectionScale = 2

	if perr := p.layoutAnalysis(context.Background(), job); perr != nil {
		t.Fatalf("layoutAnalysis() error = %v", perr)
	}
	if !job.work.usedFallback {
		t.Fatal("expected geometric fallback without OCR words")
	}
	if len(job.work.regions) == 0 {
		t.Fatal("no regions detected from the detection raster")
	}
	scaled := false
	for _, r := range job.work.regions {
		if r.X2() > 300 {
			scaled = true
		}
	}
	if !scaled {
		t.Errorf("regions not mapped to full-resolution coordinates: %+v", job.work.regions)
	}
}

func TestProcessExtractsQuestions(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	if err := st.CreateDocument(ctx, store.Document{ID: "doc-1", Status: store.DocumentUploaded}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	p, err := New(testDeps(t, st, nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	job := NewJob("job-1", "doc-1", []image.Image{examPage()})
	if err := p.Process(ctx, job); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if job.Status() != StatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status())
	}
	if job.Progress() != 100 {
		t.Errorf("progress = %d, want 100", job.Progress())
	}

	qs := job.Questions()
	if len(qs) != 1 {
		t.Fatalf("extracted %d questions, want 1", len(qs))
	}
	q := qs[0]
	if q.QuestionNumber != 1 {
		t.Errorf("question number = %d, want 1", q.QuestionNumber)
	}
	if !strings.Contains(q.QuestionText, "capital of France") {
		t.Errorf("question text = %q", q.QuestionText)
	}
	if q.QuestionType != questions.TypeMultipleChoice {
		t.Errorf("question type = %s, want multiple_choice", q.QuestionType)
	}
	if len(q.Options) != 4 {
		t.Fatalf("options = %d, want 4", len(q.Options))
	}
	if q.Options[1].Letter != "b" || q.Options[1].Text != "Paris" {
		t.Errorf("option b = %+v, want Paris", q.Options[1])
	}
	if q.ConfidenceLevel != questions.LevelHigh {
		t.Errorf("confidence level = %s, want high", q.ConfidenceLevel)
	}

	stats := job.Statistics()
	if stats.Total != 1 || stats.ByConfidenceTier[questions.LevelHigh] != 1 {
		t.Errorf("statistics = %+v, want 1 high question", stats)
	}

	stored, err := st.Questions(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Questions() error = %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored %d questions, want 1", len(stored))
	}
	regions, err := st.Regions(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Regions() error = %v", err)
	}
	if len(regions) == 0 {
		t.Error("no regions persisted")
	}
	doc, _ := st.GetDocument(ctx, "doc-1")
	if doc.Status != store.DocumentCompleted {
		t.Errorf("document status = %s, want completed", doc.Status)
	}
}

func TestProcessProgressIsMonotone(t *testing.T) {
	broker := notify.NewBroker(nil)
	snaps, cancel := broker.Subscribe()
	defer cancel()

	st := store.NewMemoryStore()
	ctx := context.Background()
	if err := st.CreateDocument(ctx, store.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	p, err := New(testDeps(t, st, broker))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.Process(ctx, NewJob("job-1", "doc-1", []image.Image{examPage()})); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	last := -1
	final := ""
	for {
		select {
		case snap := <-snaps:
			if snap.ProgressPercentage < last {
				t.Fatalf("progress went backwards: %d after %d", snap.ProgressPercentage, last)
			}
			last = snap.ProgressPercentage
			final = snap.Status
		case <-time.After(100 * time.Millisecond):
			if last != 100 || final != string(StatusCompleted) {
				t.Fatalf("final snapshot progress = %d status = %s, want 100 completed", last, final)
			}
			return
		}
	}
}

func TestProcessEmptyDocumentFailsValidation(t *testing.T) {
	broker := notify.NewBroker(nil)
	var critical []notify.Snapshot
	broker.OnCritical(func(s notify.Snapshot, _ string) { critical = append(critical, s) })

	p, err := New(testDeps(t, store.NewMemoryStore(), broker))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	job := NewJob("job-1", "doc-1", nil)
	procErr := p.Process(context.Background(), job)
	if procErr == nil {
		t.Fatal("Process() succeeded with no pages")
	}

	var perr *procerr.Error
	if !errors.As(procErr, &perr) {
		t.Fatalf("Process() error type = %T, want *procerr.Error", procErr)
	}
	if perr.Kind != procerr.KindFileSecurity {
		t.Errorf("error kind = %s, want file_security", perr.Kind)
	}
	if job.Status() != StatusFailed {
		t.Errorf("status = %s, want failed", job.Status())
	}
	if len(critical) != 1 {
		t.Errorf("critical notifications = %d, want 1", len(critical))
	}
}

func TestProcessStepTimeout(t *testing.T) {
	slow := Step{Name: "slow", Weight: 100, Run: func(ctx context.Context, j *Job) *procerr.Error {
		select {
		case <-ctx.Done():
			return procerr.Wrap(ctx.Err(), "slow", procerr.KindProcessingTimeout)
		case <-time.After(5 * time.Second):
			return nil
		}
	}}
	p, err := New(Dependencies{}, WithSteps([]Step{slow}), WithStepBudget(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	job := NewJob("job-1", "doc-1", []image.Image{examPage()})
	procErr := p.Process(context.Background(), job)
	var perr *procerr.Error
	if !errors.As(procErr, &perr) {
		t.Fatalf("Process() error type = %T, want *procerr.Error", procErr)
	}
	if perr.Kind != procerr.KindProcessingTimeout {
		t.Errorf("error kind = %s, want processing_timeout", perr.Kind)
	}
	if !perr.Critical() {
		t.Error("timeout error not flagged critical")
	}
}

func TestProcessShutdownCancellationNotCritical(t *testing.T) {
	broker := notify.NewBroker(nil)
	var critical []notify.Snapshot
	broker.OnCritical(func(s notify.Snapshot, _ string) { critical = append(critical, s) })

	ctx, cancel := context.WithCancel(context.Background())
	// The step swallows the cancellation so classification falls to the
	// step runner's context check.
	blocked := Step{Name: "blocked", Weight: 100, Run: func(ctx context.Context, j *Job) *procerr.Error {
		cancel()
		<-ctx.Done()
		return nil
	}}
	p, err := New(Dependencies{Broker: broker}, WithSteps([]Step{blocked}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	job := NewJob("job-1", "doc-1", []image.Image{examPage()})
	procErr := p.Process(ctx, job)
	var perr *procerr.Error
	if !errors.As(procErr, &perr) {
		t.Fatalf("Process() error type = %T, want *procerr.Error", procErr)
	}
	if perr.Kind != procerr.KindProcessingCanceled {
		t.Errorf("error kind = %s, want processing_canceled", perr.Kind)
	}
	if perr.Critical() {
		t.Error("cancellation flagged critical")
	}
	if len(critical) != 0 {
		t.Errorf("critical notifications = %d, want 0 on shutdown", len(critical))
	}
}

func TestProcessOCRFailureFailsJob(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	if err := st.CreateDocument(ctx, store.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	deps := Dependencies{
		Store: st,
		OCR: ocr.NewEnsemble(ocr.EnsembleConfig{Engines: []ocr.Engine{
			&ocr.MockEngine{ID: "broken", Err: errors.New("engine offline")},
		}}),
		Detector: layout.NewDetector(nil),
	}
	p, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	job := NewJob("job-1", "doc-1", []image.Image{examPage()})
	procErr := p.Process(ctx, job)
	var perr *procerr.Error
	if !errors.As(procErr, &perr) {
		t.Fatalf("Process() error type = %T, want *procerr.Error", procErr)
	}
	if perr.Kind != procerr.KindOCRProcessing {
		t.Errorf("error kind = %s, want ocr_processing", perr.Kind)
	}

	rec, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if rec.Status != string(StatusFailed) {
		t.Errorf("persisted status = %s, want failed", rec.Status)
	}
	if rec.ErrorDetails["error_code"] != string(procerr.CodeOCRFailed) {
		t.Errorf("persisted error code = %v", rec.ErrorDetails["error_code"])
	}
}
