package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/questions"
)

func newDoc(t *testing.T, s *MemoryStore, id string) {
	t.Helper()
	err := s.CreateDocument(context.Background(), Document{ID: id, Name: id + ".pdf", Status: DocumentUploaded})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
}

func TestMemoryStoreDocuments(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newDoc(t, s, "doc-1")

	if err := s.CreateDocument(ctx, Document{ID: "doc-1"}); err == nil {
		t.Fatal("CreateDocument() expected duplicate error")
	}

	if err := s.SetDocumentStatus(ctx, "doc-1", DocumentProcessing, "running"); err != nil {
		t.Fatalf("SetDocumentStatus() error = %v", err)
	}
	doc, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Status != DocumentProcessing || doc.StatusMessage != "running" {
		t.Errorf("document = %+v, want processing/running", doc)
	}

	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRegions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newDoc(t, s, "doc-1")

	saved, err := s.ReplaceRegions(ctx, "doc-1", []geometry.Region{
		{X: 10, Y: 10, Width: 100, Height: 40, Type: geometry.TypeQuestion, Confidence: 0.9},
		{X: 10, Y: 60, Width: 100, Height: 40, Type: geometry.TypePassage, Confidence: 0.4},
	})
	if err != nil {
		t.Fatalf("ReplaceRegions() error = %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("ReplaceRegions() saved %d regions, want 2", len(saved))
	}
	if saved[0].ID == "" || saved[0].ID == saved[1].ID {
		t.Errorf("region IDs not unique: %q, %q", saved[0].ID, saved[1].ID)
	}

	got, err := s.Regions(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Regions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Regions() returned %d, want 2", len(got))
	}
}

func TestMutateRegionsSerializes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newDoc(t, s, "doc-1")
	if _, err := s.ReplaceRegions(ctx, "doc-1", nil); err != nil {
		t.Fatalf("ReplaceRegions() error = %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.MutateRegions(ctx, "doc-1", func(rs []SavedRegion) ([]SavedRegion, error) {
				return append(rs, SavedRegion{Region: geometry.Region{Width: 10, Height: 10, Confidence: 0.5}}), nil
			})
			if err != nil {
				t.Errorf("MutateRegions() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Regions(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Regions() error = %v", err)
	}
	if len(got) != workers {
		t.Errorf("Regions() returned %d after %d mutations, want %d", len(got), workers, workers)
	}
	for _, sr := range got {
		if sr.ID == "" {
			t.Error("mutated region missing assigned ID")
		}
	}
}

func TestMutateRegionsError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newDoc(t, s, "doc-1")
	if _, err := s.ReplaceRegions(ctx, "doc-1", []geometry.Region{{Width: 10, Height: 10}}); err != nil {
		t.Fatalf("ReplaceRegions() error = %v", err)
	}

	wantErr := errors.New("rejected")
	err := s.MutateRegions(ctx, "doc-1", func(rs []SavedRegion) ([]SavedRegion, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("MutateRegions() error = %v, want %v", err, wantErr)
	}
	got, _ := s.Regions(ctx, "doc-1")
	if len(got) != 1 {
		t.Errorf("failed mutation changed regions: got %d, want 1", len(got))
	}
}

func TestMemoryStoreQuestionsAndStatistics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newDoc(t, s, "doc-1")

	qs := []questions.ExtractedQuestion{
		{QuestionNumber: 1, ConfidenceScore: 95, ConfidenceLevel: questions.LevelHigh},
		{QuestionNumber: 2, ConfidenceScore: 40, ConfidenceLevel: questions.LevelLow, RequiresReview: true},
	}
	if err := s.ReplaceQuestions(ctx, "doc-1", qs); err != nil {
		t.Fatalf("ReplaceQuestions() error = %v", err)
	}
	stats, err := s.Statistics(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.Total != 2 || stats.NeedsReviewCount != 1 {
		t.Errorf("Statistics() = %+v, want total 2, review 1", stats)
	}
}

func TestMemoryStoreJobs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := JobRecord{ID: "job-1", DocumentID: "doc-1", Status: "pending"}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}
	first, _ := s.GetJob(ctx, "job-1")

	job.Status = "in_progress"
	job.Progress = 45
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() update error = %v", err)
	}
	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != "in_progress" || got.Progress != 45 {
		t.Errorf("job = %+v, want in_progress/45", got)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Error("SaveJob() update changed CreatedAt")
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("x", 200)
	regions := []SavedRegion{
		{ID: "r1", Region: geometry.Region{X: 5, Y: 6, Width: 70, Height: 80, Type: geometry.TypeQuestion, Confidence: 0.9, Text: "What is 2+2?"}},
		{ID: "r2", Region: geometry.Region{Type: geometry.TypeUnknown, Confidence: 0.3, Text: long}},
	}
	got := Summarize(regions)
	if got[0].NeedsReview {
		t.Error("high confidence region flagged for review")
	}
	if got[0].Coordinates.X != 5 || got[0].Coordinates.Height != 80 {
		t.Errorf("coordinates = %+v", got[0].Coordinates)
	}
	if !got[1].NeedsReview {
		t.Error("low confidence region not flagged for review")
	}
	if len(got[1].TextPreview) != previewLimit+3 || !strings.HasSuffix(got[1].TextPreview, "...") {
		t.Errorf("preview length = %d, want truncated", len(got[1].TextPreview))
	}
}
