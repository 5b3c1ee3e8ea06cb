package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/questions"
)

// MemoryStore keeps everything in process memory. Region edits for a
// document serialize on that document's lock, so concurrent corrections
// apply one at a time.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]Document
	regions   map[string][]SavedRegion
	questions map[string][]questions.ExtractedQuestion
	jobs      map[string]JobRecord
	docLocks  map[string]*sync.Mutex
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]Document),
		regions:   make(map[string][]SavedRegion),
		questions: make(map[string][]questions.ExtractedQuestion),
		jobs:      make(map[string]JobRecord),
		docLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	s.documents[doc.ID] = doc
	s.docLocks[doc.ID] = &sync.Mutex{}
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.documents))
	for _, d := range s.documents {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs, nil
}

func (s *MemoryStore) SetDocumentStatus(_ context.Context, id string, status DocumentStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	doc.Status = status
	doc.StatusMessage = message
	doc.UpdatedAt = time.Now().UTC()
	s.documents[id] = doc
	return nil
}

func (s *MemoryStore) lockFor(docID string) (*sync.Mutex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lock, ok := s.docLocks[docID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	return lock, nil
}

func (s *MemoryStore) ReplaceRegions(_ context.Context, docID string, regions []geometry.Region) ([]SavedRegion, error) {
	lock, err := s.lockFor(docID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	saved := make([]SavedRegion, len(regions))
	for i, r := range regions {
		saved[i] = SavedRegion{ID: uuid.NewString(), Region: r}
	}
	s.mu.Lock()
	s.regions[docID] = saved
	s.mu.Unlock()
	return copyRegions(saved), nil
}

func (s *MemoryStore) Regions(_ context.Context, docID string) ([]SavedRegion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.documents[docID]; !ok {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	return copyRegions(s.regions[docID]), nil
}

func (s *MemoryStore) MutateRegions(_ context.Context, docID string, fn func([]SavedRegion) ([]SavedRegion, error)) error {
	lock, err := s.lockFor(docID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := copyRegions(s.regions[docID])
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil {
		return err
	}
	for i := range next {
		if next[i].ID == "" {
			next[i].ID = uuid.NewString()
		}
	}
	s.mu.Lock()
	s.regions[docID] = next
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ReplaceQuestions(_ context.Context, docID string, qs []questions.ExtractedQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[docID]; !ok {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	s.questions[docID] = append([]questions.ExtractedQuestion(nil), qs...)
	return nil
}

func (s *MemoryStore) Questions(_ context.Context, docID string) ([]questions.ExtractedQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.documents[docID]; !ok {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	return append([]questions.ExtractedQuestion(nil), s.questions[docID]...), nil
}

func (s *MemoryStore) Statistics(ctx context.Context, docID string) (questions.Statistics, error) {
	qs, err := s.Questions(ctx, docID)
	if err != nil {
		return questions.Statistics{}, err
	}
	return questions.Aggregate(qs), nil
}

func (s *MemoryStore) SaveJob(_ context.Context, job JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.jobs[job.ID]; ok {
		job.CreatedAt = existing.CreatedAt
	} else if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return JobRecord{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, nil
}

func copyRegions(in []SavedRegion) []SavedRegion {
	out := make([]SavedRegion, len(in))
	copy(out, in)
	return out
}

var _ Store = (*MemoryStore)(nil)
