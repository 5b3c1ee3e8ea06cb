// Package store defines the Document Store collaborator boundary and an
// in-memory implementation. The pipeline persists documents, regions,
// questions, and job records through the Store interface; durable storage
// is an external concern behind it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/questions"
)

// ErrNotFound is returned for unknown document or job IDs.
var ErrNotFound = errors.New("not found")

// DocumentStatus tracks a document through processing.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is one uploaded exam paper.
type Document struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	PageCount     int            `json:"page_count"`
	Status        DocumentStatus `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SavedRegion is a detected or corrected region with its storage identity.
type SavedRegion struct {
	ID     string          `json:"id"`
	Region geometry.Region `json:"region"`
}

// JobRecord is the persisted view of a processing job.
type JobRecord struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	Status       string         `json:"status"`
	CurrentStep  string         `json:"current_step"`
	Progress     int            `json:"progress_percentage"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Store is the persistence contract used by the pipeline and the API.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	SetDocumentStatus(ctx context.Context, id string, status DocumentStatus, message string) error

	// ReplaceRegions swaps a document's saved region set. MutateRegions
	// applies an edit under the document's single-writer lock so manual
	// correction cannot race automatic detection.
	ReplaceRegions(ctx context.Context, docID string, regions []geometry.Region) ([]SavedRegion, error)
	Regions(ctx context.Context, docID string) ([]SavedRegion, error)
	MutateRegions(ctx context.Context, docID string, fn func([]SavedRegion) ([]SavedRegion, error)) error

	ReplaceQuestions(ctx context.Context, docID string, qs []questions.ExtractedQuestion) error
	Questions(ctx context.Context, docID string) ([]questions.ExtractedQuestion, error)
	Statistics(ctx context.Context, docID string) (questions.Statistics, error)

	SaveJob(ctx context.Context, job JobRecord) error
	GetJob(ctx context.Context, id string) (JobRecord, error)
}
