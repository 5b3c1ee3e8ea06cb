package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/examscan/examscan/internal/ingest"
	"github.com/examscan/examscan/internal/pipeline"
	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/store"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /documents", s.handleCreateDocument)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /documents/{id}/regions", s.handleListRegions)
	mux.HandleFunc("GET /documents/{id}/questions", s.handleListQuestions)
	mux.HandleFunc("GET /documents/{id}/statistics", s.handleStatistics)
	mux.HandleFunc("POST /documents/{id}/corrections", s.handleCorrection)

	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}/events", s.handleJobEvents)

	mux.HandleFunc("GET /corrections/audit", s.handleAuditLog)
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateDocumentRequest submits local scan files for processing.
type CreateDocumentRequest struct {
	Paths []string `json:"paths"`
	Name  string   `json:"name,omitempty"`
}

// CreateDocumentResponse returns the new document and its processing job.
type CreateDocumentResponse struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	PageCount  int    `json:"page_count"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil || s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "document processing not configured")
		return
	}

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.ingestor.Ingest(r.Context(), ingest.Request{Paths: req.Paths, Name: req.Name})
	if err != nil {
		writeProcessingError(w, err)
		return
	}

	job := pipeline.NewJob(uuid.NewString(), res.DocumentID, res.Pages)
	job.DetectionPages = res.DetectionPages
	job.DetectionScale = res.DetectionScale
	if err := s.runner.Submit(job); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, CreateDocumentResponse{
		DocumentID: res.DocumentID,
		JobID:      job.ID,
		PageCount:  res.PageCount,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.store.Regions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": store.Summarize(regions)})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.store.Questions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// JobResponse reports current job state. Live jobs come from the runner;
// finished or restarted ones fall back to the persisted record.
type JobResponse struct {
	JobID              string         `json:"job_id"`
	DocumentID         string         `json:"document_id"`
	Status             string         `json:"status"`
	CurrentStep        string         `json:"current_step,omitempty"`
	ProgressPercentage int            `json:"progress_percentage"`
	ErrorDetails       map[string]any `json:"error_details,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.runner != nil {
		if job, ok := s.runner.Job(id); ok {
			snap := job.Snapshot()
			writeJSON(w, http.StatusOK, JobResponse{
				JobID:              snap.JobID,
				DocumentID:         snap.DocumentID,
				Status:             snap.Status,
				CurrentStep:        snap.CurrentStep,
				ProgressPercentage: snap.ProgressPercentage,
				ErrorDetails:       snap.ErrorDetails,
			})
			return
		}
	}

	rec, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{
		JobID:              rec.ID,
		DocumentID:         rec.DocumentID,
		Status:             rec.Status,
		CurrentStep:        rec.CurrentStep,
		ProgressPercentage: rec.Progress,
		ErrorDetails:       rec.ErrorDetails,
	})
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	if s.diagnostics == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.diagnostics.Events(r.PathValue("id"))})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"records": s.corrector.Log().Records()})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeProcessingError(w http.ResponseWriter, err error) {
	var perr *procerr.Error
	if errors.As(err, &perr) {
		status := http.StatusUnprocessableEntity
		if perr.Kind == procerr.KindFileSecurity {
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(perr.ToMap())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
