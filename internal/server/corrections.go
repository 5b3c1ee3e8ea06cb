package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/examscan/examscan/internal/correction"
	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/store"
)

// CorrectionRequest applies one manual edit to a document's regions.
type CorrectionRequest struct {
	Action string `json:"action"` // resize, move, split, merge, delete, create, retype
	Actor  string `json:"actor,omitempty"`

	// RegionID targets resize, move, split, delete, and retype.
	RegionID string `json:"region_id,omitempty"`

	// RegionIDs targets merge (two or more).
	RegionIDs []string `json:"region_ids,omitempty"`

	// Box is the new geometry for resize, move, and create.
	Box *store.Coordinates `json:"box,omitempty"`

	// At and Axis control split placement.
	At   int    `json:"at,omitempty"`
	Axis string `json:"axis,omitempty"`

	// Type is the region type for create and retype.
	Type string `json:"type,omitempty"`

	// Confidence seeds a created region (0-1).
	Confidence float64 `json:"confidence,omitempty"`
	PageNumber int     `json:"page_number,omitempty"`
}

func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")

	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor == "" {
		req.Actor = "operator"
	}

	err := s.store.MutateRegions(r.Context(), docID, func(current []store.SavedRegion) ([]store.SavedRegion, error) {
		return s.applyCorrection(current, req)
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	regions, err := s.store.Regions(r.Context(), docID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": store.Summarize(regions)})
}

func (s *Server) applyCorrection(current []store.SavedRegion, req CorrectionRequest) ([]store.SavedRegion, error) {
	switch correction.Type(req.Action) {
	case correction.TypeResize, correction.TypeMove:
		if req.Box == nil {
			return nil, fmt.Errorf("%s requires a box", req.Action)
		}
		idx, err := findRegion(current, req.RegionID)
		if err != nil {
			return nil, err
		}
		target := current[idx].Region
		next := target
		next.X, next.Y = req.Box.X, req.Box.Y
		next.Width, next.Height = req.Box.Width, req.Box.Height
		updated, err := s.corrector.Resize(target, next, req.Actor)
		if err != nil {
			return nil, err
		}
		current[idx].Region = updated
		return current, nil

	case correction.TypeSplit:
		idx, err := findRegion(current, req.RegionID)
		if err != nil {
			return nil, err
		}
		first, second, err := s.corrector.Split(current[idx].Region, req.At, correction.Axis(req.Axis), req.Actor)
		if err != nil {
			return nil, err
		}
		current[idx].Region = first
		return append(current, store.SavedRegion{Region: second}), nil

	case correction.TypeMerge:
		if len(req.RegionIDs) < 2 {
			return nil, fmt.Errorf("merge requires at least two region ids")
		}
		indices := make(map[int]bool, len(req.RegionIDs))
		regions := make([]geometry.Region, 0, len(req.RegionIDs))
		for _, id := range req.RegionIDs {
			idx, err := findRegion(current, id)
			if err != nil {
				return nil, err
			}
			indices[idx] = true
			regions = append(regions, current[idx].Region)
		}
		merged, err := s.corrector.Merge(regions, req.Actor)
		if err != nil {
			return nil, err
		}
		next := make([]store.SavedRegion, 0, len(current)-len(indices)+1)
		for i, sr := range current {
			if !indices[i] {
				next = append(next, sr)
			}
		}
		return append(next, store.SavedRegion{Region: merged}), nil

	case correction.TypeDelete:
		idx, err := findRegion(current, req.RegionID)
		if err != nil {
			return nil, err
		}
		s.corrector.Delete(current[idx].Region, req.Actor)
		return append(current[:idx], current[idx+1:]...), nil

	case correction.TypeCreate:
		if req.Box == nil {
			return nil, fmt.Errorf("create requires a box")
		}
		region := geometry.Region{
			X:          req.Box.X,
			Y:          req.Box.Y,
			Width:      req.Box.Width,
			Height:     req.Box.Height,
			PageNumber: req.PageNumber,
			Type:       geometry.RegionType(req.Type),
			Confidence: req.Confidence,
		}
		if region.Type == "" {
			region.Type = geometry.TypeUnknown
		}
		created, err := s.corrector.Create(region, req.Actor)
		if err != nil {
			return nil, err
		}
		return append(current, store.SavedRegion{Region: created}), nil

	case correction.TypeRetype:
		idx, err := findRegion(current, req.RegionID)
		if err != nil {
			return nil, err
		}
		current[idx].Region = s.corrector.Retype(current[idx].Region, geometry.RegionType(req.Type), req.Actor)
		return current, nil

	default:
		return nil, fmt.Errorf("unknown correction action: %q", req.Action)
	}
}

func findRegion(regions []store.SavedRegion, id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("region_id is required")
	}
	for i, sr := range regions {
		if sr.ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("region %s: %w", id, store.ErrNotFound)
}
