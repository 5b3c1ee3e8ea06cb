package store

// RegionSummary is the API-facing shape of a saved region.
type RegionSummary struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Coordinates Coordinates `json:"coordinates"`
	Confidence  float64     `json:"confidence"`
	TextPreview string      `json:"text_preview"`
	NeedsReview bool        `json:"needs_review"`
}

// Coordinates mirrors the region bounding box.
type Coordinates struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

const (
	previewLimit = 120

	// Regions below this confidence are flagged for manual review.
	reviewThreshold = 0.6
)

// Summarize converts saved regions to their API representation.
func Summarize(regions []SavedRegion) []RegionSummary {
	out := make([]RegionSummary, len(regions))
	for i, sr := range regions {
		preview := sr.Region.Text
		if len(preview) > previewLimit {
			preview = preview[:previewLimit] + "..."
		}
		out[i] = RegionSummary{
			ID:   sr.ID,
			Type: string(sr.Region.Type),
			Coordinates: Coordinates{
				X:      sr.Region.X,
				Y:      sr.Region.Y,
				Width:  sr.Region.Width,
				Height: sr.Region.Height,
			},
			Confidence:  sr.Region.Confidence,
			TextPreview: preview,
			NeedsReview: sr.Region.Confidence < reviewThreshold,
		}
	}
	return out
}
