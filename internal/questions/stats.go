package questions

// Statistics is the per-document confidence aggregate. It is a pure
// function of the current question set; recomputation is idempotent.
type Statistics struct {
	Total             int                     `json:"total"`
	ByConfidenceTier  map[ConfidenceLevel]int `json:"by_confidence_tier"`
	AverageConfidence float64                 `json:"average_confidence"`
	NeedsReviewCount  int                     `json:"needs_review_count"`
}

// Aggregate computes document statistics over a question set.
func Aggregate(qs []ExtractedQuestion) Statistics {
	stats := Statistics{
		ByConfidenceTier: map[ConfidenceLevel]int{
			LevelHigh:   0,
			LevelMedium: 0,
			LevelLow:    0,
		},
	}
	if len(qs) == 0 {
		return stats
	}

	var sum float64
	for _, q := range qs {
		stats.Total++
		level := LevelFor(q.ConfidenceScore)
		stats.ByConfidenceTier[level]++
		if level == LevelLow {
			stats.NeedsReviewCount++
		}
		sum += q.ConfidenceScore
	}
	stats.AverageConfidence = sum / float64(len(qs))
	return stats
}
