// Package questions derives reviewable question records from detected
// question groups and aggregates document-level confidence statistics.
package questions

import (
	"strings"

	"github.com/examscan/examscan/internal/layout"
)

// ConfidenceLevel buckets a 0-100 confidence score.
type ConfidenceLevel string

const (
	LevelHigh   ConfidenceLevel = "high"   // >= 80
	LevelMedium ConfidenceLevel = "medium" // 60-79
	LevelLow    ConfidenceLevel = "low"    // < 60
)

// LevelFor returns the tier for a 0-100 score.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 80:
		return LevelHigh
	case score >= 60:
		return LevelMedium
	default:
		return LevelLow
	}
}

// QuestionType classifies a question's answer structure.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeOpenEnded      QuestionType = "open_ended"
)

// ExtractedQuestion is the reviewable output record for one question.
type ExtractedQuestion struct {
	QuestionText    string          `json:"question_text"`
	QuestionType    QuestionType    `json:"question_type"`
	QuestionNumber  int             `json:"question_number,omitempty"`
	Options         []layout.Option `json:"options,omitempty"`
	CorrectAnswers  []string        `json:"correct_answers,omitempty"`
	ConfidenceScore float64         `json:"confidence_score"` // 0-100
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	RequiresReview  bool            `json:"requires_review"`
	PageNumber      int             `json:"page_number"`
}

// FromGroup converts a detected question group into an extracted question.
// Group confidence is on [0,1]; the question record uses 0-100.
func FromGroup(g layout.QuestionGroup) ExtractedQuestion {
	score := g.Region.Confidence * 100
	level := LevelFor(score)

	qt := TypeOpenEnded
	if len(g.Options) > 0 {
		qt = TypeMultipleChoice
	}

	return ExtractedQuestion{
		QuestionText:    g.QuestionText,
		QuestionType:    qt,
		QuestionNumber:  g.Number,
		Options:         g.Options,
		ConfidenceScore: score,
		ConfidenceLevel: level,
		RequiresReview:  level == LevelLow,
		PageNumber:      g.Region.PageNumber,
	}
}

// ParseBlock structurally parses a plain text block into question text and
// options, for region text that arrives without word geometry (manual
// corrections, single-region re-OCR). Returns ok=false when no option
// structure is found or the option sequence is invalid.
func ParseBlock(text string) (questionText string, options []layout.Option, ok bool) {
	var qParts []string
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if letter, body, isOpt := layout.MatchOption(line); isOpt {
			options = append(options, layout.Option{Letter: letter, Text: body})
			continue
		}
		if _, rest, isQ := layout.MatchQuestionStart(line); isQ {
			qParts = append(qParts, rest)
			continue
		}
		if len(options) == 0 {
			qParts = append(qParts, line)
		}
	}

	if !layout.ValidOptionSequence(options) {
		return "", nil, false
	}
	questionText = strings.TrimSpace(strings.Join(qParts, "\n"))
	return questionText, options, questionText != ""
}
