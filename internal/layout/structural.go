package layout

import (
	"image"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/ocr"
)

// QuestionStartPatterns match the numbered prefixes that open a question.
// Each pattern's first capture group is the question number.
var QuestionStartPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{1,3})\.\s+\S`),     // "114. What is..."
	regexp.MustCompile(`^(\d{1,3})\)\s+\S`),     // "114) What is..."
	regexp.MustCompile(`^Q\.?\s*(\d{1,3})\b\W*`), // "Q.1", "Q 12:"
}

// OptionPattern matches a lettered answer option line: "(a) text".
var OptionPattern = regexp.MustCompile(`^\(([a-d])\)\s*(.+)$`)

// OptionLetters is the only valid option sequence; detected letters must
// form a contiguous prefix of it.
var OptionLetters = []string{"a", "b", "c", "d"}

// MatchQuestionStart reports whether a line opens a question, returning
// the parsed question number and the remaining text.
func MatchQuestionStart(text string) (number int, rest string, ok bool) {
	trimmed := strings.TrimSpace(text)
	for _, p := range QuestionStartPatterns {
		loc := p.FindStringSubmatchIndex(trimmed)
		if loc == nil {
			continue
		}
		num, err := strconv.Atoi(trimmed[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		// Strip "114. " / "Q.1" style prefixes; keep the question body.
		rest = strings.TrimSpace(trimmed[loc[3]:])
		rest = strings.TrimLeft(rest, ".):| ")
		return num, strings.TrimSpace(rest), true
	}
	return 0, "", false
}

// MatchOption reports whether a line is a lettered answer option.
func MatchOption(text string) (letter, body string, ok bool) {
	m := OptionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// Option is one lettered answer option of a question group.
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// QuestionGroup is a detected question with its associated options. The
// region has type question_group and covers every constituent line.
type QuestionGroup struct {
	Region       geometry.Region `json:"region"`
	Number       int             `json:"question_number,omitempty"`
	QuestionText string          `json:"question_text"`
	Options      []Option        `json:"options"`
	Complete     bool            `json:"is_complete"`
}

// StructuralConfig tunes the structural (Tier B) detector.
type StructuralConfig struct {
	// MinWordConfidence filters OCR words before line building (0-100).
	MinWordConfidence float64

	// MaxContinuationLines caps how many lines after a question start are
	// treated as question text continuation.
	MaxContinuationLines int

	// SameColumnTolerance is the maximum difference in x-origin for an
	// option line to be attributed to a question.
	SameColumnTolerance int

	// BoxPadding is added on every side of a group's bounding box.
	BoxPadding int

	Columns ColumnConfig
}

// DefaultStructuralConfig returns the exam-paper tuning.
func DefaultStructuralConfig() StructuralConfig {
	return StructuralConfig{
		MinWordConfidence:    ocr.MinWordConfidence,
		MaxContinuationLines: 8,
		SameColumnTolerance:  60,
		BoxPadding:           8,
		Columns:              DefaultColumnConfig(),
	}
}

// StructuralDetector finds question groups from word-level OCR output.
type StructuralDetector struct {
	cfg    StructuralConfig
	logger *slog.Logger
}

// NewStructuralDetector creates a detector.
func NewStructuralDetector(cfg StructuralConfig, logger *slog.Logger) *StructuralDetector {
	if cfg.MaxContinuationLines <= 0 {
		cfg.MaxContinuationLines = DefaultStructuralConfig().MaxContinuationLines
	}
	if cfg.SameColumnTolerance <= 0 {
		cfg.SameColumnTolerance = DefaultStructuralConfig().SameColumnTolerance
	}
	if cfg.Columns.MinGap <= 0 {
		cfg.Columns = DefaultColumnConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StructuralDetector{cfg: cfg, logger: logger}
}

// DetectGroups builds lines from OCR words, splits them into columns, and
// extracts validated question groups per column. Groups whose option
// letters do not form a contiguous prefix of [a b c d] are discarded; the
// caller falls back to geometric detection when nothing valid remains.
func (d *StructuralDetector) DetectGroups(words []ocr.Word, page int) []QuestionGroup {
	lines := BuildLines(words, d.cfg.MinWordConfidence)
	if len(lines) == 0 {
		return nil
	}

	columns := SplitColumns(lines, d.cfg.Columns)
	var groups []QuestionGroup
	for _, col := range columns {
		groups = append(groups, d.detectInColumn(col, page)...)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Region.PageNumber != groups[j].Region.PageNumber {
			return groups[i].Region.PageNumber < groups[j].Region.PageNumber
		}
		if groups[i].Region.X != groups[j].Region.X {
			return groups[i].Region.X < groups[j].Region.X
		}
		return groups[i].Region.Y < groups[j].Region.Y
	})
	return groups
}

// questionSpan tracks a question's constituent lines during detection.
type questionSpan struct {
	number    int
	textLines []Line
	startIdx  int // index into column lines of the question start
	endIdx    int // index of the last continuation line
}

func (d *StructuralDetector) detectInColumn(col Column, page int) []QuestionGroup {
	lines := col.Lines

	// Pass 1: find question spans. A span runs from its start line until
	// another question start, an option line, or the continuation cap.
	var spans []questionSpan
	for i := 0; i < len(lines); i++ {
		number, rest, ok := MatchQuestionStart(lines[i].Text)
		if !ok {
			continue
		}
		span := questionSpan{number: number, startIdx: i, endIdx: i}
		first := lines[i]
		first.Text = rest
		span.textLines = append(span.textLines, first)

		for j := i + 1; j < len(lines) && j-i <= d.cfg.MaxContinuationLines; j++ {
			if _, _, isQ := MatchQuestionStart(lines[j].Text); isQ {
				break
			}
			if _, _, isOpt := MatchOption(lines[j].Text); isOpt {
				break
			}
			span.textLines = append(span.textLines, lines[j])
			span.endIdx = j
		}
		spans = append(spans, span)
	}

	var groups []QuestionGroup
	for si, span := range spans {
		// The question's option window runs from its last text line to
		// the next question's start (or column end).
		windowEnd := len(lines)
		if si+1 < len(spans) {
			windowEnd = spans[si+1].startIdx
		}

		questionX := lines[span.startIdx].StartX()
		type optLine struct {
			opt  Option
			line Line
		}
		var opts []optLine
		for j := span.endIdx + 1; j < windowEnd; j++ {
			letter, body, ok := MatchOption(lines[j].Text)
			if !ok {
				continue
			}
			dx := lines[j].StartX() - questionX
			if dx < -d.cfg.SameColumnTolerance || dx > d.cfg.SameColumnTolerance {
				continue
			}
			opts = append(opts, optLine{opt: Option{Letter: letter, Text: body}, line: lines[j]})
		}

		sort.Slice(opts, func(a, b int) bool {
			return opts[a].line.Box.Min.Y < opts[b].line.Box.Min.Y
		})

		options := make([]Option, len(opts))
		optLines := make([]Line, len(opts))
		for i, o := range opts {
			options[i] = o.opt
			optLines[i] = o.line
		}

		if len(options) > 0 && !ValidOptionSequence(options) {
			d.logger.Debug("discarding question group with invalid option sequence",
				"page", page, "question", span.number)
			continue
		}

		groups = append(groups, d.buildGroup(span, options, optLines, page))
	}
	return groups
}

// ValidOptionSequence reports whether option letters form a contiguous
// prefix of [a b c d]. Gapped sequences mean a mis-detected option and
// invalidate the group.
func ValidOptionSequence(options []Option) bool {
	if len(options) > len(OptionLetters) {
		return false
	}
	for i, o := range options {
		if o.Letter != OptionLetters[i] {
			return false
		}
	}
	return true
}

func (d *StructuralDetector) buildGroup(span questionSpan, options []Option, optLines []Line, page int) QuestionGroup {
	var parts []string
	box := span.textLines[0].Box
	for _, l := range span.textLines {
		parts = append(parts, l.Text)
		box = box.Union(l.Box)
	}
	for _, l := range optLines {
		box = box.Union(l.Box)
	}

	pad := d.cfg.BoxPadding
	box = image.Rect(max(box.Min.X-pad, 0), max(box.Min.Y-pad, 0), box.Max.X+pad, box.Max.Y+pad)

	confidence := groupConfidence(len(options))
	text := strings.TrimSpace(strings.Join(parts, "\n"))

	region := geometry.FromRect(box, page, geometry.TypeQuestionGroup, confidence)
	region.Text = text

	return QuestionGroup{
		Region:       region,
		Number:       span.number,
		QuestionText: text,
		Options:      options,
		Complete:     text != "" && len(options) >= 2,
	}
}

// groupConfidence scores a group from its question-start match (high base)
// boosted by the number of valid options found, capped below certainty.
func groupConfidence(optionCount int) float64 {
	confidence := 0.95
	switch {
	case optionCount >= 4:
		confidence += 0.15
	case optionCount >= 2:
		confidence += 0.10
	}
	if confidence > 0.98 {
		confidence = 0.98
	}
	return confidence
}
