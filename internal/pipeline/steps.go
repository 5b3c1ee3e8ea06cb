package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/examscan/examscan/internal/geometry"
	"github.com/examscan/examscan/internal/layout"
	"github.com/examscan/examscan/internal/ocr"
	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/questions"
	"github.com/examscan/examscan/internal/store"
)

// Step names, in execution order.
const (
	StepValidateUpload    = "validate-upload"
	StepDetectTextType    = "detect-text-type"
	StepOCR               = "ocr"
	StepLayoutAnalysis    = "layout-analysis"
	StepTextExtraction    = "text-extraction"
	StepQuestionDetection = "question-detection"
	StepAnswerExtraction  = "answer-extraction"
	StepConfidenceScoring = "confidence-scoring"
	StepFinalize          = "finalize"
)

// maxPageDimension rejects absurd inputs before they reach image work.
const maxPageDimension = 20000

// inkRatio thresholds for classifying a page as clean printed text versus
// a noisy scan needing full enhancement.
const (
	minTextInkRatio = 0.002
	maxTextInkRatio = 0.25
)

func (p *Pipeline) defaultSteps() []Step {
	return []Step{
		{Name: StepValidateUpload, Weight: 5, Run: p.validateUpload},
		{Name: StepDetectTextType, Weight: 10, Run: p.detectTextType},
		{Name: StepOCR, Weight: 30, Run: p.runOCR},
		{Name: StepLayoutAnalysis, Weight: 15, Run: p.layoutAnalysis},
		{Name: StepTextExtraction, Weight: 20, Run: p.textExtraction},
		{Name: StepQuestionDetection, Weight: 15, Run: p.questionDetection},
		{Name: StepAnswerExtraction, Weight: 3, Run: p.answerExtraction},
		{Name: StepConfidenceScoring, Weight: 2, Run: p.confidenceScoring},
		{Name: StepFinalize, Weight: 5, Run: p.finalize},
	}
}

func (p *Pipeline) validateUpload(ctx context.Context, j *Job) *procerr.Error {
	if len(j.Pages) == 0 {
		return procerr.New(procerr.KindFileSecurity, StepValidateUpload, "document has no pages", nil)
	}
	for i, page := range j.Pages {
		if page == nil {
			return procerr.New(procerr.KindFileSecurity, StepValidateUpload,
				fmt.Sprintf("page %d is empty", i+1), nil)
		}
		b := page.Bounds()
		if b.Dx() <= 0 || b.Dy() <= 0 {
			return procerr.New(procerr.KindFileSecurity, StepValidateUpload,
				fmt.Sprintf("page %d has degenerate dimensions %dx%d", i+1, b.Dx(), b.Dy()), nil)
		}
		if b.Dx() > maxPageDimension || b.Dy() > maxPageDimension {
			return procerr.New(procerr.KindFileSecurity, StepValidateUpload,
				fmt.Sprintf("page %d exceeds maximum dimensions: %dx%d", i+1, b.Dx(), b.Dy()), nil)
		}
	}
	return nil
}

// detectTextType samples ink coverage on the first page. Pages with sparse,
// moderate ink are treated as clean printed text; everything else gets the
// full enhancement pass before OCR.
func (p *Pipeline) detectTextType(ctx context.Context, j *Job) *procerr.Error {
	ratio := inkCoverage(j.Pages[0])
	j.mu.Lock()
	j.work.textBased = ratio >= minTextInkRatio && ratio <= maxTextInkRatio
	j.mu.Unlock()
	p.logger.Debug("text type detected", "job_id", j.ID, "ink_ratio", ratio, "text_based", j.work.textBased)
	return nil
}

func (p *Pipeline) runOCR(ctx context.Context, j *Job) *procerr.Error {
	if p.deps.OCR == nil {
		return procerr.New(procerr.KindOCRProcessing, StepOCR, "no OCR ensemble configured", nil)
	}
	opts := ocr.DefaultExtractOptions()
	opts.Preprocess = !j.work.textBased

	results := make([]*ocr.Result, 0, len(j.Pages))
	for i, page := range j.Pages {
		res, err := p.deps.OCR.Extract(ctx, page, i+1, opts)
		if err != nil {
			return procerr.Wrap(err, StepOCR, procerr.KindOCRProcessing)
		}
		results = append(results, res)
	}
	j.mu.Lock()
	j.work.pageResults = results
	j.mu.Unlock()
	return nil
}

func (p *Pipeline) layoutAnalysis(ctx context.Context, j *Job) *procerr.Error {
	if p.deps.Detector == nil {
		return procerr.New(procerr.KindLayoutAnalysis, StepLayoutAnalysis, "no layout detector configured", nil)
	}

	detections := make([]layout.Detection, 0, len(j.Pages))
	regions := make([]geometry.Region, 0)
	fallback := false
	for i, page := range j.Pages {
		if err := ctx.Err(); err != nil {
			return procerr.Wrap(err, StepLayoutAnalysis, procerr.KindLayoutAnalysis)
		}
		var words []ocr.Word
		if i < len(j.work.pageResults) && j.work.pageResults[i] != nil {
			words = j.work.pageResults[i].Words
		}
		// Layout runs on the lighter detection raster when one was
		// ingested. Structural regions come from OCR word boxes and are
		// already in full-resolution coordinates; only the geometric
		// fallback works in detection-raster space and needs mapping back.
		gray := grayOf(page)
		if i < len(j.DetectionPages) && j.DetectionPages[i] != nil {
			gray = grayOf(j.DetectionPages[i])
		}
		det := p.deps.Detector.Detect(gray, words, i+1)
		if det.UsedFallback && j.DetectionScale > 1 {
			scaleRegions(det.Regions, j.DetectionScale)
		}
		detections = append(detections, det)
		regions = append(regions, det.Regions...)
		fallback = fallback || det.UsedFallback
	}

	j.mu.Lock()
	j.work.detections = detections
	j.work.regions = regions
	j.work.usedFallback = fallback
	j.mu.Unlock()
	return nil
}

func (p *Pipeline) textExtraction(ctx context.Context, j *Job) *procerr.Error {
	var b strings.Builder
	empty := true
	for _, res := range j.work.pageResults {
		if res == nil {
			continue
		}
		text := strings.TrimSpace(res.Text)
		if text == "" {
			continue
		}
		empty = false
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	if empty && len(j.work.regions) == 0 {
		return procerr.New(procerr.KindTextExtraction, StepTextExtraction,
			"no text or regions extracted from any page", nil)
	}
	j.mu.Lock()
	j.work.fullText = b.String()
	j.mu.Unlock()
	return nil
}

func (p *Pipeline) questionDetection(ctx context.Context, j *Job) *procerr.Error {
	var qs []questions.ExtractedQuestion
	for _, det := range j.work.detections {
		for _, g := range det.Groups {
			qs = append(qs, questions.FromGroup(g))
		}
		if !det.UsedFallback {
			continue
		}
		// Fallback regions carry no word geometry; parse whatever text
		// was attached to them.
		for _, r := range det.Regions {
			text, options, ok := questions.ParseBlock(r.Text)
			if !ok {
				continue
			}
			qs = append(qs, questions.ExtractedQuestion{
				QuestionText:    text,
				QuestionType:    questions.TypeMultipleChoice,
				Options:         options,
				ConfidenceScore: r.Confidence * 100,
				PageNumber:      r.PageNumber,
			})
		}
	}
	if len(qs) == 0 {
		p.logger.Warn("no questions detected", "job_id", j.ID, "used_fallback", j.work.usedFallback)
	}
	j.mu.Lock()
	j.work.questions = qs
	j.mu.Unlock()
	return nil
}

func (p *Pipeline) answerExtraction(ctx context.Context, j *Job) *procerr.Error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.work.questions {
		q := &j.work.questions[i]
		for oi := range q.Options {
			q.Options[oi].Text = strings.TrimSpace(q.Options[oi].Text)
		}
		if len(q.Options) > 0 {
			q.QuestionType = questions.TypeMultipleChoice
		} else {
			q.QuestionType = questions.TypeOpenEnded
		}
	}
	return nil
}

func (p *Pipeline) confidenceScoring(ctx context.Context, j *Job) *procerr.Error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.work.questions {
		q := &j.work.questions[i]
		q.ConfidenceLevel = questions.LevelFor(q.ConfidenceScore)
		q.RequiresReview = q.ConfidenceLevel == questions.LevelLow
	}
	j.work.stats = questions.Aggregate(j.work.questions)
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, j *Job) *procerr.Error {
	if p.deps.Store == nil {
		return nil
	}
	if _, err := p.deps.Store.ReplaceRegions(ctx, j.DocumentID, j.work.regions); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return procerr.Wrap(err, StepFinalize, procerr.KindTextExtraction)
		}
	}
	if err := p.deps.Store.ReplaceQuestions(ctx, j.DocumentID, j.work.questions); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return procerr.Wrap(err, StepFinalize, procerr.KindTextExtraction)
		}
	}
	if err := p.deps.Store.SetDocumentStatus(ctx, j.DocumentID, store.DocumentCompleted, ""); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		return procerr.Wrap(err, StepFinalize, procerr.KindTextExtraction)
	}
	return nil
}

// inkCoverage returns the fraction of sampled pixels darker than mid-gray.
func inkCoverage(img image.Image) float64 {
	b := img.Bounds()
	stride := b.Dx() / 200
	if stride < 1 {
		stride = 1
	}
	dark, total := 0, 0
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < 128 {
				dark++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(dark) / float64(total)
}

// scaleRegions maps detection-raster boxes back to full-resolution page
// coordinates.
func scaleRegions(regions []geometry.Region, scale float64) {
	for i := range regions {
		r := &regions[i]
		r.X = int(float64(r.X)*scale + 0.5)
		r.Y = int(float64(r.Y)*scale + 0.5)
		r.Width = int(float64(r.Width)*scale + 0.5)
		r.Height = int(float64(r.Height)*scale + 0.5)
	}
}

func grayOf(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.SetGray(x, y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return g
}
