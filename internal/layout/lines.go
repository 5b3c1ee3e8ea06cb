// Package layout detects text regions on exam-paper pages. Two tiers run:
// a structural detector over OCR word boxes that recognizes numbered
// questions and lettered options (primary), and a geometric detector over
// the raw bitmap (fallback).
package layout

import (
	"image"
	"sort"
	"strings"

	"github.com/examscan/examscan/internal/ocr"
)

// Line is a horizontal run of OCR words sharing a baseline.
type Line struct {
	// Text is the assembled line content, words joined by single spaces.
	Text string

	// Box is the tight pixel bounding box over the line's words.
	Box image.Rectangle

	// Words are the constituent words, sorted left to right.
	Words []ocr.Word

	// Confidence is the mean word confidence (0-100).
	Confidence float64
}

// StartX returns the x-coordinate of the line's left edge.
func (l Line) StartX() int { return l.Box.Min.X }

// CenterY returns the vertical center of the line.
func (l Line) CenterY() int { return (l.Box.Min.Y + l.Box.Max.Y) / 2 }

// BuildLines groups word boxes into coherent lines. Words whose vertical
// centers fall within half the running median word height of a line's
// center join that line; lines are returned sorted top to bottom with
// words sorted left to right.
func BuildLines(words []ocr.Word, minConfidence float64) []Line {
	var usable []ocr.Word
	for _, w := range words {
		if w.Confidence < minConfidence || strings.TrimSpace(w.Text) == "" {
			continue
		}
		if w.Box.Dx() <= 0 || w.Box.Dy() <= 0 {
			continue
		}
		usable = append(usable, w)
	}
	if len(usable) == 0 {
		return nil
	}

	sort.Slice(usable, func(i, j int) bool {
		yi := (usable[i].Box.Min.Y + usable[i].Box.Max.Y) / 2
		yj := (usable[j].Box.Min.Y + usable[j].Box.Max.Y) / 2
		if yi != yj {
			return yi < yj
		}
		return usable[i].Box.Min.X < usable[j].Box.Min.X
	})

	tol := medianHeight(usable) / 2
	if tol < 2 {
		tol = 2
	}

	var lines []Line
	for _, w := range usable {
		cy := (w.Box.Min.Y + w.Box.Max.Y) / 2
		placed := false
		// Words arrive in vertical order, so only the most recent lines
		// can still accept members.
		for i := len(lines) - 1; i >= 0 && i >= len(lines)-3; i-- {
			lc := lines[i].CenterY()
			if cy-lc <= tol && lc-cy <= tol {
				lines[i].Words = append(lines[i].Words, w)
				lines[i].Box = lines[i].Box.Union(w.Box)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, Line{Box: w.Box, Words: []ocr.Word{w}})
		}
	}

	for i := range lines {
		sort.Slice(lines[i].Words, func(a, b int) bool {
			return lines[i].Words[a].Box.Min.X < lines[i].Words[b].Box.Min.X
		})
		var parts []string
		var sum float64
		for _, w := range lines[i].Words {
			parts = append(parts, w.Text)
			sum += w.Confidence
		}
		lines[i].Text = strings.Join(parts, " ")
		lines[i].Confidence = sum / float64(len(lines[i].Words))
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].Box.Min.Y < lines[j].Box.Min.Y })
	return lines
}

func medianHeight(words []ocr.Word) int {
	heights := make([]int, len(words))
	for i, w := range words {
		heights[i] = w.Box.Dy()
	}
	sort.Ints(heights)
	return heights[len(heights)/2]
}
