package layout

import "sort"

// ColumnConfig tunes column detection.
type ColumnConfig struct {
	// MinGap is the smallest horizontal gap between sorted line start
	// x-coordinates that can separate columns.
	MinGap int

	// SignificanceGap is the absolute width the winning gap must exceed
	// for a second column to be declared.
	SignificanceGap int
}

// DefaultColumnConfig returns the exam-paper tuning.
func DefaultColumnConfig() ColumnConfig {
	return ColumnConfig{MinGap: 80, SignificanceGap: 120}
}

// Column is a vertical band of lines processed independently.
type Column struct {
	// Index is 0-based, left to right.
	Index int

	// Lines in the column, sorted top to bottom.
	Lines []Line
}

// SplitColumns infers single- versus two-column layout from the horizontal
// gaps between unique line start x-coordinates. The largest gap wins; two
// columns are declared only when it exceeds both thresholds. Exam papers
// do not use more than two columns in practice.
func SplitColumns(lines []Line, cfg ColumnConfig) []Column {
	if len(lines) == 0 {
		return nil
	}

	xs := uniqueStartXs(lines)
	if len(xs) < 2 {
		return []Column{{Index: 0, Lines: lines}}
	}

	bestGap, boundary := 0, 0
	for i := 1; i < len(xs); i++ {
		gap := xs[i] - xs[i-1]
		if gap > bestGap {
			bestGap = gap
			boundary = (xs[i] + xs[i-1]) / 2
		}
	}

	if bestGap < cfg.MinGap || bestGap <= cfg.SignificanceGap {
		return []Column{{Index: 0, Lines: lines}}
	}

	var left, right []Line
	for _, l := range lines {
		if l.StartX() < boundary {
			left = append(left, l)
		} else {
			right = append(right, l)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return []Column{{Index: 0, Lines: lines}}
	}
	return []Column{
		{Index: 0, Lines: left},
		{Index: 1, Lines: right},
	}
}

func uniqueStartXs(lines []Line) []int {
	seen := make(map[int]bool, len(lines))
	var xs []int
	for _, l := range lines {
		x := l.StartX()
		if !seen[x] {
			seen[x] = true
			xs = append(xs, x)
		}
	}
	sort.Ints(xs)
	return xs
}
