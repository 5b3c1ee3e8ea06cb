package imgproc

import (
	"image"
	"math"
)

const (
	maxSkewDegrees  = 5.0
	skewStepDegrees = 0.25
	inkThreshold    = 128
)

// deskew estimates page skew by maximizing the variance of horizontal
// ink-projection profiles over candidate angles, then rotates by the best
// angle. Returns nil when the detected skew is at or below threshold, so
// near-straight pages skip the interpolation cost.
func deskew(src *image.Gray, thresholdDegrees float64) *image.Gray {
	angle := detectSkew(src)
	if math.Abs(angle) <= thresholdDegrees {
		return nil
	}
	return rotate(src, -angle)
}

// detectSkew returns the estimated skew angle in degrees. Positive angles
// mean the text lines rise left to right.
func detectSkew(src *image.Gray) float64 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 16 || h < 16 {
		return 0
	}

	// Sample a grid of ink pixels instead of every pixel; profile variance
	// is stable under sampling and full scans are quadratic in angle count.
	stride := 1
	if w*h > 1_000_000 {
		stride = 2
	}

	type pt struct{ x, y int }
	var ink []pt
	for y := 0; y < h; y += stride {
		for x := 0; x < w; x += stride {
			if src.GrayAt(b.Min.X+x, b.Min.Y+y).Y < inkThreshold {
				ink = append(ink, pt{x, y})
			}
		}
	}
	if len(ink) < 64 {
		return 0
	}

	bestAngle, bestScore := 0.0, -1.0
	profile := make([]int, h+w) // generous bin range for rotated y

	for angle := -maxSkewDegrees; angle <= maxSkewDegrees; angle += skewStepDegrees {
		rad := angle * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)

		for i := range profile {
			profile[i] = 0
		}
		for _, p := range ink {
			// Row index of the point in the un-rotated frame of the
			// candidate angle.
			ry := int(float64(p.y)*cos + float64(p.x)*sin + float64(w))
			if ry >= 0 && ry < len(profile) {
				profile[ry]++
			}
		}

		score := profileVariance(profile)
		if score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}
	return bestAngle
}

func profileVariance(profile []int) float64 {
	n := float64(len(profile))
	var sum float64
	for _, v := range profile {
		sum += float64(v)
	}
	mean := sum / n
	var variance float64
	for _, v := range profile {
		d := float64(v) - mean
		variance += d * d
	}
	return variance / n
}

// rotate rotates the image by the given angle in degrees around its center
// using inverse nearest-neighbor mapping. Out-of-bounds source pixels
// become white (paper background).
func rotate(src *image.Gray, degrees float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(w)/2, float64(h)/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := int(math.Round(dx*cos - dy*sin + cx))
			sy := int(math.Round(dx*sin + dy*cos + cy))
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				dst.SetGray(x, y, src.GrayAt(b.Min.X+sx, b.Min.Y+sy))
			} else {
				dst.SetGray(x, y, colorGray(255))
			}
		}
	}
	return dst
}
