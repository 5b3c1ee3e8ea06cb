package imgproc

import (
	"image"
	"image/color"
	"image/draw"
	"sort"

	xdraw "golang.org/x/image/draw"
)

func colorGray(v byte) color.Gray { return color.Gray{Y: v} }

// toGray converts any image to 8-bit grayscale. Already-gray images are
// returned as-is.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}

// medianDenoise applies a 3x3 median filter. Salt-and-pepper noise from
// scanner sensors responds better to a median than to a box blur.
func medianDenoise(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	var window [9]byte

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					window[n] = src.GrayAt(px, py).Y
					n++
				}
			}
			s := window[:n]
			sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
			dst.SetGray(x, y, colorGray(s[n/2]))
		}
	}
	return dst
}

// equalizeTiled performs localized histogram equalization over a grid of
// tiles. Global equalization washes out exam scans with uneven lighting;
// per-tile equalization keeps local contrast.
func equalizeTiled(src *image.Gray) *image.Gray {
	const tiles = 8
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return src
	}
	dst := image.NewGray(b)

	tileW := (w + tiles - 1) / tiles
	tileH := (h + tiles - 1) / tiles

	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			x0 := b.Min.X + tx*tileW
			y0 := b.Min.Y + ty*tileH
			x1 := min(x0+tileW, b.Max.X)
			y1 := min(y0+tileH, b.Max.Y)
			if x0 >= x1 || y0 >= y1 {
				continue
			}
			equalizeTile(src, dst, x0, y0, x1, y1)
		}
	}
	return dst
}

func equalizeTile(src, dst *image.Gray, x0, y0, x1, y1 int) {
	var hist [256]int
	total := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.GrayAt(x, y).Y]++
			total++
		}
	}

	// Clip histogram peaks before building the CDF so near-uniform tiles
	// (pure background) do not amplify noise.
	clip := total / 32
	if clip < 4 {
		clip = 4
	}
	excess := 0
	for i := range hist {
		if hist[i] > clip {
			excess += hist[i] - clip
			hist[i] = clip
		}
	}
	redistribute := excess / 256
	for i := range hist {
		hist[i] += redistribute
	}

	var lut [256]byte
	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		lut[i] = byte(cum * 255 / total)
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dst.SetGray(x, y, colorGray(lut[src.GrayAt(x, y).Y]))
		}
	}
}

// unsharpMask sharpens with a fixed 3x3 kernel (center 5, cross -1).
func unsharpMask(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := int(src.GrayAt(x, y).Y)
			sum := 5 * c
			sum -= int(grayAtClamped(src, x-1, y))
			sum -= int(grayAtClamped(src, x+1, y))
			sum -= int(grayAtClamped(src, x, y-1))
			sum -= int(grayAtClamped(src, x, y+1))
			dst.SetGray(x, y, colorGray(clampByte(sum)))
		}
	}
	return dst
}

// closeGray applies grayscale morphological closing on dark features:
// a minimum filter (dilating dark strokes) followed by a maximum filter.
// Useful for reconnecting broken character strokes in degraded scans.
func closeGray(src *image.Gray, kw, kh int) *image.Gray {
	return rankFilter(rankFilter(src, kw, kh, false), kw, kh, true)
}

// rankFilter applies a min (takeMax=false) or max (takeMax=true) filter
// with a kw x kh kernel.
func rankFilter(src *image.Gray, kw, kh int, takeMax bool) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	rx, ry := kw/2, kh/2

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var best byte
			if takeMax {
				best = 0
			} else {
				best = 255
			}
			for dy := -ry; dy <= ry; dy++ {
				for dx := -rx; dx <= rx; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					v := src.GrayAt(px, py).Y
					if takeMax && v > best {
						best = v
					} else if !takeMax && v < best {
						best = v
					}
				}
			}
			dst.SetGray(x, y, colorGray(best))
		}
	}
	return dst
}

// adaptiveThreshold binarizes using a local mean over a window x window
// neighborhood, computed via an integral image. A pixel becomes ink when
// darker than the local mean minus bias. Exam scans have uneven
// illumination, so a single global threshold is not usable.
func adaptiveThreshold(src *image.Gray, window, bias int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return src
	}
	dst := image.NewGray(b)
	integral := integralImage(src)
	r := window / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(x-r, 0), max(y-r, 0)
			x1, y1 := min(x+r, w-1), min(y+r, h-1)
			count := (x1 - x0 + 1) * (y1 - y0 + 1)
			sum := integral.sum(x0, y0, x1, y1)
			mean := sum / int64(count)

			v := int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if v < int(mean)-bias {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, colorGray(0))
			} else {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, colorGray(255))
			}
		}
	}
	return dst
}

// upscaleIfSmall scales the image up 2x with Catmull-Rom interpolation when
// either dimension is below minDim. Returns nil when no resize is needed.
func upscaleIfSmall(src *image.Gray, minDim int) *image.Gray {
	b := src.Bounds()
	if b.Dx() >= minDim && b.Dy() >= minDim {
		return nil
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*2, b.Dy()*2))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// integral holds a summed-area table with a one-pixel zero border.
type integral struct {
	w, h int
	data []int64
}

func integralImage(src *image.Gray) *integral {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	it := &integral{w: w + 1, h: h + 1, data: make([]int64, (w+1)*(h+1))}

	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			it.data[(y+1)*it.w+x+1] = it.data[y*it.w+x+1] + rowSum
		}
	}
	return it
}

// sum returns the pixel sum over the inclusive rectangle [x0,x1]x[y0,y1].
func (it *integral) sum(x0, y0, x1, y1 int) int64 {
	a := it.data[y0*it.w+x0]
	b := it.data[y0*it.w+x1+1]
	c := it.data[(y1+1)*it.w+x0]
	d := it.data[(y1+1)*it.w+x1+1]
	return d - b - c + a
}

func grayAtClamped(src *image.Gray, x, y int) byte {
	b := src.Bounds()
	if x < b.Min.X {
		x = b.Min.X
	}
	if x >= b.Max.X {
		x = b.Max.X - 1
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}
	if y >= b.Max.Y {
		y = b.Max.Y - 1
	}
	return src.GrayAt(x, y).Y
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
