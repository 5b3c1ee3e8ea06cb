package layout

import "image"

// bitmask is a binary page raster used by the geometric strategies.
type bitmask struct {
	w, h int
	bits []bool
}

func newBitmask(w, h int) *bitmask {
	return &bitmask{w: w, h: h, bits: make([]bool, w*h)}
}

func (m *bitmask) at(x, y int) bool {
	if x < 0 || x >= m.w || y < 0 || y >= m.h {
		return false
	}
	return m.bits[y*m.w+x]
}

func (m *bitmask) set(x, y int) { m.bits[y*m.w+x] = true }

// inkMask marks pixels darker than threshold.
func inkMask(img *image.Gray, threshold uint8) *bitmask {
	b := img.Bounds()
	m := newBitmask(b.Dx(), b.Dy())
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y < threshold {
				m.set(x, y)
			}
		}
	}
	return m
}

// gradientMask marks pixels whose horizontal or vertical intensity delta
// exceeds threshold.
func gradientMask(img *image.Gray, threshold int) *bitmask {
	b := img.Bounds()
	m := newBitmask(b.Dx(), b.Dy())
	for y := 0; y < m.h-1; y++ {
		for x := 0; x < m.w-1; x++ {
			v := int(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			dx := v - int(img.GrayAt(b.Min.X+x+1, b.Min.Y+y).Y)
			dy := v - int(img.GrayAt(b.Min.X+x, b.Min.Y+y+1).Y)
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx > threshold || dy > threshold {
				m.set(x, y)
			}
		}
	}
	return m
}

// close dilates then erodes with a kw x kh rectangular kernel, fusing
// components separated by less than the kernel size.
func (m *bitmask) close(kw, kh int) *bitmask {
	return m.dilate(kw, kh).erode(kw, kh)
}

// dilate uses two separable passes (horizontal run spread, then vertical)
// so wide kernels stay linear in kernel size.
func (m *bitmask) dilate(kw, kh int) *bitmask {
	rx, ry := kw/2, kh/2

	horiz := newBitmask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !m.bits[y*m.w+x] {
				continue
			}
			for dx := -rx; dx <= rx; dx++ {
				px := x + dx
				if px >= 0 && px < m.w {
					horiz.set(px, y)
				}
			}
		}
	}

	out := newBitmask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !horiz.bits[y*m.w+x] {
				continue
			}
			for dy := -ry; dy <= ry; dy++ {
				py := y + dy
				if py >= 0 && py < m.h {
					out.set(x, py)
				}
			}
		}
	}
	return out
}

func (m *bitmask) erode(kw, kh int) *bitmask {
	rx, ry := kw/2, kh/2
	out := newBitmask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			keep := true
		scan:
			for dy := -ry; dy <= ry && keep; dy++ {
				for dx := -rx; dx <= rx; dx++ {
					if !m.at(x+dx, y+dy) {
						keep = false
						break scan
					}
				}
			}
			if keep {
				out.set(x, y)
			}
		}
	}
	return out
}

// components extracts bounding boxes of 4-connected regions with at least
// minArea set pixels.
func (m *bitmask) components(minArea int) []image.Rectangle {
	visited := make([]bool, len(m.bits))
	var boxes []image.Rectangle
	stack := make([]int, 0, 1024)

	for start := range m.bits {
		if !m.bits[start] || visited[start] {
			continue
		}
		minX, minY := m.w, m.h
		maxX, maxY := 0, 0
		count := 0

		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%m.w, idx/m.w
			count++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || nx >= m.w || ny < 0 || ny >= m.h {
					continue
				}
				nidx := ny*m.w + nx
				if m.bits[nidx] && !visited[nidx] {
					visited[nidx] = true
					stack = append(stack, nidx)
				}
			}
		}

		if count >= minArea {
			boxes = append(boxes, image.Rect(minX, minY, maxX+1, maxY+1))
		}
	}
	return boxes
}
