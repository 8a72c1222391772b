package analysis

import (
	"github.com/san-kum/lorenz/internal/sim"
)

// Point is one projected phase-space point.
type Point struct{ X, Y float64 }

// PhasePortrait2D holds data for a 2D phase space plot
type PhasePortrait2D struct {
	XIndex, YIndex int
	Points         []Point
}

// PhasePortrait projects recorded samples onto components xIdx and yIdx.
func PhasePortrait(samples []sim.Sample, xIdx, yIdx int) *PhasePortrait2D {
	if len(samples) == 0 || xIdx < 0 || yIdx < 0 ||
		xIdx >= len(samples[0].Y) || yIdx >= len(samples[0].Y) {
		return nil
	}

	portrait := &PhasePortrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]Point, 0, len(samples)),
	}
	for _, s := range samples {
		portrait.Points = append(portrait.Points, Point{X: s.Y[xIdx], Y: s.Y[yIdx]})
	}
	return portrait
}

// PhasePortraitToASCII converts phase portrait to ASCII art
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 || width <= 1 || height <= 1 {
		return ""
	}

	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y
	for _, p := range portrait.Points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	// 10% padding on each side.
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := blankCanvas(width, height)
	for _, p := range portrait.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	// Axes, where they cross the visible area.
	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	return renderCanvas(canvas)
}

// PoincareSection records points when a trajectory crosses a plane
type PoincareSection struct {
	Points []Point
}

// NewPoincareSection collects (recordX, recordY) wherever component crossIdx
// passes upward through threshold, linearly interpolated between the two
// samples that straddle the crossing.
func NewPoincareSection(samples []sim.Sample, crossIdx int, threshold float64, recordX, recordY int) *PoincareSection {
	if len(samples) == 0 {
		return nil
	}
	dim := len(samples[0].Y)
	if crossIdx < 0 || recordX < 0 || recordY < 0 || crossIdx >= dim || recordX >= dim || recordY >= dim {
		return nil
	}

	section := &PoincareSection{Points: make([]Point, 0)}
	for i := 1; i < len(samples); i++ {
		prev, curr := samples[i-1].Y, samples[i].Y
		if prev[crossIdx] < threshold && curr[crossIdx] >= threshold {
			frac := (threshold - prev[crossIdx]) / (curr[crossIdx] - prev[crossIdx])
			section.Points = append(section.Points, Point{
				X: prev[recordX] + frac*(curr[recordX]-prev[recordX]),
				Y: prev[recordY] + frac*(curr[recordY]-prev[recordY]),
			})
		}
	}
	return section
}

// PoincareSectionToASCII converts section data to ASCII plot
func PoincareSectionToASCII(section *PoincareSection, width, height int) string {
	if section == nil || len(section.Points) == 0 {
		return "No crossings detected"
	}
	return PhasePortraitToASCII(&PhasePortrait2D{Points: section.Points}, width, height)
}
