package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/physlink/internal/storage"
)

type Point struct{ X, Y float64 }

// PhasePortrait2D holds data for a 2D phase space plot
type PhasePortrait2D struct {
	XLabel, YLabel string
	Points         []Point
}

// PhasePortrait pairs position k with velocity k at every sample.
func PhasePortrait(t *storage.Trajectory, k int) (*PhasePortrait2D, error) {
	if k < 0 || k >= len(t.Joints) {
		return nil, fmt.Errorf("joint %d out of range [0, %d)", k, len(t.Joints))
	}
	if len(t.Velocities) != len(t.Positions) {
		return nil, fmt.Errorf("trajectory has no velocities")
	}
	portrait := &PhasePortrait2D{
		XLabel: "q_" + t.Joints[k],
		YLabel: "u_" + t.Joints[k],
		Points: make([]Point, len(t.Positions)),
	}
	for i := range t.Positions {
		portrait.Points[i] = Point{X: t.Positions[i][k], Y: t.Velocities[i][k]}
	}
	return portrait, nil
}

// Bounds returns the extent of points padded by a tenth on each side.
func Bounds(points []Point) (minX, maxX, minY, maxY float64) {
	minX, maxX = points[0].X, points[0].X
	minY, maxY = points[0].Y, points[0].Y
	for _, p := range points {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return minX - rangeX*0.1, maxX + rangeX*0.1, minY - rangeY*0.1, maxY + rangeY*0.1
}

// PhasePortraitToASCII converts phase portrait to ASCII art
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 || width < 2 || height < 2 {
		return ""
	}
	minX, maxX, minY, maxY := Bounds(portrait.Points)
	rangeX := maxX - minX
	rangeY := maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

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
			if canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// PoincareSection records positions recordX and recordY, linearly
// interpolated, wherever position cross rises through threshold.
func PoincareSection(t *storage.Trajectory, cross int, threshold float64, recordX, recordY int) ([]Point, error) {
	for _, k := range []int{cross, recordX, recordY} {
		if k < 0 || k >= len(t.Joints) {
			return nil, fmt.Errorf("joint %d out of range [0, %d)", k, len(t.Joints))
		}
	}
	var points []Point
	for i := 1; i < len(t.Positions); i++ {
		prev, curr := t.Positions[i-1], t.Positions[i]
		if !(prev[cross] < threshold && curr[cross] >= threshold) {
			continue
		}
		frac := (threshold - prev[cross]) / (curr[cross] - prev[cross])
		points = append(points, Point{
			X: prev[recordX] + frac*(curr[recordX]-prev[recordX]),
			Y: prev[recordY] + frac*(curr[recordY]-prev[recordY]),
		})
	}
	return points, nil
}
