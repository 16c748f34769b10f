package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/san-kum/physlink/internal/analysis"
	"github.com/san-kum/physlink/internal/storage"
)

// TrajectoryToSVG draws points as one polyline scaled to fill the image.
func TrajectoryToSVG(points []analysis.Point, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}
	minX, maxX, minY, maxY := analysis.Bounds(points)
	rangeX := maxX - minX
	rangeY := maxY - minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor)

	for i, p := range points {
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// PositionSeries is position k of t against time.
func PositionSeries(t *storage.Trajectory, k int) ([]analysis.Point, error) {
	if k < 0 || k >= len(t.Joints) {
		return nil, fmt.Errorf("joint %d out of range [0, %d)", k, len(t.Joints))
	}
	points := make([]analysis.Point, len(t.Times))
	for i, tm := range t.Times {
		points[i] = analysis.Point{X: tm, Y: t.Positions[i][k]}
	}
	return points, nil
}

// WriteSVG writes the position of joint k over time to path.
func WriteSVG(path string, t *storage.Trajectory, k, width, height int) error {
	points, err := PositionSeries(t, k)
	if err != nil {
		return err
	}
	svg := TrajectoryToSVG(points, width, height, "#00ff88")
	if svg == "" {
		return fmt.Errorf("trajectory has fewer than two samples")
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
