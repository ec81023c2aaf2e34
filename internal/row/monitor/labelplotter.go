// Package monitor renders pipeline outputs for evaluation: a top-down
// scatter of the sampled scan with its per-point labels and the fitted
// row centerline. Visualization is an offline tool, not part of the
// per-frame inference path.
package monitor

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

// LabelPlot describes one frame's rendering.
type LabelPlot struct {
	Points   points.SampledPointSet
	Labels   []int
	RowClass int
	Estimate extract.Estimate
	Title    string
}

// SavePNG renders the ground-plane projection to a PNG file: row points
// in green, everything else in grey, and the fitted centerline (when
// the estimate is valid) as a red line spanning the row extent.
func SavePNG(lp LabelPlot, path string) error {
	if len(lp.Points) != len(lp.Labels) {
		return fmt.Errorf("monitor: %d points for %d labels", len(lp.Points), len(lp.Labels))
	}

	p := plot.New()
	p.Title.Text = lp.Title
	p.X.Label.Text = "x forward (m)"
	p.Y.Label.Text = "y left (m)"

	var rowXYs, otherXYs plotter.XYs
	minT, maxT := math.Inf(1), math.Inf(-1)
	dx, dy := math.Cos(lp.Estimate.HeadingRad), math.Sin(lp.Estimate.HeadingRad)
	for i, pt := range lp.Points {
		xy := plotter.XY{X: pt.X, Y: pt.Y}
		if lp.Labels[i] == lp.RowClass {
			rowXYs = append(rowXYs, xy)
			// Track the row's extent along the fitted direction so the
			// centerline spans it.
			t := pt.X*dx + pt.Y*dy
			if t < minT {
				minT = t
			}
			if t > maxT {
				maxT = t
			}
		} else {
			otherXYs = append(otherXYs, xy)
		}
	}

	if len(otherXYs) > 0 {
		sc, err := plotter.NewScatter(otherXYs)
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		sc.GlyphStyle.Color = color.Gray{Y: 160}
		sc.GlyphStyle.Radius = vg.Points(1)
		p.Add(sc)
		p.Legend.Add("other", sc)
	}
	if len(rowXYs) > 0 {
		sc, err := plotter.NewScatter(rowXYs)
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		sc.GlyphStyle.Color = color.RGBA{G: 160, A: 255}
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
		p.Legend.Add("row", sc)
	}

	if lp.Estimate.Valid && len(rowXYs) > 0 {
		// Centerline: origin-offset along the left normal, direction at
		// the fitted heading.
		nx, ny := -dy, dx
		ox, oy := lp.Estimate.LateralOffsetM*nx, lp.Estimate.LateralOffsetM*ny
		line, err := plotter.NewLine(plotter.XYs{
			{X: ox + minT*dx, Y: oy + minT*dy},
			{X: ox + maxT*dx, Y: oy + maxT*dy},
		})
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		line.Color = color.RGBA{R: 200, A: 255}
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add("centerline", line)
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("monitor: save %s: %w", path, err)
	}
	return nil
}
