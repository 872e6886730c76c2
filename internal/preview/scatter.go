package preview

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Scatter plots the pixels of a against those of b. Pairs with a
// non-finite member are skipped, and at most maxPoints pairs are drawn
// (0 means all). The format follows the file extension.
func Scatter(path string, a, b *mat.Dense, maxPoints int, labelA, labelB string) error {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return fmt.Errorf("preview: scatter shapes differ: %dx%d vs %dx%d", ra, ca, rb, cb)
	}

	pts := make(plotter.XYs, 0, ra*ca)
	for r := 0; r < ra; r++ {
		rowA, rowB := a.RawRowView(r), b.RawRowView(r)
		for c := range rowA {
			x, y := rowA[c], rowB[c]
			if !finite(x) || !finite(y) {
				continue
			}
			pts = append(pts, plotter.XY{X: x, Y: y})
		}
	}
	if len(pts) == 0 {
		return errNoFinitePixels
	}
	if maxPoints > 0 && len(pts) > maxPoints {
		step := (len(pts) + maxPoints - 1) / maxPoints
		thinned := make(plotter.XYs, 0, maxPoints)
		for i := 0; i < len(pts); i += step {
			thinned = append(thinned, pts[i])
		}
		pts = thinned
	}

	p := plot.New()
	p.Title.Text = "Matched pixels"
	p.X.Label.Text = labelA
	p.Y.Label.Text = labelB

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("preview: scatter: %w", err)
	}
	s.GlyphStyle.Radius = vg.Points(1)
	p.Add(s, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("preview: save %s: %w", path, err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
