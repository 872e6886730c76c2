// Package regrid resamples an image onto the pixel grid of another header.
package regrid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/fits"
	"fitsmatch/internal/wcs"
)

// ErrOrder is returned for interpolation orders other than 0 and 1.
var ErrOrder = errors.New("regrid: unsupported interpolation order")

// snap is how close a sample must be to a pixel centre to be read exactly.
const snap = 1e-6

// Options control sampling.
type Options struct {
	// Order is 0 for nearest neighbour, 1 for bilinear.
	Order int
	// Fill is the value of output pixels that fall outside the source.
	Fill float64
}

// DefaultOptions returns bilinear sampling with NaN fill.
func DefaultOptions() Options {
	return Options{Order: 1, Fill: math.NaN()}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Order != 0 && o.Order != 1 {
		return fmt.Errorf("%w: %d", ErrOrder, o.Order)
	}
	return nil
}

// Regrid returns src, described by srcHdr, resampled onto the grid of
// dstHdr. The result has NAXIS2 rows and NAXIS1 columns of dstHdr. Non-finite
// source pixels stay NaN in the output wherever they are the nearest sample.
func Regrid(src *mat.Dense, srcHdr, dstHdr *fits.Header, opts Options) (*mat.Dense, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rows, cols, err := dstHdr.Shape()
	if err != nil {
		return nil, fmt.Errorf("regrid: target: %w", err)
	}
	srcW, err := wcs.Parse(srcHdr)
	if err != nil {
		return nil, fmt.Errorf("regrid: source header: %w", err)
	}
	dstW, err := wcs.Parse(dstHdr)
	if err != nil {
		return nil, fmt.Errorf("regrid: target header: %w", err)
	}
	convert, err := wcs.Converter(dstW.Frame, srcW.Frame)
	if err != nil {
		return nil, fmt.Errorf("regrid: %w", err)
	}

	g := newGrid(src)
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		for c := 0; c < cols; c++ {
			lon, lat := dstW.PixelToWorld(float64(c), float64(r))
			lon, lat = convert(lon, lat)
			x, y, ok := srcW.WorldToPixel(lon, lat)
			if !ok {
				row[c] = opts.Fill
				continue
			}
			row[c] = g.sample(x, y, opts)
		}
	}
	return out, nil
}

// grid holds the source with bad pixels zeroed, plus their positions.
type grid struct {
	rows, cols int
	data       []float64
	bad        []bool
}

func newGrid(src *mat.Dense) *grid {
	rows, cols := src.Dims()
	g := &grid{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
		bad:  make([]bool, rows*cols),
	}
	for r := 0; r < rows; r++ {
		for c, v := range src.RawRowView(r) {
			i := r*cols + c
			if math.IsNaN(v) || math.IsInf(v, 0) {
				g.bad[i] = true
				continue
			}
			g.data[i] = v
		}
	}
	return g
}

func (g *grid) sample(x, y float64, opts Options) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return opts.Fill
	}
	x, y = snapTo(x), snapTo(y)
	if x < 0 || y < 0 || x > float64(g.cols-1) || y > float64(g.rows-1) {
		return opts.Fill
	}

	nx, ny := int(math.Round(x)), int(math.Round(y))
	if g.bad[ny*g.cols+nx] {
		return math.NaN()
	}
	if opts.Order == 0 {
		return g.data[ny*g.cols+nx]
	}

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, g.cols-1), min(y0+1, g.rows-1)
	fx, fy := x-float64(x0), y-float64(y0)

	top := g.data[y0*g.cols+x0]*(1-fx) + g.data[y0*g.cols+x1]*fx
	if fy == 0 {
		return top
	}
	bottom := g.data[y1*g.cols+x0]*(1-fx) + g.data[y1*g.cols+x1]*fx
	return top*(1-fy) + bottom*fy
}

func snapTo(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < snap {
		return r
	}
	return v
}
