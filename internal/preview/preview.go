// Package preview renders matched images and pixel comparisons for quick
// inspection.
package preview

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/gographics/imagick.v3/imagick"
)

// Stretch maps pixel values to display intensity.
type Stretch int

const (
	StretchLinear Stretch = iota
	StretchAsinh
)

// ParseStretch accepts "linear" or "asinh".
func ParseStretch(s string) (Stretch, error) {
	switch strings.ToLower(s) {
	case "", "linear":
		return StretchLinear, nil
	case "asinh":
		return StretchAsinh, nil
	}
	return StretchLinear, fmt.Errorf("unknown stretch %q", s)
}

// clip fractions for the display range
const (
	lowClip  = 0.005
	highClip = 0.995
	asinhQ   = 10.0
)

var errNoFinitePixels = errors.New("preview: image has no finite pixels")

// Normalize maps data to [0,1] in row-major order, clipping at the 0.5 and
// 99.5 percentiles of the finite pixels. Non-finite pixels map to 0.
func Normalize(data *mat.Dense, stretch Stretch) ([]float64, error) {
	rows, cols := data.Dims()
	values := make([]float64, 0, rows*cols)
	finite := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for _, v := range data.RawRowView(r) {
			values = append(values, v)
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}
	}
	if len(finite) == 0 {
		return nil, errNoFinitePixels
	}
	sort.Float64s(finite)
	lo := stat.Quantile(lowClip, stat.Empirical, finite, nil)
	hi := stat.Quantile(highClip, stat.Empirical, finite, nil)

	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || hi <= lo {
			continue
		}
		t := math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
		if stretch == StretchAsinh {
			t = math.Asinh(asinhQ*t) / math.Asinh(asinhQ)
		}
		out[i] = t
	}
	return out, nil
}

// WriteImage renders data as a grayscale image. The format follows the
// file extension.
func WriteImage(path string, data *mat.Dense, stretch Stretch) error {
	pixels, err := Normalize(data, stretch)
	if err != nil {
		return err
	}
	rows, cols := data.Dims()

	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ConstituteImage(uint(cols), uint(rows), "I", imagick.PIXEL_DOUBLE, pixels); err != nil {
		return fmt.Errorf("preview: constitute image: %w", err)
	}
	// FITS rows run bottom to top
	if err := mw.FlipImage(); err != nil {
		return fmt.Errorf("preview: flip: %w", err)
	}
	format := strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "TIF" {
		format = "TIFF"
	}
	if format == "" {
		format = "PNG"
	}
	if err := mw.SetImageFormat(format); err != nil {
		return fmt.Errorf("preview: format %s: %w", format, err)
	}
	if err := mw.WriteImage(path); err != nil {
		return fmt.Errorf("preview: write %s: %w", path, err)
	}
	return nil
}
