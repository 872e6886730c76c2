// Package wcs maps between pixel and celestial coordinates for the
// two-dimensional projections found in common survey images.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/fits"
)

// ErrUnsupported is returned for projections or axis layouts this package
// cannot evaluate.
var ErrUnsupported = errors.New("wcs: unsupported coordinate system")

// Frame identifies the celestial system of the world coordinates.
type Frame int

const (
	FrameLinear Frame = iota
	FrameEquatorial
	FrameGalactic
)

func (f Frame) String() string {
	switch f {
	case FrameEquatorial:
		return "equatorial"
	case FrameGalactic:
		return "galactic"
	default:
		return "linear"
	}
}

// Celestial reports whether world coordinates are sky angles.
func (f Frame) Celestial() bool {
	return f == FrameEquatorial || f == FrameGalactic
}

const (
	projLinear = ""
	projTAN    = "TAN"
	projSIN    = "SIN"
	projARC    = "ARC"
	projCAR    = "CAR"
)

const (
	d2r = math.Pi / 180
	r2d = 180 / math.Pi
)

// WCS is a parsed two-axis world coordinate system. Pixel coordinates are
// 0-based (x along NAXIS1, y along NAXIS2).
type WCS struct {
	Frame      Frame
	Projection string
	CRPIX      [2]float64
	CRVAL      [2]float64
	CD         [2][2]float64

	inv    [2][2]float64
	phiP   float64
	alphaP float64
	deltaP float64
}

// Parse reads the WCS keywords of h.
func Parse(h *fits.Header) (*WCS, error) {
	name1, proj1 := splitCtype(stringKey(h, "CTYPE1"))
	name2, proj2 := splitCtype(stringKey(h, "CTYPE2"))
	if proj1 != proj2 {
		return nil, fmt.Errorf("%w: mixed projections %q and %q", ErrUnsupported, proj1, proj2)
	}

	w := &WCS{Projection: proj1}
	switch {
	case name1 == "RA" && name2 == "DEC":
		w.Frame = FrameEquatorial
	case name1 == "GLON" && name2 == "GLAT":
		w.Frame = FrameGalactic
	case name1 == "DEC" || name1 == "GLAT":
		return nil, fmt.Errorf("%w: latitude on the first axis", ErrUnsupported)
	default:
		w.Frame = FrameLinear
	}

	switch w.Projection {
	case projLinear, projTAN, projSIN, projARC, projCAR:
	default:
		return nil, fmt.Errorf("%w: projection %q", ErrUnsupported, w.Projection)
	}
	if w.Projection != projLinear && !w.Frame.Celestial() {
		return nil, fmt.Errorf("%w: projection %q on non-celestial axes", ErrUnsupported, w.Projection)
	}

	for i := 0; i < 2; i++ {
		w.CRPIX[i] = floatKey(h, fmt.Sprintf("CRPIX%d", i+1), 0)
		w.CRVAL[i] = floatKey(h, fmt.Sprintf("CRVAL%d", i+1), 0)
	}
	if w.Projection == projCAR && w.CRVAL[1] != 0 {
		return nil, fmt.Errorf("%w: CAR with CRVAL2 = %g", ErrUnsupported, w.CRVAL[1])
	}

	w.CD = linearMatrix(h)
	inv, err := invert(w.CD)
	if err != nil {
		return nil, err
	}
	w.inv = inv

	if w.zenithal() {
		w.alphaP = w.CRVAL[0]
		w.deltaP = w.CRVAL[1]
		w.phiP = 180
		if w.deltaP >= 90 {
			w.phiP = 0
		}
		if v, ok := h.Float("LONPOLE"); ok {
			w.phiP = v
		}
	}
	return w, nil
}

// PixelToWorld converts a 0-based pixel position to world coordinates in
// degrees. Positions outside a projection's domain give NaN.
func (w *WCS) PixelToWorld(x, y float64) (lon, lat float64) {
	dx := x + 1 - w.CRPIX[0]
	dy := y + 1 - w.CRPIX[1]
	ix := w.CD[0][0]*dx + w.CD[0][1]*dy
	iy := w.CD[1][0]*dx + w.CD[1][1]*dy

	switch w.Projection {
	case projLinear:
		return w.CRVAL[0] + ix, w.CRVAL[1] + iy
	case projCAR:
		return normLon(w.CRVAL[0] + ix), iy
	}

	r := math.Hypot(ix, iy)
	phi := 0.0
	if r != 0 {
		phi = math.Atan2(ix, -iy) * r2d
	}
	var theta float64
	switch w.Projection {
	case projTAN:
		theta = math.Atan2(r2d, r) * r2d
	case projSIN:
		s := r * d2r
		if s > 1 {
			return math.NaN(), math.NaN()
		}
		theta = math.Acos(s) * r2d
	case projARC:
		theta = 90 - r
		if theta < -90 {
			return math.NaN(), math.NaN()
		}
	}
	return w.nativeToCelestial(phi, theta)
}

// WorldToPixel converts world coordinates in degrees to a 0-based pixel
// position. ok is false when the point cannot be projected.
func (w *WCS) WorldToPixel(lon, lat float64) (x, y float64, ok bool) {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return 0, 0, false
	}
	var ix, iy float64
	switch w.Projection {
	case projLinear:
		ix, iy = lon-w.CRVAL[0], lat-w.CRVAL[1]
	case projCAR:
		ix, iy = wrap180(lon-w.CRVAL[0]), lat
	default:
		phi, theta := w.celestialToNative(lon, lat)
		var r float64
		switch w.Projection {
		case projTAN:
			if theta <= 0 {
				return 0, 0, false
			}
			t := theta * d2r
			r = r2d * math.Cos(t) / math.Sin(t)
		case projSIN:
			if theta < 0 {
				return 0, 0, false
			}
			r = r2d * math.Cos(theta*d2r)
		case projARC:
			r = 90 - theta
		}
		p := phi * d2r
		ix = r * math.Sin(p)
		iy = -r * math.Cos(p)
	}

	dx := w.inv[0][0]*ix + w.inv[0][1]*iy
	dy := w.inv[1][0]*ix + w.inv[1][1]*iy
	return dx + w.CRPIX[0] - 1, dy + w.CRPIX[1] - 1, true
}

func (w *WCS) zenithal() bool {
	switch w.Projection {
	case projTAN, projSIN, projARC:
		return true
	}
	return false
}

func (w *WCS) nativeToCelestial(phi, theta float64) (lon, lat float64) {
	t := theta * d2r
	dp := w.deltaP * d2r
	dphi := (phi - w.phiP) * d2r

	sinT, cosT := math.Sincos(t)
	sinDp, cosDp := math.Sincos(dp)
	sinDphi, cosDphi := math.Sincos(dphi)

	a := math.Atan2(-cosT*sinDphi, sinT*cosDp-cosT*sinDp*cosDphi)
	d := math.Asin(clamp1(sinT*sinDp + cosT*cosDp*cosDphi))
	return normLon(w.alphaP + a*r2d), d * r2d
}

func (w *WCS) celestialToNative(lon, lat float64) (phi, theta float64) {
	d := lat * d2r
	dp := w.deltaP * d2r
	da := (lon - w.alphaP) * d2r

	sinD, cosD := math.Sincos(d)
	sinDp, cosDp := math.Sincos(dp)
	sinDa, cosDa := math.Sincos(da)

	p := math.Atan2(-cosD*sinDa, sinD*cosDp-cosD*sinDp*cosDa)
	t := math.Asin(clamp1(sinD*sinDp + cosD*cosDp*cosDa))
	return w.phiP + p*r2d, t * r2d
}

// linearMatrix builds the pixel-to-intermediate matrix from CDi_j, PCi_j
// with CDELTi, or CDELTi with CROTA2, in that order of preference.
func linearMatrix(h *fits.Header) [2][2]float64 {
	var m [2][2]float64
	hasCD := false
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if v, ok := h.Float(fmt.Sprintf("CD%d_%d", i+1, j+1)); ok {
				m[i][j] = v
				hasCD = true
			}
		}
	}
	if hasCD {
		return m
	}

	cdelt := [2]float64{floatKey(h, "CDELT1", 1), floatKey(h, "CDELT2", 1)}
	hasPC := false
	pc := [2][2]float64{{1, 0}, {0, 1}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if v, ok := h.Float(fmt.Sprintf("PC%d_%d", i+1, j+1)); ok {
				pc[i][j] = v
				hasPC = true
			}
		}
	}
	if hasPC {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				m[i][j] = cdelt[i] * pc[i][j]
			}
		}
		return m
	}

	rho := floatKey(h, "CROTA2", 0) * d2r
	s, c := math.Sincos(rho)
	m[0][0] = cdelt[0] * c
	m[0][1] = -cdelt[1] * s
	m[1][0] = cdelt[0] * s
	m[1][1] = cdelt[1] * c
	return m
}

func invert(m [2][2]float64) ([2][2]float64, error) {
	var out [2][2]float64
	a := mat.NewDense(2, 2, []float64{m[0][0], m[0][1], m[1][0], m[1][1]})
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return out, fmt.Errorf("%w: singular pixel matrix: %v", ErrUnsupported, err)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// splitCtype splits "RA---TAN" into ("RA", "TAN"). Types without a
// projection code return an empty code.
func splitCtype(ctype string) (name, proj string) {
	ctype = strings.ToUpper(strings.TrimSpace(ctype))
	if len(ctype) >= 5 && ctype[4] == '-' {
		return strings.TrimRight(ctype[:4], "-"), strings.TrimLeft(ctype[5:], "-")
	}
	return strings.TrimRight(ctype, "-"), ""
}

func stringKey(h *fits.Header, key string) string {
	s, _ := h.StringValue(key)
	return s
}

func floatKey(h *fits.Header, key string, def float64) float64 {
	if v, ok := h.Float(key); ok {
		return v
	}
	return def
}

func normLon(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}

func wrap180(v float64) float64 {
	v = math.Mod(v+180, 360)
	if v < 0 {
		v += 360
	}
	return v - 180
}

func clamp1(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
