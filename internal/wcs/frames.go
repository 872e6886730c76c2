package wcs

import (
	"fmt"
	"math"
)

// equatorial (J2000) to galactic rotation
var eqToGal = [3][3]float64{
	{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
	{0.4941094278755837, -0.4448296299600112, 0.7469822444972189},
	{-0.8676661490190047, -0.1980763734312015, 0.4559837761750669},
}

// Converter returns a function mapping world coordinates of from into to.
// Identical frames give the identity; a linear frame only converts to
// itself.
func Converter(from, to Frame) (func(lon, lat float64) (float64, float64), error) {
	switch {
	case from == to:
		return func(lon, lat float64) (float64, float64) { return lon, lat }, nil
	case from == FrameEquatorial && to == FrameGalactic:
		return func(lon, lat float64) (float64, float64) { return rotate(eqToGal, false, lon, lat) }, nil
	case from == FrameGalactic && to == FrameEquatorial:
		return func(lon, lat float64) (float64, float64) { return rotate(eqToGal, true, lon, lat) }, nil
	}
	return nil, fmt.Errorf("%w: cannot convert %s to %s", ErrUnsupported, from, to)
}

func rotate(m [3][3]float64, transpose bool, lon, lat float64) (float64, float64) {
	sinL, cosL := math.Sincos(lon * d2r)
	sinB, cosB := math.Sincos(lat * d2r)
	v := [3]float64{cosB * cosL, cosB * sinL, sinB}

	var out [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if transpose {
				out[i] += m[j][i] * v[j]
			} else {
				out[i] += m[i][j] * v[j]
			}
		}
	}
	return normLon(math.Atan2(out[1], out[0]) * r2d), math.Asin(clamp1(out[2])) * r2d
}
