package wcs

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsmatch/internal/fits"
)

func tanHeader(proj string) *fits.Header {
	return fits.NewHeader(
		fits.Card{Key: "NAXIS", Value: 2},
		fits.Card{Key: "NAXIS1", Value: 100},
		fits.Card{Key: "NAXIS2", Value: 80},
		fits.Card{Key: "CTYPE1", Value: "RA---" + proj},
		fits.Card{Key: "CTYPE2", Value: "DEC--" + proj},
		fits.Card{Key: "CRPIX1", Value: 50.5},
		fits.Card{Key: "CRPIX2", Value: 40.5},
		fits.Card{Key: "CRVAL1", Value: 83.8},
		fits.Card{Key: "CRVAL2", Value: -5.4},
		fits.Card{Key: "CDELT1", Value: -0.01},
		fits.Card{Key: "CDELT2", Value: 0.01},
	)
}

func TestReferencePixelMapsToReferenceValue(t *testing.T) {
	for _, proj := range []string{"TAN", "SIN", "ARC"} {
		t.Run(proj, func(t *testing.T) {
			w, err := Parse(tanHeader(proj))
			require.NoError(t, err)
			assert.Equal(t, FrameEquatorial, w.Frame)

			lon, lat := w.PixelToWorld(49.5, 39.5)
			assert.InDelta(t, 83.8, lon, 1e-9)
			assert.InDelta(t, -5.4, lat, 1e-9)
		})
	}
}

func TestPixelWorldRoundTrip(t *testing.T) {
	for _, proj := range []string{"TAN", "SIN", "ARC"} {
		t.Run(proj, func(t *testing.T) {
			h := tanHeader(proj)
			h.Set("CROTA2", 17.0, "")
			w, err := Parse(h)
			require.NoError(t, err)

			for _, p := range [][2]float64{{0, 0}, {99, 0}, {12.25, 70.5}, {99, 79}} {
				lon, lat := w.PixelToWorld(p[0], p[1])
				x, y, ok := w.WorldToPixel(lon, lat)
				require.True(t, ok)
				assert.InDelta(t, p[0], x, 1e-8)
				assert.InDelta(t, p[1], y, 1e-8)
			}
		})
	}
}

func TestNegativeCdeltPutsEastOnTheLeft(t *testing.T) {
	w, err := Parse(tanHeader("TAN"))
	require.NoError(t, err)

	left, _ := w.PixelToWorld(0, 39.5)
	right, _ := w.PixelToWorld(99, 39.5)
	assert.Greater(t, left, 83.8)
	assert.Less(t, right, 83.8)
}

func TestCDMatrixTakesPrecedence(t *testing.T) {
	h := tanHeader("TAN")
	h.Set("CD1_1", -0.02, "")
	h.Set("CD2_2", 0.02, "")
	w, err := Parse(h)
	require.NoError(t, err)
	assert.Equal(t, [2][2]float64{{-0.02, 0}, {0, 0.02}}, w.CD)

	h = tanHeader("TAN")
	h.Set("PC1_2", 0.5, "")
	w, err = Parse(h)
	require.NoError(t, err)
	assert.Equal(t, [2][2]float64{{-0.01, -0.005}, {0, 0.01}}, w.CD)
}

func TestLinearAndCar(t *testing.T) {
	lin := fits.NewHeader(
		fits.Card{Key: "CRPIX1", Value: 1.0},
		fits.Card{Key: "CRPIX2", Value: 1.0},
		fits.Card{Key: "CRVAL1", Value: 10.0},
		fits.Card{Key: "CRVAL2", Value: 20.0},
		fits.Card{Key: "CDELT1", Value: 2.0},
		fits.Card{Key: "CDELT2", Value: 0.5},
	)
	w, err := Parse(lin)
	require.NoError(t, err)
	assert.Equal(t, FrameLinear, w.Frame)
	lon, lat := w.PixelToWorld(3, 4)
	assert.Equal(t, 16.0, lon)
	assert.Equal(t, 22.0, lat)

	car := fits.NewHeader(
		fits.Card{Key: "CTYPE1", Value: "GLON-CAR"},
		fits.Card{Key: "CTYPE2", Value: "GLAT-CAR"},
		fits.Card{Key: "CRPIX1", Value: 1.0},
		fits.Card{Key: "CRPIX2", Value: 1.0},
		fits.Card{Key: "CRVAL1", Value: 1.0},
		fits.Card{Key: "CDELT1", Value: -1.0},
		fits.Card{Key: "CDELT2", Value: 1.0},
	)
	w, err = Parse(car)
	require.NoError(t, err)
	assert.Equal(t, FrameGalactic, w.Frame)
	lon, _ = w.PixelToWorld(3, 0)
	assert.Equal(t, 358.0, lon)
	x, _, ok := w.WorldToPixel(358, 0)
	require.True(t, ok)
	assert.InDelta(t, 3, x, 1e-12)
}

func TestParseRejectsUnsupported(t *testing.T) {
	cases := map[string]*fits.Header{
		"projection": fits.NewHeader(
			fits.Card{Key: "CTYPE1", Value: "RA---AIT"},
			fits.Card{Key: "CTYPE2", Value: "DEC--AIT"},
		),
		"mixed": fits.NewHeader(
			fits.Card{Key: "CTYPE1", Value: "RA---TAN"},
			fits.Card{Key: "CTYPE2", Value: "DEC--SIN"},
		),
		"swapped": fits.NewHeader(
			fits.Card{Key: "CTYPE1", Value: "DEC--TAN"},
			fits.Card{Key: "CTYPE2", Value: "RA---TAN"},
		),
		"offset car": fits.NewHeader(
			fits.Card{Key: "CTYPE1", Value: "RA---CAR"},
			fits.Card{Key: "CTYPE2", Value: "DEC--CAR"},
			fits.Card{Key: "CRVAL2", Value: 30.0},
		),
		"singular": fits.NewHeader(
			fits.Card{Key: "CD1_1", Value: 1.0},
			fits.Card{Key: "CD1_2", Value: 1.0},
			fits.Card{Key: "CD2_1", Value: 1.0},
			fits.Card{Key: "CD2_2", Value: 1.0},
		),
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(h)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupported))
		})
	}
}

func TestTanRejectsFarHemisphere(t *testing.T) {
	w, err := Parse(tanHeader("TAN"))
	require.NoError(t, err)
	_, _, ok := w.WorldToPixel(83.8+180, 5.4)
	assert.False(t, ok)
}

func TestGalacticConversion(t *testing.T) {
	toGal, err := Converter(FrameEquatorial, FrameGalactic)
	require.NoError(t, err)

	// galactic centre
	l, b := toGal(266.40499, -28.93617)
	assert.InDelta(t, 0, math.Mod(l+180, 360)-180, 1e-3)
	assert.InDelta(t, 0, b, 1e-3)

	toEq, err := Converter(FrameGalactic, FrameEquatorial)
	require.NoError(t, err)
	ra, dec := toEq(toGal(83.8, -5.4))
	assert.InDelta(t, 83.8, ra, 1e-9)
	assert.InDelta(t, -5.4, dec, 1e-9)

	_, err = Converter(FrameLinear, FrameGalactic)
	assert.True(t, errors.Is(err, ErrUnsupported))
}
