package fits

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeRaw(t *testing.T, path string, bitpix int, axes []int, pixels any, cards ...fitsio.Card) {
	t.Helper()
	fh, err := os.Create(path)
	require.NoError(t, err)
	defer fh.Close()

	f, err := fitsio.Create(fh)
	require.NoError(t, err)
	defer f.Close()

	img := fitsio.NewImage(bitpix, axes)
	defer img.Close()
	require.NoError(t, img.Header().Append(cards...))
	require.NoError(t, img.Write(pixels))
	require.NoError(t, f.Write(img))
}

func TestWriteReadImageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.fits")
	data := mat.NewDense(2, 3, []float64{1, 2, 3, 4, math.NaN(), 6})
	hdr := NewHeader(
		Card{Key: "SIMPLE", Value: true},
		Card{Key: "NAXIS", Value: 2},
		Card{Key: "CTYPE1", Value: "RA---TAN"},
		Card{Key: "CRVAL1", Value: 150.0},
		Card{Key: "HISTORY", Comment: "dropped on write"},
	)

	require.NoError(t, WriteImage(path, data, hdr))

	img, err := ReadImage(path)
	require.NoError(t, err)
	r, c := img.Data.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 6.0, img.Data.At(1, 2))
	assert.True(t, math.IsNaN(img.Data.At(1, 1)))
	assert.Equal(t, 0, img.HDU)

	n1, _ := img.Header.Int("NAXIS1")
	n2, _ := img.Header.Int("NAXIS2")
	assert.Equal(t, 3, n1)
	assert.Equal(t, 2, n2)
	ct, _ := img.Header.StringValue("CTYPE1")
	assert.Equal(t, "RA---TAN", ct)

	hdr2, err := ReadHeader(path)
	require.NoError(t, err)
	v, _ := hdr2.Float("CRVAL1")
	assert.Equal(t, 150.0, v)
}

func TestReadImageSqueezesDegenerateAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.fits")
	pixels := make([]float64, 12)
	for i := range pixels {
		pixels[i] = float64(i)
	}
	writeRaw(t, path, -64, []int{4, 3, 1}, pixels)

	img, err := ReadImage(path)
	require.NoError(t, err)
	r, c := img.Data.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 5.0, img.Data.At(1, 1))
}

func TestReadImageRejectsCube(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.fits")
	writeRaw(t, path, -64, []int{2, 2, 2}, make([]float64, 8))

	_, err := ReadImage(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImage2D))
}

func TestReadImageScalesIntegers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "int.fits")
	writeRaw(t, path, 16, []int{2, 2}, []int16{0, 10, -5, -1},
		fitsio.Card{Name: "BSCALE", Value: 2.0},
		fitsio.Card{Name: "BZERO", Value: 100.0},
		fitsio.Card{Name: "BLANK", Value: -1},
	)

	img, err := ReadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 100.0, img.Data.At(0, 0))
	assert.Equal(t, 120.0, img.Data.At(0, 1))
	assert.Equal(t, 90.0, img.Data.At(1, 0))
	assert.True(t, math.IsNaN(img.Data.At(1, 1)))
}

func TestReadImageMissingFile(t *testing.T) {
	_, err := ReadImage(filepath.Join(t.TempDir(), "nope.fits"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteImageReportsFailedWrites(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	data := mat.NewDense(4, 4, nil)
	hdr := NewHeader(Card{Key: "OBJECT", Value: "M31"})
	err := WriteImage("/dev/full", data, hdr)
	assert.Error(t, err)
}

func TestReadHeaderLongStringSurvivesText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.fits")
	orig := strings.Repeat("abcdefghij", 9)
	writeRaw(t, path, -64, []int{2, 2}, []float64{1, 2, 3, 4},
		fitsio.Card{Name: "ORIGFILE", Value: orig},
		fitsio.Card{Name: "CTYPE1", Value: "RA---TAN"},
	)

	hdr, err := ReadHeader(path)
	require.NoError(t, err)
	got, _ := hdr.StringValue("ORIGFILE")
	require.Equal(t, orig, got)

	parsed, err := ParseHeader(strings.NewReader(hdr.Text()))
	require.NoError(t, err)
	got, _ = parsed.StringValue("ORIGFILE")
	assert.Equal(t, orig, got)
	ct, _ := parsed.StringValue("CTYPE1")
	assert.Equal(t, "RA---TAN", ct)
}
