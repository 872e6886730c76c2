package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoImageData is returned when no HDU in a file carries pixels.
	ErrNoImageData = errors.New("fits: no image data")
	// ErrNotImage2D is returned when the data is not 2-D after dropping
	// degenerate axes.
	ErrNotImage2D = errors.New("fits: image is not 2-D after squeeze")
)

// Image is a squeezed 2-D data unit and the header of the HDU it came from.
type Image struct {
	Data   *mat.Dense
	Header *Header
	HDU    int
}

// ReadImage loads the first HDU that carries data. Integer data is scaled
// with BSCALE/BZERO and BLANK pixels become NaN.
func ReadImage(path string) (*Image, error) {
	var out *Image
	err := withFile(path, func(f *fitsio.File) error {
		for i, hdu := range f.HDUs() {
			img, ok := hdu.(fitsio.Image)
			if !ok {
				continue
			}
			axes := img.Header().Axes()
			if elements(axes) == 0 {
				continue
			}
			hdr := convertHeader(img.Header())
			data, err := decode(img.Raw(), img.Header().Bitpix(), elements(axes), hdr)
			if err != nil {
				return fmt.Errorf("fits: %s hdu %d: %w", path, i, err)
			}
			dense, err := squeeze(axes, data)
			if err != nil {
				return fmt.Errorf("fits: %s hdu %d: %w", path, i, err)
			}
			out = &Image{Data: dense, Header: hdr, HDU: i}
			return nil
		}
		return fmt.Errorf("%w in %s", ErrNoImageData, path)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadHeader returns the header of the HDU ReadImage would use, or the
// primary header when no HDU has data.
func ReadHeader(path string) (*Header, error) {
	var out *Header
	err := withFile(path, func(f *fitsio.File) error {
		hdus := f.HDUs()
		if len(hdus) == 0 {
			return fmt.Errorf("%w in %s", ErrNoImageData, path)
		}
		for _, hdu := range hdus {
			if img, ok := hdu.(fitsio.Image); ok && elements(img.Header().Axes()) > 0 {
				out = convertHeader(img.Header())
				return nil
			}
		}
		out = convertHeader(hdus[0].Header())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteImage stores data as a BITPIX -64 primary HDU. Structural and
// commentary cards of hdr are regenerated or dropped; everything else is
// copied.
func WriteImage(path string, data *mat.Dense, hdr *Header) (err error) {
	rows, cols := data.Dims()

	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fh.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("fits: close %s: %w", path, cerr)
		}
	}()

	f, err := fitsio.Create(fh)
	if err != nil {
		return fmt.Errorf("fits: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("fits: close %s: %w", path, cerr)
		}
	}()

	img := fitsio.NewImage(-64, []int{cols, rows})
	defer img.Close()

	var cards []fitsio.Card
	for _, c := range hdr.Cards() {
		if isStructural(c.Key) || isCommentary(c.Key) || len(c.Key) > 8 {
			continue
		}
		v := c.Value
		if n, ok := v.(int64); ok {
			v = int(n)
		}
		cards = append(cards, fitsio.Card{Name: c.Key, Value: v, Comment: c.Comment})
	}
	if err := img.Header().Append(cards...); err != nil {
		return fmt.Errorf("fits: header for %s: %w", path, err)
	}

	pixels := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		pixels = append(pixels, data.RawRowView(r)...)
	}
	if err := img.Write(pixels); err != nil {
		return fmt.Errorf("fits: write %s: %w", path, err)
	}
	if err := f.Write(img); err != nil {
		return fmt.Errorf("fits: write %s: %w", path, err)
	}
	return nil
}

func withFile(path string, fn func(*fitsio.File) error) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	f, err := fitsio.Open(fh)
	if err != nil {
		return fmt.Errorf("fits: open %s: %w", path, err)
	}
	defer f.Close()
	return fn(f)
}

// convertHeader copies fitsio cards and makes sure NAXIS/NAXISn are present,
// since WCS consumers read the grid from them.
func convertHeader(src *fitsio.Header) *Header {
	h := &Header{}
	axes := src.Axes()
	h.cards = append(h.cards, Card{Key: "NAXIS", Value: int64(len(axes))})
	for i, n := range axes {
		h.cards = append(h.cards, Card{Key: fmt.Sprintf("NAXIS%d", i+1), Value: int64(n)})
	}

	keys := src.Keys()
	for i := range keys {
		c := src.Card(i)
		if c == nil {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(c.Name))
		if key == "END" {
			continue
		}
		if isCommentary(key) {
			text := c.Comment
			if text == "" && c.Value != nil {
				text = fmt.Sprint(c.Value)
			}
			h.cards = append(h.cards, Card{Key: key, Comment: text})
			continue
		}
		if strings.HasPrefix(key, "NAXIS") && isDigits(key[5:]) {
			continue
		}
		h.cards = append(h.cards, Card{Key: key, Value: normalizeValue(c.Value), Comment: c.Comment})
	}
	return h
}

func decode(raw []byte, bitpix, n int, hdr *Header) ([]float64, error) {
	size := abs(bitpix) / 8
	if size == 0 {
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	if len(raw) < n*size {
		return nil, fmt.Errorf("short data: have %d bytes, need %d", len(raw), n*size)
	}

	bscale, ok := hdr.Float("BSCALE")
	if !ok {
		bscale = 1
	}
	bzero, _ := hdr.Float("BZERO")
	blank, hasBlank := hdr.Int("BLANK")
	scale := func(v float64) float64 {
		if bscale == 1 && bzero == 0 {
			return v
		}
		return v*bscale + bzero
	}

	out := make([]float64, n)
	be := binary.BigEndian
	for i := 0; i < n; i++ {
		b := raw[i*size : (i+1)*size]
		var iv int64
		switch bitpix {
		case 8:
			iv = int64(b[0])
		case 16:
			iv = int64(int16(be.Uint16(b)))
		case 32:
			iv = int64(int32(be.Uint32(b)))
		case 64:
			iv = int64(be.Uint64(b))
		case -32:
			out[i] = scale(float64(math.Float32frombits(be.Uint32(b))))
			continue
		case -64:
			out[i] = scale(math.Float64frombits(be.Uint64(b)))
			continue
		default:
			return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
		}
		if hasBlank && iv == int64(blank) {
			out[i] = math.NaN()
			continue
		}
		out[i] = scale(float64(iv))
	}
	return out, nil
}

// squeeze drops length-1 axes. axes are in FITS order (NAXIS1 first); the
// result is row-major with the slowest remaining axis as rows.
func squeeze(axes []int, data []float64) (*mat.Dense, error) {
	var dims []int
	for i := len(axes) - 1; i >= 0; i-- {
		if axes[i] != 1 {
			dims = append(dims, axes[i])
		}
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: shape %v", ErrNotImage2D, dims)
	}
	return mat.NewDense(dims[0], dims[1], data), nil
}

func elements(axes []int) int {
	if len(axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range axes {
		n *= a
	}
	return n
}

func isStructural(key string) bool {
	switch key {
	case "SIMPLE", "BITPIX", "EXTEND", "END", "XTENSION", "PCOUNT", "GCOUNT", "BSCALE", "BZERO", "BLANK":
		return true
	}
	return strings.HasPrefix(key, "NAXIS") && isDigits(key[5:])
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
