// Package match puts two FITS images on one pixel grid.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/fits"
	"fitsmatch/internal/reproject"
)

// ErrShapeMismatch is returned when the two images end up on different
// grids.
var ErrShapeMismatch = errors.New("failed to reproject images to same shape")

// Projector resamples a file onto a header grid.
type Projector interface {
	ProjectToHeader(ctx context.Context, path string, target *fits.Header, opts reproject.ProjectOptions) (*mat.Dense, error)
}

// Options control MatchFITS.
type Options struct {
	// Header is the common grid. When nil the flattened header of the first
	// file is used and the first image is not reprojected.
	Header *fits.Header
	// SigmaCut is the significance level; zero disables the cut.
	SigmaCut float64
	// ReturnHeader fills Result.Header.
	ReturnHeader bool
	// Project is passed to every projection.
	Project reproject.ProjectOptions
}

// Result holds the matched pair.
type Result struct {
	Image1 *mat.Dense
	Image2 *mat.Dense
	// Header is the working header, set only when requested.
	Header          *fits.Header
	SigmaCutApplied bool
}

// Matcher matches image pairs through a Projector.
type Matcher struct {
	projector Projector
	logger    *slog.Logger
}

// NewMatcher returns a Matcher using p.
func NewMatcher(p Projector, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{projector: p, logger: logger}
}

// MatchFITS projects file2, and file1 when a header is given, onto a common
// grid and optionally applies a joint sigma cut.
func (m *Matcher) MatchFITS(ctx context.Context, file1, file2 string, opts Options) (*Result, error) {
	header := opts.Header
	var image1 *mat.Dense
	if header == nil {
		img, err := fits.ReadImage(file1)
		if err != nil {
			return nil, err
		}
		header = img.Header.Flatten()
		image1 = img.Data
	} else {
		// always reprojected, even when header already describes file1
		var err error
		image1, err = m.projector.ProjectToHeader(ctx, file1, header, opts.Project)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", file1, err)
		}
	}

	image2, err := m.projector.ProjectToHeader(ctx, file2, header, opts.Project)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", file2, err)
	}

	r1, c1 := image1.Dims()
	r2, c2 := image2.Dims()
	if r1 != r2 || c1 != c2 {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, r1, c1, r2, c2)
	}

	res := &Result{Image1: image1, Image2: image2}
	if opts.SigmaCut != 0 {
		cut1, cut2, ok := SigmaCut(image1, image2, opts.SigmaCut)
		if ok {
			res.Image1, res.Image2, res.SigmaCutApplied = cut1, cut2, true
		} else {
			m.logger.Warn("could not use sigma cut because it excluded all valid data", "sigma_cut", opts.SigmaCut)
		}
	}
	if opts.ReturnHeader {
		res.Header = header
	}
	return res, nil
}
