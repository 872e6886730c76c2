// Package reproject resamples FITS images onto the grid of a target header
// through Montage or the in-process regridder.
package reproject

import (
	"context"
	"errors"
	"os/exec"

	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/fits"
	"fitsmatch/internal/regrid"
)

// ErrNoBackend is returned when no reprojection backend can run.
var ErrNoBackend = errors.New("configuration error: no reprojection backend installed")

// Backend reprojects one file onto a target header.
type Backend interface {
	Name() string
	Status() ToolStatus
	Project(ctx context.Context, req Request) (*mat.Dense, error)
}

// Request describes a single reprojection.
type Request struct {
	Source string
	Target *fits.Header
	// Verbose logs backend console output.
	Verbose bool
	// Regrid overrides the regridder options. Montage ignores it.
	Regrid *regrid.Options
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
