package reproject

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/config"
	"fitsmatch/internal/fits"
	"fitsmatch/internal/regrid"
)

// RegridBackend resamples in process. Only 2-D data is supported.
type RegridBackend struct {
	opts   regrid.Options
	status ToolStatus
}

// NewRegridBackend builds the regridder from config, probing through tm.
func NewRegridBackend(cfg config.RegridConfig, tm *ToolManager) *RegridBackend {
	return &RegridBackend{
		opts:   regrid.Options{Order: cfg.Order, Fill: cfg.FillValue()},
		status: tm.CheckTool(config.BackendRegrid),
	}
}

func (b *RegridBackend) Name() string { return config.BackendRegrid }

func (b *RegridBackend) Status() ToolStatus { return b.status }

// Project reads the source, flattens its header and resamples it onto the
// target grid.
func (b *RegridBackend) Project(ctx context.Context, req Request) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := fits.ReadImage(req.Source)
	if err != nil {
		return nil, fmt.Errorf("regrid: %w", err)
	}
	opts := b.opts
	if req.Regrid != nil {
		opts = *req.Regrid
	}
	out, err := regrid.Regrid(img.Data, img.Header.Flatten(), req.Target, opts)
	if err != nil {
		return nil, fmt.Errorf("regrid: %s: %w", req.Source, err)
	}
	return out, nil
}
