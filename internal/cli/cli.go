package cli

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"fitsmatch/internal/config"
	"fitsmatch/internal/fits"
	"fitsmatch/internal/fsutil"
	"fitsmatch/internal/match"
	"fitsmatch/internal/reproject"
)

type projector interface {
	match.Projector
	Capabilities() reproject.Capabilities
}

type projectorFactory func(*config.Config, *slog.Logger) projector

type toolManager interface {
	GetToolStatus() map[string]reproject.ToolStatus
	GetAvailableBackend() (string, error)
}

type toolManagerFactory func(*config.Config) toolManager

// Root wires CLI commands to the matcher and backends.
type Root struct {
	cfg              *config.Config
	log              *slog.Logger
	projectorFactory projectorFactory
	toolFactory      toolManagerFactory
}

// NewRoot constructs the CLI root.
func NewRoot(cfg *config.Config, logger *slog.Logger) *Root {
	return &Root{
		cfg: cfg,
		log: logger,
		projectorFactory: func(cfg *config.Config, logger *slog.Logger) projector {
			return reproject.NewProjector(cfg, logger)
		},
		toolFactory: func(cfg *config.Config) toolManager {
			return reproject.NewToolManager(cfg)
		},
	}
}

func (r *Root) newProjector() projector {
	if r.projectorFactory != nil {
		return r.projectorFactory(r.cfg, r.log)
	}
	return reproject.NewProjector(r.cfg, r.log)
}

func (r *Root) newToolManager() toolManager {
	if r.toolFactory != nil {
		return r.toolFactory(r.cfg)
	}
	return reproject.NewToolManager(r.cfg)
}

// loadHeader reads a target header from card text, or from a FITS file
// whose header is flattened.
func loadHeader(path string) (*fits.Header, error) {
	if fsutil.IsHeaderFile(path) || !fsutil.IsFITSFile(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		hdr, err := fits.ParseHeader(f)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", path, err)
		}
		return hdr, nil
	}
	hdr, err := fits.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	return hdr.Flatten(), nil
}

func parseFill(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fill value %q", s)
	}
	return v, nil
}

func formatFill(cfg config.RegridConfig) string {
	if cfg.Fill == nil {
		return "nan"
	}
	return strconv.FormatFloat(*cfg.Fill, 'g', -1, 64)
}
