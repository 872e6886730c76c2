package reproject

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/config"
	"fitsmatch/internal/fits"
	"fitsmatch/internal/logging"
	"fitsmatch/internal/regrid"
)

// Preference picks between the two backends.
type Preference int

const (
	// PreferMontage uses Montage when it is available, else the regridder.
	PreferMontage Preference = iota
	// PreferRegrid never runs Montage.
	PreferRegrid
)

func (p Preference) String() string {
	if p == PreferRegrid {
		return config.BackendRegrid
	}
	return config.BackendMontage
}

// ParsePreference maps a backend name to a Preference.
func ParsePreference(name string) (Preference, error) {
	switch name {
	case "", config.BackendMontage:
		return PreferMontage, nil
	case config.BackendRegrid:
		return PreferRegrid, nil
	}
	return PreferMontage, fmt.Errorf("unknown backend %q", name)
}

// Capabilities is the availability of each backend, probed once.
type Capabilities struct {
	Montage ToolStatus
	Regrid  ToolStatus
}

// Any reports whether at least one backend can run.
func (c Capabilities) Any() bool {
	return c.Montage.Available || c.Regrid.Available
}

// ProjectOptions tune a single ProjectToHeader call.
type ProjectOptions struct {
	Preference Preference
	Verbose    bool
	// Regrid is forwarded to the regridder only.
	Regrid *regrid.Options
}

// Projector resamples files onto target headers.
type Projector struct {
	montage Backend
	regrid  Backend
	caps    Capabilities
	logger  *slog.Logger
}

// NewProjector builds both backends from cfg. Backends missing from the
// configured order are treated as unavailable.
func NewProjector(cfg *config.Config, logger *slog.Logger) *Projector {
	tm := NewToolManager(cfg)
	var montage, rg Backend
	for _, name := range cfg.Backends.Order() {
		switch name {
		case config.BackendMontage:
			montage = NewMontageBackend(cfg.Backends.Montage, tm, logger)
		case config.BackendRegrid:
			rg = NewRegridBackend(cfg.Backends.Regrid, tm)
		}
	}
	return NewProjectorWithBackends(logger, montage, rg)
}

// NewProjectorWithBackends wires explicit backends; either may be nil.
func NewProjectorWithBackends(logger *slog.Logger, montage, rg Backend) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Projector{montage: montage, regrid: rg, logger: logger}
	if montage != nil {
		p.caps.Montage = montage.Status()
	} else {
		p.caps.Montage = ToolStatus{Error: fmt.Errorf("not configured")}
	}
	if rg != nil {
		p.caps.Regrid = rg.Status()
	} else {
		p.caps.Regrid = ToolStatus{Error: fmt.Errorf("not configured")}
	}
	logging.LogBackendStatus(logger, config.BackendMontage, p.caps.Montage.Available, p.caps.Montage.Version, p.caps.Montage.Path, p.caps.Montage.Error)
	logging.LogBackendStatus(logger, config.BackendRegrid, p.caps.Regrid.Available, p.caps.Regrid.Version, p.caps.Regrid.Path, p.caps.Regrid.Error)
	return p
}

// Capabilities returns the probe results taken at construction.
func (p *Projector) Capabilities() Capabilities {
	return p.caps
}

// ProjectToHeader reprojects the image in path onto the grid of target.
// Montage runs when it is available and preferred; otherwise the regridder
// runs. A Montage failure is returned as is.
func (p *Projector) ProjectToHeader(ctx context.Context, path string, target *fits.Header, opts ProjectOptions) (*mat.Dense, error) {
	var backend Backend
	switch {
	case p.caps.Montage.Available && opts.Preference == PreferMontage:
		backend = p.montage
	case p.caps.Regrid.Available:
		backend = p.regrid
	default:
		return nil, fmt.Errorf("%w (montage: %v, regrid: %v)", ErrNoBackend, p.caps.Montage.Error, p.caps.Regrid.Error)
	}

	rows, cols, _ := target.Shape()
	logging.LogProjectionStart(p.logger, backend.Name(), path, rows, cols)
	start := time.Now()

	out, err := backend.Project(ctx, Request{Source: path, Target: target, Verbose: opts.Verbose, Regrid: opts.Regrid})
	if err != nil {
		logging.LogProjectionError(p.logger, backend.Name(), path, time.Since(start), err)
		return nil, err
	}
	logging.LogProjectionComplete(p.logger, backend.Name(), path, time.Since(start))
	return out, nil
}
