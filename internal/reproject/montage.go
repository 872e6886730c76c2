package reproject

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/config"
	"fitsmatch/internal/fits"
)

var montageStatus = regexp.MustCompile(`\[struct\s+stat="([A-Z]+)"(?:,\s*msg="((?:[^"\\]|\\.)*)")?`)

// MontageBackend runs mProject in a scratch directory per call.
type MontageBackend struct {
	cfg    config.MontageConfig
	status ToolStatus
	run    commandRunner
	logger *slog.Logger
}

// NewMontageBackend probes mProject through tm.
func NewMontageBackend(cfg config.MontageConfig, tm *ToolManager, logger *slog.Logger) *MontageBackend {
	return &MontageBackend{
		cfg:    cfg,
		status: tm.CheckTool(config.BackendMontage),
		run:    tm.run,
		logger: logger,
	}
}

func (b *MontageBackend) Name() string { return config.BackendMontage }

func (b *MontageBackend) Status() ToolStatus { return b.status }

// Project writes the target header as a template, asks mProject for the
// full region of that template and reads the result back. The scratch
// directory is removed on every path.
func (b *MontageBackend) Project(ctx context.Context, req Request) (*mat.Dense, error) {
	if req.Target == nil {
		return nil, fmt.Errorf("montage: no target header")
	}
	dir, err := os.MkdirTemp(b.cfg.TempDir, "fitsmatch-montage-")
	if err != nil {
		return nil, fmt.Errorf("montage: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	hdrPath := filepath.Join(dir, "target.hdr")
	if err := os.WriteFile(hdrPath, []byte(req.Target.Text()), 0o644); err != nil {
		return nil, fmt.Errorf("montage: header template: %w", err)
	}
	outPath := filepath.Join(dir, "projected.fits")

	binary := b.status.Path
	if binary == "" {
		binary = b.cfg.Binary
	}
	args := []string{"-f"}
	if b.cfg.HDU > 0 {
		args = append(args, "-h", strconv.Itoa(b.cfg.HDU))
	}
	args = append(args, b.cfg.ExtraArgs...)
	args = append(args, req.Source, outPath, hdrPath)

	b.logger.Debug("running mProject", "binary", binary, "args", strings.Join(args, " "))
	output, runErr := b.run(ctx, binary, args...)
	if req.Verbose {
		for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
			if line != "" {
				b.logger.Info("mProject", "output", line)
			}
		}
	}

	stat, msg := parseMontageStatus(output)
	if stat == "ERROR" {
		return nil, fmt.Errorf("montage: mProject %s: %s", req.Source, msg)
	}
	if runErr != nil {
		return nil, fmt.Errorf("montage: mProject %s: %w", req.Source, runErr)
	}

	img, err := fits.ReadImage(outPath)
	if err != nil {
		return nil, fmt.Errorf("montage: read result: %w", err)
	}
	return img.Data, nil
}

// parseMontageStatus extracts stat and msg from Montage's
// `[struct stat="...", msg="..."]` return line.
func parseMontageStatus(output []byte) (stat, msg string) {
	m := montageStatus.FindSubmatch(output)
	if m == nil {
		return "", ""
	}
	return string(m[1]), strings.ReplaceAll(string(m[2]), `\"`, `"`)
}
