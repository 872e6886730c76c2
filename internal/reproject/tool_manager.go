package reproject

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"fitsmatch/internal/config"
)

// ToolManager probes the configured backends and picks the first usable one.
type ToolManager struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	run      commandRunner
}

// NewToolManager creates a new tool manager with configuration
func NewToolManager(cfg *config.Config) *ToolManager {
	return &ToolManager{cfg: cfg, lookPath: exec.LookPath, run: execRunner}
}

// ToolStatus represents the availability of a backend
type ToolStatus struct {
	Available bool
	Version   string
	Path      string
	Error     error
}

// CheckTool verifies if a backend is available and working
func (tm *ToolManager) CheckTool(toolName string) ToolStatus {
	switch toolName {
	case config.BackendMontage:
		return tm.checkMontage()
	case config.BackendRegrid:
		if !tm.cfg.Backends.Regrid.Enabled {
			return ToolStatus{Error: errors.New("disabled in config")}
		}
		return ToolStatus{Available: true, Path: "builtin", Version: fmt.Sprintf("order %d", tm.cfg.Backends.Regrid.Order)}
	}

	path, err := tm.lookPath(toolName)
	if err != nil {
		return ToolStatus{Available: false, Error: err}
	}
	return ToolStatus{Available: true, Path: path}
}

func (tm *ToolManager) checkMontage() ToolStatus {
	mc := tm.cfg.Backends.Montage
	if !mc.Enabled {
		return ToolStatus{Error: errors.New("disabled in config")}
	}
	binary := mc.Binary
	if binary == "" {
		binary = "mProject"
	}

	path, err := tm.lookPath(binary)
	if err != nil {
		return ToolStatus{Available: false, Error: err}
	}

	// mProject prints its usage and exits non-zero when run without arguments
	output, err := tm.run(context.Background(), path)
	if len(output) > 0 {
		return ToolStatus{Available: true, Version: extractVersion(string(output)), Path: path}
	}
	if err != nil {
		return ToolStatus{Available: false, Path: path, Error: err}
	}
	return ToolStatus{Available: true, Path: path}
}

// GetAvailableBackend returns the best available backend
func (tm *ToolManager) GetAvailableBackend() (string, error) {
	for _, tool := range tm.cfg.Backends.Order() {
		if status := tm.CheckTool(tool); status.Available {
			return tool, nil
		}
	}
	return "", ErrNoBackend
}

// GetToolStatus returns the status of every configured backend
func (tm *ToolManager) GetToolStatus() map[string]ToolStatus {
	status := make(map[string]ToolStatus)
	for _, tool := range tm.cfg.Backends.Order() {
		status[tool] = tm.CheckTool(tool)
	}
	return status
}

// extractVersion extracts version information from tool output
func extractVersion(output string) string {
	lines := strings.Split(output, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "version") || strings.Contains(line, "Version") {
			return line
		}
	}
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0])
	}
	return "unknown"
}
