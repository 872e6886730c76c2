package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/config"
	"fitsmatch/internal/fits"
	"fitsmatch/internal/reproject"
)

func newTestRoot(t *testing.T) (*Root, *stubToolManager) {
	t.Helper()
	cfg := config.Default()
	cfg.Backends.Preferred = config.BackendRegrid
	cfg.Backends.Fallbacks = nil
	cfg.Paths.DefaultOutput = t.TempDir()

	tools := &stubToolManager{status: map[string]reproject.ToolStatus{
		config.BackendRegrid: {Available: true, Path: "builtin", Version: "order 1"},
	}}
	root := NewRoot(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	root.toolFactory = func(*config.Config) toolManager { return tools }
	return root, tools
}

func run(t *testing.T, root *Root, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(root)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func testHeader(cols, rows int, crpix1 float64) *fits.Header {
	return fits.NewHeader(
		fits.Card{Key: "NAXIS", Value: 2},
		fits.Card{Key: "NAXIS1", Value: cols},
		fits.Card{Key: "NAXIS2", Value: rows},
		fits.Card{Key: "CTYPE1", Value: "RA---TAN"},
		fits.Card{Key: "CTYPE2", Value: "DEC--TAN"},
		fits.Card{Key: "CRPIX1", Value: crpix1},
		fits.Card{Key: "CRPIX2", Value: 2.0},
		fits.Card{Key: "CRVAL1", Value: 200.0},
		fits.Card{Key: "CRVAL2", Value: 45.0},
		fits.Card{Key: "CDELT1", Value: -0.005},
		fits.Card{Key: "CDELT2", Value: 0.005},
	)
}

func writeFITS(t *testing.T, dir, name string, hdr *fits.Header) string {
	t.Helper()
	rows, cols, err := hdr.Shape()
	require.NoError(t, err)
	data := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data.Set(r, c, float64(1+r*cols+c))
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, fits.WriteImage(path, data, hdr))
	return path
}

func TestMatchCommandWritesMatchedImages(t *testing.T) {
	root, _ := newTestRoot(t)
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "matched")
	f1 := writeFITS(t, in, "one.fits", testHeader(5, 4, 3))
	f2 := writeFITS(t, in, "two.fits", testHeader(6, 4, 4))

	stdout, err := run(t, root, "match", f1, f2, "--out-dir", out, "--print-header")
	require.NoError(t, err)
	assert.Contains(t, stdout, "on a 5x4 grid")
	assert.Contains(t, stdout, "Sigma cut applied: false")
	assert.Contains(t, stdout, "CTYPE1  = 'RA---TAN'")
	assert.Contains(t, stdout, "END")

	for _, name := range []string{"one_matched.fits", "two_matched.fits"} {
		img, err := fits.ReadImage(filepath.Join(out, name))
		require.NoError(t, err, name)
		r, c := img.Data.Dims()
		assert.Equal(t, 4, r)
		assert.Equal(t, 5, c)
	}

	// two.fits is shifted by one column, so its matched copy lines up with one.fits
	one, err := fits.ReadImage(filepath.Join(out, "one_matched.fits"))
	require.NoError(t, err)
	two, err := fits.ReadImage(filepath.Join(out, "two_matched.fits"))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, two.Data.At(0, 0), 1e-6)
	assert.Equal(t, 1.0, one.Data.At(0, 0))
}

func TestMatchCommandUsesHeaderFile(t *testing.T) {
	root, _ := newTestRoot(t)
	in := t.TempDir()
	f1 := writeFITS(t, in, "one.fits", testHeader(5, 4, 3))
	f2 := writeFITS(t, in, "two.fits", testHeader(5, 4, 3))

	hdrPath := filepath.Join(in, "target.hdr")
	require.NoError(t, os.WriteFile(hdrPath, []byte(testHeader(3, 2, 2).Text()), 0o644))

	stdout, err := run(t, root, "match", f1, f2, "--header", hdrPath, "--order", "0", "--sigma-cut", "0.5", "-o", in)
	require.NoError(t, err)
	assert.Contains(t, stdout, "on a 3x2 grid")

	img, err := fits.ReadImage(filepath.Join(in, "one_matched.fits"))
	require.NoError(t, err)
	r, c := img.Data.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
}

func TestMatchCommandValidatesArguments(t *testing.T) {
	root, _ := newTestRoot(t)
	f1 := writeFITS(t, t.TempDir(), "one.fits", testHeader(5, 4, 3))

	cases := [][]string{
		{"match", f1},
		{"match", f1, f1, "--backend", "swarp"},
		{"match", f1, f1, "--order", "3"},
		{"match", f1, f1, "--fill", "lots"},
		{"match", f1, f1, "--sigma-cut", "-1"},
		{"match", f1, f1, "--preview", "log"},
		{"match", f1, filepath.Join(t.TempDir(), "missing.fits")},
	}
	for _, args := range cases {
		_, err := run(t, root, args...)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestMatchCommandReportsNoBackend(t *testing.T) {
	root, _ := newTestRoot(t)
	root.cfg.Backends.Regrid.Enabled = false
	in := t.TempDir()
	f1 := writeFITS(t, in, "one.fits", testHeader(5, 4, 3))

	_, err := run(t, root, "match", f1, f1, "-o", in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reproject.ErrNoBackend))
}

func TestProjectCommand(t *testing.T) {
	root, _ := newTestRoot(t)
	in := t.TempDir()
	src := writeFITS(t, in, "src.fits", testHeader(5, 4, 3))
	target := writeFITS(t, in, "target.fits", testHeader(4, 3, 2))
	out := filepath.Join(in, "projected.fits")

	_, err := run(t, root, "project", src)
	assert.Error(t, err, "--header is required")

	stdout, err := run(t, root, "project", src, "--header", target, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "onto a 4x3 grid")
	img, err := fits.ReadImage(out)
	require.NoError(t, err)
	r, c := img.Data.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)
}

func TestHeaderCommand(t *testing.T) {
	root, _ := newTestRoot(t)
	hdr := testHeader(5, 4, 3)
	hdr.Set("CTYPE3", "FREQ", "")
	path := writeFITS(t, t.TempDir(), "one.fits", hdr)

	stdout, err := run(t, root, "header", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "CTYPE3")

	stdout, err = run(t, root, "header", path, "--flatten")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ACTYPE3")

	parsed, err := fits.ParseHeader(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.False(t, parsed.Has("CTYPE3"))
}

func TestBackendsCommandUsesManager(t *testing.T) {
	root, tools := newTestRoot(t)
	root.cfg.Backends.Fallbacks = []string{config.BackendMontage}
	tools.status[config.BackendMontage] = reproject.ToolStatus{Error: errors.New("exec: \"mProject\": executable file not found in $PATH")}
	tools.available = config.BackendRegrid

	stdout, err := run(t, root, "backends")
	require.NoError(t, err)
	assert.Contains(t, stdout, "regrid")
	assert.Contains(t, stdout, "NOT AVAILABLE")
	assert.Contains(t, stdout, "Selected: regrid")

	tools.available = ""
	_, err = run(t, root, "backends")
	assert.True(t, errors.Is(err, reproject.ErrNoBackend))
}

func TestConfigCommands(t *testing.T) {
	root, _ := newTestRoot(t)

	stdout, err := run(t, root, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Backend order: [regrid]")
	assert.Contains(t, stdout, "fill=nan")

	stdout, err = run(t, root, "config", "show", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"preferred": "regrid"`)

	stdout, err = run(t, root, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration is valid")

	root.cfg.Backends.Regrid.Order = 5
	_, err = run(t, root, "config", "validate")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	root, _ := newTestRoot(t)
	stdout, err := run(t, root, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fitsmatch "+version)
	assert.Contains(t, stdout, "regrid: ✅ available")
	assert.Contains(t, stdout, "montage: ❌ unavailable")
}

type stubToolManager struct {
	status    map[string]reproject.ToolStatus
	available string
}

func (m *stubToolManager) GetToolStatus() map[string]reproject.ToolStatus {
	return m.status
}

func (m *stubToolManager) GetAvailableBackend() (string, error) {
	if m.available == "" {
		return "", reproject.ErrNoBackend
	}
	return m.available, nil
}
