package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"fitsmatch/internal/config"
	"fitsmatch/internal/fits"
	"fitsmatch/internal/fsutil"
	"fitsmatch/internal/match"
	"fitsmatch/internal/preview"
	"fitsmatch/internal/regrid"
	"fitsmatch/internal/reproject"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger) *cobra.Command {
	return newRootCmd(NewRoot(cfg, log))
}

func newRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fitsmatch",
		Short: "fitsmatch puts two FITS images on a common pixel grid",
		Long: `fitsmatch reprojects FITS images onto a shared WCS grid with Montage
or a built-in regridder, and can restrict the pair to pixels that are
significant in both images.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newMatchCmd(root))
	rootCmd.AddCommand(newProjectCmd(root))
	rootCmd.AddCommand(newHeaderCmd(root))
	rootCmd.AddCommand(newBackendsCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

// projectFlags are shared by match and project.
type projectFlags struct {
	header  string
	backend string
	verbose bool
	order   int
	fill    string
}

func (f *projectFlags) register(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&f.header, "header", "", "Target header: card text (.hdr/.txt) or a FITS file")
	cmd.Flags().StringVar(&f.backend, "backend", cfg.Backends.Preferred, "Preferred backend: montage|regrid")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Show backend output")
	cmd.Flags().IntVar(&f.order, "order", cfg.Backends.Regrid.Order, "Regrid interpolation order: 0 nearest, 1 bilinear")
	cmd.Flags().StringVar(&f.fill, "fill", formatFill(cfg.Backends.Regrid), "Regrid value outside the source footprint")
}

func (f *projectFlags) options() (reproject.ProjectOptions, error) {
	pref, err := reproject.ParsePreference(f.backend)
	if err != nil {
		return reproject.ProjectOptions{}, err
	}
	fill, err := parseFill(f.fill)
	if err != nil {
		return reproject.ProjectOptions{}, err
	}
	opts := regrid.Options{Order: f.order, Fill: fill}
	if err := opts.Validate(); err != nil {
		return reproject.ProjectOptions{}, err
	}
	return reproject.ProjectOptions{Preference: pref, Verbose: f.verbose, Regrid: &opts}, nil
}

func (f *projectFlags) loadHeader() (*fits.Header, error) {
	if f.header == "" {
		return nil, nil
	}
	return loadHeader(f.header)
}

type matchFlags struct {
	projectFlags
	sigmaCut    float64
	outDir      string
	preview     string
	scatter     string
	printHeader bool
}

func newMatchCmd(root *Root) *cobra.Command {
	var flags matchFlags

	outDir := root.cfg.Match.OutputDir
	if outDir == "" {
		outDir = root.cfg.Paths.DefaultOutput
	}

	cmd := &cobra.Command{
		Use:   "match <file1> <file2>",
		Short: "Project two FITS images onto a common grid",
		Long: `Project file2 (and file1 when --header is given) onto a common WCS grid.
Without --header the grid is the flattened header of file1. The matched
images are written as <out-dir>/<name>_matched.fits.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.runMatch(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], flags)
		},
	}

	flags.register(cmd, root.cfg)
	cmd.Flags().Float64Var(&flags.sigmaCut, "sigma-cut", root.cfg.Match.SigmaCut, "Keep pixels above this many standard deviations in both images (0 disables)")
	cmd.Flags().StringVarP(&flags.outDir, "out-dir", "o", outDir, "Directory for matched images")
	cmd.Flags().StringVar(&flags.preview, "preview", "", "Also write PNG previews with this stretch: linear|asinh")
	cmd.Flags().StringVar(&flags.scatter, "scatter", "", "Write a pixel-vs-pixel scatter plot to this file")
	cmd.Flags().BoolVar(&flags.printHeader, "print-header", false, "Print the working header")

	return cmd
}

func (r *Root) runMatch(ctx context.Context, out io.Writer, file1, file2 string, flags matchFlags) error {
	projOpts, err := flags.options()
	if err != nil {
		return err
	}
	hdr, err := flags.loadHeader()
	if err != nil {
		return err
	}
	if flags.sigmaCut < 0 {
		return fmt.Errorf("sigma cut must not be negative, got %g", flags.sigmaCut)
	}
	var stretch preview.Stretch
	if flags.preview != "" {
		if stretch, err = preview.ParseStretch(flags.preview); err != nil {
			return err
		}
	}

	m := match.NewMatcher(r.newProjector(), r.log)
	res, err := m.MatchFITS(ctx, file1, file2, match.Options{
		Header:       hdr,
		SigmaCut:     flags.sigmaCut,
		ReturnHeader: true,
		Project:      projOpts,
	})
	if err != nil {
		return err
	}

	if flags.outDir != "" {
		if err := os.MkdirAll(flags.outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	suffix := r.cfg.Match.OutputSuffix
	paths := fsutil.UniquePaths(
		fsutil.OutputPath(file1, flags.outDir, suffix, ".fits"),
		fsutil.OutputPath(file2, flags.outDir, suffix, ".fits"),
	)
	outputs := []struct {
		path string
		data *mat.Dense
	}{{paths[0], res.Image1}, {paths[1], res.Image2}}

	rows, cols := res.Image1.Dims()
	fmt.Fprintf(out, "Matched %s and %s on a %dx%d grid\n", file1, file2, cols, rows)
	fmt.Fprintf(out, "Sigma cut applied: %t\n", res.SigmaCutApplied)

	for _, o := range outputs {
		if err := fits.WriteImage(o.path, o.data, res.Header); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", o.path)
	}
	if flags.preview != "" {
		for _, o := range outputs {
			png := fsutil.OutputPath(o.path, "", "", ".png")
			if err := preview.WriteImage(png, o.data, stretch); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s\n", png)
		}
	}
	if flags.scatter != "" {
		if err := preview.Scatter(flags.scatter, res.Image1, res.Image2, 20000, fsutil.BaseName(file1), fsutil.BaseName(file2)); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", flags.scatter)
	}
	if flags.printHeader {
		return res.Header.WriteText(out)
	}
	return nil
}
