package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fitsmatch/internal/fits"
	"fitsmatch/internal/fsutil"
)

func newProjectCmd(root *Root) *cobra.Command {
	var (
		flags  projectFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "project <file>",
		Short: "Reproject one FITS image onto a target header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.header == "" {
				return fmt.Errorf("--header is required")
			}
			hdr, err := flags.loadHeader()
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}

			data, err := root.newProjector().ProjectToHeader(cmd.Context(), args[0], hdr, opts)
			if err != nil {
				return err
			}

			if output == "" {
				output = fsutil.OutputPath(args[0], root.cfg.Paths.DefaultOutput, "_projected", ".fits")
			}
			if err := fits.WriteImage(output, data, hdr); err != nil {
				return err
			}
			rows, cols := data.Dims()
			fmt.Fprintf(cmd.OutOrStdout(), "Projected %s onto a %dx%d grid\n", args[0], cols, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	flags.register(cmd, root.cfg)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output FITS file (default <name>_projected.fits)")
	return cmd
}

func newHeaderCmd(root *Root) *cobra.Command {
	var flatten bool

	cmd := &cobra.Command{
		Use:   "header <file>",
		Short: "Print a FITS header as card text",
		Long: `Print the header of the HDU that holds the image data. The output can be
saved and passed back with --header.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdr, err := fits.ReadHeader(args[0])
			if err != nil {
				return err
			}
			if flatten {
				hdr = hdr.Flatten()
			}
			root.log.Debug("header read", "file", args[0], "cards", hdr.Len())
			return hdr.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&flatten, "flatten", false, "Drop axes above the second")
	return cmd
}

func newBackendsCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "Show reprojection backend availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			tm := root.newToolManager()
			status := tm.GetToolStatus()

			fmt.Fprintln(out, "=== Reprojection Backends ===")
			for _, name := range root.cfg.Backends.Order() {
				st, ok := status[name]
				if !ok {
					continue
				}
				if st.Available {
					fmt.Fprintf(out, "  %-10s ✅ AVAILABLE  %s %s\n", name, st.Path, st.Version)
				} else {
					fmt.Fprintf(out, "  %-10s ❌ NOT AVAILABLE  %v\n", name, st.Error)
				}
			}

			selected, err := tm.GetAvailableBackend()
			if err != nil {
				fmt.Fprintf(out, "\nNo backend can run: install Montage (mProject) or enable the regridder\n")
				return err
			}
			fmt.Fprintf(out, "\nSelected: %s\n", selected)
			return nil
		},
	}
}
