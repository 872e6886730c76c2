package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const version = "v0.3.0"

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate fitsmatch configuration",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(root.cfg)
			}

			cfgPath := os.Getenv("FITSMATCH_CONFIG")
			if cfgPath == "" {
				cfgPath = "(default) ~/.config/fitsmatch/config.json"
			}
			b := root.cfg.Backends
			fmt.Fprintf(out, "Configuration:\n\n")
			fmt.Fprintf(out, "Config file: %s\n", cfgPath)
			fmt.Fprintf(out, "Backend order: %v\n", b.Order())
			fmt.Fprintf(out, "Montage: enabled=%t binary=%s hdu=%d temp_dir=%s extra_args=%v\n",
				b.Montage.Enabled, b.Montage.Binary, b.Montage.HDU, b.Montage.TempDir, b.Montage.ExtraArgs)
			fmt.Fprintf(out, "Regrid: enabled=%t order=%d fill=%s\n", b.Regrid.Enabled, b.Regrid.Order, formatFill(b.Regrid))
			fmt.Fprintf(out, "Sigma cut: %g\n", root.cfg.Match.SigmaCut)
			fmt.Fprintf(out, "Output suffix: %s\n", root.cfg.Match.OutputSuffix)
			fmt.Fprintf(out, "Default output: %s\n", root.cfg.Paths.DefaultOutput)
			fmt.Fprintf(out, "Log Level: %s\n", root.cfg.Logging.Level)
			fmt.Fprintf(out, "Log Format: %s\n", root.cfg.Logging.Format)
			fmt.Fprintf(out, "Log Directory: %s\n", root.cfg.Logging.LogDir)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				root.log.Error("configuration validation", "status", "invalid", "error", err)
				return err
			}
			root.log.Info("configuration validation", "status", "valid")
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("fitsmatch %s\n", version)
			cmd.Printf("Built with Go %s\n", runtime.Version())
			caps := root.newProjector().Capabilities()
			cmd.Printf("montage: %s\n", availability(caps.Montage.Available))
			cmd.Printf("regrid: %s\n", availability(caps.Regrid.Available))
		},
	}
}

func availability(ok bool) string {
	if ok {
		return "✅ available"
	}
	return "❌ unavailable"
}
