package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stagegen/pkg/render"
	"stagegen/pkg/telemetry"
	"stagegen/services/generator"
	"stagegen/services/stagegen"
	"stagegen/services/stagegen/internal/config"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stagegenctl",
		Short:         "Generate staged artifacts and sweep expired ones",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(newGenerateCommand())
	cmd.AddCommand(newSweepCommand())
	return cmd
}

func openApp(cmd *cobra.Command) (*stagegen.App, error) {
	ctx := commandContext(cmd)
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := telemetry.NewLogger("stagegenctl", cmd.ErrOrStderr())
	return stagegen.New(ctx, cfg, logger)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newGenerateCommand() *cobra.Command {
	var (
		req    generator.Request
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the artifact pipeline once and print the links",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Generator.Generate(commandContext(cmd), req)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"success":    true,
					"parameters": res.Parameters,
					"links":      res.Links(),
					"paths":      res.Paths(),
				})
			}
			out, err := app.Renderer.Render("links.tmpl", res)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().StringVar(&req.ProductID, "product-id", "", "Device product identifier (e.g. iPhone14,2)")
	cmd.Flags().StringVar(&req.GUID, "guid", "", "Value substituted for the guid token")
	cmd.Flags().StringVar(&req.Serial, "serial", "", "Device serial number")
	cmd.Flags().StringVar(&req.BaseURL, "base-url", "", "Scheme and host for links (defaults to PUBLIC_SCHEME://HOST)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("product-id")
	_ = cmd.MarkFlagRequired("guid")
	_ = cmd.MarkFlagRequired("serial")
	return cmd
}

func newSweepCommand() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stage directories older than RETENTION_AGE",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := commandContext(cmd)
			if remote {
				if err := app.RequestSweep(ctx, "stagegenctl"); err != nil {
					return fmt.Errorf("request sweep: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sweep requested.")
				return nil
			}

			report := app.Sweeper.Sweep(ctx)
			out, err := app.Renderer.Render("sweep.tmpl", render.SweepSummary{
				Removed: len(report.Removed),
				Errors:  len(report.Errors),
				Skipped: report.Skipped,
			})
			if err != nil {
				return err
			}
			if _, err := io.WriteString(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if len(report.Errors) > 0 {
				return fmt.Errorf("%d directories could not be removed", len(report.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Ask a running server to sweep via NATS instead of sweeping locally")
	return cmd
}
