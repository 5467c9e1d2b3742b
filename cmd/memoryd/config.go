package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Hkesd/mcp-memory-service/internal/backend"
	"github.com/Hkesd/mcp-memory-service/internal/config"
	"github.com/Hkesd/mcp-memory-service/internal/core"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
	"github.com/Hkesd/mcp-memory-service/pkg/app"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(flags), configInitCmd())
	return cmd
}

func configCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and open every configured module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := flags.params()
			if len(args) == 1 {
				p.ConfigPath = args[0]
			}
			if p.LogLevel == "" {
				p.LogLevel = "warn"
			}
			rt, err := app.Prepare(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			application := core.NewApp(rt.AppCtx)
			ids := config.Resolve(rt.Config)
			if err := application.LoadModules(ids); err != nil {
				return err
			}
			defer application.Close()

			out := cmd.OutOrStdout()
			source := rt.ConfigPath
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", source, len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			if svc, ok := rt.AppCtx.GetService(backend.ServiceDiagnostics); ok {
				if diags, ok := svc.([]tier.Diagnostic); ok && len(diags) > 0 {
					fmt.Fprintln(out, "\nSubstitutions:")
					for _, d := range diags {
						fmt.Fprintf(out, "  %s\n", d.Error())
					}
				}
			}
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var (
		output   string
		force    bool
		defaults bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file, interactively by default",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			var raw []byte
			if defaults {
				raw = config.DefaultYAML()
			} else {
				answers := defaultAnswers()
				if err := runWizard(&answers); err != nil {
					return err
				}
				var err error
				if raw, err = renderConfig(answers); err != nil {
					return err
				}
			}

			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(output, raw, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", config.FileName, "File to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the environment-driven default template without prompting")
	return cmd
}
