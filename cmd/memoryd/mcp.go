package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Hkesd/mcp-memory-service/internal/mcpserver"
	"github.com/Hkesd/mcp-memory-service/pkg/app"
)

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory backend as MCP tools over stdio",
		Long: "Serve the configured memory backend to an MCP client over stdin/stdout.\n" +
			"Logs go to stderr; stdout carries only protocol messages.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			p := flags.params()
			p.LogOutput = os.Stderr
			rt, err := app.Prepare(ctx, p)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			m, err := app.OpenMemory(rt)
			if err != nil {
				return err
			}
			defer m.Close()

			opts := []mcpserver.Option{
				mcpserver.WithLogger(rt.Logger),
				mcpserver.WithVersion(version),
			}
			if m.Sync != nil {
				opts = append(opts, mcpserver.WithSync(m.Sync))
			}
			return mcpserver.New(m.Backend, opts...).Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
