package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hkesd/mcp-memory-service/pkg/app"
)

func syncCmd(flags *globalFlags) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass of the hybrid backend and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := app.Prepare(ctx, flags.params())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			m, err := app.OpenMemory(rt)
			if err != nil {
				return err
			}
			defer m.Close()

			if m.Sync == nil {
				return fmt.Errorf("backend %q has no background sync", m.Backend.Kind())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if statusOnly {
				return enc.Encode(m.Sync.Status())
			}
			report, err := m.Sync.SyncNow(ctx)
			if err != nil {
				return err
			}
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("sync pass incomplete: %d failed", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Print the sync status without running a pass")
	return cmd
}
