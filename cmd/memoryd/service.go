package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/Hkesd/mcp-memory-service/pkg/app"
)

const serviceStopTimeout = 30 * time.Second

// program adapts app.Run to the service manager's Start/Stop callbacks.
type program struct {
	params app.Params
	cancel context.CancelFunc
	done   chan error
	logger service.Logger
}

var _ service.Interface = (*program)(nil)

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := app.Run(ctx, p.params)
		if err != nil && p.logger != nil {
			_ = p.logger.Error(err)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		return errors.New("memoryd did not stop in time")
	}
}

// serviceConfig describes the installed unit. The configuration path is
// made absolute because services start in a different directory.
func serviceConfig(flags *globalFlags) (*service.Config, error) {
	args := []string{"service", "run"}
	if flags.configPath != "" {
		abs, err := filepath.Abs(flags.configPath)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	if flags.logLevel != "" {
		args = append(args, "--log-level", flags.logLevel)
	}
	return &service.Config{
		Name:        "memoryd",
		DisplayName: "memoryd",
		Description: "Multi-tier semantic memory service for MCP clients",
		Arguments:   args,
	}, nil
}

func newService(flags *globalFlags) (service.Service, *program, error) {
	cfg, err := serviceConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{params: flags.params()}
	svc, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	return svc, prg, nil
}

func serviceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage memoryd as an OS service",
	}

	for _, action := range []struct {
		verb  string
		short string
	}{
		{"install", "Install memoryd as a system service"},
		{"uninstall", "Remove the installed service"},
		{"start", "Start the installed service"},
		{"stop", "Stop the installed service"},
		{"restart", "Restart the installed service"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.verb,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService(flags)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action.verb); err != nil {
					return fmt.Errorf("service %s: %w", action.verb, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "memoryd service: %s done\n", action.verb)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			svc, prg, err := newService(flags)
			if err != nil {
				return err
			}
			if prg.logger, err = svc.Logger(nil); err != nil {
				return fmt.Errorf("service logger: %w", err)
			}
			return svc.Run()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report the installed service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService(flags)
			if err != nil {
				return err
			}
			st, err := svc.Status()
			if err != nil {
				return fmt.Errorf("service status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
			return nil
		},
	})
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
