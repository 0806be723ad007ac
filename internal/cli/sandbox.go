package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// sandboxCmd groups the local verification service controls.
func sandboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run or manage the local verification sandbox service",
	}

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the sandbox in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.Run(); err != nil {
				a.logger.Error("Run error", "error", err)
				return err
			}
			return nil
		},
	}

	var uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the sandbox service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.Uninstall(); err != nil {
				return fmt.Errorf("failed to uninstall service: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Service uninstalled.")
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show sandbox service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.svc.Status()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(status))
			return nil
		},
	}

	var logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Show sandbox logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(a.cfg.Sandbox.LogPath)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "No logs found.")
					return nil
				}
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer f.Close()
			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		},
	}

	cmd.AddCommand(
		runCmd,
		installCmd(a),
		serviceInstallCmd(a),
		uninstallCmd,
		controlCmd(a, "start", "Service started.", func(s service.Service) error { return s.Start() }),
		controlCmd(a, "stop", "Service stopped.", func(s service.Service) error { return s.Stop() }),
		controlCmd(a, "restart", "Service restarted.", func(s service.Service) error { return s.Restart() }),
		statusCmd,
		logsCmd,
	)
	return cmd
}

func controlCmd(a *app, verb, done string, action func(service.Service) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb,
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " the sandbox service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := action(a.svc); err != nil {
				return fmt.Errorf("failed to %s: %w", verb, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), done)
			return nil
		},
	}
}

func statusText(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "Running"
	case service.StatusStopped:
		return "Stopped"
	}
	return "Unknown/Other"
}
