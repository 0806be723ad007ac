package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"swiftkyc-client/internal/config"
	"swiftkyc-client/internal/poller"

	"github.com/spf13/cobra"
)

func statusCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the verification status of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &syncWriter{w: cmd.OutOrStdout()}
			gw := a.gateway()
			bar := a.bar(out)
			defer bar.Close()

			if !watch {
				ctx, cancel := context.WithTimeout(cmd.Context(), config.Duration(a.cfg.APITimeout, 30*time.Second))
				defer cancel()
				s, err := gw.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				writeView(out, poller.ViewOf(s, args[0]))
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			p := poller.New(gw, bar, config.Duration(a.cfg.PollInterval, poller.DefaultInterval), func(v poller.View) {
				writeView(out, v)
				fmt.Fprintln(out)
			}, a.logger)
			p.Start(ctx, args[0])
			select {
			case <-p.Done():
			case <-ctx.Done():
			}
			p.Stop()
			return p.Err()
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling until the status is final")
	return cmd
}
