package cli

import (
	"context"
	"io"
	"strings"
	"time"

	"swiftkyc-client/internal/admin"
	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/config"

	"github.com/spf13/cobra"
)

func adminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Review KYC sessions",
	}

	var f admin.Filter
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withConsole(cmd, func(ctx context.Context, c *admin.Console, out io.Writer) error {
				f.Status = api.Status(strings.ToUpper(string(f.Status)))
				f.DocType = api.DocType(strings.ToUpper(string(f.DocType)))
				c.SetFilter(f)
				v, err := c.List(ctx)
				if err != nil {
					return err
				}
				return admin.WriteList(out, v)
			})
		},
	}
	listCmd.Flags().StringVar((*string)(&f.Status), "status", "", "IN_PROGRESS, APPROVED, REJECTED or ABANDONED")
	listCmd.Flags().StringVar((*string)(&f.DocType), "doc-type", "", "PAN, AADHAAR, PASSPORT or VOTER_ID")
	listCmd.Flags().StringVar(&f.Date, "date", "", "creation day, YYYY-MM-DD")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session with its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withConsole(cmd, func(ctx context.Context, c *admin.Console, out io.Writer) error {
				v, err := c.Show(ctx, args[0])
				if err != nil {
					return err
				}
				return admin.WriteDetail(out, v)
			})
		},
	}

	cmd.AddCommand(listCmd, showCmd,
		decisionCmd(a, "approve", (*admin.Console).Approve),
		decisionCmd(a, "reject", (*admin.Console).Reject),
	)
	return cmd
}

func decisionCmd(a *app, verb string, decide func(*admin.Console, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <session-id>",
		Short: "Mark a session as " + verb + "d",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withConsole(cmd, func(ctx context.Context, c *admin.Console, out io.Writer) error {
				if _, err := c.Show(ctx, args[0]); err != nil {
					return err
				}
				if err := decide(c, ctx); err != nil {
					return err
				}
				v, _ := c.Detail()
				return admin.WriteDetail(out, v)
			})
		},
	}
}

func (a *app) withConsole(cmd *cobra.Command, fn func(context.Context, *admin.Console, io.Writer) error) error {
	out := &syncWriter{w: cmd.OutOrStdout()}
	bar := a.bar(out)
	defer bar.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*config.Duration(a.cfg.APITimeout, 30*time.Second))
	defer cancel()
	return fn(ctx, admin.New(a.gateway(), bar, a.logger), out)
}
