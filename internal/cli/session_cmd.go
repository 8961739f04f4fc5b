package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or change the session context (Snowflake)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current user, role, warehouse, database and schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				info, err := svc.Session(ctx)
				if err != nil {
					return err
				}
				return printFrame(cmd.OutOrStdout(), sessionFrame(info), opts.output)
			})
		},
	})

	var change app.SessionChange
	useCmd := &cobra.Command{
		Use:   "use",
		Short: "Switch role, warehouse, database or schema, then show the session",
		Long:  "Switch the session context. The change lasts for this command only; set defaults in the profile.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if change == (app.SessionChange{}) {
				return errors.New("nothing to change: pass --role, --warehouse, --database or --schema")
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				info, err := svc.UseSession(ctx, change)
				if err != nil {
					return err
				}
				return printFrame(cmd.OutOrStdout(), sessionFrame(info), opts.output)
			})
		},
	}
	useCmd.Flags().StringVar(&change.Role, "role", "", "Role to use")
	useCmd.Flags().StringVar(&change.Warehouse, "warehouse", "", "Virtual warehouse to use")
	useCmd.Flags().StringVar(&change.Database, "database", "", "Database to use")
	useCmd.Flags().StringVar(&change.Schema, "schema", "", "Schema to use")
	cmd.AddCommand(useCmd)

	return cmd
}

func sessionFrame(info *warehouse.SessionInfo) *frame.Frame {
	f := &frame.Frame{Columns: []*frame.Column{
		{Name: "property", Kind: frame.KindString},
		{Name: "value", Kind: frame.KindString},
	}}
	for _, kv := range [][2]string{
		{"user", info.User},
		{"role", info.Role},
		{"warehouse", info.Warehouse},
		{"database", info.Database},
		{"schema", info.Schema},
		{"region", info.Region},
	} {
		var v any
		if kv[1] != "" {
			v = kv[1]
		}
		_ = f.AppendRow(kv[0], v)
	}
	return f
}
