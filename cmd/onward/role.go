package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRoleCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage role assignments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant <email> <role>",
		Short: "Assign a role to a user",
		Args:  cobra.ExactArgs(2), //nolint:mnd // email and role
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openAdminApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := app.userID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := app.stack.service.GrantRole(ctx, id, args[1]); err != nil {
				return fmt.Errorf("granting role %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", args[1], args[0])
			return nil
		},
	})

	return cmd
}
