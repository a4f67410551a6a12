package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

func newUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newUserCreateCommand(opts))
	cmd.AddCommand(newUserSetActiveCommand(opts, "disable", false))
	cmd.AddCommand(newUserSetActiveCommand(opts, "enable", true))
	return cmd
}

func newUserCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		req   auth.RegisterRequest
		roles []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account with the default role and any extra roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := openAdminApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.stack.service.Register(ctx, req)
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			for _, role := range roles {
				if err := app.stack.service.GrantRole(ctx, user.ID, role); err != nil {
					return fmt.Errorf("granting role %s: %w", role, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.ID, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Email address (login name)")
	cmd.Flags().StringVar(&req.FullName, "name", "", "Full name")
	cmd.Flags().StringVar(&req.Password, "password", "", "Initial password")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Additional role to grant (repeatable)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserSetActiveCommand(opts *rootOptions, use string, active bool) *cobra.Command {
	short := "Disable an account and revoke all of its sessions"
	if active {
		short = "Re-enable a disabled account"
	}

	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
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
			if err := app.stack.service.SetActive(ctx, id, active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s %sd\n", args[0], use)
			return nil
		},
	}
}
