package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

func newTokensCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Refresh token housekeeping and diagnostics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete refresh tokens that expired before the cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			ctx := cmd.Context()
			app, err := openAdminApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.stack.rotation.Prune(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired refresh tokens\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Keep tokens that expired more recently than this")
	cmd.AddCommand(prune)

	cmd.AddCommand(newTokensInspectCommand(opts))
	cmd.AddCommand(newTokensRevokeCommand(opts))

	return cmd
}

func newTokensInspectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <refresh-token>",
		Short: "Show the stored state of a refresh token without using it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openAdminApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			token, err := app.stack.rotation.ValidateRefreshToken(ctx, args[0])
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), token, time.Now().UTC())
			return nil
		},
	}
}

// tokenState names the lifecycle state of token at now.
func tokenState(token *auth.RefreshToken, now time.Time) string {
	switch {
	case token.IsRevoked() && token.RevokeReason == auth.RevokeRotated:
		return "rotated"
	case token.IsRevoked():
		return "revoked"
	case token.IsExpired(now):
		return "expired"
	default:
		return "active"
	}
}

func printToken(out io.Writer, token *auth.RefreshToken, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", token.ID)
	fmt.Fprintf(w, "USER\t%s\n", token.UserID)
	fmt.Fprintf(w, "FAMILY\t%s\n", token.Family)
	fmt.Fprintf(w, "ROTATION\t%d\n", token.RotationCount)
	fmt.Fprintf(w, "STATE\t%s\n", tokenState(token, now))
	fmt.Fprintf(w, "CREATED\t%s\n", token.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "EXPIRES\t%s\n", token.ExpiresAt.Format(time.RFC3339))
	if token.RevokedAt != nil {
		fmt.Fprintf(w, "REVOKED\t%s (%s)\n", token.RevokedAt.Format(time.RFC3339), token.RevokeReason)
	}
	if token.ReplacedByTokenID != "" {
		fmt.Fprintf(w, "REPLACED BY\t%s\n", token.ReplacedByTokenID)
	}
	w.Flush()
}

func newTokensRevokeCommand(opts *rootOptions) *cobra.Command {
	var email, tokenID, family string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke one token, one token family or every session of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := openAdminApp(ctx, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			switch {
			case tokenID != "":
				if err := app.stack.rotation.RevokeToken(ctx, tokenID, auth.RevokeAdmin); err != nil {
					return fmt.Errorf("revoking token %s: %w", tokenID, err)
				}
				fmt.Fprintf(out, "revoked token %s\n", tokenID)
			case family != "":
				n, err := app.stack.rotation.RevokeTokenFamily(ctx, family, auth.RevokeAdmin)
				if err != nil {
					return fmt.Errorf("revoking family %s: %w", family, err)
				}
				fmt.Fprintf(out, "revoked %d tokens in family %s\n", n, family)
			default:
				id, err := app.userID(ctx, email)
				if err != nil {
					return err
				}
				if err := app.stack.service.Logout(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out, "revoked all sessions of %s\n", email)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account whose sessions are revoked")
	cmd.Flags().StringVar(&tokenID, "id", "", "Single refresh token id to revoke")
	cmd.Flags().StringVar(&family, "family", "", "Token family to revoke")
	cmd.MarkFlagsOneRequired("email", "id", "family")
	cmd.MarkFlagsMutuallyExclusive("email", "id", "family")
	return cmd
}
