package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpggio/galley/internal/app"
	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/scope"
)

// principalFlags selects who an administrative command acts as.
type principalFlags struct {
	tenant string
	actor  string
}

func (p *principalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.tenant, "site", "", "site (tenant) id")
	cmd.Flags().StringVar(&p.actor, "actor", "cli", "actor recorded in the activity log")
	_ = cmd.MarkFlagRequired("site")
}

func (p *principalFlags) principal() scope.Principal {
	return scope.Principal{TenantID: p.tenant, ActorID: p.actor}
}

// NewTokenCommand creates the magic link command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage magic links",
	}
	cmd.AddCommand(newTokenCreateCommand(rootOpts))
	cmd.AddCommand(newTokenCheckCommand(rootOpts))
	cmd.AddCommand(newTokenStateCommand(rootOpts, "revoke", "Revoke a magic link", (*access.Gate).Revoke))
	cmd.AddCommand(newTokenStateCommand(rootOpts, "reactivate", "Lift a revocation", (*access.Gate).Reactivate))
	cmd.AddCommand(newTokenDeleteCommand(rootOpts))
	return cmd
}

func newTokenCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var who principalFlags
	var resource, limit string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a magic link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accessLimit, err := access.ParseAccessLimit(limit)
			if err != nil {
				return err
			}
			req := access.CreateRequest{Resource: resource, AccessLimit: accessLimit}
			if expiresIn > 0 {
				at := time.Now().UTC().Add(expiresIn)
				req.ExpiresAt = &at
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				tok, err := a.Access.Create(ctx, who.principal(), req)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format, tok, tok.ID)
			})
		},
	}
	who.register(cmd)
	cmd.Flags().StringVar(&resource, "resource", "", "what the link grants access to")
	cmd.Flags().StringVar(&limit, "limit", "", "maximum successful accesses (empty for unlimited)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime, e.g. 72h (0 for no expiry)")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func newTokenCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <token-id>",
		Short: "Validate a magic link as a visitor would; the attempt is logged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Access.ValidateAndLogAccess(ctx, args[0], access.Attempt{UserAgent: "galley-cli"})
				if err != nil {
					return err
				}
				text := "valid"
				if !result.Valid {
					text = "refused: " + result.Reason
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format, result, text)
			})
		},
	}
}

func newTokenStateCommand(rootOpts *RootOptions, use, short string, apply func(*access.Gate, context.Context, scope.Principal, string) (*access.Token, error)) *cobra.Command {
	var who principalFlags
	cmd := &cobra.Command{
		Use:   use + " <token-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				tok, err := apply(a.Access, ctx, who.principal(), args[0])
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format, tok, fmt.Sprintf("%s revoked=%t", tok.ID, tok.Revoked))
			})
		},
	}
	who.register(cmd)
	return cmd
}

func newTokenDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var who principalFlags
	cmd := &cobra.Command{
		Use:   "delete <token-id>",
		Short: "Delete a magic link; its access log is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Access.Delete(ctx, who.principal(), args[0]); err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format, map[string]any{"id": args[0], "deleted": true}, "deleted "+args[0])
			})
		},
	}
	who.register(cmd)
	return cmd
}
