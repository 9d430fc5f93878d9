package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpggio/galley/internal/app"
)

// NewAPIKeyCommand creates the api key command group.
func NewAPIKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	var who principalFlags
	var description string
	add := &cobra.Command{
		Use:   "add",
		Short: "Issue an API key; the key is shown once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				token, err := a.Scopes.AddAPIKey(ctx, who.principal(), description)
				if err != nil {
					return err
				}
				p := who.principal()
				return printResult(cmd.OutOrStdout(), rootOpts.Format,
					map[string]string{"key": token, "site": p.TenantID, "actor": p.ActorID}, token)
			})
		},
	}
	who.register(add)
	add.Flags().StringVar(&description, "description", "", "what the key is for")
	cmd.AddCommand(add)

	return cmd
}

// NewScopeCommand creates the scope grant command group.
func NewScopeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Manage scope grants",
	}
	cmd.AddCommand(newScopeChangeCommand(rootOpts, "grant", "Grant scopes to an actor", true))
	cmd.AddCommand(newScopeChangeCommand(rootOpts, "revoke", "Revoke scopes from an actor", false))

	var who principalFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List the scopes an actor holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				scopes, err := a.Scopes.Grants(ctx, who.tenant, who.actor)
				if err != nil {
					return err
				}
				if scopes == nil {
					scopes = []string{}
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format, scopes, strings.Join(scopes, "\n"))
			})
		},
	}
	who.register(list)
	cmd.AddCommand(list)
	return cmd
}

func newScopeChangeCommand(rootOpts *RootOptions, use, short string, grant bool) *cobra.Command {
	var who principalFlags
	cmd := &cobra.Command{
		Use:   use + " <scope>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				for _, s := range args {
					var err error
					if grant {
						err = a.Scopes.Grant(ctx, who.tenant, who.actor, s)
					} else {
						err = a.Scopes.Revoke(ctx, who.tenant, who.actor, s)
					}
					if err != nil {
						return err
					}
				}
				return printResult(cmd.OutOrStdout(), rootOpts.Format,
					map[string]any{"site": who.tenant, "actor": who.actor, use: args},
					use+" "+strings.Join(args, " "))
			})
		},
	}
	who.register(cmd)
	return cmd
}
