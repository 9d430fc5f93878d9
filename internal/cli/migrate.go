package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpggio/galley/internal/storage"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			backend, err := storage.Open(ctx, cfg.DB.URL)
			if err != nil {
				return err
			}
			defer backend.Close()
			if err := backend.Migrate(ctx); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format,
				map[string]string{"dialect": backend.Dialect, "status": "migrated"},
				fmt.Sprintf("%s schema up to date", backend.Dialect))
		},
	}
}
