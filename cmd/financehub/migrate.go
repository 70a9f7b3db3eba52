package main

import (
	"github.com/spf13/cobra"

	"github.com/dsd-finance/finance-hub/internal/app"
	"github.com/dsd-finance/finance-hub/internal/platform/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			return db.Migrate(cfg.PGDSN, app.NewLogger(cfg))
		},
	}
}
