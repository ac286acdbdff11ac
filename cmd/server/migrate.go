package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paylink/reconciler/internal/app"
	"github.com/paylink/reconciler/internal/infra/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the transaction tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}

		db, err := database.New(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer func() { _ = database.Close(db) }()

		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
		return nil
	},
}
