package main

import (
	"fmt"

	"github.com/spf13/cobra"

	dbstore "github.com/soaringjerry/questionflow/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.UsesMemoryStore() {
			return fmt.Errorf("nothing to migrate for the memory driver")
		}
		conn, dialect, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		ran, err := dbstore.RunMigrations(conn, dialect, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		if len(ran) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		}
		for _, name := range ran {
			fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
		}
		return nil
	},
}
