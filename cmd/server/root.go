package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/questionflow/internal/api"
	"github.com/soaringjerry/questionflow/internal/config"
	dbstore "github.com/soaringjerry/questionflow/internal/db"
	"github.com/soaringjerry/questionflow/internal/services"
)

var rootCmd = &cobra.Command{
	Use:          "questionflow",
	Short:        "Branching questionnaire API",
	Long:         "questionflow serves a branching questionnaire over HTTP and tracks each user's path through it.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", "", "Load variables from this file instead of .env")
	rootCmd.PersistentFlags().String("db-driver", "", "Database driver: sqlite3, postgres or memory (overrides QUESTIONFLOW_DB_DRIVER)")
	rootCmd.PersistentFlags().String("db-dsn", "", "Database DSN (overrides QUESTIONFLOW_DB_DSN)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var files []string
	if f, _ := cmd.Flags().GetString("env-file"); f != "" {
		files = append(files, f)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("db-driver"); v != "" {
		cfg.DBDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, _ := cmd.Flags().GetString("db-dsn"); v != "" {
		cfg.DBDSN = v
	}
	if cfg.Commit == "" {
		cfg.Commit = commit
	}
	if cfg.BuildTime == "" {
		cfg.BuildTime = buildTime
	}
	if cmd.Flags().Lookup("addr") != nil {
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.Addr = v
		}
	}
	return cfg, nil
}

// openStore returns the configured store with its schema migrated. The
// returned close function releases the database connection.
func openStore(cfg *config.Config) (api.Store, func() error, error) {
	if cfg.UsesMemoryStore() {
		log.Printf("storage: in-memory, data is lost on exit")
		return api.NewMemoryStore(), func() error { return nil }, nil
	}
	conn, dialect, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	if _, err := dbstore.RunMigrations(conn, dialect, cfg.MigrationsDir); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	store, err := dbstore.NewStore(conn, dialect)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	log.Printf("storage: %s", dialect)
	return store, conn.Close, nil
}

func openDB(cfg *config.Config) (*sql.DB, dbstore.Dialect, error) {
	dialect, err := dbstore.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, "", err
	}
	conn, err := dbstore.Open(dialect, cfg.DBDSN)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, "", fmt.Errorf("connect %s: %w", dialect, err)
	}
	return conn, dialect, nil
}

// loadDefinition reads path, or the configured seed file when path is empty.
// A nil definition means the built-in questionnaire.
func loadDefinition(cfg *config.Config, path string) (*services.QuestionnaireDefinition, error) {
	if path == "" {
		path = cfg.SeedFile
	}
	if path == "" {
		return nil, nil
	}
	return services.LoadQuestionnaireFile(path)
}

func seedIfEmpty(ctx context.Context, store api.Store, cfg *config.Config) error {
	def, err := loadDefinition(cfg, "")
	if err != nil {
		return err
	}
	_, err = api.SeedIfEmpty(ctx, store, def, cfg.Questionnaire())
	return err
}
