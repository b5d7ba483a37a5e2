package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/config"
	"github.com/kitvault/kitvault/internal/logger"
)

var (
	cfg        *config.Config
	loadConfig = config.LoadConfig

	// opened lazily by app.go, so keygen works without a key
	sqliteDB *sql.DB
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kitvault",
	Short: "An encrypted note vault and tamper-evident event log",
	Long: `kitvault keeps notes in a single AES-256-GCM sealed vault and records events
in an append-only hash chain. Both are stored through a swappable backend:
local files, an SQLite database or DynamoDB.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeStores()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// setup loads the configuration and attaches the logger to the command's
// context. It runs before every command except help.
func setup(cmd *cobra.Command) error {
	c, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = c

	lg := logger.NewLogger("cli", cfg.LogLevel)
	cmd.SetContext(lg.WithContext(cmd.Context()))
	return nil
}

func closeStores() error {
	if sqliteDB == nil {
		return nil
	}
	err := sqliteDB.Close()
	sqliteDB = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
