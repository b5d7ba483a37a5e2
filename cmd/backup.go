package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/vault"
)

var backupCmd = &cobra.Command{
	Use:   "backup [output_path]",
	Short: "Create a backup of the vault",
	Long: `Copy the sealed vault blob to a file. The backup stays encrypted and can only
be restored with the same key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(cmd.Context())
		if err != nil {
			return err
		}

		outputPath := ""
		if len(args) > 0 {
			outputPath = args[0]
		}

		path, err := writeBackup(cmd.Context(), v, outputPath, "vault")
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Backup created at: %s\n", path)
		return nil
	},
}

func backupDir() string {
	return filepath.Join(cfg.DataDir, "backups")
}

// writeBackup exports the sealed vault to path, or to a timestamped file in
// the backup directory when path is empty
func writeBackup(ctx context.Context, v *vault.Vault, path, prefix string) (string, error) {
	blob, err := v.Export(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to export vault: %w", err)
	}

	if path == "" {
		dir := backupDir()
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("failed to create backup directory: %w", err)
		}
		timestamp := time.Now().UTC().Format("2006-01-02T15-04-05.000000000Z")
		path = filepath.Join(dir, fmt.Sprintf("%s-%s.enc", prefix, timestamp))
	}

	if err := os.WriteFile(path, blob, 0600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return path, nil
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
