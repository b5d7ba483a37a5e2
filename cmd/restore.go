package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/vault"
)

var restoreYes bool

var restoreCmd = &cobra.Command{
	Use:   "restore [backup_path]",
	Short: "Restore vault from a backup",
	Long: `Restore the vault from a backup file. The backup must open with the current
key; otherwise the vault is left untouched.
If no backup path is provided, lists available backups for selection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		var backupPath string
		if len(args) > 0 {
			backupPath = args[0]
		} else {
			selected, err := selectBackup(in, out)
			if err != nil {
				return err
			}
			backupPath = selected
		}

		backupData, err := os.ReadFile(backupPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("backup file not found: %s", backupPath)
			}
			return fmt.Errorf("failed to read backup file: %w", err)
		}

		v, err := openVault(cmd.Context())
		if err != nil {
			return err
		}

		// offer to keep the current vault before it is replaced
		if _, err := v.Export(cmd.Context()); err == nil && !restoreYes {
			fmt.Fprint(out, "Current vault exists. Create a backup before restoring? (y/n): ")
			response, _ := in.ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))

			if response == "y" || response == "yes" {
				path, err := writeBackup(cmd.Context(), v, "", "vault-before-restore")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Current vault backed up to: %s\n", path)
			}
		} else if err != nil && !errors.Is(err, vault.ErrNoVault) {
			return err
		}

		n, err := v.Restore(cmd.Context(), backupData)
		if err != nil {
			if errors.Is(err, vault.ErrCorrupted) {
				return fmt.Errorf("backup does not open with the current key: %w", err)
			}
			return err
		}

		fmt.Fprintf(out, "Vault restored from %s (%d notes)\n", filepath.Base(backupPath), n)
		return nil
	},
}

func selectBackup(in *bufio.Reader, out io.Writer) (string, error) {
	dir := backupDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("no backup directory found at %s. Create a backup first with 'kitvault backup'", dir)
	}

	backups, err := findBackups(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return "", fmt.Errorf("no backup files found in %s", dir)
	}

	fmt.Fprintln(out, "Available backups:")
	fmt.Fprintln(out)
	for i, b := range backups {
		fmt.Fprintf(out, "  %d. %s\n", i+1, filepath.Base(b.Path))
		fmt.Fprintf(out, "     Created: %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "     Size: %s\n", formatFileSize(b.Size))
		fmt.Fprintln(out)
	}

	fmt.Fprint(out, "Select backup to restore (enter number): ")
	input, err := in.ReadString('\n')
	if err != nil && input == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	input = strings.TrimSpace(input)
	selection, err := strconv.Atoi(input)
	if err != nil || selection < 1 || selection > len(backups) {
		return "", fmt.Errorf("invalid selection: %s", input)
	}

	path := backups[selection-1].Path
	fmt.Fprintf(out, "Selected: %s\n", filepath.Base(path))
	return path, nil
}

// BackupInfo holds information about a backup file
type BackupInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// findBackups lists *.enc files in backupDir, newest first
func findBackups(backupDir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".enc") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			Path:      filepath.Join(backupDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// formatFileSize formats file size in human-readable format
func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "do not offer to back up the current vault")
	rootCmd.AddCommand(restoreCmd)
}
