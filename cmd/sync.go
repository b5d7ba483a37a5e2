package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/logger"
	"github.com/kitvault/kitvault/internal/storage"
)

var syncPull bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the vault and chain between local files and DynamoDB",
	Long: `Push the local vault and chain files to DynamoDB, or with --pull copy the
remote items over the local files. Blobs are copied as is, so the vault stays
sealed in transit and at rest.

A push fails with a version conflict when another writer updated the remote
item in between; pull first and retry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		for _, name := range []string{storage.KeyVault, storage.KeyChain} {
			remote, err := storage.NewDynamoDBStorage(ctx, cfg.AWSRegion, cfg.TableName, cfg.UserID, name)
			if err != nil {
				return fmt.Errorf("DynamoDB not available: %w", err)
			}

			local := localStore(name)
			src, dst := storage.BlobStore(local), storage.BlobStore(remote)
			if syncPull {
				src, dst = remote, local
			}

			copied, err := copyBlob(ctx, src, dst)
			if err != nil {
				if errors.Is(err, storage.ErrVersionConflict) {
					return fmt.Errorf("remote %s changed since it was read, run 'kitvault sync --pull' first: %w", name, err)
				}
				return fmt.Errorf("failed to sync %s: %w", name, err)
			}
			if !copied {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to sync\n", name)
				continue
			}

			logger.FromContext(ctx).Info().Str("blob", name).Bool("pull", syncPull).Int64("version", remote.Version()).Msg("synced")
			fmt.Fprintf(cmd.OutOrStdout(), "%s synced (version %d)\n", name, remote.Version())
		}
		return nil
	},
}

// copyBlob copies src over dst. dst is loaded first so a versioned store
// knows which version it is replacing. It reports false when src is empty.
func copyBlob(ctx context.Context, src, dst storage.BlobStore) (bool, error) {
	data, err := src.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if _, err := dst.Load(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	if err := dst.Save(ctx, data); err != nil {
		return false, err
	}
	return true, nil
}

func init() {
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "copy remote blobs over the local files")
	rootCmd.AddCommand(syncCmd)
}
