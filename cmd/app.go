package cmd

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/kitvault/kitvault/internal/chain"
	"github.com/kitvault/kitvault/internal/command"
	"github.com/kitvault/kitvault/internal/crypto"
	"github.com/kitvault/kitvault/internal/logger"
	"github.com/kitvault/kitvault/internal/secrets"
	"github.com/kitvault/kitvault/internal/storage"
	"github.com/kitvault/kitvault/internal/vault"
)

// openStore returns the configured backend for the blob called name
func openStore(ctx context.Context, name string) (storage.BlobStore, error) {
	switch cfg.Backend {
	case storage.BackendSQLite:
		if sqliteDB == nil {
			db, err := storage.OpenSQLite(ctx, cfg.GetSQLitePath())
			if err != nil {
				return nil, err
			}
			sqliteDB = db
		}
		return storage.NewSQLiteStorage(sqliteDB, name), nil

	case storage.BackendDynamoDB:
		return storage.NewDynamoDBStorage(ctx, cfg.AWSRegion, cfg.TableName, cfg.UserID, name)

	default:
		return localStore(name), nil
	}
}

// localStore returns the file store for name regardless of backend
func localStore(name string) *storage.LocalStorage {
	if name == storage.KeyChain {
		return storage.NewLocalStorage(cfg.GetChainPath())
	}
	return storage.NewLocalStorage(cfg.GetVaultPath())
}

// openVault resolves the key and builds the vault over the configured backend
func openVault(ctx context.Context) (*vault.Vault, error) {
	key, err := secrets.NewResolver(cfg, readPassphrase).Resolve(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault key: %w", err)
	}
	defer crypto.Zeroize(key)

	sealer, err := crypto.NewSealer(key, cfg.Cipher)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, storage.KeyVault)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault storage: %w", err)
	}

	return vault.New(store, sealer, logger.FromContext(ctx).With("component", "vault")), nil
}

func openChain(ctx context.Context) (*chain.Log, error) {
	store, err := openStore(ctx, storage.KeyChain)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain storage: %w", err)
	}
	return chain.New(store, logger.FromContext(ctx).With("component", "chain")), nil
}

// openRegistry wires every keyword to the vault and chain
func openRegistry(ctx context.Context) (*command.Registry, error) {
	v, err := openVault(ctx)
	if err != nil {
		return nil, err
	}
	c, err := openChain(ctx)
	if err != nil {
		return nil, err
	}

	r := command.NewRegistry(logger.FromContext(ctx).With("component", "dispatcher"))
	if err := command.RegisterVault(r, v); err != nil {
		return nil, err
	}
	if err := command.RegisterChain(r, c); err != nil {
		return nil, err
	}
	return r, nil
}

func readPassphrase() ([]byte, error) {
	fmt.Fprint(os.Stderr, "Vault passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return pass, err
}
