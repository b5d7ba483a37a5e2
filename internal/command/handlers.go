package command

import (
	"context"
	"errors"

	"github.com/kitvault/kitvault/internal/chain"
	"github.com/kitvault/kitvault/internal/vault"
)

// Notes is the part of the vault the note keywords use.
type Notes interface {
	Write(ctx context.Context, arg string) (string, error)
	Read(ctx context.Context, title string) (string, error)
	List(ctx context.Context) (string, error)
	Delete(ctx context.Context, title string) (string, error)
}

// Chain is the part of the chain log the chain keywords use.
type Chain interface {
	Log(ctx context.Context, payload any) (string, error)
	View(ctx context.Context) (string, error)
	VerifyStored(ctx context.Context) (string, error)
}

var (
	_ Notes = (*vault.Vault)(nil)
	_ Chain = (*chain.Log)(nil)
)

// RegisterVault registers note, vault_read, vault_list and vault_remove.
func RegisterVault(r *Registry, v Notes) error {
	return registerAll(r, map[string]Handler{
		KeywordNote:        v.Write,
		KeywordVaultRead:   v.Read,
		KeywordVaultList:   func(ctx context.Context, _ string) (string, error) { return v.List(ctx) },
		KeywordVaultRemove: v.Delete,
	})
}

// RegisterChain registers log, chain_view and chain_verify.
func RegisterChain(r *Registry, c Chain) error {
	return registerAll(r, map[string]Handler{
		KeywordLog:         func(ctx context.Context, arg string) (string, error) { return c.Log(ctx, arg) },
		KeywordChainView:   func(ctx context.Context, _ string) (string, error) { return c.View(ctx) },
		KeywordChainVerify: func(ctx context.Context, _ string) (string, error) { return c.VerifyStored(ctx) },
	})
}

func registerAll(r *Registry, handlers map[string]Handler) error {
	var errs []error
	for name, h := range handlers {
		if err := r.Register(name, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
