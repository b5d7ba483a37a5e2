package secrets

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	kvconfig "github.com/kitvault/kitvault/internal/config"
	"github.com/kitvault/kitvault/internal/crypto"
)

// ErrNoKey means the configured key source produced no key.
var ErrNoKey = errors.New("no encryption key configured")

// KeyProvider hands out a stored vault key.
type KeyProvider interface {
	GetOrCreateKey(ctx context.Context) ([]byte, error)
}

// PassphraseFunc prompts for a passphrase.
type PassphraseFunc func() ([]byte, error)

// Resolver turns a Config into the raw vault key.
type Resolver struct {
	Passphrase PassphraseFunc
	Provider   func(ctx context.Context) (KeyProvider, error)
}

// NewResolver returns a resolver that prompts with passphrase and reaches
// Secrets Manager with the config's region and secret name.
func NewResolver(cfg *kvconfig.Config, passphrase PassphraseFunc) *Resolver {
	return &Resolver{
		Passphrase: passphrase,
		Provider: func(ctx context.Context) (KeyProvider, error) {
			return NewSecretsManagerClient(ctx, cfg.KeySecretName, cfg.AWSRegion)
		},
	}
}

// Resolve returns the key for cfg.KeySource
func (r *Resolver) Resolve(ctx context.Context, cfg *kvconfig.Config) ([]byte, error) {
	switch cfg.KeySource {
	case kvconfig.KeySourceConfig, "":
		if cfg.EncryptionKey == "" {
			return nil, fmt.Errorf("%w: set ENCRYPTION_KEY (see 'kitvault keygen')", ErrNoKey)
		}
		return crypto.ParseHexKey(cfg.EncryptionKey)

	case kvconfig.KeySourcePassphrase:
		if cfg.KDFSalt == "" {
			return nil, fmt.Errorf("%w: kdf_salt is not set (see 'kitvault keygen --passphrase')", ErrNoKey)
		}
		salt, err := hex.DecodeString(cfg.KDFSalt)
		if err != nil {
			return nil, fmt.Errorf("failed to decode kdf salt: %w", err)
		}
		if r.Passphrase == nil {
			return nil, fmt.Errorf("%w: no passphrase prompt available", ErrNoKey)
		}
		pass, err := r.Passphrase()
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		defer crypto.Zeroize(pass)
		return crypto.DeriveKey(pass, salt, crypto.DefaultKDFParams()), nil

	case kvconfig.KeySourceSecretsManager:
		provider, err := r.Provider(ctx)
		if err != nil {
			return nil, err
		}
		return provider.GetOrCreateKey(ctx)

	default:
		return nil, fmt.Errorf("unknown key source %q", cfg.KeySource)
	}
}
