package config

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/kitvault/kitvault/internal/crypto"
	"github.com/kitvault/kitvault/internal/storage"
)

var (
	// ErrInvalidBackend means backend is not one of file, sqlite, dynamodb.
	ErrInvalidBackend = errors.New("invalid storage backend")
	// ErrInvalidKeySource means key_source is unknown or its settings are incomplete.
	ErrInvalidKeySource = errors.New("invalid key source")
	// ErrInvalidCipher means cipher is not a supported AEAD.
	ErrInvalidCipher = errors.New("invalid cipher")
	// ErrInvalidAWSConfig means the DynamoDB backend is missing its table or user.
	ErrInvalidAWSConfig = errors.New("invalid AWS configuration")
)

// Validate checks the merged configuration. The encryption key itself is
// checked when the sealer is built.
func (c *Config) Validate() error {
	switch c.Backend {
	case storage.BackendFile, storage.BackendSQLite:
	case storage.BackendDynamoDB:
		if c.TableName == "" || c.UserID == "" {
			return fmt.Errorf("%w: table_name and user_id are required", ErrInvalidAWSConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}

	switch c.Cipher {
	case crypto.CipherAESGCM, crypto.CipherChaCha20Poly1305:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCipher, c.Cipher)
	}

	switch c.KeySource {
	case KeySourceConfig:
	case KeySourcePassphrase:
		if _, err := hex.DecodeString(c.KDFSalt); err != nil {
			return fmt.Errorf("%w: kdf_salt is not hex", ErrInvalidKeySource)
		}
	case KeySourceSecretsManager:
		if c.KeySecretName == "" {
			return fmt.Errorf("%w: key_secret_name is required", ErrInvalidKeySource)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKeySource, c.KeySource)
	}

	return nil
}
