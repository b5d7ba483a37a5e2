package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kitvault/kitvault/internal/crypto"
	"github.com/kitvault/kitvault/internal/storage"
)

// Key sources
const (
	KeySourceConfig         = "config"
	KeySourcePassphrase     = "passphrase"
	KeySourceSecretsManager = "secretsmanager"
)

// Config holds application configuration
type Config struct {
	DataDir   string `json:"data_dir" env:"KITVAULT_DATA_DIR"`
	VaultPath string `json:"vault_path" env:"VAULT_FILE"`
	ChainPath string `json:"chain_path" env:"CHAIN_FILE"`

	EncryptionKey string `json:"-" env:"ENCRYPTION_KEY"` // hex, never written to the config file
	Cipher        string `json:"cipher" env:"KITVAULT_CIPHER"`
	KeySource     string `json:"key_source" env:"KITVAULT_KEY_SOURCE"`
	KDFSalt       string `json:"kdf_salt,omitempty" env:"KITVAULT_KDF_SALT"` // hex

	Backend    string `json:"backend" env:"KITVAULT_BACKEND"`
	SQLitePath string `json:"sqlite_path" env:"KITVAULT_SQLITE_PATH"`

	AWSRegion     string `json:"aws_region" env:"AWS_REGION"`
	TableName     string `json:"table_name" env:"KITVAULT_TABLE_NAME"`
	UserID        string `json:"user_id" env:"KITVAULT_USER_ID"`
	KeySecretName string `json:"key_secret_name,omitempty" env:"KITVAULT_KEY_SECRET_NAME"` // AWS Secrets Manager secret holding the vault key

	LogLevel string `json:"log_level" env:"KITVAULT_LOG_LEVEL"`

	ConfigPath string `json:"-" env:"KITVAULT_CONFIG"` // Not stored, just for reference
}

// DefaultDataDir returns ~/.kitvault
func DefaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".kitvault")
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:       dataDir,
		Cipher:        crypto.CipherAESGCM,
		KeySource:     KeySourceConfig,
		Backend:       storage.BackendFile,
		AWSRegion:     "us-west-2",
		TableName:     "kitvault_blobs",
		UserID:        "default",
		KeySecretName: "kitvault/vault-key",
		LogLevel:      "info",
		ConfigPath:    filepath.Join(dataDir, "config.json"),
	}
}

// LoadConfig builds the configuration from the environment, the config file
// and the defaults, in that order of precedence, and validates it.
func LoadConfig() (*Config, error) {
	return newConfigBuilder().
		withEnv().
		withJSON().
		withDefaults().
		build()
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.ConfigPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetVaultPath returns the vault file, defaulting to vault.bin in DataDir
func (c *Config) GetVaultPath() string {
	if c.VaultPath != "" {
		return c.VaultPath
	}
	return filepath.Join(c.DataDir, "vault.bin")
}

// GetChainPath returns the chain file, defaulting to chain.json in DataDir
func (c *Config) GetChainPath() string {
	if c.ChainPath != "" {
		return c.ChainPath
	}
	return filepath.Join(c.DataDir, "chain.json")
}

// GetSQLitePath returns the database file, defaulting to kitvault.db in DataDir
func (c *Config) GetSQLitePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "kitvault.db")
}
