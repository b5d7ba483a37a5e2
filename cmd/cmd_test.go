package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitvault/kitvault/internal/config"
	"github.com/kitvault/kitvault/internal/crypto"
	"github.com/kitvault/kitvault/internal/logger"
	"github.com/kitvault/kitvault/internal/storage"
)

func useConfig(t *testing.T, backend string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := config.DefaultConfig()
	c.DataDir = t.TempDir()
	c.ConfigPath = filepath.Join(c.DataDir, "config.json")
	c.EncryptionKey = hex.EncodeToString(key)
	c.Backend = backend
	c.LogLevel = "disabled"

	cfg = c
	loadConfig = func() (*config.Config, error) { return c, nil }
	listStrict = false
	restoreYes = false
	keygenSave = false
	t.Cleanup(func() {
		_ = closeStores()
		loadConfig = config.LoadConfig
	})
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNoteReadList(t *testing.T) {
	for _, backend := range []string{storage.BackendFile, storage.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			useConfig(t, backend)

			out, err := run(t, "", "list")
			require.NoError(t, err)
			assert.Equal(t, "Empty vault.\n", out)

			out, err = run(t, "", "note", "Dream", "::", "Flying")
			require.NoError(t, err)
			assert.Equal(t, "Note saved encrypted.\n", out)

			out, err = run(t, "", "read", "Dream")
			require.NoError(t, err)
			assert.Equal(t, "Flying\n", out)

			out, err = run(t, "", "note", "Dream")
			require.NoError(t, err)
			assert.Equal(t, "Usage: note Title :: Body\n", out)

			out, err = run(t, "", "list")
			require.NoError(t, err)
			assert.Equal(t, "Dream\n", out)

			out, err = run(t, "", "remove", "Dream")
			require.NoError(t, err)
			assert.Equal(t, "Note removed.\n", out)
		})
	}
}

func TestNote_FileIsSealed(t *testing.T) {
	useConfig(t, storage.BackendFile)

	_, err := run(t, "", "note", "Dream", "::", "Flying")
	require.NoError(t, err)

	blob, err := os.ReadFile(cfg.GetVaultPath())
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "Flying")
	assert.Greater(t, len(blob), crypto.Overhead)
}

func TestList_Strict(t *testing.T) {
	useConfig(t, storage.BackendFile)
	require.NoError(t, os.WriteFile(cfg.GetVaultPath(), []byte("garbage that will not open"), 0600))

	out, err := run(t, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "Empty vault.\n", out)

	_, err = run(t, "", "list", "--strict")
	assert.Error(t, err)
}

func TestMissingKey(t *testing.T) {
	useConfig(t, storage.BackendFile)
	cfg.EncryptionKey = ""

	_, err := run(t, "", "list")
	assert.ErrorContains(t, err, "ENCRYPTION_KEY")
}

func TestLogAndChain(t *testing.T) {
	useConfig(t, storage.BackendFile)

	out, err := run(t, "", "chain", "view")
	require.NoError(t, err)
	assert.Equal(t, "Empty chain.\n", out)

	for _, msg := range []string{"a", "b", "c"} {
		out, err = run(t, "", "log", msg)
		require.NoError(t, err)
		assert.Equal(t, "Logged to chain.\n", out)
	}

	out, err = run(t, "", "chain", "verify")
	require.NoError(t, err)
	assert.Equal(t, "Chain valid (3 blocks).\n", out)

	raw, err := os.ReadFile(cfg.GetChainPath())
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), `"data": "b"`, `"data": "B"`, 1)
	require.NoError(t, os.WriteFile(cfg.GetChainPath(), []byte(tampered), 0600))

	out, err = run(t, "", "chain", "verify")
	assert.Error(t, err)
	assert.Contains(t, out, "Chain invalid at block 1")
}

func TestExec(t *testing.T) {
	useConfig(t, storage.BackendFile)

	out, err := run(t, "", "exec", "note Dream :: Flying")
	require.NoError(t, err)
	assert.Equal(t, "Note saved encrypted.\n", out)

	out, err = run(t, "", "exec", "VAULT_READ", "Dream")
	require.NoError(t, err)
	assert.Equal(t, "Flying\n", out)

	_, err = run(t, "", "exec", "weather today")
	assert.ErrorContains(t, err, `unknown command "weather"`)
}

func TestShell(t *testing.T) {
	useConfig(t, storage.BackendFile)

	script := strings.Join([]string{
		"note Dream :: Flying",
		"",
		"vault_list",
		"what now",
		"log hello",
		"chain_verify",
		"exit",
		"vault_list",
	}, "\n")

	out, err := run(t, script, "shell")
	require.NoError(t, err)

	assert.Contains(t, out, "Note saved encrypted.\n")
	assert.Contains(t, out, "Dream\n")
	assert.Contains(t, out, `Unknown command "what"`)
	assert.Contains(t, out, "Logged to chain.\n")
	assert.Contains(t, out, "Chain valid (1 blocks).\n")
	assert.Equal(t, 1, strings.Count(out, "Dream\n"), "nothing runs after exit")
}

func TestShell_LongLines(t *testing.T) {
	useConfig(t, storage.BackendFile)

	long := strings.Repeat("x", 70*1024)
	script := "log " + long + "\nnote Big :: " + long + "\nlog after\n"

	out, err := run(t, script, "shell")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Logged to chain.\n"))
	assert.Contains(t, out, "Note saved encrypted.\n")

	out, err = run(t, "", "read", "Big")
	require.NoError(t, err)
	assert.Equal(t, long+"\n", out)

	raw, err := os.ReadFile(cfg.GetChainPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), long)
	assert.Contains(t, string(raw), `"data": "after"`)
}

func TestBackupRestore(t *testing.T) {
	useConfig(t, storage.BackendFile)

	_, err := run(t, "", "note", "Dream", "::", "Flying")
	require.NoError(t, err)

	backupPath := filepath.Join(t.TempDir(), "vault.enc")
	out, err := run(t, "", "backup", backupPath)
	require.NoError(t, err)
	assert.Contains(t, out, backupPath)

	_, err = run(t, "", "note", "Nightmare", "::", "Falling")
	require.NoError(t, err)

	out, err = run(t, "n\n", "restore", backupPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 notes)")

	out, err = run(t, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "Dream\n", out)
}

func TestRestore_SelectFromBackupDir(t *testing.T) {
	useConfig(t, storage.BackendFile)

	_, err := run(t, "", "note", "Dream", "::", "Flying")
	require.NoError(t, err)
	_, err = run(t, "", "backup")
	require.NoError(t, err)

	backups, err := findBackups(backupDir())
	require.NoError(t, err)
	require.Len(t, backups, 1)

	out, err := run(t, "1\n", "restore", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Available backups:")
	assert.Contains(t, out, "Vault restored from")

	_, err = run(t, "7\n", "restore", "--yes")
	assert.ErrorContains(t, err, "invalid selection")
}

func TestRestore_RejectsForeignKey(t *testing.T) {
	useConfig(t, storage.BackendFile)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(otherKey, "")
	require.NoError(t, err)
	foreign, err := sealer.Seal([]byte(`{"x":"y"}`))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "foreign.enc")
	require.NoError(t, os.WriteFile(path, foreign, 0600))

	_, err = run(t, "", "restore", "--yes", path)
	assert.ErrorContains(t, err, "does not open with the current key")
	assert.NoFileExists(t, cfg.GetVaultPath())
}

func TestKeygen(t *testing.T) {
	useConfig(t, storage.BackendFile)

	out, err := run(t, "", "keygen")
	require.NoError(t, err)

	key, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, key, crypto.KeySize)
}

func TestBrokenConfig_HelpAndKeygenStillWork(t *testing.T) {
	loadConfig = func() (*config.Config, error) {
		return nil, errors.New("failed to parse config: invalid character")
	}
	keygenSave = false
	t.Cleanup(func() {
		loadConfig = config.LoadConfig
		_ = rootCmd.Flags().Set("help", "false")
	})

	out, err := run(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "kitvault")

	out, err = run(t, "", "keygen")
	require.NoError(t, err)
	key, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, key, crypto.KeySize)

	_, err = run(t, "", "list")
	assert.ErrorContains(t, err, "failed to load config")
}

func TestSetup_AttachesConfiguredLogger(t *testing.T) {
	useConfig(t, storage.BackendFile)
	cfg.LogLevel = "warn"

	c := &cobra.Command{}
	c.SetContext(context.Background())
	require.NoError(t, setup(c))

	assert.Equal(t, zerolog.WarnLevel, logger.FromContext(c.Context()).GetLevel())
}

type memStore struct {
	data []byte
}

func (m *memStore) Load(context.Context) ([]byte, error) {
	if m.data == nil {
		return nil, storage.ErrNotFound
	}
	return m.data, nil
}

func (m *memStore) Save(_ context.Context, data []byte) error {
	m.data = append([]byte(nil), data...)
	return nil
}

func TestCopyBlob(t *testing.T) {
	ctx := context.Background()

	copied, err := copyBlob(ctx, &memStore{}, &memStore{})
	require.NoError(t, err)
	assert.False(t, copied)

	dst := &memStore{data: []byte("old")}
	copied, err = copyBlob(ctx, &memStore{data: []byte("new")}, dst)
	require.NoError(t, err)
	assert.True(t, copied)
	assert.Equal(t, []byte("new"), dst.data)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.0 KB", formatFileSize(1024))
	assert.Equal(t, "1.5 MB", formatFileSize(1536*1024))
}
