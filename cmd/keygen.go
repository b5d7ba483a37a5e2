package cmd

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kitvault/kitvault/internal/config"
	"github.com/kitvault/kitvault/internal/crypto"
)

var (
	keygenPassphrase bool
	keygenSave       bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a vault key",
	Long: `Print a new random 256-bit key as hex, suitable for ENCRYPTION_KEY.

With --passphrase, a new salt is generated instead and the key is derived from
a passphrase with Argon2id. --save records key_source and kdf_salt in the
config file so later commands prompt for the passphrase.`,
	Args: cobra.NoArgs,
	// only --save needs the configuration, so a broken config file does not
	// stop a new key from being generated
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if keygenSave {
			return setup(cmd)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if !keygenPassphrase {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, hex.EncodeToString(key))
			return nil
		}

		fmt.Fprint(os.Stderr, "Enter passphrase: ")
		pass1, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
		defer crypto.Zeroize(pass1)

		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		pass2, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
		defer crypto.Zeroize(pass2)

		if !bytes.Equal(pass1, pass2) {
			return errors.New("passphrases do not match")
		}
		if len(pass1) == 0 {
			return errors.New("passphrase must not be empty")
		}

		salt, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		key := crypto.DeriveKey(pass1, salt, crypto.DefaultKDFParams())
		defer crypto.Zeroize(key)

		saltHex := hex.EncodeToString(salt)
		if !keygenSave {
			fmt.Fprintf(out, "kdf_salt: %s\n", saltHex)
			fmt.Fprintf(out, "key:      %s\n", hex.EncodeToString(key))
			return nil
		}

		cfg.KeySource = config.KeySourcePassphrase
		cfg.KDFSalt = saltHex
		if err := cfg.SaveConfig(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Passphrase key configured in %s\n", cfg.ConfigPath)
		fmt.Fprintln(os.Stderr, "Warning: notes sealed under a previous key will not open with this one.")
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenPassphrase, "passphrase", false, "derive the key from a passphrase")
	keygenCmd.Flags().BoolVar(&keygenSave, "save", false, "with --passphrase, write key_source and kdf_salt to the config file")
	rootCmd.AddCommand(keygenCmd)
}
