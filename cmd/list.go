package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/vault"
)

var listStrict bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List note titles",
	Long: `List the titles of all notes in the vault.

By default a vault that cannot be opened is shown as empty. With --strict the
command fails instead, telling a missing vault from a corrupted one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(cmd.Context())
		if err != nil {
			return err
		}

		if listStrict {
			if _, err := v.Load(cmd.Context()); err != nil && !errors.Is(err, vault.ErrNoVault) {
				return err
			}
		}

		reply, err := v.List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listStrict, "strict", false, "fail when the vault exists but cannot be opened")
	rootCmd.AddCommand(listCmd)
}
