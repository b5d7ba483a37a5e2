package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/chain"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Inspect the hash chain",
}

var chainViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the stored chain as is",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openChain(cmd.Context())
		if err != nil {
			return err
		}

		reply, err := c.View(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

var chainVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute every block hash and link",
	Long: `Verify walks the stored chain and checks that each block's index, prev link
and hash are intact. It exits non-zero when the chain is broken.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openChain(cmd.Context())
		if err != nil {
			return err
		}

		reply, err := c.VerifyStored(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)

		blocks, err := c.Blocks(cmd.Context())
		if err != nil {
			return err
		}
		if !chain.Valid(blocks) {
			return errors.New("chain verification failed")
		}
		return nil
	},
}

func init() {
	chainCmd.AddCommand(chainViewCmd)
	chainCmd.AddCommand(chainVerifyCmd)
	rootCmd.AddCommand(chainCmd)
}
