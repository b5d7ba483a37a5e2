package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/command"
)

var execCmd = &cobra.Command{
	Use:   "exec <line>",
	Short: "Run one command line through the keyword dispatcher",
	Long: `Run a line the way the chat front end sends it, for example

  kitvault exec "note Dream :: Flying"
  kitvault exec vault_list

Known keywords: note, vault_read, vault_list, vault_remove, log, chain_view,
chain_verify.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}

		line := strings.Join(args, " ")
		reply, handled := r.Dispatch(cmd.Context(), line)
		if !handled {
			keyword, _ := command.Parse(line)
			return fmt.Errorf("unknown command %q", keyword)
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
}
