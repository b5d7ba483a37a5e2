package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note <title> :: <body>",
	Short: "Save an encrypted note",
	Long: `Save a note in the vault. Everything before the first " :: " is the title,
everything after it is the body. An existing note with the same title is
overwritten.`,
	Example: `  kitvault note Dream :: Flying over the sea`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(cmd.Context())
		if err != nil {
			return err
		}

		reply, err := v.Write(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(noteCmd)
}
