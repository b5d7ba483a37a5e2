package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitvault/kitvault/internal/command"
)

const shellPrompt = "kitvault> "

// maxShellLine caps a single shell line. Note bodies and log payloads are
// free text, so this is far above bufio's 64 KiB default.
const maxShellLine = 16 << 20

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Read command lines from stdin until EOF or 'exit'",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		return runShell(cmd.Context(), r, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runShell(ctx context.Context, r *command.Registry, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxShellLine)
	for {
		fmt.Fprint(out, shellPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(out, strings.Join(r.Keywords(), ", "))
			continue
		}

		reply, handled := r.Dispatch(ctx, line)
		if !handled {
			keyword, _ := command.Parse(line)
			fmt.Fprintf(out, "Unknown command %q. Type 'help' for keywords.\n", keyword)
			continue
		}
		fmt.Fprintln(out, reply)

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
