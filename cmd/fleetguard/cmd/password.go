package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Password policy tools",
}

var passwordCheckCmd = &cobra.Command{
	Use:   "check [password]",
	Short: "Check a password against the configured policy",
	Long: `Check a password against the configured policy and list every violated
rule. Without an argument the password is prompted for without echo on a
terminal, or read from the first line of stdin otherwise.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			p, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			password = p
		}

		res := cfg.Guard.Password.ValidatePasswordStrength(password)
		out := cmd.OutOrStdout()
		if res.Valid {
			fmt.Fprintln(out, "password meets the policy")
			return nil
		}
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
		return fmt.Errorf("password violates %d rule(s)", len(res.Errors))
	},
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordCheckCmd)
}
