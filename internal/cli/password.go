package cli

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

// passwordInput lets commands take a password from --password, from the
// first line of stdin (--password-stdin) or, on a terminal, from a prompt
// that does not echo.
type passwordInput struct {
	dst       *string
	fromStdin bool
}

func bindPassword(cmd *cobra.Command, dst *string, usage string) *passwordInput {
	p := &passwordInput{dst: dst}
	cmd.Flags().StringVar(dst, "password", "", usage+" (visible in shell history; prefer --password-stdin)")
	cmd.Flags().BoolVar(&p.fromStdin, "password-stdin", false, "read the password from stdin")
	return p
}

func (p *passwordInput) resolve(cmd *cobra.Command) error {
	if p.fromStdin {
		if *p.dst != "" {
			return errors.New("--password and --password-stdin are mutually exclusive")
		}
		pw, err := readLine(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read password from stdin: %w", err)
		}
		*p.dst = pw
		return nil
	}
	if *p.dst != "" {
		return nil
	}

	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	*p.dst = string(raw)
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
