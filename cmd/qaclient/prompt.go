package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter asks for missing input. One bufio.Reader is shared across
// prompts so piped input is not lost between them.
type prompter struct {
	in io.Reader
	r  *bufio.Reader
	w  io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, r: bufio.NewReader(in), w: cmd.ErrOrStderr()}
}

// Password asks for a password. A terminal gets masked input; anything else
// (a pipe, a test) is read as one line.
func (p *prompter) Password(label string) (string, error) {
	fmt.Fprintf(p.w, "%s: ", label)

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.w)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	return p.line()
}

// IfEmpty returns v, or asks for it when empty.
func (p *prompter) IfEmpty(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	fmt.Fprintf(p.w, "%s: ", label)
	return p.line()
}

func (p *prompter) line() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
