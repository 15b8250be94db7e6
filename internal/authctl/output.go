package authctl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgHiCyan)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgHiRed, color.Bold)
)

// ErrNotSignedIn is returned by commands that need a session.
var ErrNotSignedIn = errors.New("not signed in")

// CodeError is a domain failure reported by a transition.
type CodeError struct {
	Op   string
	Code authsdk.ErrorCode
}

func (e *CodeError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Code) }

func check(op string, code authsdk.ErrorCode, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if code != "" {
		return &CodeError{Op: op, Code: code}
	}
	return nil
}

func printError(w io.Writer, err error) {
	errorColor.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}

// ============================================================================
// Prompts
// ============================================================================

type prompter struct {
	in  *bufio.Reader
	out io.Writer

	// tty is the terminal descriptor behind in, or -1 for scripted input.
	tty int
}

func newPrompter(cmd *cobra.Command) *prompter {
	stdin := cmd.InOrStdin()
	p := &prompter{in: bufio.NewReader(stdin), out: cmd.OutOrStdout(), tty: -1}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = int(f.Fd())
	}
	return p
}

// secret reads an answer without echo when stdin is a terminal.
func (p *prompter) secret(label string) (string, error) {
	if p.tty < 0 {
		return p.ask(label)
	}
	infoColor.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(p.tty)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ask prints label and returns the trimmed answer.
func (p *prompter) ask(label string) (string, error) {
	infoColor.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) confirm(label string) (bool, error) {
	answer, err := p.ask(label + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// fieldValue converts typed input to the kind of the current value, if any.
func fieldValue(current authsdk.Value, known bool, input string) authsdk.Value {
	if known {
		switch current.Kind {
		case authsdk.KindBool:
			if b, err := strconv.ParseBool(input); err == nil {
				return authsdk.BoolValue(b)
			}
		case authsdk.KindList:
			var items []string
			for _, s := range strings.Split(input, ",") {
				if s = strings.TrimSpace(s); s != "" {
					items = append(items, s)
				}
			}
			return authsdk.ListValue(items...)
		}
	}
	return authsdk.StringValue(input)
}
