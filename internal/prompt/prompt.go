// Package prompt asks the user for the vault passphrase.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Hussein-Mazeh/genvault/auth"
)

// ErrMismatch is returned when the confirmation of a new passphrase differs.
var ErrMismatch = errors.New("passphrases do not match")

// Request describes why a passphrase is needed.
type Request struct {
	// Initializing is set when no vault exists yet and the passphrase will
	// become the vault's master passphrase.
	Initializing bool
}

// Result is the user's answer. Cancelled means no passphrase was supplied.
type Result struct {
	Passphrase string
	Remember   bool
	Cancelled  bool
}

// Terminal reads passphrases with echo disabled when in is a terminal and
// falls back to plain line reads otherwise (pipes, tests).
type Terminal struct {
	in          *bufio.Reader
	out         io.Writer
	fd          int
	isTerm      bool
	askRemember bool
	remember    bool
	userInputs  []string
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithRememberQuestion makes the prompter ask whether to keep the key for
// the session. Without it every answer uses the default passed to
// WithRememberDefault.
func WithRememberQuestion() Option {
	return func(t *Terminal) { t.askRemember = true }
}

// WithRememberDefault sets Result.Remember when the question is not asked
// or left blank.
func WithRememberDefault(remember bool) Option {
	return func(t *Terminal) { t.remember = remember }
}

// WithUserInputs adds words that count against a new passphrase's score.
func WithUserInputs(words ...string) Option {
	return func(t *Terminal) { t.userInputs = append(t.userInputs, words...) }
}

// NewTerminal prompts on stdin, writing prompts to stderr.
func NewTerminal(opts ...Option) *Terminal {
	return newTerminal(os.Stdin, os.Stderr, int(os.Stdin.Fd()), term.IsTerminal(int(os.Stdin.Fd())), opts...)
}

// NewReader prompts by reading lines from in. Input is echoed by whatever
// produced it, so this is for scripted use.
func NewReader(in io.Reader, out io.Writer, opts ...Option) *Terminal {
	return newTerminal(in, out, -1, false, opts...)
}

func newTerminal(in io.Reader, out io.Writer, fd int, isTerm bool, opts ...Option) *Terminal {
	t := &Terminal{
		in:     bufio.NewReader(in),
		out:    out,
		fd:     fd,
		isTerm: isTerm,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Prompt asks for the passphrase. A new vault's passphrase is confirmed and
// scored; weak choices are reported but accepted.
func (t *Terminal) Prompt(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	label := "Vault passphrase: "
	if req.Initializing {
		label = "New vault passphrase: "
	}
	pw, ok, err := t.readSecret(label)
	if err != nil {
		return Result{}, fmt.Errorf("read passphrase: %w", err)
	}
	if !ok {
		return Result{Cancelled: true}, nil
	}

	if req.Initializing && pw != "" {
		confirm, ok, err := t.readSecret("Confirm passphrase: ")
		if err != nil {
			return Result{}, fmt.Errorf("read confirmation: %w", err)
		}
		if !ok {
			return Result{Cancelled: true}, nil
		}
		if confirm != pw {
			return Result{}, ErrMismatch
		}

		if a := auth.AssessPassphrase(pw, t.userInputs...); a.Weak() {
			fmt.Fprintf(t.out, "warning: weak passphrase (%s)\n", a.Summary())
		}
	}

	remember := t.remember
	if t.askRemember && pw != "" {
		remember, err = t.confirm("Remember for this session? [Y/n] ", true)
		if err != nil {
			return Result{}, fmt.Errorf("read answer: %w", err)
		}
	}

	return Result{Passphrase: pw, Remember: remember}, nil
}

// Confirm asks a yes/no question. Blank input picks def; end of input is no.
func (t *Terminal) Confirm(question string, def bool) (bool, error) {
	return t.confirm(question, def)
}

func (t *Terminal) confirm(question string, def bool) (bool, error) {
	fmt.Fprint(t.out, question)
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(t.out)
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ReadLine prints label and reads one visible line. ok is false at end of
// input.
func (t *Terminal) ReadLine(label string) (string, bool, error) {
	fmt.Fprint(t.out, label)
	line, err := t.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(t.out)
		return "", false, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	return strings.TrimRight(line, "\r\n"), true, nil
}

// ReadSecret reads one hidden value, such as an entry to save.
func (t *Terminal) ReadSecret(label string) (string, bool, error) {
	return t.readSecret(label)
}

// readSecret returns ok=false when input ended before anything was typed.
func (t *Terminal) readSecret(label string) (string, bool, error) {
	fmt.Fprint(t.out, label)

	if t.isTerm {
		raw, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out)
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		pw := string(raw)
		zeroBytes(raw)
		return pw, true, nil
	}

	line, err := t.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(t.out)
		return "", false, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	return strings.TrimRight(line, "\r\n"), true, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
