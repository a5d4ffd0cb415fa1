package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/callflow/internal/gate"
	"github.com/aretw0/callflow/pkg/domain"
	"golang.org/x/term"
)

// Prompter reads answers and secrets from the terminal. On a TTY secrets are
// read without echo; otherwise every answer is one input line.
// It implements ports.CredentialPrompter.
type Prompter struct {
	out   io.Writer
	lines *bufio.Reader
	fd    int
	tty   bool
}

// NewPrompter creates a Prompter over in and out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{out: out, lines: bufio.NewReader(in)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// Reader returns the buffered input so other line readers share it.
func (p *Prompter) Reader() io.Reader {
	return p.lines
}

// ReadLine prints label and reads one trimmed line.
func (p *Prompter) ReadLine(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.lines.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadSecret prints label and reads a value without echoing it when possible.
func (p *Prompter) ReadSecret(label string) (string, error) {
	if !p.tty {
		return p.ReadLine(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// RequestCredential asks for the write credential. An empty answer cancels.
func (p *Prompter) RequestCredential(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := p.ReadSecret("Write credential (empty to cancel): ")
	if err != nil || token == "" {
		return "", domain.ErrCredentialRequired
	}
	return token, nil
}

// MaxPINAttempts bounds EnsureUnlocked.
const MaxPINAttempts = 3

// EnsureUnlocked passes when the device is already unlocked, otherwise asks for
// the PIN up to MaxPINAttempts times.
func EnsureUnlocked(g *gate.Gate, p *Prompter) error {
	ok, err := g.Unlocked()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	for i := 0; i < MaxPINAttempts; i++ {
		pin, err := p.ReadSecret("Enter PIN: ")
		if err != nil {
			return err
		}
		err = g.Unlock(pin)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gate.ErrWrongPIN) {
			return err
		}
		fmt.Fprintln(p.out, "Wrong PIN")
	}
	return gate.ErrWrongPIN
}
