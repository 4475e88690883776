package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/gregLibert/openpgp-card/pkg/openpgp"
)

const controllingTerminal = "/dev/tty"

func openControllingTerminal() (io.ReadCloser, error) {
	return os.OpenFile(controllingTerminal, os.O_RDWR, 0)
}

// promptInput picks where PINs are read from: stdin when it is a terminal, otherwise the
// controlling terminal so that piped data on stdin and the PIN do not compete.
// Without a terminal it falls back to stdin and sets promptOnStdin.
func (a *app) promptInput() io.Reader {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return a.stdin
	}

	if a.openTTY != nil {
		tty, err := a.openTTY()
		if err == nil {
			a.tty = tty
			return tty
		}
		a.logger.Debug("no controlling terminal for PIN entry", "err", err)
	}

	a.promptOnStdin = true
	return a.stdin
}

// terminalPrompter asks for the PIN on the controlling terminal without echo.
// When stdin is not a terminal the PIN is read as a plain line.
type terminalPrompter struct {
	in       *bufio.Reader
	out      io.Writer
	fd       int
	terminal bool
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	p := &terminalPrompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.terminal = true
	}
	return p
}

// PromptPIN implements openpgp.PINPrompter. Empty input or end of input cancels.
func (p *terminalPrompter) PromptPIN(ctx context.Context, req openpgp.PINRequest) (openpgp.PINResponse, error) {
	if err := ctx.Err(); err != nil {
		return openpgp.PINResponse{}, err
	}

	fmt.Fprintf(p.out, "PIN for key %s on %s (%d tries left): ",
		req.KeyID.Short(), openpgp.ShortReaderName(req.Reader), req.TriesRemaining)

	pin, err := p.readSecret()
	if errors.Is(err, io.EOF) || (err == nil && pin == "") {
		return openpgp.PINResponse{}, openpgp.ErrPINEntryCancelled
	}
	if err != nil {
		return openpgp.PINResponse{}, fmt.Errorf("read PIN: %w", err)
	}

	fmt.Fprint(p.out, "Remember PIN for this session? [y/N]: ")
	answer, err := p.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return openpgp.PINResponse{}, fmt.Errorf("read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return openpgp.PINResponse{PIN: pin, Remember: true}, nil
	default:
		return openpgp.PINResponse{PIN: pin}, nil
	}
}

func (p *terminalPrompter) readSecret() (string, error) {
	if !p.terminal {
		return p.readLine()
	}

	raw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// readLine returns one line without its terminator. A last line without newline is
// returned with a nil error.
func (p *terminalPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	return strings.TrimRight(line, "\r\n"), err
}
