package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "charm.land/bubbletea/v2"

	"github.com/go-authgate/order-console/session"
)

// DialogRecovery asks the user through the session-expired dialog. It
// implements session.SessionRecovery.
type DialogRecovery struct {
	renew  RenewFunc
	input  io.Reader
	output io.Writer
}

// NewDialogRecovery creates a DialogRecovery reading keys from input and
// drawing on output.
func NewDialogRecovery(renew RenewFunc, input io.Reader, output io.Writer) *DialogRecovery {
	return &DialogRecovery{renew: renew, input: input, output: output}
}

// Recover runs the dialog until the user extends the session or logs out.
func (d *DialogRecovery) Recover(ctx context.Context) (string, error) {
	p := tea.NewProgram(NewModel(ctx, d.renew), tea.WithInput(d.input), tea.WithOutput(d.output))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-stop:
		}
	}()

	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("session dialog: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, ok := final.(Model)
	if !ok {
		return "", session.ErrRecoveryDeclined
	}
	return m.Result()
}

// LinePrompt asks the user with a single line question. Used when the
// terminal cannot host the dialog.
type LinePrompt struct {
	renew RenewFunc
	out   io.Writer

	mu    sync.Mutex
	lines chan string
	start sync.Once
	in    io.Reader
}

// NewLinePrompt creates a LinePrompt reading answers from in.
func NewLinePrompt(renew RenewFunc, in io.Reader, out io.Writer) *LinePrompt {
	return &LinePrompt{renew: renew, in: in, out: out, lines: make(chan string)}
}

// Recover asks whether to extend the session. An empty answer extends, end of
// input declines.
func (l *LinePrompt) Recover(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start.Do(func() { go l.readLines() })

	fmt.Fprint(l.out, "Your session has expired. Extend it? [Y/n] ")

	var answer string
	select {
	case line, ok := <-l.lines:
		if !ok {
			fmt.Fprintln(l.out)
			return "", session.ErrRecoveryDeclined
		}
		answer = strings.ToLower(strings.TrimSpace(line))
	case <-ctx.Done():
		fmt.Fprintln(l.out)
		return "", ctx.Err()
	}

	switch answer {
	case "", "y", "yes", "e", "extend":
		token, err := l.renew(ctx)
		if err != nil {
			fmt.Fprintf(l.out, "Could not extend the session: %v\n", err)
			return "", err
		}
		fmt.Fprintln(l.out, "Session extended.")
		return token, nil
	default:
		return "", session.ErrRecoveryDeclined
	}
}

// readLines feeds l.lines until the input ends.
func (l *LinePrompt) readLines() {
	defer close(l.lines)
	sc := bufio.NewScanner(l.in)
	for sc.Scan() {
		l.lines <- sc.Text()
	}
}
