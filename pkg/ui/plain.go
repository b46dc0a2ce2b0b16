package ui

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"serial-logterm/pkg/app"
	"serial-logterm/pkg/helpers/syncutil"

	"github.com/rs/zerolog/log"
)

// Plain is a line-mode console for pipes and dumb terminals. Output is
// written as it arrives and each input line is submitted on Enter. While
// a script runs, typed lines are dropped and an empty line cancels it.
type Plain struct {
	in        io.Reader
	out       io.Writer
	done      chan struct{}
	disabled  bool
	closeOnce sync.Once
	mu        syncutil.Mutex
}

// NewPlain creates a line-mode console reading in and writing out.
func NewPlain(in io.Reader, out io.Writer) *Plain {
	return &Plain{in: in, out: out, done: make(chan struct{})}
}

// Show writes text unchanged.
func (p *Plain) Show(_ app.TextKind, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.out, text); err != nil {
		log.Debug().Err(err).Msg("console write failed")
	}
}

// Clear prints a separator; a line-mode console cannot erase output.
func (p *Plain) Clear() {
	p.Show(app.Info, strings.Repeat("-", 40)+"\n")
}

// SetInputEnabled turns line submission on or off.
func (p *Plain) SetInputEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled = !enabled
}

// Serve submits input lines until ctx is done or the input ends.
func (p *Plain) Serve(ctx context.Context, ctrl app.Controller) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go p.read(lines, errs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if err != nil {
				log.Warn().Err(err).Msg("console input failed")
			}
			ctrl.Quit()
			return nil
		case line := <-lines:
			p.mu.Lock()
			disabled := p.disabled
			p.mu.Unlock()
			switch {
			case disabled && line == "":
				ctrl.CancelScript()
			case disabled:
				log.Debug().Str("line", line).Msg("input dropped while script runs")
			default:
				ctrl.Submit(line)
			}
		}
	}
}

func (p *Plain) read(lines chan<- string, errs chan<- error) {
	sc := bufio.NewScanner(p.in)
	for sc.Scan() {
		select {
		case lines <- strings.TrimRight(sc.Text(), "\r"):
		case <-p.done:
			return
		}
	}
	errs <- sc.Err()
}

// Close stops delivering input.
func (p *Plain) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

var _ app.Frontend = (*Plain)(nil)
