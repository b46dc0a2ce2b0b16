package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"serial-logterm/pkg/connection"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Controller is what a console needs from the application.
type Controller interface {
	Submit(text string)
	CancelScript()
	ScriptActive() bool
	RunCommand(line string)
	Status() connection.Status
	Quit()
}

// Frontend is an interactive console. Serve reads user input until ctx is
// done or the user quits.
type Frontend interface {
	Display
	Serve(ctx context.Context, ctrl Controller) error
	Close()
}

// Runner provides a high-level interface to run an interactive session
type Runner struct {
	app   *Application
	front Frontend
	out   io.Writer
}

// NewRunner creates the application behind front
func NewRunner(front Frontend, opts Options, out io.Writer) (*Runner, error) {
	a, err := New(front, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	if out == nil {
		out = os.Stdout
	}
	return &Runner{app: a, front: front, out: out}, nil
}

// App returns the application being run
func (r *Runner) App() *Application {
	return r.app
}

// Run blocks until the user quits or the process is interrupted, then
// prints the session summary. A non-empty connectTo is connected first.
func (r *Runner) Run(ctx context.Context, connectTo string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.app.Rescan()
	if connectTo != "" {
		_ = r.app.Connect(connectTo)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return r.app.Run(gctx)
	})
	g.Go(func() error {
		defer r.app.Quit()
		return r.front.Serve(gctx, r.app)
	})
	err := g.Wait()

	if cerr := r.app.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("error closing application")
	}
	r.front.Close()
	r.printSessionSummary()
	return err
}

// printSessionSummary prints a summary of the session
func (r *Runner) printSessionSummary() {
	fmt.Fprintf(r.out, "\n=== Session Summary ===\n")
	fmt.Fprint(r.out, r.app.Session().Summary())
	fmt.Fprintf(r.out, "Log:            %s\n", r.app.Logger().Path())
	fmt.Fprintf(r.out, "=======================\n")
}
