// Package app wires the port scanner, connection manager, line logger and
// script player into one interactive session
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"serial-logterm/pkg/config"
	"serial-logterm/pkg/connection"
	"serial-logterm/pkg/helpers/syncutil"
	"serial-logterm/pkg/history"
	"serial-logterm/pkg/scanner"
	"serial-logterm/pkg/script"
	"serial-logterm/pkg/serial"
	"serial-logterm/pkg/terminal"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Options configures an Application. Zero values select the real
// filesystem, clock, serial driver and port registry.
type Options struct {
	Fs           afero.Fs
	Clock        clockwork.Clock
	Opener       serial.Opener
	Lister       scanner.Lister
	LogDir       string
	ScriptDir    string
	Settings     config.Settings
	ScanInterval time.Duration
}

// Application is one interactive session
type Application struct {
	display   Display
	fs        afero.Fs
	logger    *history.Logger
	lister    scanner.Lister
	scanner   *scanner.Scanner
	manager   *connection.Manager
	player    *script.Player
	scripts   *script.Store
	session   *Session
	decoder   *terminal.Decoder
	commands  map[string]command
	quit      chan struct{}
	settings  config.Settings
	quitOnce  sync.Once
	closeOnce sync.Once
	mu        syncutil.Mutex
}

// New creates an application writing to display
func New(display Display, opts Options) (*Application, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Opener == nil {
		opts.Opener = serial.NewDriver()
	}
	if opts.Lister == nil {
		opts.Lister = serial.NewRegistry()
	}

	logger := history.NewLogger(opts.LogDir, history.WithFs(opts.Fs), history.WithClock(opts.Clock))
	if opts.Settings.LogPath != "" {
		if err := logger.SetPath(opts.Settings.LogPath); err != nil {
			return nil, fmt.Errorf("invalid log path: %w", err)
		}
	}

	manager := connection.NewManager(opts.Opener, logger, connection.WithBaudRate(opts.Settings.BaudRate))
	if opts.Settings.Port != "" {
		if err := manager.SetTarget(opts.Settings.Port); err != nil {
			return nil, err
		}
	}
	manager.SetAutoReconnect(opts.Settings.AutoReconnect)

	a := &Application{
		display:  display,
		fs:       opts.Fs,
		logger:   logger,
		lister:   opts.Lister,
		scanner:  scanner.New(opts.Lister, scanner.WithInterval(opts.ScanInterval), scanner.WithClock(opts.Clock)),
		manager:  manager,
		player:   script.NewPlayer(script.WithClock(opts.Clock), script.WithDelay(opts.Settings.ScriptDelay())),
		scripts:  script.NewStore(opts.Fs, opts.ScriptDir),
		session:  NewSession("serial-logterm", opts.Clock),
		decoder:  terminal.NewDecoder(),
		quit:     make(chan struct{}),
		settings: opts.Settings,
	}
	a.commands = defaultCommands()

	log.Info().Str("session", a.session.ID).Str("log", logger.Path()).Msg("application created")
	return a, nil
}

// Run drives the background tasks until ctx is done or Quit is called.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scanner.Run(gctx)
	})
	g.Go(func() error {
		a.pump(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.quit:
		}
		a.scanner.Stop()
		cancel()
		return nil
	})
	return g.Wait()
}

// pump delivers background events on one goroutine
func (a *Application) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.scanner.Events():
			a.handleScan(ev)
		case ev := <-a.manager.Events():
			a.handleConnection(ev)
		case ev := <-a.player.Events():
			a.handleScript(ev)
		}
	}
}

func (a *Application) handleScan(ev scanner.Event) {
	switch ev.Kind {
	case scanner.PortsChanged:
		a.manager.OnPortsChanged(ev.Ports)
	case scanner.ScanFailed:
		log.Debug().Err(ev.Err).Msg("scan failure ignored")
	}
}

func (a *Application) handleConnection(ev connection.Event) {
	switch ev.Kind {
	case connection.Connected:
		a.session.AddPort(ev.Port)
		a.decoder.Reset()
		a.show(Info, fmt.Sprintf("Connected To %s at %d", ev.Port, ev.Baud))
	case connection.Disconnected:
		if ev.Err != nil {
			a.show(Warning, fmt.Sprintf("Connection to %s lost", ev.Port))
		}
		a.show(Error, "Disconnecting From: "+ev.Port)
	case connection.ConnectFailed:
		a.show(Error, connectFailure(ev.Port, ev.Err))
	case connection.Data:
		a.session.UpdateStats(0, int64(len(ev.Data)))
		// the reader has already logged it
		if text := a.decoder.Decode(ev.Data); text != "" {
			a.display.Show(Input, text)
		}
	}
}

func (a *Application) handleScript(ev script.Event) {
	switch ev.Kind {
	case script.LineEvent:
		if d, ok := script.ParseWait(ev.Line); ok {
			a.player.SetDelay(d)
			a.mu.Lock()
			a.settings.ScriptDelayMS = int(d / time.Millisecond)
			a.mu.Unlock()
			return
		}
		a.Submit(ev.Line)
	case script.Finished:
		a.show(Info, "Script Ended")
		// a later run may already be playing
		if !a.player.Active() {
			a.display.SetInputEnabled(true)
		}
	}
}

// Submit handles one line of user or script input. Command lines run the
// command; anything else is sent with a trailing newline and echoed.
func (a *Application) Submit(text string) {
	if a.dispatch(text) {
		return
	}

	data := text + "\n"
	n, err := a.manager.Write([]byte(data))
	switch {
	case errors.Is(err, connection.ErrNotConnected):
		a.show(Error, "WARNING: NOT CONNECTED")
	case err != nil:
		log.Error().Err(err).Msg("send failed")
		a.show(Error, "ERROR: SEND FAILED: "+err.Error())
	default:
		a.session.UpdateStats(int64(n), 0)
	}

	a.mu.Lock()
	prefix := a.settings.OutputPrefix
	a.mu.Unlock()
	a.show(Output, prefix+data)
}

// CancelScript stops a running script.
func (a *Application) CancelScript() {
	if a.player.Active() {
		a.player.Stop()
	}
}

// ScriptActive reports whether a script is playing.
func (a *Application) ScriptActive() bool {
	return a.player.Active()
}

// Rescan lists ports now and reports them.
func (a *Application) Rescan() serial.PortSet {
	set, err := a.lister.Scan()
	if err != nil {
		log.Warn().Err(err).Msg("manual scan failed")
		a.show(Error, "ERROR: Port scan failed")
		return serial.PortSet{}
	}
	a.manager.OnPortsChanged(set)
	a.show(Info, "Found Ports: "+set.String())
	return set
}

// Connect connects to target, which may be a bare port number.
func (a *Application) Connect(target string) error {
	if target == "" {
		target = a.manager.Status().Target
	}
	err := a.manager.Connect(target, 0)
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrAlreadyConnected), errors.Is(err, connection.ErrConnecting):
		a.show(Warning, "WARNING: Already Connected!")
	default:
		a.show(Error, connectFailure(target, err))
	}
	return err
}

// Disconnect closes the connection on user request.
func (a *Application) Disconnect() error {
	err := a.manager.Disconnect(true)
	if errors.Is(err, connection.ErrNotConnected) {
		a.show(Warning, "WARNING: Already Disconnected!")
	}
	return err
}

// Status returns the connection status.
func (a *Application) Status() connection.Status {
	return a.manager.Status()
}

// Logger returns the traffic logger.
func (a *Application) Logger() *history.Logger {
	return a.logger
}

// Session returns the session statistics.
func (a *Application) Session() *Session {
	return a.session
}

// Settings returns the current settings, including changes made during
// the session.
func (a *Application) Settings() config.Settings {
	st := a.manager.Status()
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.settings
	s.Port = st.Target
	s.BaudRate = st.Baud
	s.AutoReconnect = st.AutoReconnect
	return s
}

// Quit asks Run to return.
func (a *Application) Quit() {
	a.quitOnce.Do(func() {
		log.Info().Msg("quit requested")
		close(a.quit)
	})
}

// Done is closed once Quit has been called.
func (a *Application) Done() <-chan struct{} {
	return a.quit
}

// Close stops the script, drops the connection, closes the log and ends
// the session. It is safe to call more than once.
func (a *Application) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.player.Close()
		a.scanner.Stop()
		err = a.manager.Close()
		a.logger.Stop()
		a.session.End()
		log.Info().Str("session", a.session.ID).Msg("application closed")
	})
	return err
}

// show displays text and records it in the traffic log.
func (a *Application) show(kind TextKind, text string) {
	text = decorate(kind, text)
	a.display.Show(kind, text)
	a.logger.Append(text)
}

func connectFailure(target string, err error) string {
	switch {
	case errors.Is(err, connection.ErrInvalidTarget):
		return "ERROR: Invalid Port Name: " + strings.TrimSpace(target)
	case errors.Is(err, connection.ErrPortNotFound):
		name, nerr := serial.NormalizePortName(target)
		if nerr != nil {
			name = target
		}
		return fmt.Sprintf("ERROR: Port %s Not Found", name)
	case errors.Is(err, connection.ErrOpenFailed):
		return "ERROR: PORT COULD NOT CONNECT!"
	default:
		return "ERROR: " + err.Error()
	}
}
