// Package ui provides the interactive consoles the application runs behind
package ui

import (
	"context"
	"fmt"
	"sync"

	"serial-logterm/pkg/app"
	"serial-logterm/pkg/helpers/syncutil"
	"serial-logterm/pkg/menu"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultScrollback is how many lines the console keeps.
	DefaultScrollback = 5000

	prompt      = "> "
	busyMessage = "script running, Esc to cancel"
	statusHint  = " Enter send  Up/Down recall  PgUp/PgDn scroll  Ctrl+P menu  Ctrl+Q quit "
)

type cell struct {
	r     rune
	style tcell.Style
}

// Console is a full-screen tcell console: scrolling output above a
// status bar and an input line.
type Console struct {
	screen     tcell.Screen
	styles     map[app.TextKind]tcell.Style
	recall     *Recall
	menu       *menu.Menu
	done       chan struct{}
	lines      [][]cell
	input      []rune
	scrollback int
	offset     int
	started    bool
	disabled   bool
	closeOnce  sync.Once
	mu         syncutil.Mutex
}

// NewConsole creates a console drawing on screen. A nil screen selects the
// terminal the process runs in.
func NewConsole(screen tcell.Screen) (*Console, error) {
	if screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("failed to create screen: %w", err)
		}
		screen = s
	}
	return &Console{
		screen:     screen,
		styles:     defaultStyles(),
		recall:     NewRecall(DefaultRecallSize),
		done:       make(chan struct{}),
		lines:      [][]cell{nil},
		scrollback: DefaultScrollback,
	}, nil
}

func defaultStyles() map[app.TextKind]tcell.Style {
	base := tcell.StyleDefault
	return map[app.TextKind]tcell.Style{
		app.Input:   base,
		app.Output:  base.Foreground(tcell.ColorAqua),
		app.Info:    base.Foreground(tcell.ColorGreen),
		app.Error:   base.Foreground(tcell.ColorRed).Bold(true),
		app.Warning: base.Foreground(tcell.ColorYellow),
	}
}

// Show appends text to the scrollback. Text without a trailing newline
// is continued by the next call.
func (c *Console) Show(kind app.TextKind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	style := c.styles[kind]
	for _, r := range text {
		switch r {
		case '\r':
		case '\n':
			c.lines = append(c.lines, nil)
		case '\t':
			c.appendRune(' ', style)
		default:
			if r < ' ' {
				continue
			}
			c.appendRune(r, style)
		}
	}
	if over := len(c.lines) - c.scrollback; over > 0 {
		c.lines = c.lines[over:]
	}
	c.drawLocked()
}

func (c *Console) appendRune(r rune, style tcell.Style) {
	last := len(c.lines) - 1
	c.lines[last] = append(c.lines[last], cell{r: r, style: style})
}

// Clear empties the scrollback.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = [][]cell{nil}
	c.offset = 0
	c.drawLocked()
}

// SetInputEnabled switches the input line on or off. Typed text is kept
// while it is off.
func (c *Console) SetInputEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = !enabled
	c.drawLocked()
}

// Serve runs the key loop until ctx is done, the screen is closed or the
// user quits.
func (c *Console) Serve(ctx context.Context, ctrl app.Controller) error {
	if err := c.start(); err != nil {
		return err
	}

	events := make(chan tcell.Event, 16)
	go c.poll(events)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if c.handle(ev, ctrl) {
				ctrl.Quit()
				return nil
			}
		}
	}
}

func (c *Console) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("console is already running")
	}
	if err := c.screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	c.screen.SetStyle(tcell.StyleDefault)
	c.screen.Clear()
	c.started = true
	c.drawLocked()
	log.Debug().Msg("console started")
	return nil
}

func (c *Console) poll(events chan<- tcell.Event) {
	defer close(events)
	for {
		ev := c.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case events <- ev:
		case <-c.done:
			return
		}
	}
}

// handle processes one event and reports whether the user asked to quit.
func (c *Console) handle(ev tcell.Event, ctrl app.Controller) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		c.screen.Sync()
		c.mu.Lock()
		c.drawLocked()
		c.mu.Unlock()
	case *tcell.EventKey:
		return c.handleKey(ev, ctrl)
	}
	return false
}

func (c *Console) handleKey(ev *tcell.EventKey, ctrl app.Controller) bool {
	c.mu.Lock()
	if c.menu != nil {
		action, _ := c.menu.HandleKey(ev)
		if !c.menu.IsVisible() {
			c.menu = nil
		}
		c.drawLocked()
		c.mu.Unlock()
		// actions show text, which takes the lock again
		if action != nil {
			action()
		}
		return false
	}
	c.mu.Unlock()

	switch ev.Key() {
	case tcell.KeyCtrlQ, tcell.KeyCtrlC:
		return true
	case tcell.KeyCtrlP:
		c.openMenu(ctrl)
		return false
	case tcell.KeyEscape:
		if ctrl.ScriptActive() {
			ctrl.CancelScript()
		}
		return false
	case tcell.KeyEnter:
		c.mu.Lock()
		if c.disabled {
			c.mu.Unlock()
			return false
		}
		line := string(c.input)
		c.input = c.input[:0]
		c.offset = 0
		c.recall.Add(line)
		c.drawLocked()
		c.mu.Unlock()
		// Submit shows text, which takes the lock again
		ctrl.Submit(line)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Key() {
	case tcell.KeyUp:
		if line, ok := c.recall.Prev(); ok {
			c.input = []rune(line)
		}
	case tcell.KeyDown:
		c.input = []rune(c.recall.Next())
	case tcell.KeyPgUp:
		_, h := c.screen.Size()
		c.offset += max(1, h-3)
	case tcell.KeyPgDn:
		_, h := c.screen.Size()
		c.offset = max(0, c.offset-max(1, h-3))
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(c.input); n > 0 {
			c.input = c.input[:n-1]
		}
	case tcell.KeyCtrlU:
		c.input = c.input[:0]
	case tcell.KeyRune:
		c.input = append(c.input, ev.Rune())
	default:
		return false
	}
	c.drawLocked()
	return false
}

// drawLocked renders everything. Before Serve starts only the buffers
// are updated.
func (c *Console) drawLocked() {
	if !c.started {
		return
	}
	w, h := c.screen.Size()
	if w <= 0 || h <= 0 {
		return
	}
	c.screen.Clear()

	view := max(0, h-2)
	rows := c.visibleRows(w, view)
	for y, row := range rows {
		for x, cl := range row {
			c.screen.SetContent(x, y, cl.r, nil, cl.style)
		}
	}

	if h >= 2 {
		bar := tcell.StyleDefault.Reverse(true)
		status := statusHint
		if c.offset > 0 {
			status = fmt.Sprintf(" scrolled back %d rows %s", c.offset, statusHint)
		}
		c.drawText(0, h-2, w, padRight(status, w), bar)
	}

	if c.disabled {
		c.drawText(0, h-1, w, busyMessage, tcell.StyleDefault.Dim(true))
		c.screen.HideCursor()
	} else {
		c.drawText(0, h-1, w, prompt+string(c.input), tcell.StyleDefault)
		c.screen.ShowCursor(min(w-1, len(prompt)+len(c.input)), h-1)
	}
	if c.menu != nil {
		c.menu.Draw()
	}
	c.screen.Show()
}

// visibleRows wraps the scrollback to width and returns the rows that fit
// in view, honouring the scroll offset.
func (c *Console) visibleRows(width, view int) [][]cell {
	need := view + c.offset
	var rows [][]cell
	for i := len(c.lines) - 1; i >= 0 && len(rows) < need; i-- {
		rows = append(wrap(c.lines[i], width), rows...)
	}
	if c.offset > len(rows) {
		c.offset = len(rows)
	}
	end := len(rows) - c.offset
	start := max(0, end-view)
	return rows[start:end]
}

func wrap(line []cell, width int) [][]cell {
	if len(line) == 0 {
		return [][]cell{nil}
	}
	var rows [][]cell
	for len(line) > width {
		rows = append(rows, line[:width])
		line = line[width:]
	}
	return append(rows, line)
}

func (c *Console) drawText(x, y, width int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= width {
			return
		}
		c.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func padRight(s string, width int) string {
	for len(s) < width {
		s += " "
	}
	return s
}

// Close restores the terminal. It is safe to call more than once.
func (c *Console) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		started := c.started
		c.started = false
		c.mu.Unlock()
		if started {
			c.screen.Fini()
		}
	})
}

var _ app.Frontend = (*Console)(nil)
