// Package script plays text scripts into the send path one line at a time
// and keeps named scripts on disk.
package script

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"serial-logterm/pkg/helpers/syncutil"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultDelay is the pause after each line when none is configured.
const DefaultDelay = 200 * time.Millisecond

// MaxWait is the longest delay a wait directive may set.
const MaxWait = 24 * time.Hour

const waitDirective = "wait"

// ErrAlreadyActive is returned by Start while a script is playing.
var ErrAlreadyActive = errors.New("script already active")

// EventKind tells line and finish events apart.
type EventKind int

const (
	LineEvent EventKind = iota
	Finished
)

// Event is published on Player.Events. Index is the zero-based line
// number for LineEvent; Canceled reports whether Stop ended the run.
type Event struct {
	Line     string
	Index    int
	Kind     EventKind
	Canceled bool
}

// Option configures a Player.
type Option func(*Player)

// WithClock sets the clock used for the per-line delay.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Player) {
		p.clock = clock
	}
}

// WithDelay sets the delay used when Start is given none.
func WithDelay(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.delay = d
		}
	}
}

// Player runs at most one script at a time.
type Player struct {
	clock  clockwork.Clock
	events chan Event
	cancel chan struct{}
	done   chan struct{}
	quit   chan struct{}
	delay  time.Duration
	active bool
	closed bool
	mu     syncutil.Mutex
}

// NewPlayer returns an idle player.
func NewPlayer(opts ...Option) *Player {
	p := &Player{
		clock:  clockwork.NewRealClock(),
		delay:  DefaultDelay,
		events: make(chan Event, 64),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events returns the channel lines and finish notices are published on.
func (p *Player) Events() <-chan Event {
	return p.events
}

// Active reports whether a run is in progress. A run turns inactive just
// before its Finished event is sent; a run started after that emits its
// first line only once that Finished has been sent.
func (p *Player) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Delay returns the pause applied after each line.
func (p *Player) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// SetDelay changes the pause for the following lines of the current run
// and for later runs. Non-positive values are ignored.
func (p *Player) SetDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
	log.Debug().Dur("delay", d).Msg("script delay updated")
}

// Start plays text line by line. A positive initialDelay replaces the
// current delay.
func (p *Player) Start(text string, initialDelay time.Duration) error {
	lines := SplitLines(text)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("script player closed")
	}
	if p.active {
		return ErrAlreadyActive
	}
	if initialDelay > 0 {
		p.delay = initialDelay
	}
	prev := p.done
	p.active = true
	p.cancel = make(chan struct{})
	p.done = make(chan struct{})

	log.Info().Int("lines", len(lines)).Dur("delay", p.delay).Msg("script started")
	go p.run(lines, p.cancel, p.done, prev)
	return nil
}

// Stop cancels the running script before its next line. It does nothing
// when no script is running or the run is already stopping.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active || p.cancel == nil {
		return
	}
	close(p.cancel)
	p.cancel = nil
}

// Wait blocks until the current run, if any, has finished.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops any run and drops undelivered events.
func (p *Player) Close() {
	p.Stop()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.quit)
	}
	p.mu.Unlock()
	p.Wait()
}

func (p *Player) run(lines []string, cancel, done, prev chan struct{}) {
	defer close(done)
	if prev != nil {
		// previous run's Finished goes out first
		<-prev
	}

	canceled := false
	for i, line := range lines {
		select {
		case <-cancel:
			canceled = true
		default:
		}
		if canceled {
			break
		}

		select {
		case p.events <- Event{Kind: LineEvent, Line: line, Index: i}:
		case <-cancel:
			canceled = true
		case <-p.quit:
			canceled = true
		}
		if canceled {
			break
		}

		timer := p.clock.NewTimer(p.Delay())
		select {
		case <-timer.Chan():
		case <-cancel:
			timer.Stop()
			canceled = true
		}
		if canceled {
			break
		}
	}

	p.mu.Lock()
	p.active = false
	p.cancel = nil
	p.mu.Unlock()

	log.Info().Bool("canceled", canceled).Msg("script ended")
	select {
	case p.events <- Event{Kind: Finished, Canceled: canceled}:
	case <-p.quit:
	}
}

// SplitLines breaks text into lines on \n, \r\n or \r and drops trailing
// blank lines. Blank lines in the middle are kept.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ParseWait recognizes a "wait<milliseconds>" directive line. Delays over
// MaxWait are not directives.
func ParseWait(line string) (time.Duration, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, waitDirective) {
		return 0, false
	}
	ms, err := strconv.Atoi(line[len(waitDirective):])
	if err != nil || ms < 0 || int64(ms) > MaxWait.Milliseconds() ||
		strings.ContainsAny(line[len(waitDirective):], "+-") {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
