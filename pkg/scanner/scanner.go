// Package scanner polls the port registry and reports when the set of
// available ports changes.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"serial-logterm/pkg/helpers/syncutil"
	"serial-logterm/pkg/serial"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the pause between scans.
const DefaultInterval = 500 * time.Millisecond

// ErrScanFailed wraps enumeration faults carried by ScanFailed events.
var ErrScanFailed = errors.New("port scan failed")

// EventKind tells PortsChanged and ScanFailed events apart.
type EventKind int

const (
	PortsChanged EventKind = iota
	ScanFailed
)

func (k EventKind) String() string {
	switch k {
	case PortsChanged:
		return "ports_changed"
	case ScanFailed:
		return "scan_failed"
	default:
		return "unknown"
	}
}

// Event is emitted by the scan loop.
type Event struct {
	Kind  EventKind
	Ports serial.PortSet
	Err   error
}

// Lister enumerates ports; *serial.Registry satisfies it.
type Lister interface {
	Scan() (serial.PortSet, error)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock sets the clock used for sleeping between scans.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scanner) {
		s.clock = clock
	}
}

// Scanner runs the polling loop. Events are delivered in order on Events.
type Scanner struct {
	lister   Lister
	clock    clockwork.Clock
	events   chan Event
	stop     chan struct{}
	last     serial.PortSet
	interval time.Duration
	seen     bool
	stopped  bool
	mu       syncutil.Mutex
}

// New returns a Scanner that is not yet running.
func New(lister Lister, opts ...Option) *Scanner {
	s := &Scanner{
		lister:   lister,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		events:   make(chan Event, 16),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the channel the loop publishes to.
func (s *Scanner) Events() <-chan Event {
	return s.events
}

// Last returns the most recently retained port set.
func (s *Scanner) Last() serial.PortSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Stop asks the loop to exit. It is safe to call more than once.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
}

// Run scans until ctx is done or Stop is called. Enumeration faults are
// reported as ScanFailed events and never end the loop.
func (s *Scanner) Run(ctx context.Context) error {
	log.Debug().Dur("interval", s.interval).Msg("port scanner started")
	defer log.Debug().Msg("port scanner stopped")

	for {
		if ev, ok := s.scanOnce(); ok {
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return nil
			case <-s.stop:
				return nil
			}
		}

		timer := s.clock.NewTimer(s.interval)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.stop:
			timer.Stop()
			return nil
		}
	}
}

// scanOnce lists ports and returns the event to publish, if any.
func (s *Scanner) scanOnce() (Event, bool) {
	set, err := s.lister.Scan()
	if err != nil {
		log.Warn().Err(err).Msg("port scan failed")
		return Event{Kind: ScanFailed, Err: fmt.Errorf("%w: %w", ErrScanFailed, err)}, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen && set.Equal(s.last) {
		return Event{}, false
	}
	s.seen = true
	s.last = set
	log.Info().Stringer("ports", set).Msg("available ports changed")
	return Event{Kind: PortsChanged, Ports: set}, true
}
