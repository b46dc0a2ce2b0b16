// Package connection owns the lifecycle of the single active serial
// connection: opening the port, running its reader, tearing it down and
// reconnecting when the remembered port reappears.
package connection

import (
	"errors"
	"fmt"
	"time"

	"serial-logterm/pkg/helpers/syncutil"
	"serial-logterm/pkg/serial"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidTarget    = serial.ErrInvalidPortName
	ErrPortNotFound     = errors.New("port not found")
	ErrOpenFailed       = errors.New("port could not connect")
	ErrReadFailed       = errors.New("read failed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnecting       = errors.New("connection in progress")
	ErrClosed           = errors.New("connection manager closed")
)

const (
	// DefaultStopTimeout bounds how long a teardown waits for the reader.
	DefaultStopTimeout = 2 * time.Second

	// DefaultMaxPending is how many undelivered events may queue before
	// Data events are dropped.
	DefaultMaxPending = 4096
)

// LineSink receives device traffic and follows the connected port's name.
// *history.Logger satisfies it.
type LineSink interface {
	Append(text string)
	SetTag(tag string)
	Start() error
}

// EventKind identifies manager events.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	ConnectFailed
	Data
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case ConnectFailed:
		return "connect_failed"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// Event is published on Manager.Events.
type Event struct {
	Err         error
	Port        string
	Data        []byte
	Kind        EventKind
	Baud        int
	Intentional bool
}

// Status is a snapshot of the manager.
type Status struct {
	Ports         serial.PortSet
	Port          string
	Target        string
	State         serial.ConnectionState
	Baud          int
	AutoReconnect bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaudRate sets the initial baud rate.
func WithBaudRate(baud int) Option {
	return func(m *Manager) {
		if serial.IsValidBaudRate(baud) {
			m.baud = baud
		}
	}
}

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.events = make(chan Event, n)
		}
	}
}

// WithMaxPending sets how many undelivered events may queue before Data
// events are dropped.
func WithMaxPending(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPending = n
		}
	}
}

// Manager is the connection state machine. All methods are safe for
// concurrent use. Events are queued without blocking the caller and
// delivered in order on Events, so the goroutine draining Events may call
// any method.
type Manager struct {
	opener      serial.Opener
	sink        LineSink
	port        serial.Port
	reader      *Reader
	events      chan Event
	done        chan struct{}
	ports       serial.PortSet
	current     string
	target      string
	baud        int
	queue       []Event
	stopTimeout time.Duration
	state       serial.ConnectionState
	maxPending  int
	dropped     int
	auto        bool
	closed      bool
	forwarding  bool
	mu          syncutil.Mutex
	qmu         syncutil.Mutex
}

// NewManager returns a disconnected manager. sink may be nil.
func NewManager(opener serial.Opener, sink LineSink, opts ...Option) *Manager {
	m := &Manager{
		opener:      opener,
		sink:        sink,
		baud:        serial.DefaultBaudRate,
		stopTimeout: DefaultStopTimeout,
		maxPending:  DefaultMaxPending,
		events:      make(chan Event, 256),
		done:        make(chan struct{}),
		state:       serial.StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the channel the manager and its reader publish to.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Status returns a snapshot of the current state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:         m.state,
		Port:          m.current,
		Target:        m.target,
		Baud:          m.baud,
		AutoReconnect: m.auto,
		Ports:         m.ports,
	}
}

// SetAutoReconnect turns the auto-reconnect policy on or off.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	m.auto = enabled
	m.mu.Unlock()
	log.Info().Bool("enabled", enabled).Msg("auto reconnect toggled")
}

// SetBaudRate sets the rate used by the next connect.
func (m *Manager) SetBaudRate(baud int) error {
	if !serial.IsValidBaudRate(baud) {
		return fmt.Errorf("invalid baud rate: %d", baud)
	}
	m.mu.Lock()
	m.baud = baud
	m.mu.Unlock()
	return nil
}

// SetTarget remembers the port used by auto-reconnect and by a Connect
// with an empty target.
func (m *Manager) SetTarget(target string) error {
	name, err := serial.NormalizePortName(target)
	if err != nil {
		return fmt.Errorf("%w: %q", err, target)
	}
	m.mu.Lock()
	m.target = name
	m.mu.Unlock()
	return nil
}

// Connect opens target at baud and starts reading from it. An empty target
// reuses the remembered one and a baud of zero keeps the current rate.
// Connecting to a different port while connected disconnects first.
func (m *Manager) Connect(target string, baud int) error {
	return m.connect(target, baud, false)
}

func (m *Manager) connect(target string, baud int, auto bool) error {
	m.mu.Lock()
	if target == "" {
		target = m.target
	}
	m.mu.Unlock()

	name, err := serial.NormalizePortName(target)
	if err != nil {
		return fmt.Errorf("%w: %q", err, target)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if auto && m.state != serial.StateDisconnected {
		// a manual action got there first
		m.mu.Unlock()
		return nil
	}
	switch m.state {
	case serial.StateConnecting:
		m.mu.Unlock()
		return ErrConnecting
	case serial.StateConnected:
		if m.current == name {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyConnected, name)
		}
	}
	if !m.ports.Contains(name) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPortNotFound, name)
	}
	if baud <= 0 {
		baud = m.baud
	}

	var prev *teardown
	if m.state == serial.StateConnected {
		prev = m.detachLocked()
	}
	m.state = serial.StateConnecting
	m.target = name
	m.baud = baud
	m.mu.Unlock()

	if prev != nil {
		log.Info().Str("from", prev.name).Str("to", name).Msg("changing ports")
		m.finish(prev, false, nil)
	}

	log.Info().Str("port", name).Int("baud", baud).Msg("connecting")
	port, err := m.opener.Open(serial.ConfigFor(name, baud))

	m.mu.Lock()
	if err != nil {
		m.state = serial.StateDisconnected
		m.mu.Unlock()
		log.Error().Err(err).Str("port", name).Msg("open failed")
		return fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	if m.closed {
		m.state = serial.StateDisconnected
		m.mu.Unlock()
		_ = port.Close()
		return ErrClosed
	}
	r := newReader(name, port, m.sink, m.onData, m.onReaderExit)
	m.state = serial.StateConnected
	m.current = name
	m.port = port
	m.reader = r
	m.mu.Unlock()

	m.retag(name)
	log.Info().Str("port", name).Int("baud", baud).Msg("connected")
	m.emit(Event{Kind: Connected, Port: name, Baud: baud})
	r.Start()
	return nil
}

// Disconnect closes the current connection. An intentional disconnect also
// turns auto-reconnect off.
func (m *Manager) Disconnect(intentional bool) error {
	m.mu.Lock()
	if m.state != serial.StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	td := m.detachLocked()
	if intentional {
		m.auto = false
	}
	m.mu.Unlock()

	m.finish(td, intentional, nil)
	return nil
}

// OnPortsChanged records the latest port set and, when auto-reconnect is on
// and nothing is connected, reconnects to the remembered port if it is
// present. Failures are published as ConnectFailed events.
func (m *Manager) OnPortsChanged(set serial.PortSet) {
	m.mu.Lock()
	m.ports = set
	retry := m.auto && !m.closed && m.state == serial.StateDisconnected &&
		m.target != "" && set.Contains(m.target)
	target, baud := m.target, m.baud
	m.mu.Unlock()

	if !retry {
		return
	}
	log.Info().Str("port", target).Msg("auto reconnecting")
	if err := m.connect(target, baud, true); err != nil {
		m.emit(Event{Kind: ConnectFailed, Port: target, Baud: baud, Err: err})
	}
}

// Write sends data to the connected port.
func (m *Manager) Write(data []byte) (int, error) {
	m.mu.Lock()
	port, name := m.port, m.current
	connected := m.state == serial.StateConnected
	m.mu.Unlock()

	if !connected || port == nil {
		return 0, ErrNotConnected
	}
	n, err := port.Write(data)
	if err != nil {
		return n, serial.NewSerialError("write", name, err)
	}
	return n, nil
}

// Close disconnects, if needed, and stops event delivery. Later calls
// return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	var td *teardown
	if m.state == serial.StateConnected {
		td = m.detachLocked()
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	if td != nil {
		m.finish(td, true, nil)
	}
	return nil
}

type teardown struct {
	port   serial.Port
	reader *Reader
	name   string
}

// detachLocked moves the live connection out of the manager and marks it
// disconnected. The caller finishes the teardown without the lock.
func (m *Manager) detachLocked() *teardown {
	td := &teardown{port: m.port, reader: m.reader, name: m.current}
	m.port = nil
	m.reader = nil
	m.current = ""
	m.state = serial.StateDisconnected
	return td
}

// finish stops the reader, closes the port and publishes Disconnected.
// self is the reader calling in from its own goroutine, which must not be
// waited on.
func (m *Manager) finish(td *teardown, intentional bool, self *Reader) {
	if td.reader != nil {
		td.reader.Stop()
	}
	if td.port != nil {
		if err := td.port.Close(); err != nil {
			log.Warn().Err(err).Str("port", td.name).Msg("error closing port")
		}
	}
	if td.reader != nil && td.reader != self {
		if !td.reader.Wait(m.stopTimeout) {
			log.Warn().Str("port", td.name).Msg("timeout waiting for reader to stop")
		}
	}

	var err error
	if self != nil {
		err = fmt.Errorf("%w: %s", ErrReadFailed, td.name)
	}
	m.retag("")
	log.Info().Str("port", td.name).Bool("intentional", intentional).Msg("disconnected")
	m.emit(Event{Kind: Disconnected, Port: td.name, Intentional: intentional, Err: err})
}

func (m *Manager) onReaderExit(r *Reader, cause error) {
	m.mu.Lock()
	if m.reader != r {
		m.mu.Unlock()
		return
	}
	td := m.detachLocked()
	m.mu.Unlock()

	log.Warn().Err(cause).Str("port", td.name).Msg("connection lost")
	m.finish(td, false, r)
}

func (m *Manager) onData(chunk []byte) {
	m.mu.Lock()
	name := m.current
	m.mu.Unlock()
	m.emit(Event{Kind: Data, Port: name, Data: chunk})
}

// retag points the sink at the new port and restarts it so the next record
// opens under the new tag.
func (m *Manager) retag(tag string) {
	if m.sink == nil {
		return
	}
	m.sink.SetTag(tag)
	if err := m.sink.Start(); err != nil {
		log.Warn().Err(err).Msg("failed to restart line logger")
	}
}

// emit queues ev for delivery and returns at once. While the queue is full
// Data events are dropped; the line sink has already recorded them.
func (m *Manager) emit(ev Event) {
	m.qmu.Lock()
	defer m.qmu.Unlock()

	if ev.Kind == Data && len(m.queue) >= m.maxPending {
		if m.dropped == 0 {
			log.Warn().Str("port", ev.Port).Msg("event consumer is behind, dropping data events")
		}
		m.dropped++
		return
	}
	m.queue = append(m.queue, ev)
	if !m.forwarding {
		m.forwarding = true
		go m.forward()
	}
}

// Dropped returns how many Data events were dropped because the queue was
// full.
func (m *Manager) Dropped() int {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	return m.dropped
}

// forward moves queued events onto the channel until the queue is empty.
// Once the manager is closed it only delivers while the channel has room.
func (m *Manager) forward() {
	for {
		m.qmu.Lock()
		if len(m.queue) == 0 {
			m.forwarding = false
			m.queue = nil
			m.qmu.Unlock()
			return
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.qmu.Unlock()

		select {
		case m.events <- ev:
			continue
		default:
		}
		select {
		case m.events <- ev:
		case <-m.done:
		}
	}
}
