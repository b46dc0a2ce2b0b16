package connection

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"serial-logterm/pkg/serial"
)

// mockPort blocks in Read until a chunk is fed, a failure is injected or
// the port is closed.
type mockPort struct {
	chunks    chan []byte
	fail      chan error
	closed    chan struct{}
	written   bytes.Buffer
	writeErr  error
	closeOnce sync.Once
	mu        sync.Mutex
}

func newMockPort() *mockPort {
	return &mockPort{
		chunks: make(chan []byte, 8),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (p *mockPort) Read(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.EOF
	default:
	}
	select {
	case c := <-p.chunks:
		return copy(b, c), nil
	case err := <-p.fail:
		return 0, err
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *mockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *mockPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *mockPort) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *mockPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// mockOpener hands out a fresh mockPort per Open unless err is set.
type mockOpener struct {
	err     error
	ports   []*mockPort
	configs []serial.SerialConfig
	mu      sync.Mutex
}

func (o *mockOpener) Open(cfg serial.SerialConfig) (serial.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = append(o.configs, cfg)
	if o.err != nil {
		return nil, o.err
	}
	p := newMockPort()
	o.ports = append(o.ports, p)
	return p, nil
}

func (o *mockOpener) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.configs)
}

func (o *mockOpener) Port(i int) *mockPort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[i]
}

func (o *mockOpener) SetErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// recordingSink captures appended text and tag changes.
type recordingSink struct {
	text   strings.Builder
	tags   []string
	starts int
	mu     sync.Mutex
}

func (s *recordingSink) Append(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text.WriteString(text)
}

func (s *recordingSink) SetTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tag)
}

func (s *recordingSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return nil
}

func (s *recordingSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

func (s *recordingSink) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tags...)
}
