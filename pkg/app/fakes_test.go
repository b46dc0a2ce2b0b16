package app

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"serial-logterm/pkg/serial"
)

type shown struct {
	text string
	kind TextKind
}

// recordingDisplay keeps everything shown, in order.
type recordingDisplay struct {
	entries  []shown
	clears   int
	disabled bool
	mu       sync.Mutex
}

func (d *recordingDisplay) Show(kind TextKind, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, shown{kind: kind, text: text})
}

func (d *recordingDisplay) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
}

func (d *recordingDisplay) SetInputEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled = !enabled
}

func (d *recordingDisplay) InputDisabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disabled
}

func (d *recordingDisplay) Has(kind TextKind, text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.kind == kind && e.text == text {
			return true
		}
	}
	return false
}

func (d *recordingDisplay) Contains(substr string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if strings.Contains(e.text, substr) {
			return true
		}
	}
	return false
}

func (d *recordingDisplay) Entries() []shown {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]shown(nil), d.entries...)
}

// fakePort blocks in Read until data is fed or it is closed.
type fakePort struct {
	feed      chan []byte
	closed    chan struct{}
	written   bytes.Buffer
	closeOnce sync.Once
	mu        sync.Mutex
}

func newFakePort() *fakePort {
	return &fakePort{feed: make(chan []byte, 8), closed: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.feed:
		return copy(b, data), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

type fakeOpener struct {
	ports []*fakePort
	mu    sync.Mutex
}

func (o *fakeOpener) Open(serial.SerialConfig) (serial.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := newFakePort()
	o.ports = append(o.ports, p)
	return p, nil
}

func (o *fakeOpener) Last() *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.ports) == 0 {
		return nil
	}
	return o.ports[len(o.ports)-1]
}

type fakeLister struct {
	set serial.PortSet
}

func (l fakeLister) Scan() (serial.PortSet, error) {
	return l.set, nil
}

// fakeFrontend is a console that quits when its context ends or when
// told to.
type fakeFrontend struct {
	recordingDisplay
	served chan Controller
	closed bool
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{served: make(chan Controller, 1)}
}

func (f *fakeFrontend) Serve(ctx context.Context, ctrl Controller) error {
	f.served <- ctrl
	<-ctx.Done()
	return nil
}

func (f *fakeFrontend) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}
