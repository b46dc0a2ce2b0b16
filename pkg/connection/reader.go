package connection

import (
	"errors"
	"io"
	"time"

	"serial-logterm/pkg/helpers/syncutil"
	"serial-logterm/pkg/serial"

	"github.com/rs/zerolog/log"
)

const readBufferSize = 4096

// Reader owns the read loop for one open port. Every non-empty chunk goes to
// the sink first and then to the data callback, in the order the device
// produced it. A failed read ends the loop and is reported through onExit;
// the reader never retries by itself.
type Reader struct {
	port    serial.Port
	sink    LineSink
	onData  func([]byte)
	onExit  func(*Reader, error)
	done    chan struct{}
	name    string
	stopped bool
	started bool
	mu      syncutil.Mutex
}

func newReader(name string, port serial.Port, sink LineSink, onData func([]byte), onExit func(*Reader, error)) *Reader {
	return &Reader{
		name:   name,
		port:   port,
		sink:   sink,
		onData: onData,
		onExit: onExit,
		done:   make(chan struct{}),
	}
}

// Start launches the loop. A reader stopped before it started never runs.
func (r *Reader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	if r.stopped {
		close(r.done)
		return
	}
	go r.run()
}

// Stop marks the reader stopped. The loop only notices once the pending
// Read returns, so the owner must also close the port.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.stopped = true
	started := r.started
	r.mu.Unlock()
	if !started {
		r.Start()
	}
}

// Done is closed when the loop has exited.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the loop exits or the timeout passes, and reports
// whether the loop exited.
func (r *Reader) Wait(timeout time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (r *Reader) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Reader) run() {
	defer close(r.done)
	log.Debug().Str("port", r.name).Msg("reader started")

	buf := make([]byte, readBufferSize)
	for {
		n, err := r.port.Read(buf)
		if n > 0 && !r.isStopped() {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if r.sink != nil {
				r.sink.Append(string(chunk))
			}
			if r.onData != nil {
				r.onData(chunk)
			}
		}
		if err != nil {
			if r.isStopped() {
				log.Debug().Str("port", r.name).Msg("reader stopped")
				return
			}
			if errors.Is(err, io.EOF) {
				log.Warn().Str("port", r.name).Msg("device closed the port")
			} else {
				log.Warn().Err(err).Str("port", r.name).Msg("serial read failed")
			}
			if r.onExit != nil {
				r.onExit(r, err)
			}
			return
		}
		if r.isStopped() {
			log.Debug().Str("port", r.name).Msg("reader stopped")
			return
		}
	}
}
