// Package serial wraps go.bug.st/serial behind the small port contract the
// connection engine depends on: open, blocking read, write, close.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"serial-logterm/pkg/helpers/syncutil"

	"go.bug.st/serial"
)

// SerialConfig defines the configuration for serial port communication
type SerialConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

// BaudRates lists the rates offered to the user, slowest first.
var BaudRates = []int{1200, 1800, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 256000, 460800, 921600}

// DefaultBaudRate is used when nothing else was chosen.
const DefaultBaudRate = 115200

// IsValidBaudRate reports whether rate is one of BaudRates.
func IsValidBaudRate(rate int) bool {
	for _, r := range BaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// Validate checks if the serial configuration is valid
func (c SerialConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	if !IsValidBaudRate(c.BaudRate) {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}

	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("data bits must be between 5 and 8, got: %d", c.DataBits)
	}

	if c.StopBits < 1 || c.StopBits > 2 {
		return fmt.Errorf("stop bits must be 1 or 2, got: %d", c.StopBits)
	}

	switch c.Parity {
	case "none", "odd", "even", "mark", "space":
	default:
		return fmt.Errorf("invalid parity: %s", c.Parity)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	return nil
}

// DefaultConfig returns an 8N1 configuration at DefaultBaudRate. A zero
// Timeout makes reads block until data arrives or the port is closed.
func DefaultConfig() SerialConfig {
	return SerialConfig{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
	}
}

// ConfigFor returns DefaultConfig with the port and baud rate replaced.
func ConfigFor(port string, baud int) SerialConfig {
	cfg := DefaultConfig()
	cfg.Port = port
	if baud != 0 {
		cfg.BaudRate = baud
	}
	return cfg
}

// Port is an open byte-stream handle. Read blocks until data arrives, the
// device goes away, or Close is called from another goroutine.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Opener opens ports. Tests substitute their own.
type Opener interface {
	Open(cfg SerialConfig) (Port, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(cfg SerialConfig) (Port, error)

// Open calls f(cfg).
func (f OpenerFunc) Open(cfg SerialConfig) (Port, error) {
	return f(cfg)
}

// Driver opens real serial devices through go.bug.st/serial.
type Driver struct{}

// NewDriver returns the default Opener.
func NewDriver() *Driver {
	return &Driver{}
}

// Open validates cfg and opens the device it names.
func (*Driver) Open(cfg SerialConfig) (Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: convertStopBits(cfg.StopBits),
		Parity:   convertParity(cfg.Parity),
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, NewSerialError("open", cfg.Port, err)
	}

	if cfg.Timeout > 0 {
		if err := port.SetReadTimeout(cfg.Timeout); err != nil {
			_ = port.Close()
			return nil, NewSerialError("set read timeout", cfg.Port, err)
		}
	}

	return &DevicePort{port: port, config: cfg, isOpen: true}, nil
}

// DevicePort is an open go.bug.st/serial port. Close may be called while
// another goroutine is blocked in Read; the read then returns io.EOF.
type DevicePort struct {
	port   serial.Port
	config SerialConfig
	isOpen bool
	mu     syncutil.RWMutex
}

// Read reads data from the serial port
func (p *DevicePort) Read(buffer []byte) (int, error) {
	p.mu.RLock()
	open := p.isOpen
	p.mu.RUnlock()
	if !open {
		return 0, io.EOF
	}

	n, err := p.port.Read(buffer)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			return n, io.EOF
		}
		return n, NewSerialError("read", p.config.Port, err)
	}

	return n, nil
}

// Write writes data to the serial port
func (p *DevicePort) Write(data []byte) (int, error) {
	p.mu.RLock()
	open := p.isOpen
	p.mu.RUnlock()
	if !open {
		return 0, fmt.Errorf("serial port is not open")
	}

	n, err := p.port.Write(data)
	if err != nil {
		return n, NewSerialError("write", p.config.Port, err)
	}

	return n, nil
}

// Close closes the port. Closing twice is not an error.
func (p *DevicePort) Close() error {
	p.mu.Lock()
	if !p.isOpen {
		p.mu.Unlock()
		return nil
	}
	p.isOpen = false
	p.mu.Unlock()

	if err := p.port.Close(); err != nil {
		return NewSerialError("close", p.config.Port, err)
	}
	return nil
}

// Config returns the configuration the port was opened with.
func (p *DevicePort) Config() SerialConfig {
	return p.config
}

// convertStopBits converts our stop bits format to go.bug.st/serial format
func convertStopBits(stopBits int) serial.StopBits {
	if stopBits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// convertParity converts our parity format to go.bug.st/serial format
func convertParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// SerialError represents a serial port specific error
type SerialError struct {
	Operation string
	Port      string
	Cause     error
}

// Error implements the error interface
func (e *SerialError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serial %s operation failed on port %s: %v", e.Operation, e.Port, e.Cause)
	}
	return fmt.Sprintf("serial %s operation failed on port %s", e.Operation, e.Port)
}

// Unwrap returns the underlying driver error.
func (e *SerialError) Unwrap() error {
	return e.Cause
}

// NewSerialError creates a new serial error
func NewSerialError(operation, port string, cause error) *SerialError {
	return &SerialError{
		Operation: operation,
		Port:      port,
		Cause:     cause,
	}
}

// ConnectionState represents the state of a serial connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
