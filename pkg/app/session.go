package app

import (
	"fmt"
	"time"

	"serial-logterm/pkg/helpers/syncutil"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Session tracks one interactive run
type Session struct {
	StartTime time.Time
	EndTime   *time.Time
	clock     clockwork.Clock
	ID        string
	Name      string
	Ports     []string
	BytesSent int64
	BytesRecv int64
	IsActive  bool
	mu        syncutil.RWMutex
}

// NewSession creates a new session
func NewSession(name string, clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Session{
		ID:        uuid.NewString(),
		Name:      name,
		StartTime: clock.Now(),
		IsActive:  true,
		clock:     clock,
	}
}

// End marks the session as ended
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.IsActive {
		return
	}
	now := s.clock.Now()
	s.EndTime = &now
	s.IsActive = false
}

// AddPort records a port connected to during the session
func (s *Session) AddPort(port string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Ports {
		if p == port {
			return
		}
	}
	s.Ports = append(s.Ports, port)
}

// UpdateStats updates session statistics
func (s *Session) UpdateStats(bytesSent, bytesRecv int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesSent += bytesSent
	s.BytesRecv += bytesRecv
}

// GetStats returns session statistics
func (s *Session) GetStats() (bytesSent, bytesRecv int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BytesSent, s.BytesRecv
}

// Duration returns how long the session ran, or has run so far
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return s.clock.Since(s.StartTime)
}

// Summary renders the end-of-session report
func (s *Session) Summary() string {
	sent, recv := s.GetStats()
	s.mu.RLock()
	ports := append([]string(nil), s.Ports...)
	s.mu.RUnlock()
	return fmt.Sprintf(
		"Session:        %s\nDuration:       %v\nPorts:          %v\nBytes Sent:     %d\nBytes Received: %d\n",
		s.ID, s.Duration().Round(time.Millisecond), ports, sent, recv)
}
