package serial

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortSet is the set of port names seen by one scan. The zero value is the
// empty set. Sets compare by value, never by identity.
type PortSet struct {
	names []string
}

// NewPortSet builds a set from names, dropping blanks and duplicates.
func NewPortSet(names ...string) PortSet {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return PortSet{names: slices.Compact(out)}
}

// Equal reports whether both sets hold exactly the same names.
func (s PortSet) Equal(other PortSet) bool {
	return slices.Equal(s.names, other.names)
}

// Contains reports whether name is in the set.
func (s PortSet) Contains(name string) bool {
	_, found := slices.BinarySearch(s.names, name)
	return found
}

// Names returns the members in sorted order.
func (s PortSet) Names() []string {
	return slices.Clone(s.names)
}

// Len returns the number of ports.
func (s PortSet) Len() int {
	return len(s.names)
}

func (s PortSet) String() string {
	return "[" + strings.Join(s.names, " ") + "]"
}

// Enumerator returns the raw list of port names from the platform.
type Enumerator func() ([]string, error)

// Registry answers "which ports exist right now". It keeps no state between
// calls.
type Registry struct {
	enumerate Enumerator
}

// NewRegistry returns a Registry backed by go.bug.st/serial.
func NewRegistry() *Registry {
	return &Registry{enumerate: serial.GetPortsList}
}

// NewRegistryWith returns a Registry backed by a custom enumerator.
func NewRegistryWith(enumerate Enumerator) *Registry {
	return &Registry{enumerate: enumerate}
}

// Scan enumerates ports and reports enumeration faults to the caller.
func (r *Registry) Scan() (PortSet, error) {
	names, err := r.enumerate()
	if err != nil {
		return PortSet{}, fmt.Errorf("failed to get available ports: %w", err)
	}
	return NewPortSet(names...), nil
}

// ListPorts enumerates ports. Faults are logged and degrade to an empty set.
func (r *Registry) ListPorts() PortSet {
	set, err := r.Scan()
	if err != nil {
		log.Warn().Err(err).Msg("port enumeration failed")
		return PortSet{}
	}
	return set
}

// PortInfo contains information about a serial port
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// GetDetailedPortsList returns USB details where the platform exposes them.
func GetDetailedPortsList() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get ports list: %w", err)
	}

	infos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		infos = append(infos, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	slices.SortFunc(infos, func(a, b PortInfo) int {
		return strings.Compare(a.Name, b.Name)
	})

	return infos, nil
}
