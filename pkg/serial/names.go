package serial

import (
	"errors"
	"strings"
)

// ErrInvalidPortName is returned for targets that cannot name a port.
var ErrInvalidPortName = errors.New("invalid port name")

// NormalizePortName turns user input into a port name. A bare number n
// means COMn, a COM prefix is upper-cased, and device paths pass through.
func NormalizePortName(target string) (string, error) {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return "", ErrInvalidPortName
	case isDigits(target):
		return "COM" + target, nil
	case len(target) > 3 && strings.EqualFold(target[:3], "com") && isDigits(target[3:]):
		return "COM" + target[3:], nil
	case strings.HasPrefix(target, "/dev/") && len(target) > len("/dev/"):
		return target, nil
	}
	return "", ErrInvalidPortName
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
