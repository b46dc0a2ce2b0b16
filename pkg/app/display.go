package app

// TextKind classifies text shown on the console.
type TextKind int

const (
	// Input is data received from the device.
	Input TextKind = iota
	// Output is text sent to the device, echoed with the output prefix.
	Output
	Info
	Error
	Warning
)

func (k TextKind) String() string {
	switch k {
	case Input:
		return "input"
	case Output:
		return "output"
	case Info:
		return "info"
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Display is the console the application writes to. Implementations must
// accept calls from more than one goroutine.
type Display interface {
	Show(kind TextKind, text string)
	Clear()
	SetInputEnabled(enabled bool)
}

// decorate wraps status text in brackets on its own line.
func decorate(kind TextKind, text string) string {
	switch kind {
	case Info, Error, Warning:
		return "[" + text + "]\n"
	default:
		return text
	}
}
