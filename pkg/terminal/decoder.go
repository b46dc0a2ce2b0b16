// Package terminal turns raw device output into text a line console can
// show. Escape sequences are removed and multi-byte characters split
// across reads are put back together.
package terminal

import (
	"strings"
	"unicode/utf8"
)

// parserState is the state of the escape sequence parser
type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCharset
	stateCSI
	stateOSC
	stateDCS
)

// Decoder decodes a byte stream chunk by chunk. A sequence or character
// cut by a chunk boundary is finished by the next call. It is not safe for
// concurrent use.
type Decoder struct {
	state    parserState
	pending  []byte
	expected int
}

// NewDecoder creates a decoder in the ground state
func NewDecoder() *Decoder {
	return &Decoder{pending: make([]byte, 0, utf8.UTFMax)}
}

// Reset drops any partial sequence or character
func (d *Decoder) Reset() {
	d.state = stateGround
	d.pending = d.pending[:0]
	d.expected = 0
}

// Decode returns the printable text in data. Line feeds, carriage returns
// and tabs are kept; other control characters are dropped. Invalid UTF-8
// becomes the replacement character.
func (d *Decoder) Decode(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		switch d.state {
		case stateGround:
			d.ground(c, &b)
		case stateEscape:
			d.escape(c)
		case stateCharset:
			d.state = stateGround
		case stateCSI:
			d.csi(c)
		case stateOSC:
			d.osc(c)
		case stateDCS:
			if c == 0x1B {
				d.state = stateEscape
			}
		}
	}
	return b.String()
}

// ground processes bytes outside any sequence
func (d *Decoder) ground(c byte, b *strings.Builder) {
	if d.expected > 0 {
		if c >= 0x80 && c < 0xC0 {
			d.pending = append(d.pending, c)
			d.expected--
			if d.expected == 0 {
				r, _ := utf8.DecodeRune(d.pending)
				b.WriteRune(r)
				d.pending = d.pending[:0]
			}
			return
		}
		// interrupted sequence
		d.pending = d.pending[:0]
		d.expected = 0
		b.WriteRune(utf8.RuneError)
	}

	switch {
	case c == 0x1B:
		d.state = stateEscape
	case c == '\n', c == '\r', c == '\t':
		b.WriteByte(c)
	case c < 0x20, c == 0x7F:
	case c < 0x80:
		b.WriteByte(c)
	case c < 0xC0, c >= 0xF8:
		// orphaned continuation or invalid lead byte
		b.WriteRune(utf8.RuneError)
	default:
		d.pending = append(d.pending[:0], c)
		switch {
		case c < 0xE0:
			d.expected = 1
		case c < 0xF0:
			d.expected = 2
		default:
			d.expected = 3
		}
	}
}

// escape processes the byte after ESC
func (d *Decoder) escape(c byte) {
	switch c {
	case '[':
		d.state = stateCSI
	case ']':
		d.state = stateOSC
	case 'P':
		d.state = stateDCS
	case '(', ')', '*', '+':
		d.state = stateCharset
	case 0x1B:
	default:
		d.state = stateGround
	}
}

// csi consumes parameter and intermediate bytes up to the final byte
func (d *Decoder) csi(c byte) {
	switch {
	case c >= 0x20 && c <= 0x3F:
	case c >= 0x40 && c <= 0x7E:
		d.state = stateGround
	case c == 0x1B:
		d.state = stateEscape
	default:
		// invalid sequence
		d.state = stateGround
	}
}

// osc consumes an operating system command, ended by BEL or ESC \
func (d *Decoder) osc(c byte) {
	switch c {
	case 0x07:
		d.state = stateGround
	case 0x1B:
		d.state = stateEscape
	}
}
