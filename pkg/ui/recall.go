package ui

// DefaultRecallSize is how many sent lines Up/Down can reach.
const DefaultRecallSize = 100

// Recall holds previously submitted input lines for Up/Down navigation.
// It is not safe for concurrent use.
type Recall struct {
	items []string
	max   int
	pos   int
}

// NewRecall creates a recall buffer holding at most size lines.
func NewRecall(size int) *Recall {
	if size <= 0 {
		size = DefaultRecallSize
	}
	return &Recall{max: size}
}

// Add stores line as the newest entry and resets navigation. Empty lines
// and repeats of the newest entry are not stored.
func (r *Recall) Add(line string) {
	defer r.Reset()
	if line == "" {
		return
	}
	if n := len(r.items); n > 0 && r.items[n-1] == line {
		return
	}
	r.items = append(r.items, line)
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
}

// Prev moves to the next older line. It stays on the oldest line.
func (r *Recall) Prev() (string, bool) {
	if len(r.items) == 0 {
		return "", false
	}
	if r.pos > 0 {
		r.pos--
	}
	return r.items[r.pos], true
}

// Next moves to the next newer line. Moving past the newest line returns
// an empty line.
func (r *Recall) Next() string {
	if r.pos >= len(r.items)-1 {
		r.pos = len(r.items)
		return ""
	}
	r.pos++
	return r.items[r.pos]
}

// Reset moves navigation back past the newest line.
func (r *Recall) Reset() {
	r.pos = len(r.items)
}

// Len returns the number of stored lines.
func (r *Recall) Len() int {
	return len(r.items)
}
