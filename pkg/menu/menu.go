// Package menu draws a keyboard-driven popup menu on a tcell screen
package menu

import (
	"github.com/gdamore/tcell/v2"
)

// Menu is a popup list of actions. It is not safe for concurrent use.
type Menu struct {
	screen   tcell.Screen
	onClose  func()
	title    string
	items    []Item
	selected int
	x, y     int
	width    int
	height   int
	visible  bool
}

// Item is a single menu entry
type Item struct {
	Action    func()
	Label     string
	Shortcut  rune
	Enabled   bool
	Separator bool
}

// New creates an empty menu drawn on screen
func New(title string, screen tcell.Screen) *Menu {
	m := &Menu{
		title:  title,
		screen: screen,
	}
	m.updateDimensions()
	return m
}

// Add adds an item. A zero shortcut means none.
func (m *Menu) Add(label string, shortcut rune, action func()) {
	m.items = append(m.items, Item{
		Label:    label,
		Shortcut: shortcut,
		Action:   action,
		Enabled:  true,
	})
	m.updateDimensions()
}

// AddDisabled adds an item that is shown but cannot be chosen
func (m *Menu) AddDisabled(label string) {
	m.items = append(m.items, Item{Label: label})
	m.updateDimensions()
}

// AddSeparator adds a separator line
func (m *Menu) AddSeparator() {
	m.items = append(m.items, Item{Separator: true})
	m.updateDimensions()
}

// Items returns a copy of the items
func (m *Menu) Items() []Item {
	return append([]Item(nil), m.items...)
}

// Selected returns the index of the highlighted item
func (m *Menu) Selected() int {
	return m.selected
}

// Show makes the menu visible, centred, with the first usable item
// highlighted
func (m *Menu) Show() {
	m.visible = true
	m.selected = -1
	m.moveSelection(1)

	screenWidth, screenHeight := m.screen.Size()
	m.x = max(0, (screenWidth-m.width)/2)
	m.y = max(0, (screenHeight-m.height)/2)
}

// Hide hides the menu
func (m *Menu) Hide() {
	if !m.visible {
		return
	}
	m.visible = false
	if m.onClose != nil {
		m.onClose()
	}
}

// IsVisible returns whether the menu is visible
func (m *Menu) IsVisible() bool {
	return m.visible
}

// SetOnClose sets the callback for when menu closes
func (m *Menu) SetOnClose(callback func()) {
	m.onClose = callback
}

// Draw renders the menu. The caller shows the screen.
func (m *Menu) Draw() {
	if !m.visible {
		return
	}

	style := tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	selectedStyle := tcell.StyleDefault.Background(tcell.ColorWhite).Foreground(tcell.ColorBlack)
	disabledStyle := tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorGray)

	m.drawBorder(style)

	itemY := m.y + 1
	if m.title != "" {
		titleX := m.x + (m.width-len(m.title))/2
		m.drawText(titleX, itemY, m.title, style.Bold(true))
		itemY++
		m.drawRule(itemY, style)
		itemY++
	}

	for i, item := range m.items {
		if item.Separator {
			m.drawRule(itemY, style)
			itemY++
			continue
		}

		itemStyle := style
		if !item.Enabled {
			itemStyle = disabledStyle
		} else if i == m.selected {
			itemStyle = selectedStyle
		}

		for x := m.x + 1; x < m.x+m.width-1; x++ {
			m.screen.SetContent(x, itemY, ' ', nil, itemStyle)
		}
		m.drawText(m.x+2, itemY, item.Label, itemStyle)
		if item.Shortcut != 0 {
			m.screen.SetContent(m.x+m.width-3, itemY, item.Shortcut, nil, itemStyle)
		}
		itemY++
	}
}

// HandleKey processes keyboard input while the menu is visible. It
// returns the action of a chosen item, which the caller runs, and whether
// the key was consumed.
func (m *Menu) HandleKey(ev *tcell.EventKey) (func(), bool) {
	if !m.visible {
		return nil, false
	}

	switch ev.Key() {
	case tcell.KeyEscape:
		m.Hide()
		return nil, true
	case tcell.KeyUp:
		m.moveSelection(-1)
		return nil, true
	case tcell.KeyDown, tcell.KeyTab:
		m.moveSelection(1)
		return nil, true
	case tcell.KeyEnter:
		return m.activate(m.selected), true
	case tcell.KeyRune:
		for i, item := range m.items {
			if item.Shortcut != 0 && item.Shortcut == ev.Rune() {
				return m.activate(i), true
			}
		}
	}
	// the menu is modal
	return nil, true
}

// moveSelection moves the selection up or down, skipping separators and
// disabled items
func (m *Menu) moveSelection(direction int) {
	itemCount := len(m.items)
	if itemCount == 0 {
		m.selected = -1
		return
	}

	start := m.selected
	next := m.selected
	for range itemCount {
		next += direction
		if next < 0 {
			next = itemCount - 1
		} else if next >= itemCount {
			next = 0
		}
		if m.items[next].usable() {
			m.selected = next
			return
		}
		if next == start {
			break
		}
	}
}

func (m *Menu) activate(index int) func() {
	if index < 0 || index >= len(m.items) || !m.items[index].usable() {
		return nil
	}
	action := m.items[index].Action
	m.Hide()
	return action
}

func (i Item) usable() bool {
	return i.Enabled && !i.Separator
}

func (m *Menu) drawBorder(style tcell.Style) {
	right := m.x + m.width - 1
	bottom := m.y + m.height - 1

	m.screen.SetContent(m.x, m.y, '┌', nil, style)
	m.screen.SetContent(right, m.y, '┐', nil, style)
	m.screen.SetContent(m.x, bottom, '└', nil, style)
	m.screen.SetContent(right, bottom, '┘', nil, style)
	for x := m.x + 1; x < right; x++ {
		m.screen.SetContent(x, m.y, '─', nil, style)
		m.screen.SetContent(x, bottom, '─', nil, style)
	}
	for y := m.y + 1; y < bottom; y++ {
		m.screen.SetContent(m.x, y, '│', nil, style)
		m.screen.SetContent(right, y, '│', nil, style)
		for x := m.x + 1; x < right; x++ {
			m.screen.SetContent(x, y, ' ', nil, style)
		}
	}
}

func (m *Menu) drawRule(y int, style tcell.Style) {
	for x := m.x + 1; x < m.x+m.width-1; x++ {
		m.screen.SetContent(x, y, '─', nil, style)
	}
}

func (m *Menu) drawText(x, y int, text string, style tcell.Style) {
	for _, ch := range text {
		m.screen.SetContent(x, y, ch, nil, style)
		x++
	}
}

// updateDimensions sizes the menu to fit its title and items
func (m *Menu) updateDimensions() {
	maxWidth := len(m.title) + 4
	for _, item := range m.items {
		if item.Separator {
			continue
		}
		if width := len(item.Label) + 7; width > maxWidth {
			maxWidth = width
		}
	}

	m.width = maxWidth
	m.height = len(m.items) + 2
	if m.title != "" {
		m.height += 2
	}
}
