package ui

import (
	"serial-logterm/pkg/app"
	"serial-logterm/pkg/menu"
	"serial-logterm/pkg/serial"
)

const menuTitle = "Session"

// openMenu pops up the session menu built from the current connection
// state.
func (c *Console) openMenu(ctrl app.Controller) {
	st := ctrl.Status()
	scriptActive := ctrl.ScriptActive()

	c.mu.Lock()
	defer c.mu.Unlock()
	m := menu.New(menuTitle, c.screen)
	buildMenu(m, ctrl, st.Ports.Names(), st.Port, st.State == serial.StateConnected, st.AutoReconnect, scriptActive)
	m.Show()
	c.menu = m
	c.drawLocked()
}

func buildMenu(m *menu.Menu, ctrl app.Controller, ports []string, current string, connected, auto, scriptActive bool) {
	run := func(line string) func() {
		return func() { ctrl.RunCommand(line) }
	}

	n := 0
	for _, name := range ports {
		if connected && name == current {
			continue
		}
		var shortcut rune
		if n < 9 {
			n++
			shortcut = rune('0' + n)
		}
		m.Add("Connect "+name, shortcut, run("con "+name))
	}
	if len(ports) == 0 {
		m.AddDisabled("No ports found")
	}
	if connected {
		m.Add("Disconnect "+current, 'd', run("dcon"))
	}
	m.Add("Scan ports", 's', run("scan"))
	m.AddSeparator()

	m.Add("Auto reconnect: "+onOff(auto), 'a', run("auto"))
	if scriptActive {
		m.Add("Stop script", 'x', ctrl.CancelScript)
	} else {
		m.Add("Run script", 'r', run("script"))
	}
	m.Add("Archive log", 'n', run("log n"))
	m.Add("Clear screen", 'c', run("clear"))
	m.Add("Help", 'h', run("help"))
	m.AddSeparator()
	m.Add("Quit", 'q', ctrl.Quit)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
