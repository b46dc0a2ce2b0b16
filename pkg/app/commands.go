package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"serial-logterm/pkg/history"
	"serial-logterm/pkg/script"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// viewLimit caps how many records a log view prints.
const viewLimit = 20

type command struct {
	run   func(a *Application, args []string)
	usage string
	help  string
}

func defaultCommands() map[string]command {
	return map[string]command{
		"con":     {run: (*Application).cmdConnect, usage: "con [port]", help: "connect to a port, e.g. con 3 or con /dev/ttyUSB0"},
		"dcon":    {run: (*Application).cmdDisconnect, usage: "dcon", help: "disconnect"},
		"scan":    {run: (*Application).cmdScan, usage: "scan", help: "list available ports"},
		"auto":    {run: (*Application).cmdAuto, usage: "auto", help: "toggle auto-reconnect"},
		"baud":    {run: (*Application).cmdBaud, usage: "baud <rate>", help: "set the baud rate for the next connect"},
		"clear":   {run: (*Application).cmdClear, usage: "clear", help: "clear the terminal"},
		"log":     {run: (*Application).cmdLog, usage: "log [l|n|<file>]", help: "show log path, view latest, archive, or view a file"},
		"logdir":  {run: (*Application).cmdLogDir, usage: "logdir <dir>", help: "log into daily files under dir"},
		"logfile": {run: (*Application).cmdLogFile, usage: "logfile <path>", help: "log into one fixed file"},
		"script":  {run: (*Application).cmdScript, usage: "script [o|s] [name]", help: "run, open or save a script"},
		"delay":   {run: (*Application).cmdDelay, usage: "delay <ms>", help: "set the script line delay"},
		"help":    {run: (*Application).cmdHelp, usage: "help", help: "show commands"},
		"quit":    {run: (*Application).cmdQuit, usage: "quit", help: "exit"},
	}
}

// dispatch runs text as a command if it is one. With a command char set,
// only lines starting with it are commands and unknown names are reported.
// Without one, a line is a command only if it names one.
func (a *Application) dispatch(text string) bool {
	a.mu.Lock()
	cc := a.settings.CommandChar
	a.mu.Unlock()

	if cc != "" && text != "" {
		body, ok := strings.CutPrefix(text, cc)
		if !ok {
			return false
		}
		if !a.runCommand(body) {
			a.show(Error, "ERROR: INVALID COMMAND: "+body)
		}
		return true
	}
	return a.runCommand(text)
}

// RunCommand runs a command line given without the command character.
func (a *Application) RunCommand(line string) {
	if !a.runCommand(line) {
		a.show(Error, "ERROR: INVALID COMMAND: "+line)
	}
}

func (a *Application) runCommand(body string) bool {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return false
	}
	cmd, ok := a.commands[strings.ToLower(fields[0])]
	if !ok {
		return false
	}
	log.Debug().Str("command", fields[0]).Strs("args", fields[1:]).Msg("running command")
	cmd.run(a, fields[1:])
	return true
}

func (a *Application) cmdConnect(args []string) {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	_ = a.Connect(target)
}

func (a *Application) cmdDisconnect(_ []string) {
	_ = a.Disconnect()
}

func (a *Application) cmdScan(_ []string) {
	a.Rescan()
}

func (a *Application) cmdAuto(_ []string) {
	st := a.manager.Status()
	enabled := !st.AutoReconnect
	a.manager.SetAutoReconnect(enabled)
	if enabled {
		target := st.Target
		if target == "" {
			target = "no port"
		}
		a.show(Info, fmt.Sprintf("Auto Reconnect On (%s)", target))
		return
	}
	a.show(Info, "Auto Reconnect Off")
}

func (a *Application) cmdBaud(args []string) {
	if len(args) == 0 {
		a.show(Info, fmt.Sprintf("Baud Rate: %d", a.manager.Status().Baud))
		return
	}
	rate, err := strconv.Atoi(args[0])
	if err == nil {
		err = a.manager.SetBaudRate(rate)
	}
	if err != nil {
		a.show(Error, "ERROR: Invalid Baud Rate: "+args[0])
		return
	}
	a.show(Info, fmt.Sprintf("Baud Rate: %d", rate))
}

func (a *Application) cmdClear(_ []string) {
	a.display.Clear()
	a.show(Info, "Terminal Cleared")
}

func (a *Application) cmdLog(args []string) {
	if len(args) == 0 {
		a.show(Info, "Logging to "+a.logger.Path())
		return
	}
	switch strings.ToLower(args[0]) {
	case "l", "latest":
		a.viewLog(a.logger.Path())
	case "n", "new":
		a.show(Info, "Archiving Log")
		archived, err := a.logger.Archive()
		if err != nil {
			a.show(Error, "ERROR: "+err.Error())
			return
		}
		a.show(Info, "Log archived to "+archived)
	default:
		a.viewLog(a.resolveLog(args[0]))
	}
}

func (a *Application) cmdLogDir(args []string) {
	if len(args) == 0 {
		a.show(Error, "ERROR: logdir needs a directory")
		return
	}
	if err := a.logger.SetDir(args[0]); err != nil {
		a.show(Error, "ERROR: "+err.Error())
		return
	}
	a.mu.Lock()
	a.settings.LogPath = ""
	a.mu.Unlock()
	a.show(Info, "Logging to "+a.logger.Path())
}

func (a *Application) cmdLogFile(args []string) {
	if len(args) == 0 {
		a.show(Error, "ERROR: logfile needs a path")
		return
	}
	if err := a.logger.SetPath(args[0]); err != nil {
		a.show(Error, "ERROR: "+err.Error())
		return
	}
	a.mu.Lock()
	a.settings.LogPath = args[0]
	a.mu.Unlock()
	a.show(Info, "Logging to "+a.logger.Path())
}

// resolveLog finds name as given, then inside the log directory.
func (a *Application) resolveLog(name string) string {
	candidates := []string{name}
	dir := filepath.Dir(a.logger.Path())
	candidates = append(candidates, filepath.Join(dir, name))
	if filepath.Ext(name) == "" {
		candidates = append(candidates, filepath.Join(dir, name+".txt"))
	}
	for _, c := range candidates {
		if ok, _ := afero.Exists(a.fs, c); ok {
			return c
		}
	}
	return name
}

// viewLog prints the tail of a log file. Viewed records are not logged again.
func (a *Application) viewLog(path string) {
	records, err := history.ReadRecords(a.fs, path)
	if err != nil {
		a.show(Error, fmt.Sprintf("ERROR: Log %s not found!", path))
		return
	}
	modified := ""
	if info, err := a.fs.Stat(path); err == nil {
		modified = info.ModTime().Format(time.DateTime)
	}

	a.display.Show(Info, decorate(Info, fmt.Sprintf("%s (%d records, modified %s)", path, len(records), modified)))
	if len(records) > viewLimit {
		records = records[len(records)-viewLimit:]
	}
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Format())
	}
	a.display.Show(Info, b.String())
}

func (a *Application) cmdScript(args []string) {
	var open, save bool
	name := ""
	for _, arg := range args {
		switch strings.ToLower(arg) {
		case "o", "open":
			open, save = true, false
		case "s", "save":
			save, open = true, false
		default:
			name = arg
		}
	}

	a.mu.Lock()
	text := a.settings.Script
	a.mu.Unlock()

	switch {
	case save:
		if name == "" {
			a.show(Error, "ERROR: script save needs a name")
			return
		}
		path, err := a.scripts.Save(name, text)
		if err != nil {
			a.show(Error, "ERROR: "+err.Error())
			return
		}
		a.show(Info, "Script saved to "+path)
		return
	case open && name == "":
		names, err := a.scripts.List()
		if err != nil {
			a.show(Error, "ERROR: "+err.Error())
			return
		}
		a.show(Info, "Scripts: "+strings.Join(names, ", "))
		return
	case name != "":
		loaded, err := a.scripts.Load(name)
		if err != nil {
			if errors.Is(err, script.ErrScriptNotFound) || errors.Is(err, script.ErrInvalidName) {
				a.show(Error, fmt.Sprintf("ERROR: Script %s not found!", name))
			} else {
				a.show(Error, "ERROR: "+err.Error())
			}
			return
		}
		a.mu.Lock()
		a.settings.Script = loaded
		a.mu.Unlock()
		text = loaded
	}

	a.StartScript(text)
}

// StartScript plays text through the send path. The input line is
// disabled until the script ends.
func (a *Application) StartScript(text string) {
	a.mu.Lock()
	delay := a.settings.ScriptDelay()
	a.mu.Unlock()

	if err := a.player.Start(text, delay); err != nil {
		if errors.Is(err, script.ErrAlreadyActive) {
			a.show(Error, "ERROR: Script already active")
			return
		}
		a.show(Error, "ERROR: "+err.Error())
		return
	}
	a.display.SetInputEnabled(false)
}

// SetScript replaces the script run by a bare "script" command.
func (a *Application) SetScript(text string) {
	a.mu.Lock()
	a.settings.Script = text
	a.mu.Unlock()
}

func (a *Application) cmdDelay(args []string) {
	if len(args) == 0 {
		a.show(Info, fmt.Sprintf("Script Delay: %dms", a.player.Delay().Milliseconds()))
		return
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil || ms <= 0 {
		a.show(Error, "ERROR: Invalid Delay: "+args[0])
		return
	}
	a.player.SetDelay(time.Duration(ms) * time.Millisecond)
	a.mu.Lock()
	a.settings.ScriptDelayMS = ms
	a.mu.Unlock()
	a.show(Info, fmt.Sprintf("Script Delay: %dms", ms))
}

func (a *Application) cmdHelp(_ []string) {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	slices.Sort(names)

	a.mu.Lock()
	cc := a.settings.CommandChar
	a.mu.Unlock()

	var b strings.Builder
	for _, name := range names {
		c := a.commands[name]
		fmt.Fprintf(&b, "  %s%-20s %s\n", cc, c.usage, c.help)
	}
	b.WriteString("  Esc cancels a running script, Up/Down recall sent lines\n")
	a.display.Show(Info, b.String())
}

func (a *Application) cmdQuit(_ []string) {
	a.Quit()
}
