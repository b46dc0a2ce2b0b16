package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"serial-logterm/pkg/config"
	"serial-logterm/pkg/history"
	"serial-logterm/pkg/serial"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = "/cfg/config.yaml"

// setup points the commands at an in-memory filesystem and keeps the
// diagnostics log in a temp dir.
func setup(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	appFs = fs
	t.Setenv("SERIALLOG_DIAGNOSTICS_LOG", filepath.Join(t.TempDir(), "diag.log"))
	t.Cleanup(func() {
		appFs = afero.NewOsFs()
		sessionOpener = nil
		sessionLister = nil
		listPorts = serial.GetDetailedPortsList
	})
	return fs
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", testConfig}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

type idlePort struct {
	closed    chan struct{}
	written   bytes.Buffer
	closeOnce sync.Once
	mu        sync.Mutex
}

func (p *idlePort) Read([]byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

func (p *idlePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *idlePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

type staticLister struct {
	set serial.PortSet
}

func (l staticLister) Scan() (serial.PortSet, error) {
	return l.set, nil
}

// TestRootCommand checks the command tree
func TestRootCommand(t *testing.T) {
	if !strings.HasPrefix(rootCmd.Use, "serial-logterm") {
		t.Errorf("rootCmd.Use = %s, want serial-logterm prefix", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("rootCmd.Short should not be empty")
	}

	expectedCommands := []string{"list", "config", "connect", "log", "script"}
	for _, expected := range expectedCommands {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected subcommand '%s' not found", expected)
		}
	}
}

func TestConfigHelp(t *testing.T) {
	setup(t)
	out, err := execute(t, "", "config", "--help")
	require.NoError(t, err)
	for _, expected := range []string{"save", "load", "list", "delete", "show", "export", "import", "init"} {
		assert.Contains(t, out, expected)
	}
}

func TestListCommand(t *testing.T) {
	tests := []struct {
		name     string
		ports    []serial.PortInfo
		args     []string
		contains []string
	}{
		{
			name:     "no ports",
			args:     []string{"list"},
			contains: []string{"No serial ports found."},
		},
		{
			name:     "table with details",
			ports:    []serial.PortInfo{{Name: "COM3", IsUSB: true, VID: "2341", PID: "0043", Product: "Uno"}},
			args:     []string{"list", "-d"},
			contains: []string{"Found 1 serial port(s):", "COM3 [USB] VID:2341 PID:0043 - Uno"},
		},
		{
			name:     "csv",
			ports:    []serial.PortInfo{{Name: "COM1"}, {Name: "COM3"}},
			args:     []string{"list", "--format", "csv"},
			contains: []string{"port\nCOM1\nCOM3\n"},
		},
		{
			name:     "csv with details",
			ports:    []serial.PortInfo{{Name: "COM3", IsUSB: true, VID: "2341", PID: "0043", Product: "Uno", SerialNumber: "A1"}},
			args:     []string{"list", "--format", "csv", "--details"},
			contains: []string{"port,is_usb,vid,pid,product,serial_number\nCOM3,true,2341,0043,Uno,A1\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t)
			listPorts = func() ([]serial.PortInfo, error) { return tt.ports, nil }
			out, err := execute(t, "", tt.args...)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestListCommand_JSON(t *testing.T) {
	setup(t)
	listPorts = func() ([]serial.PortInfo, error) {
		return []serial.PortInfo{{Name: "/dev/ttyUSB0", IsUSB: true, SerialNumber: "A1"}}, nil
	}

	out, err := execute(t, "", "list", "-f", "json")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, []string{"/dev/ttyUSB0"}, names)

	out, err = execute(t, "", "list", "-f", "json", "--details")
	require.NoError(t, err)
	var infos []serial.PortInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "A1", infos[0].SerialNumber)

	_, err = execute(t, "", "list", "-f", "xml")
	assert.Error(t, err)
}

func TestProfileLifecycle(t *testing.T) {
	fs := setup(t)
	require.NoError(t, afero.WriteFile(fs, "/tmp/boot.txt", []byte("AT\nwait500\nATI\n"), 0o644))

	out, err := execute(t, "", "config", "save", "bench", "-p", "COM3", "-b", "9600", "--auto",
		"--script-file", "/tmp/boot.txt", "--description", "lab bench")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile 'bench' saved successfully.")

	out, err = execute(t, "", "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 saved profile(s)")
	assert.Contains(t, out, "bench")

	out, err = execute(t, "", "config", "show", "bench")
	require.NoError(t, err)
	assert.Contains(t, out, "Description:    lab bench")
	assert.Contains(t, out, "Baud Rate:      9600")
	assert.Contains(t, out, "Auto Reconnect: true")
	assert.Contains(t, out, "Script Lines:   3")

	_, err = execute(t, "", "config", "export", "bench", "/tmp/bench.json")
	require.NoError(t, err)
	_, err = execute(t, "", "config", "delete", "bench")
	require.NoError(t, err)
	_, err = execute(t, "", "config", "show", "bench")
	require.ErrorIs(t, err, config.ErrProfileNotFound)

	out, err = execute(t, "", "config", "import", "/tmp/bench.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile 'bench' imported.")

	_, err = execute(t, "", "config", "save", "bad", "-b", "12")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	fs := setup(t)

	out, err := execute(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+testConfig)
	exists, err := afero.Exists(fs, testConfig)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = execute(t, "", "config", "init")
	assert.Error(t, err)
	_, err = execute(t, "", "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigFileIsLoaded(t *testing.T) {
	fs := setup(t)
	require.NoError(t, afero.WriteFile(fs, testConfig, []byte("log_dir: /data/logs\nbaud_rate: 9600\n"), 0o644))

	_, err := execute(t, "", "log", "list")
	require.NoError(t, err)
	assert.Equal(t, "/data/logs", global.LogDir)
	assert.Equal(t, 9600, global.BaudRate)

	require.NoError(t, afero.WriteFile(fs, testConfig, []byte("baud_rate: 7\n"), 0o644))
	_, err = execute(t, "", "log", "list")
	assert.Error(t, err)
}

func TestScriptCommands(t *testing.T) {
	setup(t)

	out, err := execute(t, "", "script", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No scripts in /cfg/scripts")

	out, err = execute(t, "AT\nwait250\nATZ\n", "script", "save", "modem")
	require.NoError(t, err)
	assert.Contains(t, out, "Script saved to /cfg/scripts/modem.txt")

	out, err = execute(t, "", "script", "show", "modem")
	require.NoError(t, err)
	assert.Equal(t, "  1  AT\n  2  wait250    (delay 250ms)\n  3  ATZ\n", out)

	out, err = execute(t, "", "script", "ls")
	require.NoError(t, err)
	assert.Equal(t, "modem\n", out)

	_, err = execute(t, "", "script", "show", "missing")
	assert.Error(t, err)
}

func TestConnectPlainSession(t *testing.T) {
	fs := setup(t)
	var (
		port   *idlePort
		opened serial.SerialConfig
	)
	sessionLister = staticLister{set: serial.NewPortSet("COM3")}
	sessionOpener = serial.OpenerFunc(func(cfg serial.SerialConfig) (serial.Port, error) {
		opened = cfg
		port = &idlePort{closed: make(chan struct{})}
		return port, nil
	})

	out, err := execute(t, "hello\n/quit\n", "connect", "3", "--plain", "-b", "9600")
	require.NoError(t, err)

	assert.Equal(t, "COM3", opened.Port)
	assert.Equal(t, 9600, opened.BaudRate)
	require.NotNil(t, port)
	port.mu.Lock()
	assert.Equal(t, "hello\n", port.written.String())
	port.mu.Unlock()

	assert.Contains(t, out, "[Found Ports: [COM3]]\n")
	assert.Contains(t, out, "> hello\n")
	assert.Contains(t, out, "=== Session Summary ===")

	logs, err := history.ListLogs(fs, "/cfg/logs")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	records, err := history.ReadRecords(fs, logs[0].Path)
	require.NoError(t, err)
	var sent bool
	for _, r := range records {
		if r.Tag == "COM3" && r.Text == "> hello" {
			sent = true
		}
	}
	assert.True(t, sent, "sent line not logged: %v", records)

	out, err = execute(t, "", "log", "show", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestConnectWithProfileSavesOnExit(t *testing.T) {
	setup(t)
	sessionLister = staticLister{set: serial.NewPortSet()}
	sessionOpener = serial.OpenerFunc(func(serial.SerialConfig) (serial.Port, error) {
		return &idlePort{closed: make(chan struct{})}, nil
	})

	_, err := execute(t, "", "config", "save", "bench", "-p", "COM7")
	require.NoError(t, err)

	out, err := execute(t, "/baud 57600\n/auto\n", "connect", "bench", "--plain", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile 'bench' updated.")

	saved, err := profiles().LoadProfile("bench")
	require.NoError(t, err)
	assert.Equal(t, "COM7", saved.Port)
	assert.Equal(t, 57600, saved.BaudRate)
	assert.True(t, saved.AutoReconnect)

	_, err = execute(t, "", "connect", "nosuchthing", "--plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a valid port nor a saved profile")
}

func TestLogArchiveAndDelete(t *testing.T) {
	fs := setup(t)

	_, err := execute(t, "", "log", "archive")
	require.Error(t, err, "nothing to archive yet")

	path := currentLog()
	require.NoError(t, fs.MkdirAll("/cfg/logs", 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte("COM3   |10:00:00.000|\tOK\n"), 0o644))

	out, err := execute(t, "", "log", "archive")
	require.NoError(t, err)
	archived := strings.TrimSuffix(path, ".txt") + "(1).txt"
	assert.Contains(t, out, "Log archived to "+archived)

	out, err = execute(t, "", "log", "show", filepath.Base(archived))
	require.NoError(t, err)
	assert.Equal(t, "COM3   |10:00:00.000|\tOK\n", out)

	out, err = execute(t, "", "log", "delete", filepath.Base(archived))
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+archived)
	exists, err := afero.Exists(fs, archived)
	require.NoError(t, err)
	assert.False(t, exists)
}
