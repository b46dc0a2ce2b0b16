package cmd

import (
	"errors"
	"fmt"

	"serial-logterm/pkg/app"
	"serial-logterm/pkg/config"
	"serial-logterm/pkg/scanner"
	"serial-logterm/pkg/script"
	"serial-logterm/pkg/serial"
	"serial-logterm/pkg/ui"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	baudRate      int
	scriptDelay   int
	autoReconnect bool
	plainConsole  bool
	saveOnExit    bool
	profileName   string
	logFile       string
	scriptName    string

	// sessionOpener and sessionLister replace the serial driver and port
	// registry when set.
	sessionOpener serial.Opener
	sessionLister scanner.Lister
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect [port|profile]",
	Short: "Open an interactive session",
	Long: `Open an interactive session, optionally connecting straight away.

You can specify either:
  - A port (e.g. 3, COM3, /dev/ttyUSB0)
  - A saved profile name

Examples:
  # Connect to COM3 at the configured baud rate
  serial-logterm connect 3

  # Connect to /dev/ttyUSB0 at 9600 baud and reconnect when it comes back
  serial-logterm connect /dev/ttyUSB0 -b 9600 --auto

  # Use a saved profile and store any changes made during the session
  serial-logterm connect bench --save`,
	Args:    cobra.MaximumNArgs(1),
	Aliases: []string{"c", "open"},
	RunE:    runConnect,
}

func init() {
	connectCmd.Flags().IntVarP(&baudRate, "baud", "b", serial.DefaultBaudRate, "baud rate")
	connectCmd.Flags().IntVar(&scriptDelay, "delay", config.DefaultScriptDelayMS, "script line delay in milliseconds")
	connectCmd.Flags().BoolVarP(&autoReconnect, "auto", "a", false, "reconnect when the port comes back")
	connectCmd.Flags().BoolVar(&plainConsole, "plain", false, "line-mode console instead of full screen")
	connectCmd.Flags().BoolVar(&saveOnExit, "save", false, "save the session settings back to the profile on exit")
	connectCmd.Flags().StringVarP(&profileName, "profile", "p", "", "saved profile to start from")
	connectCmd.Flags().StringVar(&logFile, "log-file", "", "log into this file instead of daily files")
	connectCmd.Flags().StringVarP(&scriptName, "script", "s", "", "stored script to load for the script command")
}

func runConnect(cmd *cobra.Command, args []string) error {
	settings, profile, err := resolveSession(cmd, args)
	if err != nil {
		return err
	}

	var front app.Frontend
	if plainConsole {
		front = ui.NewPlain(cmd.InOrStdin(), cmd.OutOrStdout())
	} else {
		// the console owns the terminal, keep diagnostics in the file only
		if err := app.InitLogging(global.DiagnosticsLog, verbose); err != nil {
			return fmt.Errorf("failed to start diagnostics log: %w", err)
		}
		console, err := ui.NewConsole(nil)
		if err != nil {
			return err
		}
		front = console
	}

	runner, err := app.NewRunner(front, app.Options{
		Fs:           appFs,
		Opener:       sessionOpener,
		Lister:       sessionLister,
		LogDir:       global.LogDir,
		ScriptDir:    global.ScriptDir,
		Settings:     settings,
		ScanInterval: global.ScanInterval(),
	}, cmd.OutOrStdout())
	if err != nil {
		front.Close()
		return err
	}

	log.Info().Str("port", settings.Port).Str("profile", profile).Msg("starting session")
	if err := runner.Run(cmd.Context(), settings.Port); err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	if profile != "" && saveOnExit {
		if err := profiles().SaveProfile(profile, runner.App().Settings()); err != nil {
			return fmt.Errorf("failed to save profile %q: %w", profile, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' updated.\n", profile)
	}
	return nil
}

// resolveSession builds the session settings from the global config, an
// optional profile, the positional argument and any flags given.
func resolveSession(cmd *cobra.Command, args []string) (config.Settings, string, error) {
	settings := global.Settings()
	profile := profileName
	target := ""

	if len(args) == 1 {
		if _, err := serial.NormalizePortName(args[0]); err == nil {
			target = args[0]
		} else if profile == "" {
			profile = args[0]
		} else {
			return config.Settings{}, "", fmt.Errorf("%q is not a port name", args[0])
		}
	}

	if profile != "" {
		loaded, err := profiles().LoadProfile(profile)
		switch {
		case errors.Is(err, config.ErrProfileNotFound) && target == "" && len(args) == 1:
			return config.Settings{}, "", fmt.Errorf("'%s' is neither a valid port nor a saved profile", args[0])
		case err != nil:
			return config.Settings{}, "", err
		}
		settings = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("baud") {
		settings.BaudRate = baudRate
	}
	if flags.Changed("delay") {
		settings.ScriptDelayMS = scriptDelay
	}
	if flags.Changed("auto") {
		settings.AutoReconnect = autoReconnect
	}
	if flags.Changed("log-file") {
		settings.LogPath = logFile
	}
	if scriptName != "" {
		text, err := script.NewStore(appFs, global.ScriptDir).Load(scriptName)
		if err != nil {
			return config.Settings{}, "", err
		}
		settings.Script = text
	}
	if target != "" {
		settings.Port = target
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, "", err
	}
	return settings, profile, nil
}
