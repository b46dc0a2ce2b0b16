package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"serial-logterm/pkg/config"
	"serial-logterm/pkg/script"
	"serial-logterm/pkg/serial"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// Config command flags
	configPort         string
	configBaudRate     int
	configDelay        int
	configCommandChar  string
	configOutputPrefix string
	configLogPath      string
	configScriptFile   string
	configDescription  string
	configAuto         bool
	configForce        bool
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage session profiles and the configuration file",
	Long: `Manage saved session profiles.

A profile stores the port, baud rate, script and console settings of a
session so it can be started again with 'serial-logterm connect <name>'.`,
}

// saveCmd saves a profile
var saveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a session profile",
	Long: `Save session settings under a name.

Example:
  serial-logterm config save bench -p COM3 -b 9600 --auto`,
	Args: cobra.ExactArgs(1),
	RunE: runSaveConfig,
}

// loadCmd starts a session from a profile
var loadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Start a session using a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName = args[0]
		return runConnect(cmd, nil)
	},
}

// listConfigCmd lists all profiles
var listConfigCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved profiles",
	Args:  cobra.NoArgs,
	RunE:  runListConfigs,
}

// deleteCmd deletes a profile
var deleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Short:   "Delete a saved profile",
	Aliases: []string{"rm", "remove"},
	Args:    cobra.ExactArgs(1),
	RunE:    runDeleteConfig,
}

// showCmd shows details of a profile
var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show details of a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowConfig,
}

var exportCmd = &cobra.Command{
	Use:   "export <name> <file>",
	Short: "Write a profile to a standalone JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := profiles().ExportProfile(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' exported to %s\n", args[0], args[1])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a profile written by export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := profiles().ImportProfile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' imported.\n", name)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := config.WriteDefault(appFs, configPath, configForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	// Add subcommands to config
	configCmd.AddCommand(saveCmd)
	configCmd.AddCommand(loadCmd)
	configCmd.AddCommand(listConfigCmd)
	configCmd.AddCommand(deleteCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(exportCmd)
	configCmd.AddCommand(importCmd)
	configCmd.AddCommand(initCmd)

	// Add flags for save command
	saveCmd.Flags().StringVarP(&configPort, "port", "p", "", "serial port")
	saveCmd.Flags().IntVarP(&configBaudRate, "baud", "b", serial.DefaultBaudRate, "baud rate")
	saveCmd.Flags().IntVar(&configDelay, "delay", config.DefaultScriptDelayMS, "script line delay in milliseconds")
	saveCmd.Flags().StringVar(&configCommandChar, "command-char", config.DefaultCommandChar, "prefix that marks console commands, empty for bare names")
	saveCmd.Flags().StringVar(&configOutputPrefix, "prefix", config.DefaultOutputPrefix, "prefix echoed before sent lines")
	saveCmd.Flags().StringVar(&configLogPath, "log-path", "", "fixed log file instead of daily files")
	saveCmd.Flags().StringVar(&configScriptFile, "script-file", "", "file holding the session script")
	saveCmd.Flags().StringVar(&configDescription, "description", "", "profile description")
	saveCmd.Flags().BoolVarP(&configAuto, "auto", "a", false, "reconnect when the port comes back")

	loadCmd.Flags().BoolVar(&plainConsole, "plain", false, "line-mode console instead of full screen")
	initCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

func runSaveConfig(cmd *cobra.Command, args []string) error {
	name := args[0]

	settings := config.Settings{
		Port:          configPort,
		BaudRate:      configBaudRate,
		ScriptDelayMS: configDelay,
		CommandChar:   configCommandChar,
		OutputPrefix:  configOutputPrefix,
		LogPath:       configLogPath,
		AutoReconnect: configAuto,
	}
	if configScriptFile != "" {
		data, err := afero.ReadFile(appFs, configScriptFile)
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		settings.Script = string(data)
	}

	pm := profiles()
	if err := pm.SaveProfile(name, settings); err != nil {
		return fmt.Errorf("error saving profile: %w", err)
	}
	if configDescription != "" {
		if err := pm.SetDescription(name, configDescription); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile '%s' saved successfully.\n", name)
	fmt.Fprintf(out, "  Port: %s\n", displayPort(settings.Port))
	fmt.Fprintf(out, "  Baud Rate: %d\n", settings.BaudRate)
	fmt.Fprintf(out, "  Auto Reconnect: %t\n", settings.AutoReconnect)
	return nil
}

func runListConfigs(cmd *cobra.Command, _ []string) error {
	infos, err := profiles().ListProfiles()
	if err != nil {
		return fmt.Errorf("error listing profiles: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No saved profiles found.")
		fmt.Fprintln(out, "\nUse 'serial-logterm config save <name>' to save a profile.")
		return nil
	}

	fmt.Fprintf(out, "Found %d saved profile(s):\n\n", len(infos))

	// Create a tabwriter for aligned output
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPORT\tBAUD\tAUTO\tLAST USED\tCREATED")
	fmt.Fprintln(w, "----\t----\t----\t----\t---------\t-------")

	for _, info := range infos {
		lastUsed := "Never"
		if !info.LastUsedAt.IsZero() {
			lastUsed = info.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n",
			info.Name,
			displayPort(info.Settings.Port),
			info.Settings.BaudRate,
			info.Settings.AutoReconnect,
			lastUsed,
			info.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runDeleteConfig(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := profiles().DeleteProfile(name); err != nil {
		return fmt.Errorf("error deleting profile '%s': %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' deleted successfully.\n", name)
	return nil
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	name := args[0]

	infos, err := profiles().ListProfiles()
	if err != nil {
		return fmt.Errorf("error loading profiles: %w", err)
	}

	var found *config.ProfileInfo
	for i := range infos {
		if infos[i].Name == name {
			found = &infos[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%w: %s", config.ErrProfileNotFound, name)
	}

	s := found.Settings
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile: %s\n", found.Name)
	fmt.Fprintln(out, strings.Repeat("=", len(found.Name)+9))
	if found.Description != "" {
		fmt.Fprintf(out, "Description:    %s\n", found.Description)
	}
	fmt.Fprintf(out, "Port:           %s\n", displayPort(s.Port))
	fmt.Fprintf(out, "Baud Rate:      %d\n", s.BaudRate)
	fmt.Fprintf(out, "Auto Reconnect: %t\n", s.AutoReconnect)
	fmt.Fprintf(out, "Script Delay:   %dms\n", s.ScriptDelayMS)
	fmt.Fprintf(out, "Command Char:   %q\n", s.CommandChar)
	fmt.Fprintf(out, "Output Prefix:  %q\n", s.OutputPrefix)
	if s.LogPath != "" {
		fmt.Fprintf(out, "Log File:       %s\n", s.LogPath)
	}
	fmt.Fprintf(out, "Script Lines:   %d\n", len(script.SplitLines(s.Script)))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Created:        %s\n", found.CreatedAt.Format(time.RFC3339))
	if !found.LastUsedAt.IsZero() {
		fmt.Fprintf(out, "Last Used:      %s\n", found.LastUsedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "Last Used:      Never")
	}

	fmt.Fprintf(out, "\nUse 'serial-logterm connect %s' to start a session with this profile.\n", name)
	return nil
}

func displayPort(port string) string {
	if port == "" {
		return "(none)"
	}
	return port
}
