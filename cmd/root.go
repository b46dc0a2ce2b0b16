package cmd

import (
	"fmt"
	"io"
	"os"

	"serial-logterm/pkg/app"
	"serial-logterm/pkg/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// Root command flags
	verbose    bool
	configPath string

	// appFs backs every file the commands touch except the diagnostics log.
	appFs afero.Fs = afero.NewOsFs()

	// global is loaded before any command runs.
	global config.Global

	// Root command
	rootCmd = &cobra.Command{
		Use:   "serial-logterm [port|profile]",
		Short: "A serial terminal that logs every line it sees",
		Long: `serial-logterm watches for serial ports, keeps a connection open to the
one you choose, and records every line sent or received to a daily log.

Run without a subcommand to open an interactive session.`,
		Version:           "1.0.0",
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: initConfig,
		RunE:              runConnect,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is <user config dir>/serial-logterm/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(scriptCmd)
}

// initConfig reads in config file and ENV variables and starts the
// diagnostics log
func initConfig(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}

	g, err := config.LoadGlobal(appFs, path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	global = g

	var extra []io.Writer
	if verbose {
		extra = append(extra, app.ConsoleWriter())
	}
	if err := app.InitLogging(g.DiagnosticsLog, verbose, extra...); err != nil {
		return fmt.Errorf("failed to start diagnostics log: %w", err)
	}
	log.Debug().Str("config", path).Str("command", cmd.Name()).Msg("configuration loaded")
	return nil
}

func profiles() *config.FileProfileManager {
	return config.NewFileProfileManager(appFs, global.ProfileDir)
}
