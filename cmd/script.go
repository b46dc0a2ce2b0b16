package cmd

import (
	"fmt"
	"io"

	"serial-logterm/pkg/script"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Manage stored scripts",
	Long: `Manage the scripts a session can play with its script command.

A script is a text file of lines sent one at a time. A line such as
wait500 sets the delay between the lines that follow, in milliseconds.`,
}

var scriptListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored scripts",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, err := scripts().List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintf(out, "No scripts in %s\n", scripts().Dir())
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	},
}

var scriptShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a stored script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := scripts().Load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, line := range script.SplitLines(text) {
			if d, ok := script.ParseWait(line); ok {
				fmt.Fprintf(out, "%3d  %s    (delay %v)\n", i+1, line, d)
				continue
			}
			fmt.Fprintf(out, "%3d  %s\n", i+1, line)
		}
		return nil
	},
}

var scriptSaveCmd = &cobra.Command{
	Use:   "save <name> [file]",
	Short: "Store a script read from a file or standard input",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 2 {
			data, err = afero.ReadFile(appFs, args[1])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		path, err := scripts().Save(args[0], string(data))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Script saved to %s\n", path)
		return nil
	},
}

func init() {
	scriptCmd.AddCommand(scriptListCmd)
	scriptCmd.AddCommand(scriptShowCmd)
	scriptCmd.AddCommand(scriptSaveCmd)
}

func scripts() *script.Store {
	return script.NewStore(appFs, global.ScriptDir)
}
