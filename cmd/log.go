package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"serial-logterm/pkg/history"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var logLines int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect and manage traffic logs",
	Long: `Inspect and manage the traffic logs written by sessions.

Logs are daily files named log-YYYY-MM-DD.txt in the configured log
directory. Each line holds the port tag, a timestamp and the text.`,
}

var logListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List log files, newest first",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logs, err := history.ListLogs(appFs, global.LogDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(logs) == 0 {
			fmt.Fprintf(out, "No logs in %s\n", global.LogDir)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSIZE\tMODIFIED")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%d\t%s\n", filepath.Base(l.Path), l.Size, l.Modified.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var logShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Print the last records of a log (today's by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := currentLog()
		if len(args) == 1 {
			path = resolveLog(args[0])
		}
		records, err := history.ReadRecords(appFs, path)
		if err != nil {
			return err
		}
		if logLines > 0 && len(records) > logLines {
			records = records[len(records)-logLines:]
		}
		out := cmd.OutOrStdout()
		for _, r := range records {
			fmt.Fprint(out, r.Format())
		}
		return nil
	},
}

var logArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Rename today's log and start a fresh one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := history.NewLogger(global.LogDir, history.WithFs(appFs))
		defer logger.Stop()
		target, err := logger.Archive()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Log archived to %s\n", target)
		return nil
	},
}

var logDeleteCmd = &cobra.Command{
	Use:     "delete <file>",
	Short:   "Delete a log file",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveLog(args[0])
		logger := history.NewLogger(global.LogDir, history.WithFs(appFs))
		if err := logger.Delete(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", path)
		return nil
	},
}

func init() {
	logCmd.AddCommand(logListCmd)
	logCmd.AddCommand(logShowCmd)
	logCmd.AddCommand(logArchiveCmd)
	logCmd.AddCommand(logDeleteCmd)

	logShowCmd.Flags().IntVarP(&logLines, "lines", "n", 20, "number of records to print, 0 for all")
}

func currentLog() string {
	return history.NewLogger(global.LogDir, history.WithFs(appFs)).Path()
}

// resolveLog finds name as given, then inside the log directory.
func resolveLog(name string) string {
	candidates := []string{name, filepath.Join(global.LogDir, name)}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, filepath.Join(global.LogDir, name+".txt"))
	}
	for _, c := range candidates {
		if ok, _ := afero.Exists(appFs, c); ok {
			return c
		}
	}
	return name
}
